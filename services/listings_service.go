package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"crypto_pulse_backend/models"
	"crypto_pulse_backend/services/cmc"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateResult describes the outcome of one feed update cycle
type UpdateResult struct {
	Updated      bool          `json:"updated"`
	Inserted     int           `json:"inserted"`
	Duration     time.Duration `json:"-"`
	NextUpdateAt time.Time     `json:"next_update_at,omitempty"`
}

// ListingsSaveResult carries per-table insert counts for one listings batch
type ListingsSaveResult struct {
	UpsertedCryptos int
	InsertedPrices  int
	InsertedTags    int
	Duration        time.Duration
}

// ListingsService maintains the cryptocurrency listings feed: coin metadata,
// price snapshots and tags fetched from CoinMarketCap on a schedule.
type ListingsService struct {
	db         *gorm.DB
	client     *cmc.Client
	tracker    *UpdateTracker
	fetchLimit int
	interval   time.Duration
}

// NewListingsService creates a listings service
func NewListingsService(db *gorm.DB, client *cmc.Client, tracker *UpdateTracker, fetchLimit int, interval time.Duration) *ListingsService {
	return &ListingsService{
		db:         db,
		client:     client,
		tracker:    tracker,
		fetchLimit: fetchLimit,
		interval:   interval,
	}
}

// Update runs one gate->fetch->save->advance cycle for the listings feed.
// With force set the due-check is bypassed. The watermark only advances after
// a successful fetch and save, so a failed cycle is retried on the next tick.
func (s *ListingsService) Update(ctx context.Context, force bool) (*UpdateResult, error) {
	if !force && !s.tracker.ShouldUpdate(models.FeedListings) {
		log.Println("Skipping cryptocurrency listings update - not due yet")
		return &UpdateResult{Updated: false}, nil
	}

	log.Printf("Fetching latest %d cryptocurrency listings from CoinMarketCap", s.fetchLimit)
	listings, err := s.client.FetchListings(ctx, s.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}

	result, err := s.saveBatch(listings)
	if err != nil {
		return nil, fmt.Errorf("failed to save listings batch: %w", err)
	}

	nextUpdate := time.Now().Add(s.interval)
	if err := s.tracker.Advance(models.FeedListings, nextUpdate); err != nil {
		return nil, fmt.Errorf("failed to advance listings watermark: %w", err)
	}

	log.Printf("Listings update complete: %d cryptos upserted, %d price points, %d tags in %s; next update at %s",
		result.UpsertedCryptos, result.InsertedPrices, result.InsertedTags,
		result.Duration.Round(time.Millisecond), nextUpdate.Format(time.RFC3339))

	return &UpdateResult{
		Updated:      true,
		Inserted:     result.InsertedPrices,
		Duration:     result.Duration,
		NextUpdateAt: nextUpdate,
	}, nil
}

// saveBatch writes one listings payload in a single transaction. Coin rows
// are insert-or-replace on cmc_id; price rows are insert-if-absent on
// (cmc_id, timestamp) so overlapping fetch windows never duplicate snapshots.
// Tag inserts are best effort: an individual tag failure is logged and
// skipped without aborting the batch.
func (s *ListingsService) saveBatch(listings []cmc.Listing) (*ListingsSaveResult, error) {
	start := time.Now()
	result := &ListingsSaveResult{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range listings {
			quote, ok := item.Quote["USD"]
			if !ok {
				return fmt.Errorf("listing %s has no USD quote", item.Symbol)
			}

			crypto := models.Cryptocurrency{
				CmcID:          item.ID,
				Name:           item.Name,
				Symbol:         item.Symbol,
				Slug:           item.Slug,
				InfiniteSupply: item.InfiniteSupply,
				UpdatedAt:      time.Now(),
			}
			if item.MaxSupply != nil {
				crypto.MaxSupply = decimal.NewFromFloat(*item.MaxSupply)
			}
			if added, err := time.Parse(time.RFC3339, item.DateAdded); err == nil {
				crypto.DateAdded = &added
			}

			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "cmc_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "symbol", "slug", "max_supply", "infinite_supply", "updated_at",
				}),
			}).Create(&crypto).Error; err != nil {
				return fmt.Errorf("failed to upsert cryptocurrency %s: %w", item.Symbol, err)
			}
			result.UpsertedCryptos++

			timestamp, err := time.Parse(time.RFC3339, item.LastUpdated)
			if err != nil {
				return fmt.Errorf("listing %s has invalid last_updated %q: %w", item.Symbol, item.LastUpdated, err)
			}

			price := models.CryptocurrencyPrice{
				CmcID:                 item.ID,
				Timestamp:             timestamp,
				PriceUSD:              decimal.NewFromFloat(quote.Price),
				Volume24h:             decimal.NewFromFloat(quote.Volume24h),
				VolumeChange24h:       decimal.NewFromFloat(quote.VolumeChange24h),
				PercentChange1h:       decimal.NewFromFloat(quote.PercentChange1h),
				PercentChange24h:      decimal.NewFromFloat(quote.PercentChange24h),
				PercentChange7d:       decimal.NewFromFloat(quote.PercentChange7d),
				MarketCap:             decimal.NewFromFloat(quote.MarketCap),
				MarketCapDominance:    decimal.NewFromFloat(quote.MarketCapDominance),
				FullyDilutedMarketCap: decimal.NewFromFloat(quote.FullyDilutedMarketCap),
				CirculatingSupply:     decimal.NewFromFloat(item.CirculatingSupply),
				TotalSupply:           decimal.NewFromFloat(item.TotalSupply),
				CmcRank:               item.CmcRank,
				NumMarketPairs:        item.NumMarketPairs,
			}

			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "cmc_id"}, {Name: "timestamp"}},
				DoNothing: true,
			}).Create(&price)
			if res.Error != nil {
				return fmt.Errorf("failed to insert price for %s: %w", item.Symbol, res.Error)
			}
			result.InsertedPrices += int(res.RowsAffected)

			for _, tag := range item.Tags {
				tagRow := models.CryptocurrencyTag{CmcID: item.ID, Tag: tag}
				tagRes := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "cmc_id"}, {Name: "tag"}},
					DoNothing: true,
				}).Create(&tagRow)
				if tagRes.Error != nil {
					log.Printf("Error inserting tag %q for %s, skipping: %v", tag, item.Symbol, tagRes.Error)
					continue
				}
				result.InsertedTags += int(tagRes.RowsAffected)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ListedCryptocurrency is a coin joined with its most recent price snapshot
type ListedCryptocurrency struct {
	CmcID             uint            `json:"cmc_id"`
	Name              string          `json:"name"`
	Symbol            string          `json:"symbol"`
	Slug              string          `json:"slug"`
	PriceUSD          decimal.Decimal `json:"price_usd"`
	MarketCap         decimal.Decimal `json:"market_cap"`
	PercentChange24h  decimal.Decimal `json:"percent_change_24h"`
	PercentChange7d   decimal.Decimal `json:"percent_change_7d"`
	CirculatingSupply decimal.Decimal `json:"circulating_supply"`
	CmcRank           int             `json:"cmc_rank"`
	Timestamp         time.Time       `json:"timestamp"`
}

// GetTopCryptocurrencies returns the top coins by market cap at the most
// recent snapshot timestamp.
func (s *ListingsService) GetTopCryptocurrencies(limit, offset int) ([]ListedCryptocurrency, error) {
	var latest models.CryptocurrencyPrice
	if err := s.db.Order("timestamp DESC").First(&latest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []ListedCryptocurrency{}, nil
		}
		return nil, fmt.Errorf("failed to find latest snapshot: %w", err)
	}

	var rows []ListedCryptocurrency
	err := s.db.Table("cryptocurrency_prices AS p").
		Select(`c.cmc_id, c.name, c.symbol, c.slug, p.price_usd, p.market_cap,
			p.percent_change24h, p.percent_change7d, p.circulating_supply,
			p.cmc_rank, p.timestamp`).
		Joins("JOIN cryptocurrencies c ON c.cmc_id = p.cmc_id").
		Where("p.timestamp = ?", latest.Timestamp).
		Order("p.market_cap DESC").
		Limit(limit).Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top cryptocurrencies: %w", err)
	}
	return rows, nil
}

// CryptocurrencyDetail is a coin with its latest price and tags
type CryptocurrencyDetail struct {
	models.Cryptocurrency
	LatestPrice *models.CryptocurrencyPrice `json:"latest_price,omitempty"`
	Tags        []string                    `json:"tags"`
}

// GetBySymbol returns a coin with its latest price snapshot and tags
func (s *ListingsService) GetBySymbol(symbol string) (*CryptocurrencyDetail, error) {
	var crypto models.Cryptocurrency
	if err := s.db.Where("symbol = ?", symbol).First(&crypto).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch cryptocurrency %s: %w", symbol, err)
	}

	detail := &CryptocurrencyDetail{Cryptocurrency: crypto, Tags: []string{}}

	var price models.CryptocurrencyPrice
	err := s.db.Where("cmc_id = ?", crypto.CmcID).Order("timestamp DESC").First(&price).Error
	if err == nil {
		detail.LatestPrice = &price
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to fetch latest price for %s: %w", symbol, err)
	}

	var tags []models.CryptocurrencyTag
	if err := s.db.Where("cmc_id = ?", crypto.CmcID).Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tags for %s: %w", symbol, err)
	}
	for _, t := range tags {
		detail.Tags = append(detail.Tags, t.Tag)
	}

	return detail, nil
}

// GetHistoricalPrices returns price snapshots for a coin over the last days
func (s *ListingsService) GetHistoricalPrices(symbol string, days int) ([]models.CryptocurrencyPrice, error) {
	var crypto models.Cryptocurrency
	if err := s.db.Where("symbol = ?", symbol).First(&crypto).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch cryptocurrency %s: %w", symbol, err)
	}

	since := time.Now().AddDate(0, 0, -days)
	var prices []models.CryptocurrencyPrice
	err := s.db.Where("cmc_id = ? AND timestamp >= ?", crypto.CmcID, since).
		Order("timestamp ASC").
		Find(&prices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch historical prices for %s: %w", symbol, err)
	}
	return prices, nil
}

// MarketAnalysis summarizes the latest listings snapshot
type MarketAnalysis struct {
	TotalCoins       int     `json:"total_coins"`
	UpCoins          int     `json:"up_coins"`
	DownCoins        int     `json:"down_coins"`
	NeutralCoins     int     `json:"neutral_coins"`
	UpPercentage     float64 `json:"up_percentage"`
	DownPercentage   float64 `json:"down_percentage"`
	MarketSentiment  string  `json:"market_sentiment"` // bullish, bearish
	AverageChange24h float64 `json:"average_change_24h"`
	AverageChange7d  float64 `json:"average_change_7d"`
	BitcoinDominance float64 `json:"bitcoin_dominance"`
}

// AnalyzeMarket derives aggregate market statistics from listed coins
func (s *ListingsService) AnalyzeMarket(coins []ListedCryptocurrency) *MarketAnalysis {
	analysis := &MarketAnalysis{TotalCoins: len(coins)}
	if len(coins) == 0 {
		return analysis
	}

	var sum24h, sum7d, totalCap, btcCap float64
	for _, coin := range coins {
		change24h, _ := coin.PercentChange24h.Float64()
		change7d, _ := coin.PercentChange7d.Float64()
		cap, _ := coin.MarketCap.Float64()

		switch {
		case change24h > 0:
			analysis.UpCoins++
		case change24h < 0:
			analysis.DownCoins++
		default:
			analysis.NeutralCoins++
		}

		sum24h += change24h
		sum7d += change7d
		totalCap += cap
		if coin.Symbol == "BTC" {
			btcCap = cap
		}
	}

	n := float64(len(coins))
	analysis.UpPercentage = round2(float64(analysis.UpCoins) / n * 100)
	analysis.DownPercentage = round2(float64(analysis.DownCoins) / n * 100)
	analysis.AverageChange24h = round2(sum24h / n)
	analysis.AverageChange7d = round2(sum7d / n)
	if analysis.UpCoins > analysis.DownCoins {
		analysis.MarketSentiment = "bullish"
	} else {
		analysis.MarketSentiment = "bearish"
	}
	if totalCap > 0 {
		analysis.BitcoinDominance = round2(btcCap / totalCap * 100)
	}
	return analysis
}

// round2 rounds to two decimal places for report fields
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
