package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Feed names used as watermark keys for the scheduled update pipeline
const (
	FeedListings      = "crypto_listings"
	FeedFearGreed     = "fear_greed_index"
	FeedAltcoinSeason = "altcoin_season_index"
)

// Cryptocurrency represents a coin tracked from CoinMarketCap, keyed by the
// provider's stable id. Mutable fields (name, symbol, supply) are refreshed on
// every listings fetch.
type Cryptocurrency struct {
	CmcID          uint            `gorm:"primaryKey;autoIncrement:false" json:"cmc_id"`
	Name           string          `gorm:"size:100;not null" json:"name"`
	Symbol         string          `gorm:"size:20;index;not null" json:"symbol"`
	Slug           string          `gorm:"size:100;not null" json:"slug"`
	MaxSupply      decimal.Decimal `gorm:"type:decimal(24,8)" json:"max_supply"`
	InfiniteSupply bool            `json:"infinite_supply"`
	DateAdded      *time.Time      `json:"date_added"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CryptocurrencyPrice is one immutable price snapshot per coin per provider
// timestamp. The unique index makes overlapping re-fetches idempotent.
type CryptocurrencyPrice struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	CmcID                 uint            `gorm:"uniqueIndex:idx_price_cmc_ts;not null" json:"cmc_id"`
	Timestamp             time.Time       `gorm:"uniqueIndex:idx_price_cmc_ts;not null" json:"timestamp"`
	PriceUSD              decimal.Decimal `gorm:"type:decimal(24,8)" json:"price_usd"`
	Volume24h             decimal.Decimal `gorm:"type:decimal(24,8)" json:"volume_24h"`
	VolumeChange24h       decimal.Decimal `gorm:"type:decimal(24,8)" json:"volume_change_24h"`
	PercentChange1h       decimal.Decimal `gorm:"type:decimal(24,8)" json:"percent_change_1h"`
	PercentChange24h      decimal.Decimal `gorm:"type:decimal(24,8)" json:"percent_change_24h"`
	PercentChange7d       decimal.Decimal `gorm:"type:decimal(24,8)" json:"percent_change_7d"`
	MarketCap             decimal.Decimal `gorm:"type:decimal(24,8)" json:"market_cap"`
	MarketCapDominance    decimal.Decimal `gorm:"type:decimal(10,2)" json:"market_cap_dominance"`
	FullyDilutedMarketCap decimal.Decimal `gorm:"type:decimal(24,8)" json:"fully_diluted_market_cap"`
	CirculatingSupply     decimal.Decimal `gorm:"type:decimal(24,8)" json:"circulating_supply"`
	TotalSupply           decimal.Decimal `gorm:"type:decimal(24,8)" json:"total_supply"`
	CmcRank               int             `json:"cmc_rank"`
	NumMarketPairs        int             `json:"num_market_pairs"`
	CreatedAt             time.Time       `json:"created_at"`
}

// CryptocurrencyTag links a coin to one provider tag. Unique on (cmc_id, tag)
// so repeated fetches never duplicate tag rows.
type CryptocurrencyTag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CmcID     uint      `gorm:"uniqueIndex:idx_tag_cmc_tag;not null" json:"cmc_id"`
	Tag       string    `gorm:"uniqueIndex:idx_tag_cmc_tag;size:100;not null" json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

// FearGreedPoint is one fear-and-greed index observation. Immutable once
// written; unique on timestamp.
type FearGreedPoint struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	Timestamp           time.Time `gorm:"uniqueIndex;not null" json:"timestamp"`
	Value               int       `json:"value"`
	ValueClassification string    `gorm:"size:50" json:"value_classification"`
	CreatedAt           time.Time `json:"created_at"`
}

// TableName keeps the historical table name used by the index feed.
func (FearGreedPoint) TableName() string {
	return "fear_greed_index"
}

// AltcoinSeasonPoint is one altcoin-season index observation. Immutable once
// written; unique on timestamp.
type AltcoinSeasonPoint struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Timestamp        time.Time       `gorm:"uniqueIndex;not null" json:"timestamp"`
	AltcoinIndex     decimal.Decimal `gorm:"type:decimal(10,2)" json:"altcoin_index"`
	AltcoinMarketcap decimal.Decimal `gorm:"type:decimal(24,8)" json:"altcoin_marketcap"`
	CreatedAt        time.Time       `json:"created_at"`
}

// TableName keeps the historical table name used by the index feed.
func (AltcoinSeasonPoint) TableName() string {
	return "altcoin_season_index"
}

// UpdateWatermark records, per feed, when the last successful refresh happened
// and when the next one is due. Rows are created lazily on the first
// successful cycle and advanced only after a fetch+save succeeds.
type UpdateWatermark struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Feed          string    `gorm:"uniqueIndex;size:50;not null" json:"feed"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	NextUpdateAt  time.Time `json:"next_update_at"`
}

// MigrateCryptoModels runs database migrations for market-data models
func MigrateCryptoModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Cryptocurrency{},
		&CryptocurrencyPrice{},
		&CryptocurrencyTag{},
		&FearGreedPoint{},
		&AltcoinSeasonPoint{},
		&UpdateWatermark{},
	)
}
