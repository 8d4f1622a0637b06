package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"crypto_pulse_backend/models"
	"crypto_pulse_backend/services/cmc"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Altcoin-season market condition bands
const (
	conditionStrongAltcoin    = "Strong Altcoin Season"
	conditionModerateAltcoin  = "Moderate Altcoin Season"
	conditionBitcoinDominance = "Bitcoin Dominance"
	conditionStrongBitcoin    = "Strong Bitcoin Dominance"
)

// AltcoinSeasonService maintains the altcoin-season index feed
type AltcoinSeasonService struct {
	db          *gorm.DB
	client      *cmc.Client
	tracker     *UpdateTracker
	historyDays int
	interval    time.Duration
}

// NewAltcoinSeasonService creates an altcoin-season service
func NewAltcoinSeasonService(db *gorm.DB, client *cmc.Client, tracker *UpdateTracker, historyDays int, interval time.Duration) *AltcoinSeasonService {
	return &AltcoinSeasonService{
		db:          db,
		client:      client,
		tracker:     tracker,
		historyDays: historyDays,
		interval:    interval,
	}
}

// Update runs one gate->fetch->save->advance cycle for the altcoin-season
// feed. With force set the due-check is bypassed.
func (s *AltcoinSeasonService) Update(ctx context.Context, force bool) (*UpdateResult, error) {
	if !force && !s.tracker.ShouldUpdate(models.FeedAltcoinSeason) {
		log.Println("Skipping altcoin-season update - not due yet")
		return &UpdateResult{Updated: false}, nil
	}

	log.Printf("Fetching %d days of altcoin-season data from CoinMarketCap", s.historyDays)
	entries, err := s.client.FetchAltcoinSeason(ctx, s.historyDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch altcoin-season data: %w", err)
	}

	start := time.Now()
	inserted, err := s.saveBatch(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to save altcoin-season batch: %w", err)
	}
	duration := time.Since(start)

	nextUpdate := time.Now().Add(s.interval)
	if err := s.tracker.Advance(models.FeedAltcoinSeason, nextUpdate); err != nil {
		return nil, fmt.Errorf("failed to advance altcoin-season watermark: %w", err)
	}

	log.Printf("Altcoin-season update complete: %d new records in %s; next update at %s",
		inserted, duration.Round(time.Millisecond), nextUpdate.Format(time.RFC3339))

	return &UpdateResult{Updated: true, Inserted: inserted, Duration: duration, NextUpdateAt: nextUpdate}, nil
}

// saveBatch inserts index observations in a single transaction, skipping
// timestamps that already exist.
func (s *AltcoinSeasonService) saveBatch(entries []cmc.AltcoinSeasonEntry) (int, error) {
	inserted := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			ts, err := parseEpoch(entry.Timestamp)
			if err != nil {
				return fmt.Errorf("invalid altcoin-season timestamp %q: %w", entry.Timestamp, err)
			}
			index, err := strconv.ParseFloat(entry.AltcoinIndex, 64)
			if err != nil {
				return fmt.Errorf("invalid altcoin index value %q: %w", entry.AltcoinIndex, err)
			}
			marketcap, err := strconv.ParseFloat(entry.AltcoinMarketcap, 64)
			if err != nil {
				return fmt.Errorf("invalid altcoin marketcap value %q: %w", entry.AltcoinMarketcap, err)
			}

			point := models.AltcoinSeasonPoint{
				Timestamp:        ts,
				AltcoinIndex:     decimal.NewFromFloat(index),
				AltcoinMarketcap: decimal.NewFromFloat(marketcap),
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "timestamp"}},
				DoNothing: true,
			}).Create(&point)
			if res.Error != nil {
				return fmt.Errorf("failed to insert altcoin-season point: %w", res.Error)
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetLatest returns the most recent index observation, or nil when none exist
func (s *AltcoinSeasonService) GetLatest() (*models.AltcoinSeasonPoint, error) {
	var point models.AltcoinSeasonPoint
	if err := s.db.Order("timestamp DESC").First(&point).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch latest altcoin-season point: %w", err)
	}
	return &point, nil
}

// GetHistorical returns observations for the last days, oldest first
func (s *AltcoinSeasonService) GetHistorical(days int) ([]models.AltcoinSeasonPoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var points []models.AltcoinSeasonPoint
	err := s.db.Where("timestamp >= ?", since).Order("timestamp ASC").Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch altcoin-season history: %w", err)
	}
	return points, nil
}

// AltcoinSeasonAnalysis summarizes a window of altcoin-season observations
type AltcoinSeasonAnalysis struct {
	Trend           string  `json:"trend"` // upward, downward, neutral
	PercentChange   float64 `json:"percent_change"`
	Average         float64 `json:"average"`
	LatestValue     float64 `json:"latest_value"`
	MarketCondition string  `json:"market_condition"`
	Message         string  `json:"message"`
}

// Analyze derives trend and market condition from index observations
func (s *AltcoinSeasonService) Analyze(points []models.AltcoinSeasonPoint) *AltcoinSeasonAnalysis {
	if len(points) == 0 {
		return &AltcoinSeasonAnalysis{Trend: "unknown", Message: "No data available for analysis"}
	}

	sorted := make([]models.AltcoinSeasonPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	first, _ := sorted[0].AltcoinIndex.Float64()
	last, _ := sorted[len(sorted)-1].AltcoinIndex.Float64()
	change := last - first

	sum := 0.0
	for _, p := range sorted {
		v, _ := p.AltcoinIndex.Float64()
		sum += v
	}

	var condition string
	switch {
	case last >= 75:
		condition = conditionStrongAltcoin
	case last >= 50:
		condition = conditionModerateAltcoin
	case last >= 25:
		condition = conditionBitcoinDominance
	default:
		condition = conditionStrongBitcoin
	}

	trend := "neutral"
	if change > 0 {
		trend = "upward"
	} else if change < 0 {
		trend = "downward"
	}

	percentChange := 0.0
	if first != 0 {
		percentChange = round2(change / first * 100)
	}

	return &AltcoinSeasonAnalysis{
		Trend:           trend,
		PercentChange:   percentChange,
		Average:         round2(sum / float64(len(sorted))),
		LatestValue:     round2(last),
		MarketCondition: condition,
		Message:         fmt.Sprintf("The altcoin index is at %.2f, indicating %s.", last, condition),
	}
}
