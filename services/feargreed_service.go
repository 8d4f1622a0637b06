package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"crypto_pulse_backend/models"
	"crypto_pulse_backend/services/cmc"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FearGreedService maintains the fear-and-greed index feed
type FearGreedService struct {
	db          *gorm.DB
	client      *cmc.Client
	tracker     *UpdateTracker
	historyDays int
	interval    time.Duration
}

// NewFearGreedService creates a fear-and-greed service
func NewFearGreedService(db *gorm.DB, client *cmc.Client, tracker *UpdateTracker, historyDays int, interval time.Duration) *FearGreedService {
	return &FearGreedService{
		db:          db,
		client:      client,
		tracker:     tracker,
		historyDays: historyDays,
		interval:    interval,
	}
}

// Update runs one gate->fetch->save->advance cycle for the fear-and-greed
// feed. With force set the due-check is bypassed.
func (s *FearGreedService) Update(ctx context.Context, force bool) (*UpdateResult, error) {
	if !force && !s.tracker.ShouldUpdate(models.FeedFearGreed) {
		log.Println("Skipping fear-and-greed update - not due yet")
		return &UpdateResult{Updated: false}, nil
	}

	log.Printf("Fetching %d days of fear-and-greed history from CoinMarketCap", s.historyDays)
	entries, err := s.client.FetchFearGreedHistory(ctx, s.historyDays)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fear-and-greed history: %w", err)
	}

	start := time.Now()
	inserted, err := s.saveBatch(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to save fear-and-greed batch: %w", err)
	}
	duration := time.Since(start)

	nextUpdate := time.Now().Add(s.interval)
	if err := s.tracker.Advance(models.FeedFearGreed, nextUpdate); err != nil {
		return nil, fmt.Errorf("failed to advance fear-and-greed watermark: %w", err)
	}

	log.Printf("Fear-and-greed update complete: %d new records in %s; next update at %s",
		inserted, duration.Round(time.Millisecond), nextUpdate.Format(time.RFC3339))

	return &UpdateResult{Updated: true, Inserted: inserted, Duration: duration, NextUpdateAt: nextUpdate}, nil
}

// saveBatch inserts index observations in a single transaction, skipping
// timestamps that already exist. Index values are immutable once written.
func (s *FearGreedService) saveBatch(entries []cmc.FearGreedEntry) (int, error) {
	inserted := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			ts, err := parseEpoch(entry.Timestamp)
			if err != nil {
				return fmt.Errorf("invalid fear-and-greed timestamp %q: %w", entry.Timestamp, err)
			}

			point := models.FearGreedPoint{
				Timestamp:           ts,
				Value:               entry.Value,
				ValueClassification: entry.ValueClassification,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "timestamp"}},
				DoNothing: true,
			}).Create(&point)
			if res.Error != nil {
				return fmt.Errorf("failed to insert fear-and-greed point: %w", res.Error)
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
func (s *FearGreedService) GetLatest() (*models.FearGreedPoint, error) {
	var point models.FearGreedPoint
	if err := s.db.Order("timestamp DESC").First(&point).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch latest fear-and-greed point: %w", err)
	}
	return &point, nil
}

// GetHistorical returns observations for the last days, oldest first
func (s *FearGreedService) GetHistorical(days int) ([]models.FearGreedPoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var points []models.FearGreedPoint
	err := s.db.Where("timestamp >= ?", since).Order("timestamp ASC").Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fear-and-greed history: %w", err)
	}
	return points, nil
}

// SentimentAnalysis summarizes a window of fear-and-greed observations
type SentimentAnalysis struct {
	Average              float64        `json:"average"`
	Trend                string         `json:"trend"` // increasing, decreasing, stable
	LatestValue          int            `json:"latest_value"`
	LatestClassification string         `json:"latest_classification"`
	Distribution         map[string]int `json:"distribution"`
	DataPoints           int            `json:"data_points"`
}

// AnalyzeSentiment derives trend statistics from index observations
func (s *FearGreedService) AnalyzeSentiment(points []models.FearGreedPoint) *SentimentAnalysis {
	if len(points) == 0 {
		return &SentimentAnalysis{Distribution: map[string]int{}}
	}

	sorted := make([]models.FearGreedPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	sum := 0
	distribution := make(map[string]int)
	for _, p := range sorted {
		sum += p.Value
		distribution[p.ValueClassification]++
	}

	oldest := sorted[0].Value
	latest := sorted[len(sorted)-1].Value
	trend := "stable"
	if latest > oldest {
		trend = "increasing"
	} else if latest < oldest {
		trend = "decreasing"
	}

	return &SentimentAnalysis{
		Average:              round2(float64(sum) / float64(len(sorted))),
		Trend:                trend,
		LatestValue:          latest,
		LatestClassification: sorted[len(sorted)-1].ValueClassification,
		Distribution:         distribution,
		DataPoints:           len(sorted),
	}
}

// parseEpoch parses an epoch-seconds string, tolerating millisecond epochs
func parseEpoch(raw string) (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if n > 1_000_000_000_000 {
		n = n / 1000
	}
	return time.Unix(n, 0).UTC(), nil
}
