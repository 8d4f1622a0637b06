package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto_pulse_backend/models"
	"crypto_pulse_backend/services/cmc"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func altcoinSeasonPayload(now time.Time, values ...float64) string {
	points := make([]string, 0, len(values))
	for i, v := range values {
		ts := now.Add(-time.Duration(len(values)-1-i) * 24 * time.Hour).Unix()
		points = append(points, fmt.Sprintf(
			`{"timestamp":"%d","altcoinIndex":"%.2f","altcoinMarketcap":"950000000000"}`, ts, v))
	}
	return `{"data":{"points":[` + strings.Join(points, ",") + `]}}`
}

func newAltcoinFixture(t *testing.T, handler http.HandlerFunc) (*AltcoinSeasonService, *UpdateTracker) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	db := newTestDB(t)
	client := cmc.NewClientWithBases(cmc.NewKeyRing([]string{"test-key"}), server.URL, server.URL)
	tracker := NewUpdateTracker(db)
	return NewAltcoinSeasonService(db, client, tracker, 30, 24*time.Hour), tracker
}

func TestAltcoinSeasonFirstUpdate(t *testing.T) {
	now := time.Now()
	svc, tracker := newAltcoinFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, altcoinSeasonPayload(now, 40.1, 42.5, 44.0, 45.8, 47.2))
	})

	// Fresh database: no watermark, so the very first tick fetches
	require.True(t, tracker.ShouldUpdate(models.FeedAltcoinSeason))

	result, err := svc.Update(context.Background(), false)
	require.NoError(t, err)
	require.True(t, result.Updated)
	assert.Equal(t, 5, result.Inserted)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.NextUpdateAt, 5*time.Second)

	var count int64
	svc.db.Model(&models.AltcoinSeasonPoint{}).Count(&count)
	assert.Equal(t, int64(5), count)

	assert.False(t, tracker.ShouldUpdate(models.FeedAltcoinSeason))
}

func TestAltcoinSeasonSaveBatchIsIdempotent(t *testing.T) {
	now := time.Now()
	svc, _ := newAltcoinFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, altcoinSeasonPayload(now, 40.0, 41.0, 42.0))
	})

	first, err := svc.Update(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := svc.Update(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
}

func TestAltcoinSeasonMissingPoints(t *testing.T) {
	svc, tracker := newAltcoinFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"series":[]}}`)
	})

	_, err := svc.Update(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, cmc.ErrInvalidResponse)

	assert.True(t, tracker.ShouldUpdate(models.FeedAltcoinSeason))
}

func TestAltcoinSeasonGetLatest(t *testing.T) {
	now := time.Now()
	svc, _ := newAltcoinFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, altcoinSeasonPayload(now, 40.0, 52.5))
	})

	_, err := svc.Update(context.Background(), true)
	require.NoError(t, err)

	latest, err := svc.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	v, _ := latest.AltcoinIndex.Float64()
	assert.Equal(t, 52.5, v)
}

func altcoinPoints(now time.Time, values ...float64) []models.AltcoinSeasonPoint {
	points := make([]models.AltcoinSeasonPoint, 0, len(values))
	for i, v := range values {
		points = append(points, models.AltcoinSeasonPoint{
			Timestamp:    now.Add(-time.Duration(len(values)-1-i) * 24 * time.Hour),
			AltcoinIndex: decimal.NewFromFloat(v),
		})
	}
	return points
}

func TestAnalyzeUpwardTrend(t *testing.T) {
	svc := &AltcoinSeasonService{}
	analysis := svc.Analyze(altcoinPoints(time.Now(), 40.0, 50.0, 60.0))

	assert.Equal(t, "upward", analysis.Trend)
	assert.Equal(t, 50.0, analysis.PercentChange)
	assert.Equal(t, 50.0, analysis.Average)
	assert.Equal(t, 60.0, analysis.LatestValue)
	assert.Equal(t, "Moderate Altcoin Season", analysis.MarketCondition)
	assert.Contains(t, analysis.Message, "60.00")
}

func TestAnalyzeMarketConditionBands(t *testing.T) {
	svc := &AltcoinSeasonService{}
	now := time.Now()

	cases := []struct {
		value     float64
		condition string
	}{
		{80.0, "Strong Altcoin Season"},
		{60.0, "Moderate Altcoin Season"},
		{30.0, "Bitcoin Dominance"},
		{10.0, "Strong Bitcoin Dominance"},
	}
	for _, tc := range cases {
		analysis := svc.Analyze(altcoinPoints(now, tc.value))
		assert.Equal(t, tc.condition, analysis.MarketCondition, "value %.1f", tc.value)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	svc := &AltcoinSeasonService{}
	analysis := svc.Analyze(nil)
	assert.Equal(t, "unknown", analysis.Trend)
}
