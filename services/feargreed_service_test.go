package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto_pulse_backend/models"
	"crypto_pulse_backend/services/cmc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fearGreedPayload(now time.Time) string {
	return fmt.Sprintf(`{"data":[
		{"timestamp":"%d","value":40,"value_classification":"Fear"},
		{"timestamp":"%d","value":55,"value_classification":"Neutral"},
		{"timestamp":"%d","value":70,"value_classification":"Greed"}]}`,
		now.Add(-48*time.Hour).Unix(), now.Add(-24*time.Hour).Unix(), now.Unix())
}

func newFearGreedFixture(t *testing.T, handler http.HandlerFunc) (*FearGreedService, *UpdateTracker) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	db := newTestDB(t)
	client := cmc.NewClientWithBases(cmc.NewKeyRing([]string{"test-key"}), server.URL, server.URL)
	tracker := NewUpdateTracker(db)
	return NewFearGreedService(db, client, tracker, 30, 24*time.Hour), tracker
}

func TestFearGreedUpdateFullCycle(t *testing.T) {
	now := time.Now()
	svc, tracker := newFearGreedFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fearGreedPayload(now))
	})

	result, err := svc.Update(context.Background(), false)
	require.NoError(t, err)
	require.True(t, result.Updated)
	assert.Equal(t, 3, result.Inserted)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), result.NextUpdateAt, 5*time.Second)

	latest, err := svc.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 70, latest.Value)
	assert.Equal(t, "Greed", latest.ValueClassification)

	assert.False(t, tracker.ShouldUpdate(models.FeedFearGreed))
}

func TestFearGreedUpdateSkipsWhenNotDue(t *testing.T) {
	calls := 0
	svc, tracker := newFearGreedFixture(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, fearGreedPayload(time.Now()))
	})

	// Fresh watermark from a recent cycle: the provider must not be contacted
	require.NoError(t, tracker.Advance(models.FeedFearGreed, time.Now().Add(23*time.Hour)))

	result, err := svc.Update(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, result.Updated)
	assert.Equal(t, 0, calls)
}

func TestFearGreedSaveBatchIsIdempotent(t *testing.T) {
	now := time.Now()
	svc, _ := newFearGreedFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fearGreedPayload(now))
	})

	first, err := svc.Update(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)

	second, err := svc.Update(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)

	var count int64
	svc.db.Model(&models.FearGreedPoint{}).Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestFearGreedUpdateFailsOnInvalidResponse(t *testing.T) {
	svc, tracker := newFearGreedFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":{"error_code":0}}`)
	})

	_, err := svc.Update(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, cmc.ErrInvalidResponse)

	assert.True(t, tracker.ShouldUpdate(models.FeedFearGreed))
}

func TestFearGreedMillisecondTimestamps(t *testing.T) {
	now := time.Now()
	svc, _ := newFearGreedFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"timestamp":"%d","value":33,"value_classification":"Fear"}]}`,
			now.UnixMilli())
	})

	result, err := svc.Update(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)

	latest, err := svc.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.WithinDuration(t, now, latest.Timestamp, time.Second)
}

func TestAnalyzeSentiment(t *testing.T) {
	svc := &FearGreedService{}
	now := time.Now()
	points := []models.FearGreedPoint{
		{Timestamp: now.Add(-48 * time.Hour), Value: 40, ValueClassification: "Fear"},
		{Timestamp: now.Add(-24 * time.Hour), Value: 55, ValueClassification: "Neutral"},
		{Timestamp: now, Value: 70, ValueClassification: "Greed"},
	}

	analysis := svc.AnalyzeSentiment(points)
	assert.Equal(t, 55.0, analysis.Average)
	assert.Equal(t, "increasing", analysis.Trend)
	assert.Equal(t, 70, analysis.LatestValue)
	assert.Equal(t, "Greed", analysis.LatestClassification)
	assert.Equal(t, 3, analysis.DataPoints)
	assert.Equal(t, 1, analysis.Distribution["Fear"])
}

func TestAnalyzeSentimentEmpty(t *testing.T) {
	svc := &FearGreedService{}
	analysis := svc.AnalyzeSentiment(nil)
	assert.Equal(t, 0, analysis.DataPoints)
	assert.NotNil(t, analysis.Distribution)
}
