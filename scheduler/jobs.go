package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"crypto_pulse_backend/services"

	"github.com/go-co-op/gocron"
)

// feedRunTimeout bounds a single feed update so a hung provider call cannot
// hold the re-entrancy guard forever.
const feedRunTimeout = 5 * time.Minute

// FeedUpdater runs one full update cycle for a data feed
type FeedUpdater interface {
	Update(ctx context.Context, force bool) (*services.UpdateResult, error)
}

// Scheduler manages the recurring feed update jobs
type Scheduler struct {
	cron *gocron.Scheduler

	listings      FeedUpdater
	fearGreed     FeedUpdater
	altcoinSeason FeedUpdater

	listingsBusy      int32
	fearGreedBusy     int32
	altcoinSeasonBusy int32
}

// NewScheduler creates a new scheduler instance
func NewScheduler(listings, fearGreed, altcoinSeason FeedUpdater) *Scheduler {
	return &Scheduler{
		cron:          gocron.NewScheduler(time.UTC),
		listings:      listings,
		fearGreed:     fearGreed,
		altcoinSeason: altcoinSeason,
	}
}

// Start starts all scheduled jobs. Each feed runs once immediately, then on
// its own interval. The update gate decides whether a tick actually refreshes
// data, so the timer intervals only need to be at least as frequent as the
// feed intervals.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Refresh listings every 10 minutes; the gate enforces the real cadence
	s.cron.Every(10).Minutes().StartImmediately().Do(func() {
		s.runFeed("crypto listings", s.listings, &s.listingsBusy)
	})

	// Index feeds update daily, checked hourly
	s.cron.Every(1).Hour().StartImmediately().Do(func() {
		s.runFeed("fear and greed index", s.fearGreed, &s.fearGreedBusy)
	})

	s.cron.Every(1).Hour().StartImmediately().Do(func() {
		s.runFeed("altcoin season index", s.altcoinSeason, &s.altcoinSeasonBusy)
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops all scheduled jobs
func (s *Scheduler) Stop() {
	log.Println("Stopping scheduler...")
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// runFeed executes one update for a feed, skipping the run if the previous
// tick for the same feed has not finished yet.
func (s *Scheduler) runFeed(name string, updater FeedUpdater, busy *int32) {
	if !atomic.CompareAndSwapInt32(busy, 0, 1) {
		log.Printf("Skipping %s update: previous run still in progress", name)
		return
	}
	defer atomic.StoreInt32(busy, 0)

	ctx, cancel := context.WithTimeout(context.Background(), feedRunTimeout)
	defer cancel()

	result, err := updater.Update(ctx, false)
	if err != nil {
		log.Printf("Scheduled %s update failed: %v", name, err)
		return
	}
	if result != nil && result.Updated {
		log.Printf("Scheduled %s update finished in %s (%d rows inserted)",
			name, result.Duration.Round(time.Millisecond), result.Inserted)
	}
}
