package services

import (
	"errors"
	"log"
	"time"

	"crypto_pulse_backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpdateTracker answers "is a refresh due?" per feed and records successful
// refresh cycles. A missing watermark row means the feed has never been
// fetched and is due; a read failure also reports due, so a transient database
// error never starves a feed permanently.
type UpdateTracker struct {
	db *gorm.DB
}

// NewUpdateTracker creates an update tracker backed by the given database
func NewUpdateTracker(db *gorm.DB) *UpdateTracker {
	return &UpdateTracker{db: db}
}

// ShouldUpdate reports whether the feed's next update time has been reached
func (t *UpdateTracker) ShouldUpdate(feed string) bool {
	var wm models.UpdateWatermark
	if err := t.db.Where("feed = ?", feed).First(&wm).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("Error reading update watermark for %s, assuming due: %v", feed, err)
		}
		return true
	}
	return !time.Now().Before(wm.NextUpdateAt)
}

// Advance upserts the feed's watermark after a successful fetch+save cycle,
// setting last_updated_at to now and the given next update time. It must not
// be called when a cycle fails; the feed then stays due and is retried on the
// next tick.
func (t *UpdateTracker) Advance(feed string, nextUpdateAt time.Time) error {
	wm := models.UpdateWatermark{
		Feed:          feed,
		LastUpdatedAt: time.Now(),
		NextUpdateAt:  nextUpdateAt,
	}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feed"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_updated_at", "next_update_at"}),
	}).Create(&wm).Error
}
