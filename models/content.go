package models

import (
	"time"

	"gorm.io/gorm"
)

// Source represents an upstream channel content is ingested from
// (a Telegram channel, a Twitter account, an RSS feed, ...).
type Source struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Type      string    `gorm:"size:50" json:"type"` // telegram, twitter, rss
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is one author/account inside a source.
type Entity struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SourceID    uint      `gorm:"index" json:"source_id"`
	Source      Source    `gorm:"foreignKey:SourceID" json:"source,omitempty"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Username    string    `gorm:"size:100" json:"username"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RawContent is one piece of content as ingested, before analysis.
type RawContent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EntityID    uint      `gorm:"index" json:"entity_id"`
	Entity      Entity    `gorm:"foreignKey:EntityID" json:"entity,omitempty"`
	ExternalID  string    `gorm:"size:255;index" json:"external_id"`
	Content     string    `gorm:"type:text" json:"content"`
	ContentType string    `gorm:"size:50" json:"content_type"` // telegram, twitter, tweet, article
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProcessedContent is the analysis output for one raw content row. The
// publisher poller treats its monotonic id as the publication ordering and
// dedupe key.
type ProcessedContent struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RawContentID   uint       `gorm:"index" json:"raw_content_id"`
	RawContent     RawContent `gorm:"foreignKey:RawContentID" json:"raw_content,omitempty"`
	SentimentScore float64    `json:"sentiment_score"`
	ImpactScore    float64    `json:"impact_score"`
	Categories     string     `gorm:"type:text" json:"categories"` // comma separated
	Keywords       string     `gorm:"type:text" json:"keywords"`   // comma separated
	Summary        string     `gorm:"type:text" json:"summary"`
	CreatedAt      time.Time  `json:"created_at"`
}

// PublishingCursor is the singleton high-water mark of processed content ids
// already attempted for broadcast. last_published_id never moves backward.
type PublishingCursor struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	LastPublishedID uint      `gorm:"not null;default:0" json:"last_published_id"`
	LastCheckTime   time.Time `json:"last_check_time"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MigrateContentModels runs database migrations for content-related models
func MigrateContentModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Source{},
		&Entity{},
		&RawContent{},
		&ProcessedContent{},
		&PublishingCursor{},
	)
}
