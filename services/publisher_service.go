package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"crypto_pulse_backend/models"

	"gorm.io/gorm"
)

// telegramMessageLimit is the provider's message size ceiling; formatted
// messages are truncated below it.
const telegramMessageLimit = 4096

const publisherBatchSize = 10

// MessageBroadcaster delivers one formatted message to every registered
// destination and reports aggregate counts.
type MessageBroadcaster interface {
	Broadcast(message string) BroadcastResult
}

// PublisherService polls for newly processed content and broadcasts it. A
// singleton cursor row stores the highest content id already attempted, so a
// row is published at most once; the cursor advances over rows that cannot be
// formatted or delivered rather than retrying them forever.
type PublisherService struct {
	db          *gorm.DB
	broadcaster MessageBroadcaster

	mu              sync.Mutex
	running         bool
	stop            chan struct{}
	interval        time.Duration
	cursorID        uint
	lastPublishedID uint
}

// NewPublisherService creates a publisher service
func NewPublisherService(db *gorm.DB, broadcaster MessageBroadcaster) *PublisherService {
	return &PublisherService{db: db, broadcaster: broadcaster}
}

// Start bootstraps the cursor and launches the polling loop with the given
// interval. Starting an already-running publisher is a no-op.
func (p *PublisherService) Start(interval time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		log.Println("Publisher is already running")
		return nil
	}

	if err := p.initCursor(); err != nil {
		return fmt.Errorf("failed to initialize publishing cursor: %w", err)
	}

	p.interval = interval
	p.stop = make(chan struct{})
	p.running = true

	go p.pollLoop(p.stop, interval)
	log.Printf("Publisher started with %s interval, cursor at %d", interval, p.lastPublishedID)
	return nil
}

// Stop halts the polling loop. Stopping a stopped publisher is a no-op.
func (p *PublisherService) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stop)
	p.running = false
	log.Println("Publisher stopped")
}

// PublisherStatus describes the publisher's current state
type PublisherStatus struct {
	Running         bool      `json:"running"`
	IntervalSeconds int       `json:"interval_seconds"`
	LastPublishedID uint      `json:"last_published_id"`
	LastCheckTime   time.Time `json:"last_check_time"`
}

// Status reports whether the loop is running and where the cursor stands
func (p *PublisherService) Status() PublisherStatus {
	p.mu.Lock()
	running := p.running
	interval := p.interval
	p.mu.Unlock()

	status := PublisherStatus{
		Running:         running,
		IntervalSeconds: int(interval / time.Second),
	}

	var cursor models.PublishingCursor
	if err := p.db.Order("id DESC").First(&cursor).Error; err == nil {
		status.LastPublishedID = cursor.LastPublishedID
		status.LastCheckTime = cursor.LastCheckTime
	}
	return status
}

func (p *PublisherService) pollLoop(stop chan struct{}, interval time.Duration) {
	// Run immediately, then on every tick
	if err := p.pollOnce(); err != nil {
		log.Printf("Publisher poll error: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := p.pollOnce(); err != nil {
				log.Printf("Publisher poll error: %v", err)
			}
		}
	}
}

// initCursor loads the singleton cursor row, creating it at zero on first run
func (p *PublisherService) initCursor() error {
	var cursor models.PublishingCursor
	err := p.db.Order("id DESC").First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = models.PublishingCursor{LastPublishedID: 0, LastCheckTime: time.Now()}
		if err := p.db.Create(&cursor).Error; err != nil {
			return err
		}
		log.Println("Created publishing cursor at 0")
	} else if err != nil {
		return err
	} else {
		log.Printf("Loaded publishing cursor: last published id %d", cursor.LastPublishedID)
	}

	p.cursorID = cursor.ID
	p.lastPublishedID = cursor.LastPublishedID
	return nil
}

// publishCandidate is one processed content row joined with its raw content,
// entity and source.
type publishCandidate struct {
	ID             uint
	RawContentID   uint
	SentimentScore float64
	Summary        string
	ExternalID     string
	Content        string
	ContentType    string
	PublishedAt    time.Time
	EntityName     string
	EntityUsername string
	SourceName     string
}

// pollOnce examines one batch of unpublished content. The check time is
// recorded even when nothing is found. The cursor advances to the highest id
// examined, whether or not each row produced a delivered message, so an
// unformattable row cannot wedge the cursor.
func (p *PublisherService) pollOnce() error {
	now := time.Now()
	if err := p.db.Model(&models.PublishingCursor{}).
		Where("id = ?", p.cursorID).
		Updates(map[string]interface{}{"last_check_time": now, "updated_at": now}).Error; err != nil {
		return fmt.Errorf("failed to record check time: %w", err)
	}

	p.mu.Lock()
	lastID := p.lastPublishedID
	p.mu.Unlock()

	rows, err := p.fetchCandidates(lastID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	log.Printf("Found %d new content items to publish", len(rows))

	published := 0
	highestID := lastID
	for _, row := range rows {
		if row.ID > highestID {
			highestID = row.ID
		}

		message, ok := formatContentMessage(row)
		if !ok {
			log.Printf("Skipping content id %d: no summary to publish", row.ID)
			continue
		}

		result := p.broadcaster.Broadcast(message)
		if result.Success > 0 {
			published++
			log.Printf("Published content id %d to %d chats", row.ID, result.Success)
		} else {
			log.Printf("Failed to publish content id %d to any chat", row.ID)
		}
	}

	if highestID > lastID {
		if err := p.advanceCursor(highestID); err != nil {
			return fmt.Errorf("failed to advance publishing cursor: %w", err)
		}
	}

	if published > 0 {
		log.Printf("Published %d content items", published)
	}
	return nil
}

// ForcePublish broadcasts one specific content id regardless of the cursor,
// falling back to truncated raw content when no summary exists. The cursor
// still advances if the id is newer than the stored high-water mark.
func (p *PublisherService) ForcePublish(contentID uint) (bool, error) {
	row, err := p.fetchByID(contentID)
	if err != nil {
		return false, err
	}
	if row == nil {
		log.Printf("Content id %d not found", contentID)
		return false, nil
	}

	message, ok := formatContentMessage(*row)
	if !ok {
		// Forced publishes fall back to the raw text
		message = formatFallbackMessage(*row)
	}

	result := p.broadcaster.Broadcast(message)
	if result.Success == 0 {
		log.Printf("Failed to force publish content id %d to any chat", contentID)
		return false, nil
	}

	p.mu.Lock()
	newer := contentID > p.lastPublishedID
	p.mu.Unlock()
	if newer {
		if err := p.advanceCursor(contentID); err != nil {
			return true, fmt.Errorf("failed to advance publishing cursor: %w", err)
		}
	}

	log.Printf("Force published content id %d to %d chats", contentID, result.Success)
	return true, nil
}

func (p *PublisherService) fetchCandidates(afterID uint) ([]publishCandidate, error) {
	var rows []publishCandidate
	err := p.db.Table("processed_contents AS pc").
		Select(`pc.id, pc.raw_content_id, pc.sentiment_score, pc.summary,
			rc.external_id, rc.content, rc.content_type, rc.published_at,
			e.name AS entity_name, e.username AS entity_username,
			s.name AS source_name`).
		Joins("JOIN raw_contents rc ON rc.id = pc.raw_content_id").
		Joins("JOIN entities e ON e.id = rc.entity_id").
		Joins("JOIN sources s ON s.id = e.source_id").
		Where("pc.id > ?", afterID).
		Order("pc.id ASC").
		Limit(publisherBatchSize).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query processed content: %w", err)
	}
	return rows, nil
}

func (p *PublisherService) fetchByID(contentID uint) (*publishCandidate, error) {
	var rows []publishCandidate
	err := p.db.Table("processed_contents AS pc").
		Select(`pc.id, pc.raw_content_id, pc.sentiment_score, pc.summary,
			rc.external_id, rc.content, rc.content_type, rc.published_at,
			e.name AS entity_name, e.username AS entity_username,
			s.name AS source_name`).
		Joins("JOIN raw_contents rc ON rc.id = pc.raw_content_id").
		Joins("JOIN entities e ON e.id = rc.entity_id").
		Joins("JOIN sources s ON s.id = e.source_id").
		Where("pc.id = ?", contentID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query content id %d: %w", contentID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// advanceCursor moves the stored high-water mark forward. The guard on
// last_published_id keeps the cursor monotonic even if calls race.
func (p *PublisherService) advanceCursor(newID uint) error {
	now := time.Now()
	err := p.db.Model(&models.PublishingCursor{}).
		Where("id = ? AND last_published_id < ?", p.cursorID, newID).
		Updates(map[string]interface{}{
			"last_published_id": newID,
			"last_check_time":   now,
			"updated_at":        now,
		}).Error
	if err != nil {
		return err
	}

	p.mu.Lock()
	if newID > p.lastPublishedID {
		p.lastPublishedID = newID
	}
	p.mu.Unlock()
	return nil
}
