package controllers

import (
	"net/http"
	"strconv"
	"time"

	"crypto_pulse_backend/services"

	"github.com/gin-gonic/gin"
)

// PublisherController handles publishing control requests
type PublisherController struct {
	publisher   *services.PublisherService
	broadcaster *services.TelegramBroadcaster
	interval    time.Duration
}

// NewPublisherController creates a new publisher controller
func NewPublisherController(publisher *services.PublisherService, broadcaster *services.TelegramBroadcaster, interval time.Duration) *PublisherController {
	return &PublisherController{
		publisher:   publisher,
		broadcaster: broadcaster,
		interval:    interval,
	}
}

// GetStatus returns the publisher's running state and cursor position
// GET /api/v1/admin/publisher/status
func (pc *PublisherController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": pc.publisher.Status()})
}

// Start launches the publishing loop
// POST /api/v1/admin/publisher/start
func (pc *PublisherController) Start(c *gin.Context) {
	interval := pc.interval
	if raw := c.Query("interval_seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "interval_seconds must be a positive integer"})
			return
		}
		interval = time.Duration(seconds) * time.Second
	}

	if err := pc.publisher.Start(interval); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Publisher started", "interval_seconds": int(interval / time.Second)})
}

// Stop halts the publishing loop
// POST /api/v1/admin/publisher/stop
func (pc *PublisherController) Stop(c *gin.Context) {
	pc.publisher.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "Publisher stopped"})
}

// ForcePublish broadcasts one content item regardless of the cursor
// POST /api/v1/admin/publisher/publish/:id
func (pc *PublisherController) ForcePublish(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content id"})
		return
	}

	published, err := pc.publisher.ForcePublish(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !published {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found or delivery failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Content published", "id": id})
}

// ListChats returns the registered broadcast destinations
// GET /api/v1/admin/publisher/chats
func (pc *PublisherController) ListChats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": pc.broadcaster.Chats()})
}

// RegisterChat adds a broadcast destination
// POST /api/v1/admin/publisher/chats/:id
func (pc *PublisherController) RegisterChat(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chat id"})
		return
	}

	pc.broadcaster.RegisterChat(id)
	c.JSON(http.StatusOK, gin.H{"message": "Chat registered", "id": id})
}

// UnregisterChat removes a broadcast destination
// DELETE /api/v1/admin/publisher/chats/:id
func (pc *PublisherController) UnregisterChat(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid chat id"})
		return
	}

	pc.broadcaster.UnregisterChat(id)
	c.JSON(http.StatusOK, gin.H{"message": "Chat unregistered", "id": id})
}
