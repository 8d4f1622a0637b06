package controllers

import (
	"net/http"
	"strconv"

	"crypto_pulse_backend/services"

	"github.com/gin-gonic/gin"
)

// CryptoController handles market data and sentiment index requests
type CryptoController struct {
	listings      *services.ListingsService
	fearGreed     *services.FearGreedService
	altcoinSeason *services.AltcoinSeasonService
}

// NewCryptoController creates a new crypto controller
func NewCryptoController(listings *services.ListingsService, fearGreed *services.FearGreedService, altcoinSeason *services.AltcoinSeasonService) *CryptoController {
	return &CryptoController{
		listings:      listings,
		fearGreed:     fearGreed,
		altcoinSeason: altcoinSeason,
	}
}

// GetTopCryptocurrencies returns the top coins by market cap
// GET /api/v1/crypto/listings
func (cc *CryptoController) GetTopCryptocurrencies(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := (page - 1) * limit

	coins, err := cc.listings.GetTopCryptocurrencies(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cryptocurrencies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": coins,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

// GetCryptocurrency returns a single coin by symbol
// GET /api/v1/crypto/listings/:symbol
func (cc *CryptoController) GetCryptocurrency(c *gin.Context) {
	symbol := c.Param("symbol")

	detail, err := cc.listings.GetBySymbol(symbol)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cryptocurrency"})
		return
	}
	if detail == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cryptocurrency not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

// GetPriceHistory returns price snapshots for a coin
// GET /api/v1/crypto/listings/:symbol/history
func (cc *CryptoController) GetPriceHistory(c *gin.Context) {
	symbol := c.Param("symbol")
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}

	prices, err := cc.listings.GetHistoricalPrices(symbol, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch price history"})
		return
	}
	if prices == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Cryptocurrency not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": symbol,
		"days":   days,
		"data":   prices,
	})
}

// GetMarketAnalysis returns aggregate statistics for the latest snapshot
// GET /api/v1/crypto/market/analysis
func (cc *CryptoController) GetMarketAnalysis(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 200 {
		limit = 100
	}

	coins, err := cc.listings.GetTopCryptocurrencies(limit, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch cryptocurrencies"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cc.listings.AnalyzeMarket(coins)})
}

// GetFearGreedLatest returns the most recent fear and greed reading
// GET /api/v1/crypto/fear-greed/latest
func (cc *CryptoController) GetFearGreedLatest(c *gin.Context) {
	point, err := cc.fearGreed.GetLatest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch fear and greed index"})
		return
	}
	if point == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No fear and greed data available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": point})
}

// GetFearGreedHistory returns fear and greed readings over a window
// GET /api/v1/crypto/fear-greed/historical
func (cc *CryptoController) GetFearGreedHistory(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}

	points, err := cc.fearGreed.GetHistorical(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch fear and greed history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"days": days, "data": points})
}

// GetFearGreedAnalysis returns trend statistics over a window
// GET /api/v1/crypto/fear-greed/analysis
func (cc *CryptoController) GetFearGreedAnalysis(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}

	points, err := cc.fearGreed.GetHistorical(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch fear and greed history"})
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No fear and greed data available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cc.fearGreed.AnalyzeSentiment(points)})
}

// GetAltcoinSeasonLatest returns the most recent altcoin season reading
// GET /api/v1/crypto/altcoin-season/latest
func (cc *CryptoController) GetAltcoinSeasonLatest(c *gin.Context) {
	point, err := cc.altcoinSeason.GetLatest()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch altcoin season index"})
		return
	}
	if point == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No altcoin season data available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": point})
}

// GetAltcoinSeasonHistory returns altcoin season readings over a window
// GET /api/v1/crypto/altcoin-season/historical
func (cc *CryptoController) GetAltcoinSeasonHistory(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}

	points, err := cc.altcoinSeason.GetHistorical(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch altcoin season history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"days": days, "data": points})
}

// GetAltcoinSeasonAnalysis returns trend statistics over a window
// GET /api/v1/crypto/altcoin-season/analysis
func (cc *CryptoController) GetAltcoinSeasonAnalysis(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 || days > 365 {
		days = 30
	}

	points, err := cc.altcoinSeason.GetHistorical(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch altcoin season history"})
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No altcoin season data available"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cc.altcoinSeason.Analyze(points)})
}

// ForceUpdate triggers an immediate update for one feed, bypassing the gate
// POST /api/v1/admin/feeds/:feed/update
func (cc *CryptoController) ForceUpdate(c *gin.Context) {
	feed := c.Param("feed")

	var result *services.UpdateResult
	var err error
	switch feed {
	case "listings":
		result, err = cc.listings.Update(c.Request.Context(), true)
	case "fear-greed":
		result, err = cc.fearGreed.Update(c.Request.Context(), true)
	case "altcoin-season":
		result, err = cc.altcoinSeason.Update(c.Request.Context(), true)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown feed. Use: listings, fear-greed, altcoin-season"})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"feed": feed, "result": result})
}
