package routes

import (
	"time"

	"crypto_pulse_backend/controllers"
	"crypto_pulse_backend/middleware"
	"crypto_pulse_backend/models"
	"crypto_pulse_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies carries the shared services the routes are built on
type Dependencies struct {
	DB                *gorm.DB
	Listings          *services.ListingsService
	FearGreed         *services.FearGreedService
	AltcoinSeason     *services.AltcoinSeasonService
	Publisher         *services.PublisherService
	Broadcaster       *services.TelegramBroadcaster
	PublisherInterval time.Duration
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cryptoController := controllers.NewCryptoController(deps.Listings, deps.FearGreed, deps.AltcoinSeason)
	authController := controllers.NewAuthController(deps.DB)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authController.Register)
			auth.POST("/login", authController.Login)
			auth.GET("/me", middleware.JWTAuthMiddleware(), authController.Me)
		}

		// Market data and sentiment index routes
		crypto := api.Group("/crypto")
		{
			crypto.GET("/listings", cryptoController.GetTopCryptocurrencies)
			crypto.GET("/listings/:symbol", cryptoController.GetCryptocurrency)
			crypto.GET("/listings/:symbol/history", cryptoController.GetPriceHistory)
			crypto.GET("/market/analysis", cryptoController.GetMarketAnalysis)

			crypto.GET("/fear-greed/latest", cryptoController.GetFearGreedLatest)
			crypto.GET("/fear-greed/historical", cryptoController.GetFearGreedHistory)
			crypto.GET("/fear-greed/analysis", cryptoController.GetFearGreedAnalysis)
			crypto.GET("/altcoin-season/latest", cryptoController.GetAltcoinSeasonLatest)
			crypto.GET("/altcoin-season/historical", cryptoController.GetAltcoinSeasonHistory)
			crypto.GET("/altcoin-season/analysis", cryptoController.GetAltcoinSeasonAnalysis)
		}

		// Admin routes require an authenticated admin session
		admin := api.Group("/admin")
		admin.Use(middleware.JWTAuthMiddleware(), middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/feeds/:feed/update", cryptoController.ForceUpdate)

			// Publisher routes are only available when Telegram is configured
			if deps.Publisher != nil && deps.Broadcaster != nil {
				publisherController := controllers.NewPublisherController(deps.Publisher, deps.Broadcaster, deps.PublisherInterval)
				publisher := admin.Group("/publisher")
				{
					publisher.GET("/status", publisherController.GetStatus)
					publisher.POST("/start", publisherController.Start)
					publisher.POST("/stop", publisherController.Stop)
					publisher.POST("/publish/:id", publisherController.ForcePublish)
					publisher.GET("/chats", publisherController.ListChats)
					publisher.POST("/chats/:id", publisherController.RegisterChat)
					publisher.DELETE("/chats/:id", publisherController.UnregisterChat)
				}
			}
		}
	}
}
