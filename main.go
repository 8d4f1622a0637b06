package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"crypto_pulse_backend/config"
	"crypto_pulse_backend/models"
	"crypto_pulse_backend/routes"
	"crypto_pulse_backend/scheduler"
	"crypto_pulse_backend/services"
	"crypto_pulse_backend/services/cmc"

	"github.com/gin-gonic/gin"
)

// dbInitialized tracks whether database has been successfully initialized
// This global variable is used for thread-safe access across goroutines to allow
// the /ready health endpoint to dynamically check database status
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  Crypto Pulse Backend API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up. Database is initialized in the background.
	setupHealthEndpoints(router)

	// Create HTTP server with timeouts suited for container platforms
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server IMMEDIATELY so the platform knows we're listening
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize database and setup routes in background
	var jobScheduler *scheduler.Scheduler
	var publisher *services.PublisherService
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		// Run database migrations
		log.Println("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		// Seed default admin user
		if err := models.SeedDefaultAdminUser(config.DB); err != nil {
			log.Printf("Warning: Could not seed admin user: %v", err)
		}

		// Build the CoinMarketCap client with its rotating key ring
		keys := cmc.NewKeyRingFromEnv()
		if keys.Len() == 0 {
			log.Println("Warning: no CoinMarketCap API keys configured; feed updates will fail")
		} else {
			log.Printf("Loaded %d CoinMarketCap API key(s)", keys.Len())
		}
		client := cmc.NewClient(keys)

		// Feed services share one update tracker
		tracker := services.NewUpdateTracker(db)
		listings := services.NewListingsService(db, client, tracker, cfg.ListingsFetchLimit, cfg.ListingsInterval)
		fearGreed := services.NewFearGreedService(db, client, tracker, cfg.IndexHistoryDays, cfg.FearGreedInterval)
		altcoinSeason := services.NewAltcoinSeasonService(db, client, tracker, cfg.IndexHistoryDays, cfg.AltcoinSeasonInterval)

		// Telegram broadcaster and content publisher
		var broadcaster *services.TelegramBroadcaster
		if cfg.TelegramBotToken != "" {
			broadcaster, err = services.NewTelegramBroadcaster(cfg.TelegramBotToken, cfg.TelegramChatIDs)
			if err != nil {
				log.Printf("Warning: Telegram broadcaster unavailable: %v", err)
			}
		} else {
			log.Println("TELEGRAM_BOT_TOKEN not set, publishing disabled")
		}

		if broadcaster != nil {
			publisher = services.NewPublisherService(db, broadcaster)
		}

		// Mark database as ready
		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		// Setup all API routes
		routes.SetupRoutes(router, routes.Dependencies{
			DB:                db,
			Listings:          listings,
			FearGreed:         fearGreed,
			AltcoinSeason:     altcoinSeason,
			Publisher:         publisher,
			Broadcaster:       broadcaster,
			PublisherInterval: cfg.PublisherInterval,
		})

		// Start background feed scheduler
		jobScheduler = scheduler.NewScheduler(listings, fearGreed, altcoinSeason)
		jobScheduler.Start()

		// Start the content publisher
		if publisher != nil {
			if err := publisher.Start(cfg.PublisherInterval); err != nil {
				log.Printf("Warning: Could not start publisher: %v", err)
			}
		}

		log.Println("Application fully initialized with database")
	}()

	// Graceful shutdown
	gracefulShutdown(server, &jobScheduler, &publisher)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateCryptoModels(db); err != nil {
		return err
	}

	if err := models.MigrateContentModels(db); err != nil {
		return err
	}

	if err := models.MigrateUserModels(db); err != nil {
		return err
	}

	return nil
}

// setupHealthEndpoints registers health check routes
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Crypto Pulse Backend API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})

	// Startup probe - can be used for initial health check
	router.GET("/startup", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "started",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/startup" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests in production
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler **scheduler.Scheduler, publisher **services.PublisherService) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Stop background loops first
	if *jobScheduler != nil {
		(*jobScheduler).Stop()
	}
	if *publisher != nil {
		(*publisher).Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close database connection
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}
