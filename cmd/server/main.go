package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/songsmith/backend/internal/config"
	"github.com/songsmith/backend/internal/database"
	"github.com/songsmith/backend/internal/gateway"
	"github.com/songsmith/backend/internal/handlers"
	mW "github.com/songsmith/backend/internal/middleware"
	"github.com/songsmith/backend/internal/services"
	"github.com/songsmith/backend/internal/songapi"
)

// @title Songsmith Backend API
// @version 1.0
// @description API for credit-based song generation and payments
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("redis.disabled", "REDIS_DISABLED")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	gatewayCfg := config.LoadGatewayConfig()
	quotaCfg := config.LoadQuotaConfig()
	songCfg := config.LoadSongConfig()

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	gatewayClient := gateway.NewClient(gatewayCfg)
	renderClient := songapi.NewClient(songCfg.RenderBaseURL, songCfg.RenderAPIKey, songCfg.RenderTimeout)

	ledgerService := services.NewLedgerService(db)
	packageService := services.NewPackageService()
	quotaService := services.NewQuotaService(db, quotaCfg)
	authService := services.NewAuthService(db, redisClient, ledgerService, songCfg.SignupBonus)
	paymentService := services.NewPaymentService(db, gatewayClient, ledgerService, redisClient, packageService, gatewayCfg)
	paymentHandler := handlers.NewPaymentHandler(paymentService, gatewayCfg, songCfg.StatusPageURL)
	songService := services.NewSongService(db, ledgerService, quotaService, renderClient, songCfg, quotaCfg)
	voiceService := services.NewVoiceService()
	defer voiceService.Close()

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(2 * time.Minute))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Get("/packages", packageService.GetAllPackages)

		// Gateway-facing endpoints; the webhook authenticates with its own
		// HMAC signature, the return URL carries only a reference.
		r.Post("/payments/webhook", paymentHandler.Webhook)
		r.Get("/payments/return", paymentHandler.Return)

		// Song creation has a free anonymous tier
		r.Group(func(r chi.Router) {
			r.Use(mW.OptionalAuthMiddleware)
			r.Post("/songs", songService.CreateSong)
		})
		r.Get("/songs/{songId}", songService.GetSong)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", authService.GetUserAccount)

			r.Get("/credits/balance", ledgerService.GetBalance)
			r.Get("/credits/transactions", ledgerService.ListTransactions)

			r.Post("/payments/checkout", paymentHandler.Checkout)
			r.Get("/payments/sessions/{reference}", paymentHandler.GetSession)

			r.Post("/songs/dictate", voiceService.DictateConcept)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
