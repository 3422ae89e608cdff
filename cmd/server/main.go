package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rahlquantum/pairing-server-go/internal/config"
	"github.com/rahlquantum/pairing-server-go/internal/database"
	"github.com/rahlquantum/pairing-server-go/internal/handler"
	"github.com/rahlquantum/pairing-server-go/internal/jobs"
	"github.com/rahlquantum/pairing-server-go/internal/middleware"
	"github.com/rahlquantum/pairing-server-go/internal/redis"
	"github.com/rahlquantum/pairing-server-go/internal/repository"
	"github.com/rahlquantum/pairing-server-go/internal/service"
	"github.com/rahlquantum/pairing-server-go/internal/store"
	"github.com/rahlquantum/pairing-server-go/internal/supervisor"
	"github.com/rahlquantum/pairing-server-go/internal/transport"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	credStore, dbClose := buildCredentialStore(cfg)
	if dbClose != nil {
		defer dbClose()
	}

	limiter, redisClose := buildLimiter(cfg)
	if redisClose != nil {
		defer redisClose()
	}

	// The in-memory transport stands in for the real messaging-network
	// adapter; a production build plugs its protocol client into the same
	// transport.Transport seam.
	pairingStore := store.NewPairingStore(cfg.PairingTTL())
	sup := supervisor.New(transport.NewMemory(), credStore, supervisor.Options{
		ReconnectDelay: cfg.ReconnectDelay(),
		MaxReconnects:  cfg.MaxReconnectAttempts,
		StartTimeout:   cfg.StartTimeout(),
	})
	defer sup.Shutdown()

	issuer := service.NewIssuer(pairingStore, sup, cfg.PairingTTL(), config.DeliveryTimeout)

	pairingHandler := handler.NewPairingHandler(issuer)
	connectionHandler := handler.NewConnectionHandler(sup)
	eventsHandler := handler.NewEventsHandler(sup)

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	pairLimit := middleware.NewIPRateLimitMiddleware(limiter, cfg.RateLimitPerMin, config.RateLimitWindow, "pair")

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(pairLimit.Handler)
		r.Post("/pair", pairingHandler.Pair)
		r.Post("/verify", pairingHandler.Verify)
	})

	r.Post("/start", connectionHandler.Start)
	r.Post("/stop", connectionHandler.Stop)
	r.Get("/qr", connectionHandler.QR)
	r.Get("/status", connectionHandler.Status)
	r.Get("/events", eventsHandler.ServeHTTP)

	sweepJob := jobs.NewSweepJob(pairingStore, config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// WriteTimeout stays zero so /events can stream
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// buildCredentialStore prefers postgres when DATABASE_URL is set and falls
// back to the on-disk store otherwise.
func buildCredentialStore(cfg *config.Config) (repository.CredentialStore, func()) {
	if cfg.DatabaseURL == "" {
		credStore, err := repository.NewFileCredentialStore(cfg.CredentialsDir, cfg.AccountID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open credentials dir")
		}
		log.Info().Str("dir", cfg.CredentialsDir).Msg("using file credential store")
		return credStore, nil
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Msg("database connected")

	return repository.NewCredentialRepository(db.DB, cfg.AccountID), func() { db.Close() }
}

// buildLimiter prefers redis when REDIS_URL is set so limits hold across
// restarts; otherwise the per-process limiter applies.
func buildLimiter(cfg *config.Config) (service.Limiter, func()) {
	if cfg.RedisURL == "" {
		return service.NewMemoryRateLimiter(), nil
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	log.Info().Msg("redis connected")

	return service.NewRateLimiter(redisClient.Client), func() { redisClient.Close() }
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
