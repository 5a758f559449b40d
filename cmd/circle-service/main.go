package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/food-circles/internal/circle"
	"github.com/vasiliy-maslov/food-circles/internal/config"
	"github.com/vasiliy-maslov/food-circles/internal/db"
	"github.com/vasiliy-maslov/food-circles/internal/establishment"
	circleHttp "github.com/vasiliy-maslov/food-circles/internal/handler/http"
	"github.com/vasiliy-maslov/food-circles/internal/order"
)

type stores struct {
	orders    order.Repository
	directory establishment.Directory
	locker    circle.Locker
	close     func()
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogger(cfg.App)
	log.Info().Msg("Circle service starting...")
	log.Debug().Interface("config_loaded", cfg).Msg("Configuration loaded")

	ctx := context.Background()

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("Failed to open stores")
	}
	defer st.close()

	circleSvc := circle.NewService(st.orders, st.directory, st.locker, order.ScopeKind(cfg.App.CircleScope), circle.SystemClock)
	orderSvc := order.NewService(st.orders)
	handler := circleHttp.NewHandler(circleSvc, orderSvc)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(circleHttp.RequestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", circleHttp.Health)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

func setupLogger(app config.AppConfig) {
	level, err := zerolog.ParseLevel(app.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if app.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.With().Str("service", app.Name).Logger()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Store.Driver == config.DriverMemory {
		log.Warn().Int("establishments", len(cfg.Seed.Establishments)).Msg("Using in-memory store, data is lost on restart")
		return &stores{
			orders:    order.NewMemoryRepository(),
			directory: establishment.NewSeededDirectory(cfg.Seed),
			locker:    circle.NewKeyedLocker(),
			close:     func() {},
		}, nil
	}

	if err := db.ApplyMigrations(cfg.Postgres); err != nil {
		return nil, err
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	policy := db.NewRetryPolicy(cfg.Store)
	sqlxDB := pg.SQLX()
	// Local waiters queue in memory, so one per scope holds a connection.
	advisory := db.NewAdvisoryLocker(pg.Pool, db.LockHolders(cfg.Postgres.MaxConns), cfg.Store.LockTimeout)

	return &stores{
		orders:    order.NewRetryingRepository(order.NewRepository(pg.Pool), policy),
		directory: establishment.NewRetryingDirectory(establishment.NewPostgresDirectory(sqlxDB), policy),
		locker:    circle.NewLayeredLocker(circle.NewKeyedLocker(), advisory),
		close: func() {
			if err := sqlxDB.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close sqlx handle")
			}
			pg.Close()
		},
	}, nil
}
