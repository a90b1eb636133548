package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/roadside-assist/internal/booking"
	"github.com/example/roadside-assist/internal/catalog"
	"github.com/example/roadside-assist/internal/config"
	"github.com/example/roadside-assist/internal/dispatch"
	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/geo"
	httpapi "github.com/example/roadside-assist/internal/http"
	"github.com/example/roadside-assist/internal/ingest"
	"github.com/example/roadside-assist/internal/logging"
	"github.com/example/roadside-assist/internal/matcher"
	"github.com/example/roadside-assist/internal/notify"
	"github.com/example/roadside-assist/internal/storage"
	"github.com/example/roadside-assist/internal/tracking"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger("roadside-api", cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PGDSN != "" && cfg.RunMigrations {
		migrate(cfg.PGDSN, logger)
	}

	static, err := catalog.NewStatic()
	if err != nil {
		logger.Error("load static catalog", "error", err)
		os.Exit(1)
	}

	// positions land in redis when configured, otherwise in the static index
	var positions geo.Geo = static
	var ready func(context.Context) error
	var primary catalog.Source
	if cfg.RedisAddr != "" {
		rg := geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer rg.Close()
		positions, primary, ready = rg, rg, rg.Ping
	}
	var secondary catalog.Source = static
	if cfg.CatalogDSN != "" {
		pc, err := catalog.NewPostgresCatalog(ctx, cfg.CatalogDSN)
		if err != nil {
			logger.Warn("catalog database unavailable, using static dataset", "error", err)
		} else {
			defer pc.Close()
			secondary = &catalog.Fallback{Primary: pc, Secondary: static, Logger: logger}
		}
	}
	source := &catalog.Fallback{Primary: primary, Secondary: secondary, Logger: logger}

	var store storage.BookingStore = storage.NewMemoryStore()
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("open booking store", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
	}

	reg := dispatch.NewWSRegistry()
	sinks := []tracking.Sink{reg}
	var publisher httpapi.ProviderPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaPositionsTopic, cfg.KafkaTrackingTopic)
		defer kp.Close()
		sinks = append(sinks, kp)
		publisher = kp
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.RabbitURL != "" {
		rn, err := notify.NewRabbitNotifier(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			logger.Warn("rabbitmq unavailable, notifications disabled", "error", err)
		} else {
			defer rn.Close()
			notifier = rn
		}
	}

	ms := &matcher.Service{
		Catalog:           source,
		SpeedKmh:          cfg.AvgSpeedKmh,
		MaxDistanceMeters: cfg.MaxDistanceMeters,
		MaxResults:        cfg.MaxResults,
		Logger:            logger,
	}
	if cfg.OSRMURL != "" {
		ms.ETAClient = eta.NewOSRMClient(cfg.OSRMURL)
		ms.ETACache = eta.NewCache(cfg.ETACacheTTL)
	}

	runner := tracking.NewRunner(cfg.TrackingInterval, logger, sinks...)
	bookings := booking.NewService(booking.Options{
		Store:                store,
		Runner:               runner,
		Notifier:             notifier,
		Duration:             cfg.TrackingDuration,
		DurationFromDistance: cfg.DurationFromDistance,
		SpeedKmh:             cfg.AvgSpeedKmh,
		Logger:               logger,
	})
	if n, err := bookings.Resume(ctx); err != nil {
		logger.Error("resume tracking", "error", err)
	} else if n > 0 {
		logger.Info("resumed tracking", "bookings", n)
	}

	api := httpapi.NewServer(httpapi.Deps{
		Geo:       positions,
		Matcher:   ms,
		Bookings:  bookings,
		Publisher: publisher,
		WSReg:     reg,
		Logger:    logger,
		Ready:     ready,
	})
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("roadside-assist listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	// sessions stay en route in the store and resume on the next start
	runner.Stop()
}

// migrate applies migrations/001_create_bookings.sql. Failures are logged so
// an already migrated database does not block startup.
func migrate(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Warn("migration db open", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_bookings.sql"))
	if err != nil {
		logger.Warn("read migration", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Warn("migration exec", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_bookings.sql")
}
