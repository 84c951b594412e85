// Package app assembles the application from its parts and runs it until
// the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	api "github.com/shammaa/url-shortener/internal/api/http"
	"github.com/shammaa/url-shortener/internal/cache"
	redicache "github.com/shammaa/url-shortener/internal/cache/redis"
	"github.com/shammaa/url-shortener/internal/config"
	"github.com/shammaa/url-shortener/internal/database/postgres"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/shammaa/url-shortener/internal/geo"
	"github.com/shammaa/url-shortener/internal/keygen"
	"github.com/shammaa/url-shortener/internal/qr"
	"github.com/shammaa/url-shortener/internal/service"
	"github.com/shammaa/url-shortener/pkg/hasher"
	pg "github.com/shammaa/url-shortener/pkg/postgres"
)

func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := newLogger(cfg.Env)

	db, err := pg.New(
		ctx,
		cfg.Postgres.DSN(),
		pg.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		pg.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		pg.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		pg.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := pg.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	var linkCache cache.Cache
	if cfg.Cache.Enabled {
		c, err := redicache.New(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("%s: failed to connect to redis: %w", op, err)
		}
		defer c.Close()

		linkCache = c
	}

	repo := postgres.NewRepository(db)

	keys := keygen.New(repo, cfg.Shortener.KeyChars, cfg.Shortener.KeyLength, cfg.Shortener.ModelKeyLength)

	var qrRenderer service.QRRenderer
	if cfg.QRCode.Enabled {
		qrRenderer = qr.NewRenderer(cfg.QRCode)
	}

	cacheCfg := service.CacheConfig{
		Enabled: cfg.Cache.Enabled,
		Prefix:  cfg.Cache.Prefix,
		TTL:     cfg.Cache.TTL,
	}

	utmCfg := service.UTMConfig{
		Enabled: cfg.UTM.Enabled,
		Hidden:  cfg.UTM.Hidden,
		Source:  cfg.UTM.Source,
		Medium:  cfg.UTM.Medium,
	}

	defaults := entity.LinkDefaults{
		TrackVisits:        cfg.Tracking.Visits,
		TrackIPAddress:     cfg.Tracking.IPAddress,
		TrackUserAgent:     cfg.Tracking.UserAgent,
		TrackReferer:       cfg.Tracking.Referer,
		TrackGeo:           cfg.Tracking.Geo,
		UTMHidden:          cfg.UTM.Hidden,
		RedirectStatusCode: cfg.Tracking.RedirectStatusCode,
	}

	linkSvc := service.NewLinkService(
		repo,
		keys,
		hasher.NewBcrypt(0),
		qrRenderer,
		cfg.QRCode.Dir,
		linkCache,
		cacheCfg,
		utmCfg,
		cfg.Shortener.Domain,
		cfg.Shortener.Prefix,
		defaults,
		logger.Logger,
	)

	tracker := service.NewVisitTracker(
		repo,
		repo,
		geo.Noop{},
		linkCache,
		cacheCfg,
		cfg.UTM.Hidden,
		cfg.Tracking.Geo,
		logger.Logger,
	)

	aggregator := service.NewAggregator(repo, logger.Logger)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        api.NewRouter(logger, linkSvc, tracker, aggregator, cfg.Shortener.Prefix),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	scheduler := cron.New()

	// Rollups run out of band of the redirect path, by default shortly
	// after midnight for the previous day.
	_, err = scheduler.AddFunc(cfg.Analytics.Schedule, func() {
		day := time.Now().UTC().AddDate(0, 0, -1)

		if err := aggregator.AggregateAll(ctx, day); err != nil {
			logger.Error("daily aggregation failed", slog.String("day", day.Format(time.DateOnly)), slog.Any("err", err))
			return
		}

		logger.Info("daily aggregation finished", slog.String("day", day.Format(time.DateOnly)))
	})
	if err != nil {
		return fmt.Errorf("%s: failed to schedule aggregation: %w", op, err)
	}

	scheduler.Start()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		<-scheduler.Stop().Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

func newLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel:       slog.LevelDebug,
		Concise:        true,
		RequestHeaders: true,
	}

	switch env {
	case config.EnvStage:
		opts = httplog.Options{
			JSON:     true,
			LogLevel: slog.LevelDebug,
		}
	case config.EnvProd:
		opts = httplog.Options{
			JSON:     true,
			LogLevel: slog.LevelInfo,
		}
	}

	return httplog.NewLogger("url-shortener", opts)
}
