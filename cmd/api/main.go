package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/archive"
	"lightingmap.app/internal/audit"
	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/config"
	"lightingmap.app/internal/httpapi"
	"lightingmap.app/internal/lifecycle"
	"lightingmap.app/internal/notify"
	"lightingmap.app/internal/obs"
	"lightingmap.app/internal/ratelimit"
	"lightingmap.app/internal/reconcile"
	"lightingmap.app/internal/relations"
	"lightingmap.app/internal/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configFile := flag.String("config", "", "config file (default ./config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := obs.Logger()
	cfg, err := config.Load(ctx, config.Options{ConfigFile: *configFile})
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	obs.ConfigureLogger(cfg.Log.Level, cfg.Log.Pretty)
	obs.Init()

	backend, closeStore, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	storeKind := "postgres"
	if cfg.Database.DSN == "" {
		storeKind = "memory"
		log.Warn("database.dsn not set, using the in-memory store")
	}
	build := obs.InitBuildInfo(version, commit, storeKind)

	// Notifications: transport, then a persistent per-recipient budget, then
	// fire-and-forget delivery.
	var transport notify.Dispatcher = notify.LogSink{}
	if cfg.SMTP.Host != "" {
		transport = notify.NewSMTP(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}
	limiter := ratelimit.New(backend, cfg.Notify.MaxPerWindow, cfg.Notify.Window)
	notifier := notify.NewAsync(notify.NewThrottle(transport, limiter), 0)

	var archiver archive.Archiver = archive.Nop{}
	if cfg.Archive.Bucket != "" {
		client, err := archive.NewS3Client(ctx, cfg.Archive.Region, cfg.Archive.Endpoint)
		if err != nil {
			log.WithError(err).Fatal("archive client")
		}
		archiver = archive.NewS3(client, cfg.Archive.Bucket, cfg.Archive.Prefix)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		log.WithError(err).Fatal("token issuer")
	}
	recorder := audit.NewRecorder(backend)
	engine := reconcile.NewEngine(backend,
		reconcile.WithBatchSize(cfg.Reconcile.BatchSize),
		reconcile.WithArchiver(archiver),
		reconcile.WithNotifier(notifier, cfg.Admin.Email),
	)

	api := httpapi.New(httpapi.Deps{
		Store:     backend,
		Auth:      auth.NewService(backend, tokens),
		Engine:    engine,
		Relations: relations.NewMaintainer(backend, notifier),
		Lifecycle: lifecycle.NewService(backend, recorder, notifier),
		Recorder:  recorder,
	}, httpapi.Options{
		Version:             version,
		CORSOrigins:         cfg.CORS.Origins,
		RateBurst:           cfg.RateLimit.Burst,
		RatePerMinute:       cfg.RateLimit.PerMinute,
		MaxBodyBytes:        cfg.HTTP.MaxBodyBytes,
		MaintenanceUser:     cfg.Maintenance.User,
		MaintenancePassword: cfg.Maintenance.Password,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go purgeCounters(ctx, limiter, cfg.Notify.Window)

	log.WithFields(logrus.Fields{"addr": srv.Addr, "version": build.Version, "commit": build.Commit, "store": build.Store}).Info("starting lightingmap-api")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	engine.Wait()
	notifier.Wait()
	if err := closeStore(); err != nil {
		log.WithError(err).Warn("close store")
	}
	log.Info("stopped")
}

// purgeCounters drops expired notification budget windows until ctx ends.
func purgeCounters(ctx context.Context, limiter *ratelimit.Limiter, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := limiter.Purge(ctx); err != nil {
				obs.Logger().WithError(err).Warn("purge rate counters")
			} else if n > 0 {
				obs.Logger().WithField("purged", n).Debug("rate counters purged")
			}
		}
	}
}
