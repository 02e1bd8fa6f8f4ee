package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"medvision-server/internal/config"
	"medvision-server/internal/handlers"
	"medvision-server/internal/logger"
	"medvision-server/internal/mailer"
	"medvision-server/internal/metrics"
	"medvision-server/internal/middleware"
	"medvision-server/internal/models"
	"medvision-server/internal/ratelimit"
	"medvision-server/internal/repository"
	"medvision-server/internal/routes"
	"medvision-server/internal/services"
	"medvision-server/internal/utils"
	"medvision-server/internal/video"
)

const shutdownTimeout = 10 * time.Second

func runServer(parent context.Context, cfg *config.Config, log *logger.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := models.OpenDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	store := repository.NewStore(db)
	repos := store.Repositories()

	notifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}
	m := metrics.New()
	limiter, closeLimiter, err := newRateLimiter(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer closeLimiter()
	tokens := utils.NewTokenIssuer(cfg.JWT)

	auth := services.NewAuthService(repos, store, tokens, notifier, log, m, services.AuthOptions{
		OTPExpiry:       cfg.Auth.OTPExpiry,
		ResetCodeExpiry: cfg.Auth.ResetCodeExpiry,
	})
	slots := services.NewSlotChecker(cfg.Scheduling.Location, cfg.Scheduling.SlotDuration)
	appointments := services.NewAppointmentService(repos, store, slots, newProvisioner(cfg, log), cfg.Video.Timeout, notifier, log, m)
	prescriptions := services.NewPrescriptionService(repos, log)
	directory := services.NewDirectoryService(repos, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(log),
		middleware.RequestLogger(log),
		m.Middleware(),
		cors.New(corsConfig(cfg)),
	)

	routes.SetupRoutes(router, routes.Options{
		APIVersion:    cfg.APIVersion,
		Tokens:        tokens,
		RateLimiter:   limiter,
		Metrics:       m,
		Auth:          handlers.NewAuthHandler(auth, directory, cfg.IsProduction()),
		Appointments:  handlers.NewAppointmentHandler(appointments, cfg.Scheduling.Location),
		Prescriptions: handlers.NewPrescriptionHandler(prescriptions),
		Directory:     handlers.NewDirectoryHandler(directory),
		Health:        handlers.NewHealthHandler(store),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server exited")
	return nil
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowOrigins = cfg.Origins
	c.AllowCredentials = true
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	c.ExposeHeaders = []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}
	return c
}

// newNotifier sends through SMTP when a host is configured and only logs otherwise.
func newNotifier(cfg *config.Config, log *logger.Logger) (*mailer.Notifier, error) {
	templates, err := mailer.NewTemplates()
	if err != nil {
		return nil, fmt.Errorf("parsing email templates: %w", err)
	}
	var sender mailer.Sender
	if cfg.Mailer.Host != "" {
		sender = mailer.NewSMTPSender(cfg.Mailer.Host, cfg.Mailer.Port, cfg.Mailer.Username, cfg.Mailer.Password, cfg.Mailer.DefaultFrom)
	} else {
		log.Warn("SMTP_HOST not set, emails will only be logged")
		sender = mailer.NewLogSender(log)
	}
	return mailer.NewNotifier(sender, templates, cfg.AppURL, cfg.Scheduling.Location, log), nil
}

func newProvisioner(cfg *config.Config, log *logger.Logger) video.Provisioner {
	if cfg.Video.DailyAPIKey == "" {
		log.Warn("DAILY_API_KEY not set, using local meeting links")
		return video.NewLocalProvisioner(cfg.Video.FallbackURL)
	}
	return video.NewDailyClient(cfg.Video.DailyAPIURL, cfg.Video.DailyAPIKey, cfg.Video.Timeout)
}

// newRateLimiter returns nil when limiting is disabled. Without REDIS_URL the
// counters live in process memory.
func newRateLimiter(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*middleware.RateLimiter, func(), error) {
	noop := func() {}
	if !cfg.RateLimit.Enabled {
		log.Warn("rate limiting disabled")
		return nil, noop, nil
	}
	if cfg.RateLimit.RedisURL != "" {
		store, err := ratelimit.NewRedisStoreFromURL(cfg.RateLimit.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				log.WithError(err).Warn("closing redis client")
			}
		}
		return middleware.NewRateLimiter(ratelimit.New(store), m, log), closeStore, nil
	}
	store := ratelimit.NewMemoryStore()
	store.StartCleanup(ctx, time.Minute)
	return middleware.NewRateLimiter(ratelimit.New(store), m, log), noop, nil
}
