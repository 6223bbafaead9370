package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Phoneboothmumbai/heycharu-sub000/internal/ai"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/api/router"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/catalog"
	appconfig "github.com/Phoneboothmumbai/heycharu-sub000/internal/config"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/connection"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/crm"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/dedupe"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/escalations"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/exclusions"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/http/handlers"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/inbound"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/knowledge"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/messaging"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/notify"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/observability/metrics"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/policy"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/scheduled"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting charu API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	norm := phone.NewNormalizer(cfg.CountryCode)

	crmRepo := crm.NewPostgresRepository(pool)
	resolver := crm.NewResolver(crmRepo, norm, logger.Component("crm"))
	registry := exclusions.NewPostgresRegistry(pool, norm)
	silentLog := exclusions.NewPostgresSilentLog(pool)
	escRepo := escalations.NewPostgresRepository(pool)
	knowledgeRepo := knowledge.NewPostgresRepository(pool)
	catalogRepo := catalog.NewPostgresRepository(pool)
	cutovers := connection.NewPostgresStore(pool, norm)
	policyStore := policy.NewPostgresStore(pool)
	queue := scheduled.NewPostgresRepository(pool)

	var messenger messaging.Messenger = messaging.NewWhatsAppSender(
		cfg.WhatsAppBaseURL, cfg.WhatsAppToken, logger.Component("whatsapp"))
	messenger = messaging.NewRateLimitedMessenger(messenger, cfg.WhatsAppSendRate, cfg.WhatsAppSendBurst)

	var email notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger.Component("email")); sg != nil {
		email = sg
	}
	notifier := notify.NewService(messenger, email, cfg.OwnerPhone, cfg.OwnerEmail, logger.Component("notify"))

	tracker := escalations.NewTracker(escRepo, crmRepo, notifier, cfg.SLAWindow, cfg.SLAMaxReminders, logger.Component("escalations"))

	generator := ai.NewGenerator(
		ai.NewOpenAIClient(cfg.OpenAIAPIKey),
		cfg.OpenAIModel,
		knowledgeRepo,
		tracker,
		cfg.BusinessInstructions,
		logger.Component("ai"),
	)

	engine := policy.NewEngine(policy.Config{
		Enabled:      cfg.AutoMessagesEnabled,
		DNDStartHour: cfg.DNDStartHour,
		DNDEndHour:   cfg.DNDEndHour,
		Cooldown:     cfg.Cooldown,
		MaxPerTopic:  cfg.MaxMessagesPerTopic,
	}, policyStore, registry, logger.Component("policy"))

	routerMetrics := metrics.NewRouterMetrics(nil)

	msgRouter := inbound.NewRouter(inbound.Deps{
		Resolver:   resolver,
		Repo:       crmRepo,
		Registry:   registry,
		SilentLog:  silentLog,
		Generator:  generator,
		Messenger:  messenger,
		Engine:     engine,
		EscRepo:    escRepo,
		Tracker:    tracker,
		Catalog:    catalogRepo,
		Cutovers:   cutovers,
		Normalizer: norm,
		Metrics:    routerMetrics,
		Logger:     logger.Component("inbound"),
	}, inbound.Config{
		OwnerPhone:        cfg.OwnerPhone,
		HistoryWindow:     cfg.HistoryWindow,
		AutoReplyDisabled: !cfg.AutoReplyEnabled,
	})

	webhooks := handlers.NewWhatsAppWebhookHandler(handlers.WhatsAppWebhookConfig{
		Router:    msgRouter,
		Processed: dedupe.NewRedisTracker(redisClient, nil),
		Cutovers:  cutovers,
		Logger:    logger.Component("webhooks"),
	})
	adminMessaging := handlers.NewAdminMessagingHandler(handlers.AdminMessagingConfig{
		Engine:     engine,
		Messenger:  messenger,
		Queue:      queue,
		Normalizer: norm,
		Logger:     logger.Component("admin"),
	})
	escalationsHandler := escalations.NewHandler(escRepo, tracker, logger.Component("escalations"))

	r := router.New(&router.Config{
		Logger:             logger,
		WhatsAppWebhooks:   webhooks,
		AdminMessaging:     adminMessaging,
		EscalationsHandler: escalationsHandler,
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
