package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/Phoneboothmumbai/heycharu-sub000/internal/config"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/crm"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/escalations"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/exclusions"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/messaging"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/notify"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/phone"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/policy"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/scheduled"
	"github.com/Phoneboothmumbai/heycharu-sub000/internal/storage"
	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// The follow-up worker sweeps the scheduled-message queue and the
// escalation SLA clock on a fixed interval.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting charu follow-up worker", "env", cfg.Env, "interval", cfg.FollowupInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	norm := phone.NewNormalizer(cfg.CountryCode)
	crmRepo := crm.NewPostgresRepository(pool)
	registry := exclusions.NewPostgresRegistry(pool, norm)
	escRepo := escalations.NewPostgresRepository(pool)
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

	engine := policy.NewEngine(policy.Config{
		Enabled:      cfg.AutoMessagesEnabled,
		DNDStartHour: cfg.DNDStartHour,
		DNDEndHour:   cfg.DNDEndHour,
		Cooldown:     cfg.Cooldown,
		MaxPerTopic:  cfg.MaxMessagesPerTopic,
	}, policy.NewPostgresStore(pool), registry, logger.Component("policy"))

	dispatcher := scheduled.NewDispatcher(queue, engine, messenger, logger.Component("dispatcher"))
	tracker := escalations.NewTracker(escRepo, crmRepo, notifier, cfg.SLAWindow, cfg.SLAMaxReminders, logger.Component("escalations"))

	interval := cfg.FollowupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			sweep(ctx, dispatcher, tracker, logger)
		case <-stop:
			logger.Info("follow-up worker shutting down")
			return
		}
	}
}

func sweep(ctx context.Context, dispatcher *scheduled.Dispatcher, tracker *escalations.Tracker, logger *logging.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	report, err := dispatcher.Run(sweepCtx)
	if err != nil {
		logger.Error("scheduled dispatch failed", "error", err)
	} else if report.Due > 0 {
		logger.Info("scheduled dispatch complete",
			"due", report.Due,
			"sent", report.Sent,
			"deferred", report.Deferred,
			"cancelled", report.Cancelled,
		)
	}

	sla, err := tracker.CheckSLA(sweepCtx)
	if err != nil {
		logger.Error("sla check failed", "error", err)
	} else if sla.OverdueCount > 0 {
		logger.Warn("escalations overdue", "pending", sla.TotalPending, "overdue", sla.OverdueCount)
	}
}
