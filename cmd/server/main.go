package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"retailpos/internal/config"
	httpapi "retailpos/internal/http"
	"retailpos/internal/notify"
	"retailpos/internal/repository"
	"retailpos/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	store, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer store.Close()

	channel, err := notify.NewChannel(notify.ChannelConfig{
		Kind: cfg.Notify.Channel,
		SMTP: notify.SMTPChannel{
			Host:     cfg.Notify.SMTPHost,
			Port:     cfg.Notify.SMTPPort,
			Username: cfg.Notify.SMTPUsername,
			Password: cfg.Notify.SMTPPassword,
			From:     cfg.Notify.SMTPFrom,
			TLS:      cfg.Notify.SMTPTLS,
		},
		WebhookURL:   cfg.Notify.WebhookURL,
		SlackToken:   cfg.Notify.SlackToken,
		SlackChannel: cfg.Notify.SlackChannel,
	})
	if err != nil {
		log.Fatalf("notify config error: %v", err)
	}
	dispatcher := notify.NewDispatcher(channel, notify.Config{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		MaxAttempts:   cfg.Notify.MaxAttempts,
		Backoff:       cfg.Notify.RetryBackoff,
		RetrySchedule: cfg.Notify.RetrySchedule,
	})
	if err := dispatcher.Start(); err != nil {
		log.Fatalf("notify start error: %v", err)
	}
	defer dispatcher.Close()

	svc := service.New(store, service.WithNotifier(notify.NewReceiptNotifier(dispatcher)))
	handler := httpapi.NewHandler(svc)
	router := httpapi.NewRouter(handler)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("retailpos listening on %s (driver=%s, notify=%s)", server.Addr, cfg.DatabaseDriver, cfg.Notify.Channel)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		if closeErr := server.Close(); closeErr != nil {
			log.Printf("force close failed: %v", closeErr)
		}
	}
}
