package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whataybo/api/internal/broker"
	"github.com/whataybo/api/internal/config"
	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/realtime"
	"github.com/whataybo/api/internal/router"
	"github.com/whataybo/api/internal/whatsapp"
	"github.com/whataybo/api/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run(ctx)

	publishers := realtime.Multi{hub}
	var notifier whatsapp.Notifier = whatsapp.LogNotifier{}

	if cfg.AMQPURL != "" {
		b, err := broker.Dial(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer b.Close()
		publishers = append(publishers, b)
		if cfg.WhatsApp.APIEnabled {
			notifier = whatsapp.NewQueueNotifier(b)
			log.Println("WhatsApp notifications queued on", broker.NotificationsQueue)
		}
	}
	if cfg.WhatsApp.APIEnabled && cfg.AMQPURL == "" {
		notifier = whatsapp.NewCloudClient(cfg.WhatsApp.APIBase, cfg.WhatsApp.Token, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.TemplateLang)
		log.Println("WhatsApp notifications sent inline through the Cloud API")
	}

	// Deferred after the pool and broker so pending sends finish before
	// either is closed.
	dispatch := whatsapp.NewDispatcher(cfg.NotifyTimeout)
	defer dispatch.Wait()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router.New(cfg, queries, pool, hub, publishers, notifier, dispatch),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Println("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
