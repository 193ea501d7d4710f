package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/whataybo/api/internal/broker"
	"github.com/whataybo/api/internal/config"
	"github.com/whataybo/api/internal/whatsapp"
)

// concurrency is the number of WhatsApp sends allowed in flight.
const concurrency = 8

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required")
	}

	var notifier whatsapp.Notifier = whatsapp.LogNotifier{}
	if cfg.WhatsApp.APIEnabled {
		wa := cfg.WhatsApp
		notifier = whatsapp.NewCloudClient(wa.APIBase, wa.Token, wa.PhoneNumberID, wa.TemplateLang)
	} else {
		log.Println("WARN: WHATSAPP_API_ENABLED is false, jobs will only be logged")
	}

	b, err := broker.Dial(cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer b.Close()

	log.Printf("Notifier consuming %s", broker.NotificationsQueue)
	err = b.ConsumeJobs(ctx, concurrency, func(ctx context.Context, job whatsapp.Job) error {
		return whatsapp.Deliver(ctx, notifier, job)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("Notifier stopped")
	return nil
}
