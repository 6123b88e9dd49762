package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/selvitopi/greengrocer/internal/alerts"
	"github.com/selvitopi/greengrocer/internal/catalog"
	"github.com/selvitopi/greengrocer/internal/config"
	kafkax "github.com/selvitopi/greengrocer/internal/kafka"
	"github.com/selvitopi/greengrocer/internal/loyalty"
	"github.com/selvitopi/greengrocer/internal/notifier"
	"github.com/selvitopi/greengrocer/internal/orders"
	"github.com/selvitopi/greengrocer/internal/postgres"
	"github.com/selvitopi/greengrocer/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{
		Loyalty: &loyalty.Repo{DB: db},
		Alerts:  &alerts.Repo{DB: db},
		Catalog: &catalog.Repo{DB: db},
		Dedup:   &notifier.RedisDeduper{Client: rdb, Service: cfg.ConsumerGroup},
	}

	// Consumers: delivery confirmations drive loyalty, stock events drive alerts
	cDelivered := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicOrderDelivered, cfg.ConsumerWorkers)
	cStockLow := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicStockLow, cfg.ConsumerWorkers)

	go func() {
		log.Printf("consumer started: group=%s topic=%s workers=%d", cfg.ConsumerGroup, orders.TopicOrderDelivered, cfg.ConsumerWorkers)
		if err := cDelivered.Start(ctx, svc.HandleOrderDelivered); err != nil {
			log.Printf("delivered consumer exit: %v", err)
			cancel()
		}
	}()
	go func() {
		log.Printf("consumer started: group=%s topic=%s workers=%d", cfg.ConsumerGroup, orders.TopicStockLow, cfg.ConsumerWorkers)
		if err := cStockLow.Start(ctx, svc.HandleStockLow); err != nil {
			log.Printf("stock-low consumer exit: %v", err)
			cancel()
		}
	}()

	// periodic sweep picks up crossings the event path missed
	go func() {
		t := time.NewTicker(time.Duration(cfg.SweepMinutes) * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := svc.SweepOnce(ctx); err != nil {
					log.Printf("low-stock sweep: %v", err)
				}
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down...")
	cancel()
	time.Sleep(500 * time.Millisecond) // let workers finish in-flight messages
}
