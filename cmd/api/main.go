package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/selvitopi/greengrocer/internal/alerts"
	"github.com/selvitopi/greengrocer/internal/catalog"
	"github.com/selvitopi/greengrocer/internal/config"
	"github.com/selvitopi/greengrocer/internal/coupons"
	"github.com/selvitopi/greengrocer/internal/httpx"
	kafkax "github.com/selvitopi/greengrocer/internal/kafka"
	"github.com/selvitopi/greengrocer/internal/loyalty"
	"github.com/selvitopi/greengrocer/internal/orders"
	"github.com/selvitopi/greengrocer/internal/postgres"
	"github.com/selvitopi/greengrocer/internal/redisx"
	"github.com/selvitopi/greengrocer/internal/users"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns))
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pClaimed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderClaimed, 1024)
	pDelivered := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderDelivered, 1024)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024)
	pStockLow := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockLow, 1024)
	producers := []*kafkax.Producer{pCreated, pClaimed, pDelivered, pCancelled, pStockLow}
	for _, p := range producers {
		p.Start(ctx)
	}

	// Repos & handlers
	ledger := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db, Ledger: ledger}
	couponRepo := &coupons.Repo{DB: db}

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{
		Store:        orderRepo,
		Coupons:      couponRepo,
		Redis:        rdb,
		Service:      cfg.ServiceName,
		PubCreated:   pCreated,
		PubClaimed:   pClaimed,
		PubDelivered: pDelivered,
		PubCancelled: pCancelled,
		PubStockLow:  pStockLow,
	}).Register(router)
	(&httpx.CatalogHandler{Store: ledger}).Register(router)
	(&httpx.CouponsHandler{Store: couponRepo}).Register(router)
	(&httpx.LoyaltyHandler{Store: &loyalty.Repo{DB: db}}).Register(router)
	(&httpx.AlertsHandler{Store: &alerts.Repo{DB: db}}).Register(router)
	(&httpx.UsersHandler{Store: &users.Repo{DB: db}}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close()
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
