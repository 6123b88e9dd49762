// Package notifier executes order side effects: loyalty accrual on
// delivery confirmation and low-stock alert creation. Both are
// fire-and-forget relative to the order transaction; a failure here is
// logged and retried through the event pipeline, never rolled back into
// the order.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/selvitopi/greengrocer/internal/catalog"
	kafkax "github.com/selvitopi/greengrocer/internal/kafka"
	"github.com/selvitopi/greengrocer/internal/loyalty"
	"github.com/selvitopi/greengrocer/internal/orders"
	"github.com/selvitopi/greengrocer/internal/redisx"
)

type LoyaltyStore interface {
	AddPoints(ctx context.Context, username string, orderTotal float64) (loyalty.Account, error)
}

type AlertStore interface {
	CreateLowStock(ctx context.Context, productID, message string) (bool, error)
}

type Catalog interface {
	ListLowStock(ctx context.Context) ([]catalog.Product, error)
}

// Deduper remembers processed event ids so redelivered messages are no-ops.
type Deduper interface {
	SeenOrMark(ctx context.Context, eventID string) bool
}

type RedisDeduper struct {
	Client  *redis.Client
	Service string
}

func (d *RedisDeduper) SeenOrMark(ctx context.Context, eventID string) bool {
	key := fmt.Sprintf(redisx.KeyDedup, d.Service, eventID)
	exists, err := redisx.Exists(ctx, d.Client, key)
	if err != nil {
		// on Redis trouble, process anyway; accrual is keyed per event
		log.Printf("dedup check %s: %v", key, err)
	}
	if exists {
		return true
	}
	if err := d.Client.Set(ctx, key, "1", redisx.TTLDedup).Err(); err != nil {
		log.Printf("dedup mark %s: %v", key, err)
	}
	return false
}

type Service struct {
	Loyalty LoyaltyStore
	Alerts  AlertStore
	Catalog Catalog
	Dedup   Deduper
}

// HandleOrderDelivered accrues loyalty points for the customer of a
// delivered order. Accrual happens here, at delivery confirmation, rather
// than at checkout, so a cancelled order never earns points.
func (s *Service) HandleOrderDelivered(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderDelivered {
		return nil
	}
	if s.Dedup.SeenOrMark(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.OrderDeliveredPayload](env.Payload)
	if err != nil {
		return err
	}
	acct, err := s.Loyalty.AddPoints(ctx, p.Customer, p.Total)
	if err != nil {
		return fmt.Errorf("accrue points for order %s: %w", p.OrderID, err)
	}
	log.Printf("loyalty: %s earned %d points for order %s (balance=%d tier=%s)",
		p.Customer, loyalty.PointsFromTotal(p.Total), p.OrderID, acct.Points, acct.Tier)
	return nil
}

// HandleStockLow materializes a low-stock alert. The store keeps at most
// one unread alert per product, so redelivery or repeated crossings while
// the owner has not looked yet are no-ops.
func (s *Service) HandleStockLow(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventStockLow {
		return nil
	}
	if s.Dedup.SeenOrMark(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.StockLowPayload](env.Payload)
	if err != nil {
		return err
	}
	created, err := s.Alerts.CreateLowStock(ctx, p.ProductID, lowStockMessage(p.Name, p.Stock, p.Threshold))
	if err != nil {
		return fmt.Errorf("low-stock alert for %s: %w", p.ProductID, err)
	}
	if created {
		log.Printf("alert: %s stock at %.1f kg (threshold %.1f kg)", p.Name, p.Stock, p.Threshold)
	}
	return nil
}

// SweepOnce is the supplementary, non-authoritative safety net: it scans
// the catalog for products already at or below their threshold and makes
// sure an alert exists. The authoritative trigger is the reservation path.
func (s *Service) SweepOnce(ctx context.Context) error {
	products, err := s.Catalog.ListLowStock(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		if _, err := s.Alerts.CreateLowStock(ctx, p.ID, lowStockMessage(p.Name, p.Stock, p.Threshold)); err != nil {
			log.Printf("sweep alert %s: %v", p.ID, err)
		}
	}
	return nil
}

func lowStockMessage(name string, stock, threshold float64) string {
	return fmt.Sprintf("%s stock has fallen to %.1f kg (threshold: %.1f kg)", name, stock, threshold)
}
