// Package alerts stores low-stock notifications for the store owner.
package alerts

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Alert struct {
	ID        int64     `json:"id"`
	ProductID string    `json:"product_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo struct{ DB *pgxpool.Pool }

// CreateLowStock inserts an alert unless an unread one already exists for
// the product: the guard lives in the statement (plus a partial unique
// index), so repeated small reservations cannot flood the owner.
// Returns true when a new alert was created.
func (r *Repo) CreateLowStock(ctx context.Context, productID, message string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO stock_alerts(product_id, message)
		SELECT $1, $2
		WHERE NOT EXISTS (
			SELECT 1 FROM stock_alerts WHERE product_id = $1 AND NOT read
		)
		ON CONFLICT DO NOTHING`, productID, message)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) List(ctx context.Context) ([]Alert, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, message, read, created_at
		FROM stock_alerts ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Message, &a.Read, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) UnreadCount(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM stock_alerts WHERE NOT read`).Scan(&n)
	return n, err
}

func (r *Repo) MarkRead(ctx context.Context, id int64) error {
	_, err := r.DB.Exec(ctx, `UPDATE stock_alerts SET read = TRUE WHERE id = $1`, id)
	return err
}
