package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound    = errors.New("loyalty account not found")
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
)

type Repo struct{ DB *pgxpool.Pool }

// AddPoints accrues points for a completed order and recomputes the tier
// from the new balance in the same statement. The account row is created
// on first accrual.
func (r *Repo) AddPoints(ctx context.Context, username string, orderTotal float64) (Account, error) {
	points := PointsFromTotal(orderTotal)
	a := Account{Username: username}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO loyalty(username, points, tier, total_spent, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (username) DO UPDATE SET
			points      = loyalty.points + EXCLUDED.points,
			total_spent = loyalty.total_spent + EXCLUDED.total_spent,
			tier = CASE
				WHEN loyalty.points + EXCLUDED.points >= 2500 THEN 'PLATINUM'
				WHEN loyalty.points + EXCLUDED.points >= 1000 THEN 'GOLD'
				WHEN loyalty.points + EXCLUDED.points >= 500  THEN 'SILVER'
				ELSE 'BRONZE'
			END,
			updated_at = now()
		RETURNING points, tier, total_spent, updated_at`,
		username, points, TierFromPoints(points), orderTotal).
		Scan(&a.Points, &a.Tier, &a.TotalSpent, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// RedeemPoints deducts a balance, guarded in the statement so the balance
// can never go negative; the tier follows the new balance down.
func (r *Repo) RedeemPoints(ctx context.Context, username string, points int) error {
	if points <= 0 {
		return fmt.Errorf("non-positive points %d", points)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE loyalty SET
			points = points - $2,
			tier = CASE
				WHEN points - $2 >= 2500 THEN 'PLATINUM'
				WHEN points - $2 >= 1000 THEN 'GOLD'
				WHEN points - $2 >= 500  THEN 'SILVER'
				ELSE 'BRONZE'
			END,
			updated_at = now()
		WHERE username = $1 AND points >= $2`, username, points)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		if _, gerr := r.Get(ctx, username); gerr != nil {
			return gerr
		}
		return fmt.Errorf("%w: redeem %d for %s", ErrInsufficientPoints, points, username)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, username string) (Account, error) {
	var a Account
	err := r.DB.QueryRow(ctx, `
		SELECT username, points, tier, total_spent, updated_at
		FROM loyalty WHERE username = $1`, username).
		Scan(&a.Username, &a.Points, &a.Tier, &a.TotalSpent, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, username)
	}
	return a, err
}

func (r *Repo) Top(ctx context.Context, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.DB.Query(ctx, `
		SELECT username, points, tier, total_spent, updated_at
		FROM loyalty ORDER BY points DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Username, &a.Points, &a.Tier, &a.TotalSpent, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
