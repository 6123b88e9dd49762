package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrNotRedeemable  = errors.New("coupon not redeemable")
)

type Repo struct{ DB *pgxpool.Pool }

type CreateInput struct {
	Code            string
	DiscountPercent float64
	DiscountAmount  float64
	MinOrderTotal   float64
	ValidFrom       *time.Time
	ValidUntil      *time.Time
	MaxUses         int
}

func (r *Repo) Create(ctx context.Context, in CreateInput) (Coupon, error) {
	if in.MaxUses < 1 {
		return Coupon{}, fmt.Errorf("max uses must be at least 1")
	}
	if in.DiscountPercent < 0 || in.DiscountPercent > 100 {
		return Coupon{}, fmt.Errorf("invalid discount percent %.2f", in.DiscountPercent)
	}
	c := Coupon{
		ID:              uuid.NewString(),
		Code:            strings.ToUpper(strings.TrimSpace(in.Code)),
		DiscountPercent: in.DiscountPercent,
		DiscountAmount:  in.DiscountAmount,
		MinOrderTotal:   in.MinOrderTotal,
		ValidFrom:       in.ValidFrom,
		ValidUntil:      in.ValidUntil,
		MaxUses:         in.MaxUses,
		Active:          true,
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO coupons(id, code, discount_percent, discount_amount, min_order_total,
		                    valid_from, valid_until, max_uses)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		c.ID, c.Code, c.DiscountPercent, c.DiscountAmount, c.MinOrderTotal,
		c.ValidFrom, c.ValidUntil, c.MaxUses).
		Scan(&c.CreatedAt)
	if err != nil {
		return Coupon{}, err
	}
	return c, nil
}

const couponCols = `id, code, discount_percent, discount_amount, min_order_total,
	valid_from, valid_until, max_uses, used_count, assigned_to, active, created_at`

func (r *Repo) GetByCode(ctx context.Context, code string) (Coupon, error) {
	c, err := scanCoupon(r.DB.QueryRow(ctx,
		`SELECT `+couponCols+` FROM coupons WHERE code = $1`, strings.ToUpper(strings.TrimSpace(code))))
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, fmt.Errorf("%w: %s", ErrCouponNotFound, code)
	}
	return c, err
}

// Redeem consumes one use. The increment is guarded by the active flag and
// the usage cap in the statement itself, so two concurrent redemptions of
// a coupon with one use left cannot both succeed.
func (r *Repo) Redeem(ctx context.Context, code string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND active AND used_count < max_uses`,
		strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrNotRedeemable, code)
	}
	return nil
}

func (r *Repo) SetActive(ctx context.Context, id string, active bool) error {
	ct, err := r.DB.Exec(ctx, `UPDATE coupons SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrCouponNotFound, id)
	}
	return nil
}

// AssignTo reserves a coupon for a single customer; only unassigned
// coupons may be assigned.
func (r *Repo) AssignTo(ctx context.Context, code, username string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE coupons SET assigned_to = $2
		WHERE code = $1 AND assigned_to IS NULL`,
		strings.ToUpper(strings.TrimSpace(code)), username)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrCouponNotFound, code)
	}
	return nil
}

func (r *Repo) ListAll(ctx context.Context) ([]Coupon, error) {
	return r.query(ctx, `SELECT `+couponCols+` FROM coupons ORDER BY created_at DESC`)
}

func (r *Repo) ListActive(ctx context.Context) ([]Coupon, error) {
	return r.query(ctx, `
		SELECT `+couponCols+` FROM coupons
		WHERE active AND used_count < max_uses
		  AND (valid_until IS NULL OR valid_until > now())
		ORDER BY created_at DESC`)
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) ([]Coupon, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCoupon(row pgx.Row) (Coupon, error) {
	var c Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountPercent, &c.DiscountAmount, &c.MinOrderTotal,
		&c.ValidFrom, &c.ValidUntil, &c.MaxUses, &c.UsedCount, &c.AssignedTo, &c.Active, &c.CreatedAt)
	return c, err
}
