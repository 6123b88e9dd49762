package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so ledger
// operations can run standalone or inside an enclosing transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repo struct{ DB *pgxpool.Pool }

// Reserved is the ledger state right after a successful reservation.
type Reserved struct {
	ProductID string
	Name      string
	Stock     float64
	Threshold float64
}

func (r Reserved) LowStock() bool { return r.Stock <= r.Threshold }

// Reserve decrements stock by kg only if enough is available: a single
// compare-and-decrement, never a read followed by a write. Two concurrent
// reservations for the last of a product cannot both succeed.
func (r *Repo) Reserve(ctx context.Context, q Querier, productID string, kg float64) (Reserved, error) {
	if kg <= 0 {
		return Reserved{}, fmt.Errorf("reserve %s: non-positive quantity %.2f", productID, kg)
	}
	var res Reserved
	res.ProductID = productID
	err := q.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING name, stock, threshold`, productID, kg).
		Scan(&res.Name, &res.Stock, &res.Threshold)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Reserved{}, err
	}

	// distinguish missing product from missing stock
	var available float64
	err = q.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reserved{}, fmt.Errorf("reserve: %w: %s", ErrProductNotFound, productID)
	}
	if err != nil {
		return Reserved{}, err
	}
	return Reserved{}, &InsufficientStockError{ProductID: productID, Requested: kg, Available: available}
}

// Restore is the unconditional increment used when a cancelled order hands
// its stock back.
func (r *Repo) Restore(ctx context.Context, q Querier, productID string, kg float64) error {
	if kg <= 0 {
		return fmt.Errorf("restore %s: non-positive quantity %.2f", productID, kg)
	}
	ct, err := q.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, kg)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("restore: %w: %s", ErrProductNotFound, productID)
	}
	return nil
}

// ---- owner catalog operations ----

func (r *Repo) Create(ctx context.Context, name, kind string, price, stock, threshold float64) (Product, error) {
	if threshold < 1 {
		threshold = 1
	}
	p := Product{ID: uuid.NewString(), Name: name, Kind: kind, Price: price, Stock: stock, Threshold: threshold}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO products(id, name, kind, price, stock, threshold)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Kind, p.Price, p.Stock, p.Threshold).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

const productCols = `id, name, kind, price, discount_percent, stock, threshold, created_at, updated_at`

func (r *Repo) GetByID(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, err
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	return r.queryProducts(ctx, `SELECT `+productCols+` FROM products ORDER BY name ASC`)
}

func (r *Repo) ListByKind(ctx context.Context, kind string) ([]Product, error) {
	return r.queryProducts(ctx, `SELECT `+productCols+` FROM products WHERE kind = $1 ORDER BY name ASC`, kind)
}

func (r *Repo) ListLowStock(ctx context.Context) ([]Product, error) {
	return r.queryProducts(ctx, `SELECT `+productCols+` FROM products WHERE stock <= threshold ORDER BY stock`)
}

func (r *Repo) UpdatePrice(ctx context.Context, id string, price float64) error {
	if price < 0 {
		return fmt.Errorf("invalid price %.2f", price)
	}
	return r.execOne(ctx, id, `UPDATE products SET price = $2, updated_at = now() WHERE id = $1`, price)
}

func (r *Repo) UpdateDiscount(ctx context.Context, id string, percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("invalid discount percent %.2f", percent)
	}
	return r.execOne(ctx, id, `UPDATE products SET discount_percent = $2, updated_at = now() WHERE id = $1`, percent)
}

func (r *Repo) UpdateThreshold(ctx context.Context, id string, threshold float64) error {
	if threshold < 1 {
		return fmt.Errorf("invalid threshold %.2f", threshold)
	}
	return r.execOne(ctx, id, `UPDATE products SET threshold = $2, updated_at = now() WHERE id = $1`, threshold)
}

// AddStock is the owner's restocking entry point; reservation and
// restoration are the only other paths that touch stock.
func (r *Repo) AddStock(ctx context.Context, id string, kg float64) error {
	return r.Restore(ctx, r.DB, id, kg)
}

func (r *Repo) execOne(ctx context.Context, id, sql string, args ...any) error {
	all := append([]any{id}, args...)
	ct, err := r.DB.Exec(ctx, sql, all...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return nil
}

func (r *Repo) queryProducts(ctx context.Context, sql string, args ...any) ([]Product, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Kind, &p.Price, &p.DiscountPercent,
		&p.Stock, &p.Threshold, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
