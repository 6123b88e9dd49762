package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/selvitopi/greengrocer/internal/catalog"
)

const pgUniqueViolation = "23505"

// Repo is the order transaction manager. Every state transition is a
// single conditional update evaluated by Postgres; there is no
// application-level locking anywhere in the lifecycle.
type Repo struct {
	DB     *pgxpool.Pool
	Ledger *catalog.Repo
}

type CheckoutInput struct {
	ExternalID        string
	Customer          string
	RequestedDelivery time.Time
	Lines             []CartLine
	Total             float64 // VAT-inclusive, after any coupon discount
}

type CheckoutResult struct {
	Order   Order
	Lines   []CartLine
	Existed bool
	// products whose reservation left stock at or below the threshold
	LowStock []catalog.Reserved
}

const orderCols = `id, external_id, customer, status, requested_delivery, total,
	carrier, created_at, updated_at, delivered_at, cancelled_at, cancel_reason`

// Checkout turns a cart into a durable order. The whole unit is
// failure-atomic: header insert, per-line stock reservation, line inserts
// with the frozen unit price, and the initial history row either all
// commit or none do. Reservations run in ascending product id order so
// concurrent checkouts over overlapping products acquire row locks in the
// same sequence.
func (r *Repo) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	if err := ValidateCheckout(in.Lines, in.RequestedDelivery, in.Total, time.Now()); err != nil {
		return CheckoutResult{}, err
	}

	// idempotent by external_id: a repeated submission gets the order it
	// already created, nothing is reserved twice
	existing, err := scanOrder(r.DB.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE external_id = $1`, in.ExternalID))
	if err == nil {
		return CheckoutResult{Order: existing, Existed: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return CheckoutResult{}, err
	}

	lines := make([]CartLine, len(in.Lines))
	copy(lines, in.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return CheckoutResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := Order{
		ID:                uuid.NewString(),
		ExternalID:        in.ExternalID,
		Customer:          in.Customer,
		Status:            StatusNew,
		RequestedDelivery: in.RequestedDelivery,
		Total:             in.Total,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, external_id, customer, status, requested_delivery, total)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		o.ID, o.ExternalID, o.Customer, o.Status, o.RequestedDelivery, o.Total).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		// two simultaneous submissions can both miss the read above; the
		// loser blocks on the unique index until the winner commits, then
		// surfaces here and gets the winner's order
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "orders_external_id_key" {
			_ = tx.Rollback(ctx)
			winner, rerr := scanOrder(r.DB.QueryRow(ctx,
				`SELECT `+orderCols+` FROM orders WHERE external_id = $1`, in.ExternalID))
			if rerr == nil {
				return CheckoutResult{Order: winner, Existed: true}, nil
			}
		}
		return CheckoutResult{}, err
	}

	var lowStock []catalog.Reserved
	for _, l := range lines {
		res, err := r.Ledger.Reserve(ctx, tx, l.ProductID, l.Kg)
		if err != nil {
			// the deferred rollback discards every reservation made so far
			return CheckoutResult{}, err
		}
		if res.LowStock() {
			lowStock = append(lowStock, res)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines(id, order_id, product_id, kg, unit_price)
			VALUES ($1,$2,$3,$4,$5)`,
			uuid.NewString(), o.ID, l.ProductID, l.Kg, l.UnitPrice)
		if err != nil {
			return CheckoutResult{}, err
		}
	}

	if err := appendHistory(ctx, tx, o.ID, StatusNew, in.Customer, "order created"); err != nil {
		return CheckoutResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{Order: o, Lines: lines, LowStock: lowStock}, nil
}

// Claim hands a NEW, unassigned order to a carrier. The status and carrier
// fields flip together in one conditional update keyed on both, so exactly
// one of any number of concurrent claims can succeed.
func (r *Repo) Claim(ctx context.Context, orderID, carrier string) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status = $2, carrier = $3, updated_at = now()
		WHERE id = $1 AND status = $4 AND carrier IS NULL
		RETURNING `+orderCols,
		orderID, StatusInProgress, carrier, StatusNew))
	if errors.Is(err, pgx.ErrNoRows) {
		cur, err2 := r.getIn(ctx, tx, orderID)
		if err2 != nil {
			return Order{}, err2
		}
		if cur.Carrier != nil || cur.Status == StatusInProgress {
			return Order{}, fmt.Errorf("claim %s: %w", orderID, ErrAlreadyClaimed)
		}
		return Order{}, fmt.Errorf("claim %s from %s: %w", orderID, cur.Status, ErrInvalidTransition)
	}
	if err != nil {
		return Order{}, err
	}

	if err := appendHistory(ctx, tx, orderID, StatusInProgress, carrier, "order taken by carrier"); err != nil {
		return Order{}, err
	}
	return o, tx.Commit(ctx)
}

// Deliver confirms delivery by the assigned carrier. A supplied timestamp
// must lie between order creation and now, with the bounds part of the
// conditional update itself; a zero timestamp means "now" and is stamped
// by the database clock, so it can never fall outside the bounds.
func (r *Repo) Deliver(ctx context.Context, orderID, carrier string, deliveredAt time.Time) (Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var o Order
	if deliveredAt.IsZero() {
		o, err = scanOrder(tx.QueryRow(ctx, `
			UPDATE orders SET status = $2, delivered_at = now(), updated_at = now()
			WHERE id = $1 AND status = $3 AND carrier = $4
			RETURNING `+orderCols,
			orderID, StatusDelivered, StatusInProgress, carrier))
	} else {
		o, err = scanOrder(tx.QueryRow(ctx, `
			UPDATE orders SET status = $2, delivered_at = $4, updated_at = now()
			WHERE id = $1 AND status = $3 AND carrier = $5
			  AND $4 >= created_at AND $4 <= now()
			RETURNING `+orderCols,
			orderID, StatusDelivered, StatusInProgress, deliveredAt, carrier))
	}
	if errors.Is(err, pgx.ErrNoRows) {
		cur, err2 := r.getIn(ctx, tx, orderID)
		if err2 != nil {
			return Order{}, err2
		}
		switch {
		case cur.Status != StatusInProgress:
			return Order{}, fmt.Errorf("deliver %s from %s: %w", orderID, cur.Status, ErrInvalidTransition)
		case cur.Carrier == nil || *cur.Carrier != carrier:
			return Order{}, fmt.Errorf("deliver %s by %s: %w", orderID, carrier, ErrUnauthorized)
		default:
			if verr := ValidateDeliveryStamp(deliveredAt, cur.CreatedAt, time.Now()); verr != nil {
				return Order{}, verr
			}
			return Order{}, &ValidationError{Field: "delivered_at", Reason: "timestamp outside the accepted bounds"}
		}
	}
	if err != nil {
		return Order{}, err
	}

	if err := appendHistory(ctx, tx, orderID, StatusDelivered, carrier, "order delivered"); err != nil {
		return Order{}, err
	}
	return o, tx.Commit(ctx)
}

// Cancel voids a NEW order within the cancellation window and hands the
// reserved stock back line by line. The restore is forward compensation
// for an already-visible order, not a rollback: the order stays CANCELLED
// with its audit row.
func (r *Repo) Cancel(ctx context.Context, orderID, customer, reason string) (Order, []Line, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status = $2, cancelled_at = now(), cancel_reason = $4, updated_at = now()
		WHERE id = $1 AND status = $3 AND customer = $5
		  AND now() - created_at <= make_interval(secs => $6)
		RETURNING `+orderCols,
		orderID, StatusCancelled, StatusNew, reason, customer, CancelWindow.Seconds()))
	if errors.Is(err, pgx.ErrNoRows) {
		cur, err2 := r.getIn(ctx, tx, orderID)
		if err2 != nil {
			return Order{}, nil, err2
		}
		switch {
		case cur.Status != StatusNew:
			return Order{}, nil, fmt.Errorf("cancel %s from %s: %w", orderID, cur.Status, ErrInvalidTransition)
		case cur.Customer != customer:
			return Order{}, nil, fmt.Errorf("cancel %s by %s: %w", orderID, customer, ErrUnauthorized)
		default:
			return Order{}, nil, fmt.Errorf("cancel %s: %w", orderID, ErrCancelWindowExpired)
		}
	}
	if err != nil {
		return Order{}, nil, err
	}

	lines, err := linesFor(ctx, tx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	for _, l := range lines {
		if err := r.Ledger.Restore(ctx, tx, l.ProductID, l.Kg); err != nil {
			return Order{}, nil, err
		}
	}
	if err := appendHistory(ctx, tx, orderID, StatusCancelled, customer, reason); err != nil {
		return Order{}, nil, err
	}
	return o, lines, tx.Commit(ctx)
}

// ---- audit trail ----

// appendHistory is the only writer of order_status_history; nothing
// updates or deletes rows there.
func appendHistory(ctx context.Context, q catalog.Querier, orderID string, status Status, actor, note string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO order_status_history(order_id, status, actor, note)
		VALUES ($1,$2,$3,$4)`, orderID, status, actor, note)
	return err
}

func (r *Repo) HistoryFor(ctx context.Context, orderID string) ([]HistoryEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, status, actor, note, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY changed_at DESC, id DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Actor, &h.Note, &h.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ---- read surfaces ----

func (r *Repo) GetByID(ctx context.Context, orderID string) (Order, error) {
	return r.getIn(ctx, r.DB, orderID)
}

func (r *Repo) getIn(ctx context.Context, q catalog.Querier, orderID string) (Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, err
}

func (r *Repo) StatusOf(ctx context.Context, orderID string) (Status, error) {
	var s Status
	err := r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return s, err
}

// ListAvailable returns NEW, unassigned orders for the carrier board,
// oldest first, with customer contact info and lines.
func (r *Repo) ListAvailable(ctx context.Context) ([]Detail, error) {
	return r.queryDetails(ctx, `
		SELECT `+detailCols+`
		FROM orders o LEFT JOIN users u ON o.customer = u.username
		WHERE o.status = 'NEW' AND o.carrier IS NULL
		ORDER BY o.requested_delivery, o.created_at`)
}

func (r *Repo) ListByCustomer(ctx context.Context, customer string) ([]Detail, error) {
	return r.queryDetails(ctx, `
		SELECT `+detailCols+`
		FROM orders o LEFT JOIN users u ON o.customer = u.username
		WHERE o.customer = $1
		ORDER BY o.created_at DESC`, customer)
}

func (r *Repo) ListByCarrier(ctx context.Context, carrier string, status Status) ([]Detail, error) {
	return r.queryDetails(ctx, `
		SELECT `+detailCols+`
		FROM orders o LEFT JOIN users u ON o.customer = u.username
		WHERE o.carrier = $1 AND o.status = $2
		ORDER BY o.requested_delivery, o.created_at`, carrier, status)
}

func (r *Repo) GetDetail(ctx context.Context, orderID string) (Detail, error) {
	ds, err := r.queryDetails(ctx, `
		SELECT `+detailCols+`
		FROM orders o LEFT JOIN users u ON o.customer = u.username
		WHERE o.id = $1`, orderID)
	if err != nil {
		return Detail{}, err
	}
	if len(ds) == 0 {
		return Detail{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return ds[0], nil
}

const detailCols = `o.id, o.external_id, o.customer, o.status, o.requested_delivery, o.total,
	o.carrier, o.created_at, o.updated_at, o.delivered_at, o.cancelled_at, o.cancel_reason,
	COALESCE(u.address, ''), COALESCE(u.phone, '')`

func (r *Repo) queryDetails(ctx context.Context, sql string, args ...any) ([]Detail, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Detail
	for rows.Next() {
		var d Detail
		err := rows.Scan(&d.ID, &d.ExternalID, &d.Customer, &d.Status, &d.RequestedDelivery,
			&d.Total, &d.Carrier, &d.CreatedAt, &d.UpdatedAt, &d.DeliveredAt,
			&d.CancelledAt, &d.CancelReason, &d.CustomerAddress, &d.CustomerPhone)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		lines, err := r.namedLinesFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

func (r *Repo) namedLinesFor(ctx context.Context, orderID string) ([]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT ol.product_id, p.name, ol.kg, ol.unit_price
		FROM order_lines ol JOIN products p ON ol.product_id = p.id
		WHERE ol.order_id = $1
		ORDER BY p.name`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Kg, &l.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func linesFor(ctx context.Context, q catalog.Querier, orderID string) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, kg, unit_price FROM order_lines WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ProductID, &l.Kg, &l.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.ExternalID, &o.Customer, &o.Status, &o.RequestedDelivery,
		&o.Total, &o.Carrier, &o.CreatedAt, &o.UpdatedAt, &o.DeliveredAt,
		&o.CancelledAt, &o.CancelReason)
	return o, err
}
