package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

var _ repository.EventLog = (*EventLog)(nil)

const (
	orderColumns = "id, partition_for_polling, product_id, product_name, product_type, truck, route, stop_name, consumer, payment_method, payment_amount, payment_in_spot, ordertime"

	checkoutColumns = "id, product_id, truck, product_type, product_name, confirmed, updated_at"

	keyPredicate = "product_id = $1 AND truck = $2 AND product_type = $3 AND product_name = $4"
)

// EventLog is the Postgres-backed event log. It holds one session at a time
// and walks the ordered endpoint list when that session is lost.
type EventLog struct {
	endpoints []string
	partition uuid.UUID
	open      Opener

	mu      sync.Mutex
	db      *sql.DB
	current int
}

// NewEventLog creates an EventLog over the ordered endpoints (primary first).
// No session is opened until the first call.
func NewEventLog(endpoints []string, partition uuid.UUID, open Opener) (*EventLog, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("event log needs at least one endpoint")
	}
	if open == nil {
		open = OpenDB
	}
	return &EventLog{
		endpoints: endpoints,
		partition: partition,
		open:      open,
		current:   -1,
	}, nil
}

// Close releases the active session.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	l.current = -1
	return err
}

func (l *EventLog) session() (*sql.DB, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db, l.current
}

func (l *EventLog) swap(db *sql.DB, idx int) {
	l.mu.Lock()
	old := l.db
	l.db = db
	l.current = idx
	l.mu.Unlock()

	if old != nil && old != db {
		if err := old.Close(); err != nil {
			slog.Debug("Failed to close stale event log session", "err", err)
		}
	}
}

// do runs fn on the active session. On a connectivity failure it reconnects
// against each endpoint in order, retrying fn once per endpoint.
func (l *EventLog) do(ctx context.Context, op string, fn func(ctx context.Context, db *sql.DB) error) error {
	if db, idx := l.session(); db != nil {
		err := fn(ctx, db)
		if err == nil {
			return nil
		}
		if !isConnectivityError(err) {
			return fmt.Errorf("failed to %s: %w", op, err)
		}
		if ctx.Err() != nil {
			return apperr.Connectivity(op, err)
		}
		slog.Warn("Event log session lost, reconnecting", "op", op, "endpoint", Redact(l.endpoints[idx]), "err", err)
	}

	var lastErr error
	for idx, dsn := range l.endpoints {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		db, err := l.open(ctx, dsn)
		if err != nil {
			slog.Warn("Event log endpoint unreachable", "op", op, "endpoint", Redact(dsn), "err", err)
			lastErr = err
			continue
		}

		if err := fn(ctx, db); err != nil {
			if isConnectivityError(err) {
				db.Close()
				lastErr = err
				continue
			}
			l.swap(db, idx)
			return fmt.Errorf("failed to %s: %w", op, err)
		}

		l.swap(db, idx)
		slog.Info("Event log session established", "endpoint", Redact(dsn), "position", idx)
		return nil
	}

	return apperr.Connectivity(op, lastErr)
}

func (l *EventLog) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := l.do(ctx, "count orders", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM items_ordered_to_deliver_to_consumers WHERE partition_for_polling = $1",
			l.partition,
		).Scan(&n)
	})
	return n, err
}

func (l *EventLog) LatestOrder(ctx context.Context) (*entity.OrderFact, error) {
	orders, err := l.RecentOrders(ctx, 1)
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

func (l *EventLog) RecentOrders(ctx context.Context, limit int) ([]entity.OrderFact, error) {
	var orders []entity.OrderFact
	err := l.do(ctx, "fetch recent orders", func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT "+orderColumns+" FROM items_ordered_to_deliver_to_consumers WHERE partition_for_polling = $1 ORDER BY ordertime DESC LIMIT $2",
			l.partition, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		orders = orders[:0]
		for rows.Next() {
			var o entity.OrderFact
			if err := rows.Scan(&o.ID, &o.PartitionKey, &o.ProductID, &o.ProductName, &o.ProductType, &o.TruckID, &o.RouteName,
				&o.StopName, &o.Consumer, &o.PaymentMethod, &o.PaymentAmount, &o.PaymentInSpot, &o.OrderTime); err != nil {
				return fmt.Errorf("failed to scan order fact: %w", err)
			}
			orders = append(orders, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	// Newest first from the store, oldest first to the caller.
	slices.Reverse(orders)
	return orders, nil
}

func (l *EventLog) CountConfirmedCheckouts(ctx context.Context) (int64, error) {
	var n int64
	err := l.do(ctx, "count confirmed checkouts", func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items_checked_out WHERE confirmed = true").Scan(&n)
	})
	return n, err
}

func (l *EventLog) LatestConfirmedCheckout(ctx context.Context) (*entity.CheckoutFact, error) {
	checkouts, err := l.RecentConfirmedCheckouts(ctx, 1)
	if err != nil || len(checkouts) == 0 {
		return nil, err
	}
	return &checkouts[0], nil
}

func (l *EventLog) RecentConfirmedCheckouts(ctx context.Context, limit int) ([]entity.CheckoutFact, error) {
	var checkouts []entity.CheckoutFact
	err := l.do(ctx, "fetch recent checkouts", func(ctx context.Context, db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			"SELECT "+checkoutColumns+" FROM items_checked_out WHERE confirmed = true ORDER BY updated_at DESC LIMIT $1",
			limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		checkouts = checkouts[:0]
		for rows.Next() {
			var c entity.CheckoutFact
			if err := rows.Scan(&c.ID, &c.ProductID, &c.TruckID, &c.ProductType, &c.ProductName, &c.Confirmed, &c.UpdatedAt); err != nil {
				return fmt.Errorf("failed to scan checkout fact: %w", err)
			}
			checkouts = append(checkouts, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	slices.Reverse(checkouts)
	return checkouts, nil
}

func (l *EventLog) DecrementCounter(ctx context.Context, key entity.InventoryKey) error {
	return l.do(ctx, "decrement existence counter", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE existence_by_truck SET existence_no = existence_no - 1 WHERE "+keyPredicate,
			key.ProductID, key.TruckID, key.ProductType, key.ProductName,
		)
		if err != nil {
			return err
		}
		return expectRow(res, "existence counter", key)
	})
}

func (l *EventLog) ReadCounter(ctx context.Context, key entity.InventoryKey) (int64, error) {
	var n int64
	err := l.do(ctx, "read existence counter", func(ctx context.Context, db *sql.DB) error {
		err := db.QueryRowContext(ctx,
			"SELECT existence_no FROM existence_by_truck WHERE "+keyPredicate,
			key.ProductID, key.TruckID, key.ProductType, key.ProductName,
		).Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("read existence counter", fmt.Errorf("no counter for %+v", key))
		}
		return err
	})
	return n, err
}

func (l *EventLog) MarkEmpty(ctx context.Context, key entity.InventoryKey) error {
	return l.do(ctx, "mark truck slot empty", func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			"UPDATE items_in_truck SET still_in_truck = false WHERE "+keyPredicate,
			key.ProductID, key.TruckID, key.ProductType, key.ProductName,
		)
		if err != nil {
			return err
		}
		return expectRow(res, "truck slot", key)
	})
}

func expectRow(res sql.Result, what string, key entity.InventoryKey) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("update "+what, fmt.Errorf("no %s for %+v", what, key))
	}
	return nil
}
