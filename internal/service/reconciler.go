package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/messaging"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

// ReconcileResult describes what a checkout did to its truck slot.
type ReconcileResult struct {
	Remaining int64
	Emptied   bool
	// LedgerRef is the ledger's output parameter, empty when the call failed.
	LedgerRef string
	// LedgerErr is the swallowed side-effect failure, if any.
	LedgerErr error
}

// InventoryReconciler applies a confirmed checkout to the inventory
// counters and books it in the ledger.
type InventoryReconciler struct {
	log       repository.EventLog
	ledger    repository.Ledger
	publisher messaging.Publisher
	stats     *Stats
	timeout   time.Duration
}

// NewInventoryReconciler accepts a nil ledger, in which case step 4 is
// skipped.
func NewInventoryReconciler(
	log repository.EventLog,
	ledger repository.Ledger,
	publisher messaging.Publisher,
	stats *Stats,
	timeout time.Duration,
) *InventoryReconciler {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &InventoryReconciler{
		log:       log,
		ledger:    ledger,
		publisher: publisher,
		stats:     stats,
		timeout:   timeout,
	}
}

// Reconcile decrements, reads back, marks the slot empty at or below zero,
// then calls the ledger. Only failures of the first three steps are
// returned; a ledger failure is logged and reported in the result.
func (r *InventoryReconciler) Reconcile(ctx context.Context, checkout entity.CheckoutFact) (ReconcileResult, error) {
	key := checkout.Key()
	var res ReconcileResult

	// 1. Decrement
	if err := r.call(ctx, func(ctx context.Context) error {
		return r.log.DecrementCounter(ctx, key)
	}); err != nil {
		return res, err
	}

	// 2. Read back
	if err := r.call(ctx, func(ctx context.Context) error {
		n, err := r.log.ReadCounter(ctx, key)
		res.Remaining = n
		return err
	}); err != nil {
		return res, err
	}

	// 3. Empty slot
	if res.Remaining <= 0 {
		if err := r.call(ctx, func(ctx context.Context) error {
			return r.log.MarkEmpty(ctx, key)
		}); err != nil {
			return res, err
		}
		res.Emptied = true
		r.stats.Inc(StatSlotsEmptied)
		slog.Info("Truck slot emptied", "product_id", key.ProductID, "truck", key.TruckID, "remaining", res.Remaining)

		event := entity.TruckSlotEmptied{
			Key:        key,
			Remaining:  res.Remaining,
			CheckoutID: checkout.ID.String(),
			EmptiedAt:  time.Now().UTC(),
		}
		if err := r.publisher.PublishEvent(ctx, messaging.TopicInventorySlotEmptied, key.TruckID, event); err != nil {
			slog.Error("Failed to publish TruckSlotEmptied", "checkout_id", checkout.ID, "err", err)
			r.stats.Inc(StatPublishFailures)
		}
	}

	// 4. Ledger, best-effort
	if r.ledger != nil {
		res.LedgerRef, res.LedgerErr = r.recordLedger(ctx, checkout)
	}

	return res, nil
}

func (r *InventoryReconciler) recordLedger(ctx context.Context, checkout entity.CheckoutFact) (string, error) {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()

	ref, err := r.ledger.RecordCheckout(ctx, checkout)
	if err != nil {
		if !errors.Is(err, apperr.ErrSideEffect) {
			err = apperr.SideEffect("ledger call", err)
		}
		slog.Warn("Ledger side effect failed, continuing", "checkout_id", checkout.ID, "err", err)
		r.stats.Inc(StatLedgerFailures)
		return "", err
	}
	r.stats.Inc(StatLedgerRecorded)
	return ref, nil
}

func (r *InventoryReconciler) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := bounded(ctx, r.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("failed to reconcile inventory: %w", err)
	}
	return nil
}
