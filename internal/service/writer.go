package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

// DeliveryWriter stores plans on the primary document store and falls back
// to the secondary once when the primary cannot be reached. Every write
// starts at the primary again. ReferenceResolver fails over the same way,
// so an order is planned while only the primary is down.
type DeliveryWriter struct {
	primary   repository.PlanStore
	secondary repository.PlanStore
	stats     *Stats
	timeout   time.Duration
}

// NewDeliveryWriter accepts a nil secondary; failover is then disabled.
func NewDeliveryWriter(primary, secondary repository.PlanStore, stats *Stats, timeout time.Duration) *DeliveryWriter {
	return &DeliveryWriter{primary: primary, secondary: secondary, stats: stats, timeout: timeout}
}

// Write returns an apperr.ErrWrite when the plan reached no endpoint.
func (w *DeliveryWriter) Write(ctx context.Context, plan entity.DeliveryPlan) error {
	err := w.insert(ctx, w.primary, plan)
	if err == nil {
		return nil
	}
	if w.secondary == nil || ctx.Err() != nil || !shouldFailover(err) {
		return apperr.Write("write delivery plan", err)
	}

	slog.Warn("Primary document store unavailable, retrying on secondary",
		"plan_id", plan.ID, "primary", w.primary.Endpoint(), "secondary", w.secondary.Endpoint(), "err", err)
	w.stats.Inc(StatPlansFailover)

	if err2 := w.insert(ctx, w.secondary, plan); err2 != nil {
		return apperr.Write("write delivery plan", errors.Join(err, err2))
	}
	return nil
}

func (w *DeliveryWriter) insert(ctx context.Context, store repository.PlanStore, plan entity.DeliveryPlan) error {
	ctx, cancel := bounded(ctx, w.timeout)
	defer cancel()
	return store.InsertPlan(ctx, plan)
}

// shouldFailover treats a timed-out primary like an unreachable one.
func shouldFailover(err error) bool {
	return apperr.IsConnectivity(err) || errors.Is(err, context.DeadlineExceeded)
}
