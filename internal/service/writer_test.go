package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

func TestWritePrimary(t *testing.T) {
	primary := &fakePlans{endpoint: "primary"}
	secondary := &fakePlans{endpoint: "secondary"}
	w := NewDeliveryWriter(primary, secondary, NewStats(nil), 0)

	require.NoError(t, w.Write(context.Background(), entity.DeliveryPlan{ID: "p1"}))
	assert.Len(t, primary.plans, 1)
	assert.Equal(t, 0, secondary.attempts)
}

func TestWriteFailsOverOnConnectivity(t *testing.T) {
	primary := &fakePlans{endpoint: "primary", err: connectivityErr("insert delivery plan")}
	secondary := &fakePlans{endpoint: "secondary"}
	stats := NewStats(nil)
	w := NewDeliveryWriter(primary, secondary, stats, 0)

	require.NoError(t, w.Write(context.Background(), entity.DeliveryPlan{ID: "p1"}))
	assert.Equal(t, 1, primary.attempts)
	require.Len(t, secondary.plans, 1)
	assert.Equal(t, "p1", secondary.plans[0].ID)
	assert.Equal(t, int64(1), stats.Count(StatPlansFailover))

	// The next write starts at the primary again.
	primary.err = nil
	require.NoError(t, w.Write(context.Background(), entity.DeliveryPlan{ID: "p2"}))
	assert.Len(t, primary.plans, 1)
	assert.Len(t, secondary.plans, 1)
}

func TestWriteFailsOverOnTimeout(t *testing.T) {
	primary := &fakePlans{endpoint: "primary", err: context.DeadlineExceeded}
	secondary := &fakePlans{endpoint: "secondary"}
	w := NewDeliveryWriter(primary, secondary, NewStats(nil), 0)

	require.NoError(t, w.Write(context.Background(), entity.DeliveryPlan{ID: "p1"}))
	assert.Len(t, secondary.plans, 1)
}

func TestWriteBothDownIsWriteError(t *testing.T) {
	primary := &fakePlans{endpoint: "primary", err: connectivityErr("insert delivery plan")}
	secondary := &fakePlans{endpoint: "secondary", err: connectivityErr("insert delivery plan")}
	w := NewDeliveryWriter(primary, secondary, NewStats(nil), 0)

	err := w.Write(context.Background(), entity.DeliveryPlan{ID: "p1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrWrite)
	assert.Equal(t, "write", apperr.Kind(err))
	assert.Equal(t, 1, primary.attempts)
	assert.Equal(t, 1, secondary.attempts)
}

func TestWriteRejectedDoesNotFailOver(t *testing.T) {
	primary := &fakePlans{endpoint: "primary", err: errors.New("field planned_at: invalid datetime")}
	secondary := &fakePlans{endpoint: "secondary"}
	w := NewDeliveryWriter(primary, secondary, NewStats(nil), 0)

	err := w.Write(context.Background(), entity.DeliveryPlan{ID: "p1"})
	assert.ErrorIs(t, err, apperr.ErrWrite)
	assert.Equal(t, 0, secondary.attempts)
}

func TestWriteWithoutSecondary(t *testing.T) {
	primary := &fakePlans{endpoint: "primary", err: connectivityErr("insert delivery plan")}
	w := NewDeliveryWriter(primary, nil, NewStats(nil), 0)

	err := w.Write(context.Background(), entity.DeliveryPlan{ID: "p1"})
	assert.ErrorIs(t, err, apperr.ErrWrite)
}
