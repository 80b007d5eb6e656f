package surreal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/constants"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

func TestPlanContent(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	plan := entity.NewDeliveryPlan(
		entity.OrderFact{
			ID:            uuid.MustParse("0b0f7a1c-3b0e-4a8e-9d56-3f8f1c2d4e5a"),
			ProductName:   "Botas",
			ProductType:   "Calzado",
			StopName:      "StopA",
			Consumer:      "Rosa",
			PaymentMethod: "Cash",
			PaymentAmount: decimal.RequireFromString("35000.50"),
			PaymentInSpot: true,
			OrderTime:     at,
		},
		entity.RouteReference{RouteName: "RouteX", StopName: "StopA", Order: 3},
		entity.TruckReference{TruckID: "T7", Name: "Truck7", AssignedRoute: "RouteX"},
	)

	c := planContent(plan)
	assert.Equal(t, "0b0f7a1c-3b0e-4a8e-9d56-3f8f1c2d4e5a", c["order_id"])
	assert.Equal(t, "T7", c["truckid"])
	assert.Equal(t, "Truck7", c["name"])
	assert.Equal(t, "RouteX", c["assignedRoute"])
	assert.Equal(t, 3, c["planned_position_order"])
	assert.Equal(t, "StopA", c["planned_stop_name"])
	assert.Equal(t, "Rosa", c["planned_consumer_person"])
	assert.Equal(t, "Calzado", c["product_family"])
	assert.Equal(t, "35000.5", c["payment_amount"])
	assert.Equal(t, false, c["completed"])
	assert.Equal(t, models.CustomDateTime{Time: at}, c["planned_at"])
	assert.NotContains(t, c, "id")
}

func TestFirst(t *testing.T) {
	assert.Nil(t, first[entity.RouteReference](nil))

	empty := []surrealdb.QueryResult[[]entity.RouteReference]{{Status: "OK"}}
	assert.Nil(t, first(&empty))

	res := []surrealdb.QueryResult[[]entity.RouteReference]{{
		Status: "OK",
		Result: []entity.RouteReference{{RouteName: "RouteX", StopName: "StopA", Order: 3}},
	}}
	got := first(&res)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Order)
}

func TestIsConnectivityError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: fmt.Errorf("send: %w", constants.ErrTimeout), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "net", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, want: true},
		{name: "closed", err: errors.New("websocket: connection closed"), want: true},
		{name: "query", err: constants.ErrQuery, want: false},
		{name: "parse", err: errors.New("Parse error: unexpected token"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectivityError(tt.err))
		})
	}
}

func TestUnreachableEndpointIsConnectivityError(t *testing.T) {
	s := NewStore(Config{URL: "ws://127.0.0.1:1", Namespace: "greencarrot", Database: "rutas"})
	assert.Equal(t, "ws://127.0.0.1:1", s.Endpoint())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.InsertPlan(ctx, entity.DeliveryPlan{ID: "x"})
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))

	_, err = s.FindRouteByStop(ctx, "StopA")
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
	assert.False(t, apperr.IsNotFound(err))

	require.NoError(t, s.Close(ctx))
}
