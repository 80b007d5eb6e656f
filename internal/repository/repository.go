package repository

import (
	"context"

	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

// EventLog reads facts from the polling partition and maintains inventory
// counters. Implementations recover lost sessions themselves and report
// exhausted failover with apperr.ErrConnectivity.
type EventLog interface {
	CountOrders(ctx context.Context) (int64, error)
	// LatestOrder returns nil when the partition is empty.
	LatestOrder(ctx context.Context) (*entity.OrderFact, error)
	// RecentOrders returns up to limit newest orders, oldest first.
	RecentOrders(ctx context.Context, limit int) ([]entity.OrderFact, error)

	CountConfirmedCheckouts(ctx context.Context) (int64, error)
	LatestConfirmedCheckout(ctx context.Context) (*entity.CheckoutFact, error)
	RecentConfirmedCheckouts(ctx context.Context, limit int) ([]entity.CheckoutFact, error)

	// DecrementCounter lowers the existence count by one in a single write.
	DecrementCounter(ctx context.Context, key entity.InventoryKey) error
	ReadCounter(ctx context.Context, key entity.InventoryKey) (int64, error)
	MarkEmpty(ctx context.Context, key entity.InventoryKey) error
}

// ReferenceStore looks up route and truck reference documents.
type ReferenceStore interface {
	FindRouteByStop(ctx context.Context, stopName string) (*entity.RouteReference, error)
	FindTruckByRoute(ctx context.Context, routeName string) (*entity.TruckReference, error)
}

// PlanStore persists delivery plans on one document-store endpoint.
type PlanStore interface {
	InsertPlan(ctx context.Context, plan entity.DeliveryPlan) error
	Endpoint() string
}

// Ledger records the financial side of a checkout.
type Ledger interface {
	RecordCheckout(ctx context.Context, checkout entity.CheckoutFact) (string, error)
}

// CursorStore keeps the last observed count per stream.
type CursorStore interface {
	// Load reports ok=false when no cursor was saved for the stream.
	Load(ctx context.Context, stream entity.Stream) (count int64, ok bool, err error)
	Save(ctx context.Context, stream entity.Stream, count int64) error
}
