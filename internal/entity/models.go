package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Facts (event log, immutable) ---

// OrderFact is an order appended to the polling partition of the event log.
type OrderFact struct {
	ID            uuid.UUID       `json:"id"`
	PartitionKey  uuid.UUID       `json:"partition_for_polling"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	ProductType   string          `json:"product_type"`
	TruckID       string          `json:"truck"`
	RouteName     string          `json:"route"`
	StopName      string          `json:"stop_name"`
	Consumer      string          `json:"consumer"`
	PaymentMethod string          `json:"payment_method"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`
	PaymentInSpot bool            `json:"payment_in_spot"`
	OrderTime     time.Time       `json:"ordertime"`
}

// CheckoutFact records that a product left a truck.
type CheckoutFact struct {
	ID          uuid.UUID `json:"id"`
	ProductID   string    `json:"product_id"`
	TruckID     string    `json:"truck"`
	ProductType string    `json:"product_type"`
	ProductName string    `json:"product_name"`
	Confirmed   bool      `json:"confirmed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InventoryKey identifies an existence counter and its truck slot.
type InventoryKey struct {
	ProductID   string `json:"product_id"`
	TruckID     string `json:"truck"`
	ProductType string `json:"product_type"`
	ProductName string `json:"product_name"`
}

// Key returns the inventory key the checkout decrements.
func (c CheckoutFact) Key() InventoryKey {
	return InventoryKey{
		ProductID:   c.ProductID,
		TruckID:     c.TruckID,
		ProductType: c.ProductType,
		ProductName: c.ProductName,
	}
}

// --- References (document store, read-only) ---

// RouteReference places a stop within a route.
type RouteReference struct {
	City      string `json:"city"`
	RouteName string `json:"routeName"`
	StopName  string `json:"stopName"`
	Role      string `json:"role"`
	Order     int    `json:"order"`
}

// TruckReference is the truck currently assigned to a route.
type TruckReference struct {
	TruckID                string `json:"truckid"`
	Name                   string `json:"name"`
	AssignedRoute          string `json:"assignedRoute"`
	LastKnownOrderPosition int    `json:"lastKnownOrderPositionInRoute"`
}

// --- Plans (document store, written once) ---

// DeliveryPlan tells a truck where to hand a product to a consumer.
type DeliveryPlan struct {
	ID                   string          `json:"id"`
	OrderID              string          `json:"order_id"`
	TruckID              string          `json:"truckid"`
	TruckName            string          `json:"name"`
	AssignedRoute        string          `json:"assignedRoute"`
	PlannedPositionOrder int             `json:"planned_position_order"`
	PlannedStopName      string          `json:"planned_stop_name"`
	PlannedConsumer      string          `json:"planned_consumer_person"`
	ProductName          string          `json:"product_name"`
	ProductFamily        string          `json:"product_family"`
	PaymentInSpot        bool            `json:"payment_from_consumer_in_spot"`
	PaymentMethod        string          `json:"payment_method"`
	PaymentAmount        decimal.Decimal `json:"payment_amount"`
	Completed            bool            `json:"completed"`
	PlannedAt            time.Time       `json:"planned_at"`
}

// NewDeliveryPlan joins an order with its route stop and truck. The plan id
// is the order fact id, so building twice from the same inputs yields the
// same plan.
func NewDeliveryPlan(order OrderFact, route RouteReference, truck TruckReference) DeliveryPlan {
	return DeliveryPlan{
		ID:                   order.ID.String(),
		OrderID:              order.ID.String(),
		TruckID:              truck.TruckID,
		TruckName:            truck.Name,
		AssignedRoute:        truck.AssignedRoute,
		PlannedPositionOrder: route.Order,
		PlannedStopName:      route.StopName,
		PlannedConsumer:      order.Consumer,
		ProductName:          order.ProductName,
		ProductFamily:        order.ProductType,
		PaymentInSpot:        order.PaymentInSpot,
		PaymentMethod:        order.PaymentMethod,
		PaymentAmount:        order.PaymentAmount,
		Completed:            false,
		PlannedAt:            order.OrderTime,
	}
}

// --- Events ---

// DeliveryPlanned is emitted after a plan reached the document store.
type DeliveryPlanned struct {
	PlanID        string    `json:"plan_id"`
	OrderID       string    `json:"order_id"`
	TruckID       string    `json:"truck_id"`
	AssignedRoute string    `json:"assigned_route"`
	PositionOrder int       `json:"position_order"`
	StopName      string    `json:"stop_name"`
	PlannedAt     time.Time `json:"planned_at"`
}

func (e DeliveryPlanned) EventType() string { return "DeliveryPlanned" }

// TruckSlotEmptied is emitted when an existence counter drops to zero or below.
type TruckSlotEmptied struct {
	Key        InventoryKey `json:"key"`
	Remaining  int64        `json:"remaining"`
	CheckoutID string       `json:"checkout_id"`
	EmptiedAt  time.Time    `json:"emptied_at"`
}

func (e TruckSlotEmptied) EventType() string { return "TruckSlotEmptied" }
