package service

import (
	"context"
	"log/slog"

	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/messaging"
)

// OrderService turns a detected order into a delivery plan.
type OrderService struct {
	resolver  *ReferenceResolver
	writer    *DeliveryWriter
	publisher messaging.Publisher
	stats     *Stats
}

func NewOrderService(
	resolver *ReferenceResolver,
	writer *DeliveryWriter,
	publisher messaging.Publisher,
	stats *Stats,
) *OrderService {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &OrderService{
		resolver:  resolver,
		writer:    writer,
		publisher: publisher,
		stats:     stats,
	}
}

// PlanOrder resolves the stop and its truck, then writes the plan. The
// returned error carries the apperr kind of the step that failed.
func (s *OrderService) PlanOrder(ctx context.Context, order entity.OrderFact) (*entity.DeliveryPlan, error) {
	slog.Info("Service: Planning order", "order_id", order.ID, "stop", order.StopName)

	// 1. Where on which route is the stop
	route, err := s.resolver.ResolveRoute(ctx, order.StopName)
	if err != nil {
		return nil, err
	}

	// 2. Which truck drives that route
	truck, err := s.resolver.ResolveTruck(ctx, route.RouteName)
	if err != nil {
		return nil, err
	}

	// 3. Build and store the plan
	plan := entity.NewDeliveryPlan(order, route, truck)
	if err := s.writer.Write(ctx, plan); err != nil {
		return nil, err
	}
	s.stats.Inc(StatPlansWritten)

	// 4. Tell downstream consumers, best-effort
	event := entity.DeliveryPlanned{
		PlanID:        plan.ID,
		OrderID:       plan.OrderID,
		TruckID:       plan.TruckID,
		AssignedRoute: plan.AssignedRoute,
		PositionOrder: plan.PlannedPositionOrder,
		StopName:      plan.PlannedStopName,
		PlannedAt:     plan.PlannedAt,
	}
	if err := s.publisher.PublishEvent(ctx, messaging.TopicDeliveriesPlanned, plan.TruckID, event); err != nil {
		slog.Error("Failed to publish DeliveryPlanned", "plan_id", plan.ID, "err", err)
		s.stats.Inc(StatPublishFailures)
	}

	slog.Info("Delivery planned", "order_id", order.ID, "truck", plan.TruckName, "route", plan.AssignedRoute, "position", plan.PlannedPositionOrder)
	return &plan, nil
}
