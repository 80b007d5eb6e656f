// Package surreal stores route and truck references and delivery plans in
// SurrealDB.
package surreal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/constants"
	"github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

const (
	routesTable     = "routes"
	trucksTable     = "trucks"
	deliveriesTable = "deliveries"
)

var (
	_ repository.ReferenceStore = (*Store)(nil)
	_ repository.PlanStore      = (*Store)(nil)
)

// Config names one SurrealDB endpoint and the database to use on it.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	// Idempotent keys plan records by order id so a re-detected order
	// overwrites its plan instead of adding a second one.
	Idempotent bool
}

// Store is one SurrealDB endpoint. The session is opened on first use and
// dropped after a connectivity failure so the next call dials again.
type Store struct {
	cfg Config

	mu sync.Mutex
	db *surrealdb.DB
}

func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Endpoint() string { return s.cfg.URL }

// Close releases the session, if any.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close(ctx)
	s.db = nil
	return err
}

// Ping dials the endpoint if needed and runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, "ping document store", func(ctx context.Context, db *surrealdb.DB) error {
		_, err := surrealdb.Query[any](ctx, db, "RETURN true", nil)
		return err
	})
}

func (s *Store) session(ctx context.Context) (*surrealdb.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}

	db, err := surrealdb.FromEndpointURLString(ctx, s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}
	if err := db.Use(ctx, s.cfg.Namespace, s.cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}
	if s.cfg.Username != "" {
		if _, err := db.SignIn(ctx, &surrealdb.Auth{Username: s.cfg.Username, Password: s.cfg.Password}); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to sign in to document store: %w", err)
		}
	}

	s.db = db
	slog.Info("Document store session established", "endpoint", s.cfg.URL)
	return db, nil
}

func (s *Store) drop(ctx context.Context, db *surrealdb.DB) {
	s.mu.Lock()
	if s.db == db {
		s.db = nil
	}
	s.mu.Unlock()
	if err := db.Close(ctx); err != nil {
		slog.Debug("Failed to close document store session", "endpoint", s.cfg.URL, "err", err)
	}
}

// do runs fn on the session and classifies the failure. Dial failures and
// broken sessions become apperr.ErrConnectivity.
func (s *Store) do(ctx context.Context, op string, fn func(ctx context.Context, db *surrealdb.DB) error) error {
	db, err := s.session(ctx)
	if err != nil {
		return apperr.Connectivity(op, err)
	}
	if err := fn(ctx, db); err != nil {
		if isConnectivityError(err) {
			s.drop(context.WithoutCancel(ctx), db)
			return apperr.Connectivity(op, err)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

func (s *Store) FindRouteByStop(ctx context.Context, stopName string) (*entity.RouteReference, error) {
	var route *entity.RouteReference
	err := s.do(ctx, "find route by stop", func(ctx context.Context, db *surrealdb.DB) error {
		res, err := surrealdb.Query[[]entity.RouteReference](ctx, db,
			"SELECT * FROM type::table($tb) WHERE stopName = $stop LIMIT 1",
			map[string]any{"tb": routesTable, "stop": stopName},
		)
		if err != nil {
			return err
		}
		route = first(res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, apperr.NotFound("find route by stop", fmt.Errorf("no route stop named %q", stopName))
	}
	return route, nil
}

func (s *Store) FindTruckByRoute(ctx context.Context, routeName string) (*entity.TruckReference, error) {
	var truck *entity.TruckReference
	err := s.do(ctx, "find truck by route", func(ctx context.Context, db *surrealdb.DB) error {
		res, err := surrealdb.Query[[]entity.TruckReference](ctx, db,
			"SELECT * FROM type::table($tb) WHERE assignedRoute = $route LIMIT 1",
			map[string]any{"tb": trucksTable, "route": routeName},
		)
		if err != nil {
			return err
		}
		truck = first(res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if truck == nil {
		return nil, apperr.NotFound("find truck by route", fmt.Errorf("no truck assigned to route %q", routeName))
	}
	return truck, nil
}

// InsertPlan writes the plan under its own id when the store is idempotent
// and under a fresh id otherwise.
func (s *Store) InsertPlan(ctx context.Context, plan entity.DeliveryPlan) error {
	id := plan.ID
	if !s.cfg.Idempotent || id == "" {
		id = uuid.NewString()
	}
	return s.do(ctx, "insert delivery plan", func(ctx context.Context, db *surrealdb.DB) error {
		_, err := surrealdb.Query[any](ctx, db,
			"UPSERT $id CONTENT $content",
			map[string]any{
				"id":      models.NewRecordID(deliveriesTable, id),
				"content": planContent(plan),
			},
		)
		return err
	})
}

// planContent is the stored shape of a plan. The amount travels as a
// string so no precision is lost on the way to the store.
func planContent(plan entity.DeliveryPlan) map[string]any {
	return map[string]any{
		"order_id":                      plan.OrderID,
		"truckid":                       plan.TruckID,
		"name":                          plan.TruckName,
		"assignedRoute":                 plan.AssignedRoute,
		"planned_position_order":        plan.PlannedPositionOrder,
		"planned_stop_name":             plan.PlannedStopName,
		"planned_consumer_person":       plan.PlannedConsumer,
		"product_name":                  plan.ProductName,
		"product_family":                plan.ProductFamily,
		"payment_from_consumer_in_spot": plan.PaymentInSpot,
		"payment_method":                plan.PaymentMethod,
		"payment_amount":                plan.PaymentAmount.String(),
		"completed":                     plan.Completed,
		"planned_at":                    models.CustomDateTime{Time: plan.PlannedAt},
	}
}

func first[T any](res *[]surrealdb.QueryResult[[]T]) *T {
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return nil
	}
	v := (*res)[0].Result[0]
	return &v
}

func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, constants.ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// The websocket layer reports closed connections as plain errors.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset")
}
