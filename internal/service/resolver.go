package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

// ReferenceResolver joins facts against route and truck reference data.
// Lookups are exact; a miss is apperr.ErrNotFound. When the primary store
// cannot be reached the lookup is repeated once on the secondary, so an
// order can still be planned while the primary is down.
type ReferenceResolver struct {
	primary   repository.ReferenceStore
	secondary repository.ReferenceStore
	timeout   time.Duration
}

// NewReferenceResolver accepts a nil secondary; lookups then use the
// primary only.
func NewReferenceResolver(primary, secondary repository.ReferenceStore, timeout time.Duration) *ReferenceResolver {
	return &ReferenceResolver{primary: primary, secondary: secondary, timeout: timeout}
}

func (r *ReferenceResolver) ResolveRoute(ctx context.Context, stopName string) (entity.RouteReference, error) {
	route, err := lookup(ctx, r, "route", func(ctx context.Context, store repository.ReferenceStore) (*entity.RouteReference, error) {
		return store.FindRouteByStop(ctx, stopName)
	})
	if err != nil {
		return entity.RouteReference{}, err
	}
	if route == nil {
		return entity.RouteReference{}, apperr.NotFound("resolve route", fmt.Errorf("no route stop named %q", stopName))
	}
	return *route, nil
}

func (r *ReferenceResolver) ResolveTruck(ctx context.Context, routeName string) (entity.TruckReference, error) {
	truck, err := lookup(ctx, r, "truck", func(ctx context.Context, store repository.ReferenceStore) (*entity.TruckReference, error) {
		return store.FindTruckByRoute(ctx, routeName)
	})
	if err != nil {
		return entity.TruckReference{}, err
	}
	if truck == nil {
		return entity.TruckReference{}, apperr.NotFound("resolve truck", fmt.Errorf("no truck assigned to route %q", routeName))
	}
	return *truck, nil
}

func lookup[R any](
	ctx context.Context,
	r *ReferenceResolver,
	what string,
	find func(ctx context.Context, store repository.ReferenceStore) (*R, error),
) (*R, error) {
	res, err := findOn(ctx, r.timeout, r.primary, find)
	if err == nil || r.secondary == nil || ctx.Err() != nil || !shouldFailover(err) {
		return res, err
	}

	slog.Warn("Primary document store unavailable, resolving on secondary", "lookup", what, "err", err)
	res, err2 := findOn(ctx, r.timeout, r.secondary, find)
	if err2 != nil && shouldFailover(err2) {
		return nil, errors.Join(err, err2)
	}
	return res, err2
}

func findOn[R any](
	ctx context.Context,
	d time.Duration,
	store repository.ReferenceStore,
	find func(ctx context.Context, store repository.ReferenceStore) (*R, error),
) (*R, error) {
	ctx, cancel := bounded(ctx, d)
	defer cancel()
	return find(ctx, store)
}
