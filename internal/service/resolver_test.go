package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
)

func TestResolveRouteAndTruck(t *testing.T) {
	r := NewReferenceResolver(&fakeRefs{
		routes: map[string]entity.RouteReference{"StopA": {RouteName: "RouteX", StopName: "StopA", Order: 3}},
		trucks: map[string]entity.TruckReference{"RouteX": {TruckID: "T7", Name: "Truck7", AssignedRoute: "RouteX"}},
	}, nil, 0)

	route, err := r.ResolveRoute(context.Background(), "StopA")
	require.NoError(t, err)
	assert.Equal(t, 3, route.Order)

	truck, err := r.ResolveTruck(context.Background(), route.RouteName)
	require.NoError(t, err)
	assert.Equal(t, "Truck7", truck.Name)
}

func TestResolveMissIsNotFound(t *testing.T) {
	r := NewReferenceResolver(&fakeRefs{}, nil, 0)

	_, err := r.ResolveRoute(context.Background(), "Nowhere")
	assert.True(t, apperr.IsNotFound(err))

	_, err = r.ResolveTruck(context.Background(), "RouteZ")
	assert.True(t, apperr.IsNotFound(err))
}

func TestResolveStoreDown(t *testing.T) {
	r := NewReferenceResolver(&fakeRefs{err: connectivityErr("find route by stop")}, nil, 0)

	_, err := r.ResolveRoute(context.Background(), "StopA")
	require.Error(t, err)
	assert.True(t, apperr.IsConnectivity(err))
	assert.False(t, apperr.IsNotFound(err))
}

func TestResolveFailover(t *testing.T) {
	refs := func() *fakeRefs {
		return &fakeRefs{
			routes: map[string]entity.RouteReference{"StopA": {RouteName: "RouteX", StopName: "StopA", Order: 3}},
			trucks: map[string]entity.TruckReference{"RouteX": {TruckID: "T7", Name: "Truck7", AssignedRoute: "RouteX"}},
		}
	}

	t.Run("primary_down_uses_secondary", func(t *testing.T) {
		r := NewReferenceResolver(&fakeRefs{err: connectivityErr("find route by stop")}, refs(), 0)

		route, err := r.ResolveRoute(context.Background(), "StopA")
		require.NoError(t, err)
		assert.Equal(t, "RouteX", route.RouteName)

		truck, err := r.ResolveTruck(context.Background(), "RouteX")
		require.NoError(t, err)
		assert.Equal(t, "Truck7", truck.Name)
	})

	t.Run("miss_on_secondary_is_not_found", func(t *testing.T) {
		r := NewReferenceResolver(&fakeRefs{err: connectivityErr("find route by stop")}, &fakeRefs{}, 0)

		_, err := r.ResolveRoute(context.Background(), "StopA")
		assert.True(t, apperr.IsNotFound(err))
		assert.False(t, apperr.IsConnectivity(err))
	})

	t.Run("both_down", func(t *testing.T) {
		r := NewReferenceResolver(
			&fakeRefs{err: connectivityErr("find route by stop")},
			&fakeRefs{err: connectivityErr("find route by stop")},
			0,
		)

		_, err := r.ResolveRoute(context.Background(), "StopA")
		assert.True(t, apperr.IsConnectivity(err))
	})

	t.Run("miss_on_primary_is_final", func(t *testing.T) {
		r := NewReferenceResolver(&fakeRefs{}, refs(), 0)

		_, err := r.ResolveRoute(context.Background(), "StopA")
		assert.True(t, apperr.IsNotFound(err))
	})
}
