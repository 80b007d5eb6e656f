package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/vinicioflores/GreenCarrot/internal/apperr"
	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

type FetchMode string

const (
	// FetchLatest processes only the newest fact per cycle; the rest of a
	// burst is counted as missed.
	FetchLatest FetchMode = "latest"
	// FetchBacklog processes up to BatchLimit new facts per cycle, oldest
	// first.
	FetchBacklog FetchMode = "backlog"
)

type PollerConfig struct {
	Interval    time.Duration
	CallTimeout time.Duration
	BackoffMax  time.Duration
	FetchMode   FetchMode
	BatchLimit  int
	// ReplayOnStart processes the newest order when the orders stream is
	// observed for the first time instead of only taking its count as the
	// baseline. Checkouts are never replayed: the decrement is not
	// idempotent.
	ReplayOnStart bool
	// AdvanceOnFailure moves the order cursor even when a plan could not be
	// written. When false, the cursor stops before the first order that
	// failed transiently. Checkouts always advance.
	AdvanceOnFailure bool
	// Concurrent polls the two streams as two independent tasks.
	Concurrent bool
}

// stream is the detection state of one fact stream.
type stream[T any] struct {
	name   entity.Stream
	cursor atomic.Int64

	count  func(ctx context.Context) (int64, error)
	latest func(ctx context.Context) (*T, error)
	recent func(ctx context.Context, n int) ([]T, error)
	handle func(ctx context.Context, fact T) error
	id     func(fact T) string
	// guarded streams may hold their cursor when handling failed.
	guarded bool
	// replay streams process their newest fact on first observation.
	replay bool
}

// Poller detects new facts by comparing counts against per-stream cursors
// and hands them to the order and inventory services.
type Poller struct {
	cfg     PollerConfig
	cursors repository.CursorStore
	stats   *Stats

	orders    *stream[entity.OrderFact]
	checkouts *stream[entity.CheckoutFact]
}

func NewPoller(
	cfg PollerConfig,
	log repository.EventLog,
	orders *OrderService,
	inventory *InventoryReconciler,
	cursors repository.CursorStore,
	stats *Stats,
) *Poller {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 1
	}
	if cfg.FetchMode == "" {
		cfg.FetchMode = FetchBacklog
	}
	if cursors == nil {
		cursors = NewMemoryCursorStore()
	}

	p := &Poller{cfg: cfg, cursors: cursors, stats: stats}

	p.orders = &stream[entity.OrderFact]{
		name:   entity.StreamOrders,
		count:  log.CountOrders,
		latest: log.LatestOrder,
		recent: log.RecentOrders,
		handle: func(ctx context.Context, o entity.OrderFact) error {
			_, err := orders.PlanOrder(ctx, o)
			return err
		},
		id:      func(o entity.OrderFact) string { return o.ID.String() },
		guarded: true,
		replay:  true,
	}
	p.checkouts = &stream[entity.CheckoutFact]{
		name:   entity.StreamCheckouts,
		count:  log.CountConfirmedCheckouts,
		latest: log.LatestConfirmedCheckout,
		recent: log.RecentConfirmedCheckouts,
		handle: func(ctx context.Context, c entity.CheckoutFact) error {
			_, err := inventory.Reconcile(ctx, c)
			return err
		},
		id: func(c entity.CheckoutFact) string { return c.ID.String() },
	}
	p.orders.cursor.Store(entity.SentinelCount)
	p.checkouts.cursor.Store(entity.SentinelCount)
	return p
}

// Cursor returns the last observed count of a stream.
func (p *Poller) Cursor(s entity.Stream) int64 {
	if s == entity.StreamCheckouts {
		return p.checkouts.cursor.Load()
	}
	return p.orders.cursor.Load()
}

// Run polls until ctx is cancelled. Downstream failures never end it.
func (p *Poller) Run(ctx context.Context) error {
	p.Restore(ctx)

	slog.Info("Poller started",
		"interval", p.cfg.Interval, "fetch_mode", p.cfg.FetchMode, "concurrent", p.cfg.Concurrent,
		"orders_cursor", p.orders.cursor.Load(), "checkouts_cursor", p.checkouts.cursor.Load())

	if !p.cfg.Concurrent {
		p.loop(ctx, "cycle", p.Cycle)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.loop(gctx, string(entity.StreamOrders), func(ctx context.Context) error { return poll(ctx, p, p.orders) })
		return nil
	})
	g.Go(func() error {
		p.loop(gctx, string(entity.StreamCheckouts), func(ctx context.Context) error { return poll(ctx, p, p.checkouts) })
		return nil
	})
	return g.Wait()
}

// Restore loads persisted cursors. A store that cannot be read leaves the
// stream at the sentinel.
func (p *Poller) Restore(ctx context.Context) {
	restore(ctx, p, p.orders)
	restore(ctx, p, p.checkouts)
}

func restore[T any](ctx context.Context, p *Poller, s *stream[T]) {
	ctx, cancel := bounded(ctx, p.cfg.CallTimeout)
	defer cancel()

	n, ok, err := p.cursors.Load(ctx, s.name)
	if err != nil {
		slog.Warn("Failed to load cursor, starting from sentinel", "stream", s.name, "err", err)
		return
	}
	if ok {
		s.cursor.Store(n)
	}
}

// Cycle polls orders, then checkouts. A failure on one stream does not
// stop the other.
func (p *Poller) Cycle(ctx context.Context) error {
	p.stats.Inc(StatCycles)
	errOrders := poll(ctx, p, p.orders)
	errCheckouts := poll(ctx, p, p.checkouts)
	return errors.Join(errOrders, errCheckouts)
}

func (p *Poller) loop(ctx context.Context, task string, step func(ctx context.Context) error) {
	bo := p.newBackOff()
	for {
		wait := p.cfg.Interval
		if err := step(ctx); err != nil && ctx.Err() == nil {
			if isTransient(err) {
				p.stats.Inc(StatConnectivityFailures)
				wait = bo.NextBackOff()
				slog.Warn("Poll failed, backing off", "task", task, "retry_in", wait, "err", err)
			} else {
				bo.Reset()
				slog.Error("Poll failed", "task", task, "err", err)
			}
		} else {
			bo.Reset()
		}

		if err := sleepOrDone(ctx, wait); err != nil {
			slog.Info("Poller stopped", "task", task)
			return
		}
	}
}

func (p *Poller) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.Interval
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = 100 * time.Millisecond
	}
	bo.MaxInterval = max(p.cfg.BackoffMax, bo.InitialInterval)
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bo.Reset()
	return bo
}

func isTransient(err error) bool {
	return apperr.IsConnectivity(err) || errors.Is(err, context.DeadlineExceeded)
}

// poll runs one detection step on s. It returns an error only when the
// stream could not be read; failures of individual facts are logged,
// counted and skipped.
func poll[T any](ctx context.Context, p *Poller, s *stream[T]) error {
	observed, err := call(ctx, p.cfg.CallTimeout, s.count)
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", s.name, err)
	}

	last := s.cursor.Load()
	first := last == entity.SentinelCount

	switch {
	case first && (!p.cfg.ReplayOnStart || !s.replay || observed == 0):
		advance(ctx, p, s, observed)
		slog.Info("Cursor baseline taken", "stream", s.name, "count", observed)
		return nil

	case observed == last:
		return nil

	case observed < last:
		// The partition shrank; follow it down so new facts are seen again.
		slog.Warn("Stream count went backwards, rebasing cursor", "stream", s.name, "cursor", last, "count", observed)
		advance(ctx, p, s, observed)
		return nil
	}

	delta := entity.Cursor{Stream: s.name, Count: last}.Delta(observed)
	n := int(min(delta, int64(p.cfg.BatchLimit)))
	if first {
		// Only the newest fact is replayed; older ones predate the relay.
		delta, n = 1, 1
	} else if p.cfg.FetchMode == FetchLatest {
		n = 1
	}

	facts, err := fetch(ctx, p, s, n)
	if err != nil {
		return fmt.Errorf("failed to fetch new %s: %w", s.name, err)
	}

	p.stats.Add(string(s.name)+".detected", delta)
	if missed := delta - int64(len(facts)); missed > 0 {
		p.stats.Add(string(s.name)+".missed", missed)
		slog.Warn("Facts skipped in burst", "stream", s.name, "missed", missed, "mode", p.cfg.FetchMode)
	}

	for i, fact := range facts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.handle(ctx, fact)
		if err == nil {
			p.stats.Inc(string(s.name) + ".processed")
			continue
		}

		if s.guarded && !p.cfg.AdvanceOnFailure && isTransient(err) {
			// facts[i] sits at position observed-len(facts)+i+1; stop just
			// before it so the next cycle fetches it and everything after.
			held := observed - int64(len(facts)-i)
			p.stats.Inc(string(s.name) + ".held")
			slog.Warn("Holding cursor for retry", "stream", s.name, "id", s.id(fact), "cursor", held, "count", observed, "err", err)
			advance(ctx, p, s, held)
			return nil
		}

		kind := apperr.Kind(err)
		p.stats.Inc(string(s.name) + ".skipped." + kind)
		slog.Warn("Skipping fact", "stream", s.name, "id", s.id(fact), "kind", kind, "err", err)
	}

	advance(ctx, p, s, observed)
	return nil
}

func fetch[T any](ctx context.Context, p *Poller, s *stream[T], n int) ([]T, error) {
	if n > 1 {
		return callN(ctx, p.cfg.CallTimeout, n, s.recent)
	}
	fact, err := call(ctx, p.cfg.CallTimeout, s.latest)
	if err != nil || fact == nil {
		return nil, err
	}
	return []T{*fact}, nil
}

// advance moves the cursor and persists it. A failed save only costs a
// re-detection after restart.
func advance[T any](ctx context.Context, p *Poller, s *stream[T], count int64) {
	s.cursor.Store(count)

	ctx, cancel := bounded(ctx, p.cfg.CallTimeout)
	defer cancel()
	if err := p.cursors.Save(ctx, s.name, count); err != nil {
		p.stats.Inc(StatCursorSaveFailures)
		slog.Warn("Failed to persist cursor", "stream", s.name, "count", count, "err", err)
	}
}

func call[R any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (R, error)) (R, error) {
	ctx, cancel := bounded(ctx, d)
	defer cancel()
	return fn(ctx)
}

func callN[R any](ctx context.Context, d time.Duration, n int, fn func(ctx context.Context, n int) (R, error)) (R, error) {
	ctx, cancel := bounded(ctx, d)
	defer cancel()
	return fn(ctx, n)
}
