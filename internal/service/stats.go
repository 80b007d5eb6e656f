package service

import (
	"github.com/rcrowley/go-metrics"
)

// Counter names. Skips are counted as "<stream>.skipped.<kind>" with kind
// taken from apperr.Kind.
const (
	StatCycles               = "cycles"
	StatPlansWritten         = "plans.written"
	StatPlansFailover        = "plans.failover"
	StatSlotsEmptied         = "slots.emptied"
	StatLedgerRecorded       = "ledger.recorded"
	StatLedgerFailures       = "ledger.failures"
	StatConnectivityFailures = "connectivity.failures"
	StatPublishFailures      = "events.publish_failures"
	StatCursorSaveFailures   = "cursor.save_failures"
)

// Stats counts what the relay did. Safe for concurrent use.
type Stats struct {
	registry metrics.Registry
}

// NewStats uses r, or a fresh registry when r is nil.
func NewStats(r metrics.Registry) *Stats {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &Stats{registry: r}
}

func (s *Stats) Registry() metrics.Registry { return s.registry }

func (s *Stats) Inc(name string) { s.Add(name, 1) }

func (s *Stats) Add(name string, n int64) {
	if n == 0 {
		return
	}
	metrics.GetOrRegisterCounter(name, s.registry).Inc(n)
}

// Count returns the counter value, 0 if it was never touched.
func (s *Stats) Count(name string) int64 {
	c, ok := s.registry.Get(name).(metrics.Counter)
	if !ok {
		return 0
	}
	return c.Count()
}
