package entity

// Stream names a change stream of the event log.
type Stream string

const (
	StreamOrders    Stream = "orders"
	StreamCheckouts Stream = "checkouts"
)

// Event represents a domain event published by the relay.
type Event interface {
	EventType() string
}

// Cursor is the last count observed on a stream. Sentinel sorts below any
// real count.
type Cursor struct {
	Stream Stream
	Count  int64
}

const SentinelCount int64 = -1

// NewCursor returns a cursor that has not observed the stream yet.
func NewCursor(s Stream) Cursor {
	return Cursor{Stream: s, Count: SentinelCount}
}

// IsSentinel reports whether the cursor has never been advanced.
func (c Cursor) IsSentinel() bool {
	return c.Count == SentinelCount
}

// Delta returns how many facts arrived since the cursor, or 0 if none.
func (c Cursor) Delta(observed int64) int64 {
	if observed <= c.Count {
		return 0
	}
	if c.IsSentinel() {
		return observed
	}
	return observed - c.Count
}
