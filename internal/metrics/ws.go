package metrics

import (
	"sync"
	"time"

	"feedflow/logger"
)

// WSTracker tracks the number of outgoing websocket messages and connection
// attempts for the upstream market data session.
type WSTracker struct {
	mu       sync.Mutex
	window   time.Time
	msgs     int
	attempts int
}

// NewWSTracker creates a new tracker.
func NewWSTracker() *WSTracker {
	return &WSTracker{window: time.Now()}
}

// RegisterOutgoing records n outgoing client messages (subscribes/pongs).
func (t *WSTracker) RegisterOutgoing(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if now.Sub(t.window) >= time.Second {
		t.msgs = 0
		t.window = now
	}
	t.msgs += n
}

// RegisterConnectionAttempt records a websocket handshake attempt. Each
// attempt consumes connection rate limit weight on the exchange side.
func (t *WSTracker) RegisterConnectionAttempt() {
	t.mu.Lock()
	t.attempts++
	t.mu.Unlock()
}

// Stats returns the current message count within the one second window and the
// total connection attempts.
func (t *WSTracker) Stats() (msgs int, attempts int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs = t.msgs
	attempts = t.attempts
	return
}

// ReportWSWeight emits websocket session weight metrics.
func ReportWSWeight(log *logger.Log, t *WSTracker) {
	if t == nil {
		return
	}
	msgs, attempts := t.Stats()
	EmitMetric(log, "sbe_reader", "ws_outgoing_messages", int64(msgs), "gauge", logger.Fields{})
	EmitMetric(log, "sbe_reader", "ws_connection_attempts", int64(attempts), "counter", logger.Fields{})
}
