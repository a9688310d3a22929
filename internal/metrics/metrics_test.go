package metrics

import (
	"testing"
	"time"

	"feedflow/logger"
)

func TestReportProcessorMetrics(t *testing.T) {
	log := logger.GetLogger()
	stats := ProcessorMetrics{
		FramesProcessed: 10,
		EventsDecoded:   8,
		FramesSkipped:   2,
		RawChannelLen:   1,
		RawChannelCap:   2,
		NormChannelLen:  1,
		NormChannelCap:  2,
	}
	ReportProcessorMetrics(log, stats)
}

func TestReportPublisher(t *testing.T) {
	log := logger.GetLogger()
	stats := PublisherStats{
		EventsPublished:  5,
		HeartbeatsSent:   1,
		BytesWritten:     300,
		ClientsConnected: 2,
		NormChannelLen:   1,
		NormChannelCap:   2,
	}
	ReportPublisher(log, "publisher", stats)
}

func TestWSTrackerWindow(t *testing.T) {
	tr := NewWSTracker()
	tr.RegisterOutgoing(2)
	tr.RegisterConnectionAttempt()
	tr.RegisterConnectionAttempt()

	msgs, attempts := tr.Stats()
	if msgs != 2 {
		t.Errorf("expected 2 messages in window, got %d", msgs)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}

	// Messages reset once the one second window has passed, attempts do not.
	tr.mu.Lock()
	tr.window = time.Now().Add(-2 * time.Second)
	tr.mu.Unlock()
	tr.RegisterOutgoing(1)

	msgs, attempts = tr.Stats()
	if msgs != 1 {
		t.Errorf("expected window reset to 1 message, got %d", msgs)
	}
	if attempts != 2 {
		t.Errorf("attempts changed unexpectedly: %d", attempts)
	}
}
