package logger

import (
	"os"
	"sync/atomic"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestWithEnv(t *testing.T) {
	os.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestRecordChannelAccumulates(t *testing.T) {
	snapshot := func() (int64, int64) {
		v, ok := channels.Load("test_channel")
		if !ok {
			return 0, 0
		}
		cs := v.(*channelStat)
		return atomic.LoadInt64(&cs.messages), atomic.LoadInt64(&cs.bytes)
	}

	msgsBefore, bytesBefore := snapshot()
	RecordChannelMessage("test_channel", 7)
	RecordChannelMessage("test_channel", 3)
	msgsAfter, bytesAfter := snapshot()

	if msgsAfter-msgsBefore != 2 {
		t.Errorf("expected 2 new messages, got %d", msgsAfter-msgsBefore)
	}
	if bytesAfter-bytesBefore != 10 {
		t.Errorf("expected 10 new bytes, got %d", bytesAfter-bytesBefore)
	}
}

func TestStageCounters(t *testing.T) {
	decodedBefore := atomic.LoadInt64(&eventsDecoded)
	retriesBefore := atomic.LoadInt64(&retries)

	IncrementEventDecoded()
	IncrementEventDecoded()
	IncrementRetryCount()

	if got := atomic.LoadInt64(&eventsDecoded) - decodedBefore; got != 2 {
		t.Errorf("expected 2 decoded events, got %d", got)
	}
	if got := atomic.LoadInt64(&retries) - retriesBefore; got != 1 {
		t.Errorf("expected 1 retry, got %d", got)
	}
}
