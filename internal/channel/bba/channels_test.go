package bba

import (
	"context"
	"testing"
	"time"

	"feedflow/models"
)

func TestChannelsStats(t *testing.T) {
	ch := NewChannels(2, 2)
	ch.IncrementRawSent()
	ch.IncrementNormSent()
	ch.IncrementRawDropped()
	ch.IncrementNormDropped()
	stats := ch.GetStats()
	if stats.RawSent != 1 || stats.NormSent != 1 || stats.RawDropped != 1 || stats.NormDropped != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestChannelsStartAndClose(t *testing.T) {
	ch := NewChannels(1, 1)
	ch.Close()
}

func TestSendRawDropsWhenFull(t *testing.T) {
	ch := NewChannels(1, 1)
	ctx := context.Background()

	frame := models.RawFrame{Kind: models.FrameBinary, Data: []byte{0x01}, Received: time.Now()}
	if !ch.SendRaw(ctx, frame) {
		t.Fatal("first send should fit the buffer")
	}
	if ch.SendRaw(ctx, frame) {
		t.Fatal("second send should drop, buffer is full")
	}

	stats := ch.GetStats()
	if stats.RawSent != 1 || stats.RawDropped != 1 {
		t.Fatalf("unexpected stats after drop: %+v", stats)
	}
}

func TestSendNormHonoursCancelledContext(t *testing.T) {
	ch := NewChannels(1, 1)
	ch.Norm <- models.BestBidAsk{} // fill the buffer so the default case is not taken first

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// full buffer plus cancelled context: either outcome must report failure
	if ch.SendNorm(ctx, models.BestBidAsk{Symbol: "BTCUSDT"}) {
		t.Fatal("send against full buffer and cancelled context should fail")
	}
}
