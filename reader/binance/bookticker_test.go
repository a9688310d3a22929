package binance

import (
	"testing"

	spot "github.com/adshao/go-binance/v2"

	"feedflow/internal/channel"
)

func TestNewBookTickerReader(t *testing.T) {
	cfg := minimalConfig("wss://example.com")
	if r := NewBookTickerReader(cfg, channel.NewChannels(1, 1, 1)); r == nil {
		t.Fatal("NewBookTickerReader returned nil")
	}
}

func TestBookTickerEvent(t *testing.T) {
	ev, err := bookTickerEvent(&spot.WsBookTickerEvent{
		UpdateID:     400900217,
		Symbol:       "BNBUSDT",
		BestBidPrice: "25.35190000",
		BestBidQty:   "31.21000000",
		BestAskPrice: "25.36520000",
		BestAskQty:   "40.66000000",
	})
	if err != nil {
		t.Fatalf("bookTickerEvent failed: %v", err)
	}
	if ev.Symbol != "BNBUSDT" || ev.UpdateID != 400900217 {
		t.Errorf("unexpected identity fields: %+v", ev)
	}
	if ev.BidPrice != 25.3519 || ev.BidQty != 31.21 || ev.AskPrice != 25.3652 || ev.AskQty != 40.66 {
		t.Errorf("unexpected prices: %+v", ev)
	}
	if ev.EventTime != 0 {
		t.Errorf("expected zero event time, got %d", ev.EventTime)
	}
}

func TestBookTickerEventRejectsBadNumbers(t *testing.T) {
	_, err := bookTickerEvent(&spot.WsBookTickerEvent{
		Symbol:       "BNBUSDT",
		BestBidPrice: "not-a-number",
		BestBidQty:   "1",
		BestAskPrice: "2",
		BestAskQty:   "3",
	})
	if err == nil {
		t.Fatal("expected error for malformed price")
	}
}
