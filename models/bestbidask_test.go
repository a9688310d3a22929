package models

import (
	"encoding/json"
	"testing"
)

func TestBestBidAskJSON(t *testing.T) {
	ev := BestBidAsk{
		Symbol:    "BTCUSDT",
		UpdateID:  400900217,
		BidPrice:  25.3519,
		BidQty:    31.21,
		AskPrice:  25.3652,
		AskQty:    40.66,
		EventTime: 1700000000123456,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out BestBidAsk
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != ev {
		t.Fatalf("round trip mismatch: %+v != %+v", out, ev)
	}
}

func TestBookTickerRespUnmarshal(t *testing.T) {
	raw := []byte(`{"u":400900217,"s":"BNBUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}`)
	var resp BookTickerResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Symbol != "BNBUSDT" || resp.UpdateID != 400900217 {
		t.Fatalf("unexpected fields: %+v", resp)
	}
	if resp.BidPrice != "25.35190000" || resp.AskQty != "40.66000000" {
		t.Fatalf("price fields kept as strings: %+v", resp)
	}
}

func TestCombinedStreamMessageKeepsRawData(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@bookTicker","data":{"u":1,"s":"BTCUSDT"}}`)
	var msg CombinedStreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Stream != "btcusdt@bookTicker" {
		t.Fatalf("stream = %q", msg.Stream)
	}
	if len(msg.Data) == 0 {
		t.Fatal("data not captured")
	}
}
