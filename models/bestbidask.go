package models

import (
	"encoding/json"
	"time"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// FrameKind distinguishes binary SBE frames from text frames on the upstream
// websocket.
type FrameKind int

const (
	// FrameBinary marks an SBE encoded application frame.
	FrameBinary FrameKind = iota
	// FrameText marks a JSON text frame, either market data or a control ack.
	FrameText
)

// RawFrame wraps a single inbound websocket frame before decoding.
type RawFrame struct {
	Kind     FrameKind
	Data     []byte
	Received time.Time
}

// BestBidAsk represents the top of book for one symbol. Crossed books
// (bid >= ask) are passed through untouched, plausibility is the consumer's
// concern.
type BestBidAsk struct {
	Symbol    string  `json:"symbol"`
	UpdateID  int64   `json:"update_id"`
	BidPrice  float64 `json:"bid_price"`
	BidQty    float64 `json:"bid_qty"`
	AskPrice  float64 `json:"ask_price"`
	AskQty    float64 `json:"ask_qty"`
	EventTime int64   `json:"event_time"` // microseconds since epoch, zero for JSON sourced events
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BINANCE ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// CombinedStreamMessage represents the wrapper used on /stream?streams=
// connections. Data is kept raw so the per-stream decoder picks the shape.
type CombinedStreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTickerResp mirrors Binance's bookTicker websocket event structure.
// Prices and quantities arrive as strings.
type BookTickerResp struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// SubscribeRequest is the control message sent after connecting to activate
// the configured streams.
type SubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

// ControlAck represents the response to a SUBSCRIBE control message.
type ControlAck struct {
	Result json.RawMessage `json:"result"`
	ID     int             `json:"id"`
}
