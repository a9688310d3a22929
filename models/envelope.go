package models

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// MsgType identifies the payload kind of one IPC envelope.
type MsgType byte

// Envelope type codes. Trade and depth codes are reserved for future streams
// and are never emitted today.
const (
	MsgTypeBestBidAsk    MsgType = 0x01
	MsgTypeTrade         MsgType = 0x02
	MsgTypeDepthDiff     MsgType = 0x03
	MsgTypeDepthSnapshot MsgType = 0x04
	MsgTypeHeartbeat     MsgType = 0xFF
)

// EnvelopeHeaderSize is msg_type (1 byte) plus payload_len (uint16 LE).
const EnvelopeHeaderSize = 3

// bestBidAskFixedSize covers the fixed portion of a BestBidAsk payload:
// event_time, update_id, four float64 fields and the symbol length byte.
const bestBidAskFixedSize = 8 + 8 + 4*8 + 1

// maxSymbolLen is the largest symbol that fits the one byte length prefix.
const maxSymbolLen = 255

// EncodeBestBidAsk serializes ev into a complete IPC envelope:
// msg_type, payload_len (uint16 LE), then the payload in little endian field
// order event_time, update_id, bid_price, bid_qty, ask_price, ask_qty,
// symbol_len, symbol. Symbols longer than 255 bytes are truncated.
func EncodeBestBidAsk(ev BestBidAsk) []byte {
	sym := ev.Symbol
	if len(sym) > maxSymbolLen {
		sym = sym[:maxSymbolLen]
	}
	payloadLen := bestBidAskFixedSize + len(sym)
	buf := make([]byte, EnvelopeHeaderSize+payloadLen)
	buf[0] = byte(MsgTypeBestBidAsk)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(payloadLen))

	b := buf[EnvelopeHeaderSize:]
	binary.LittleEndian.PutUint64(b[0:8], uint64(ev.EventTime))
	binary.LittleEndian.PutUint64(b[8:16], uint64(ev.UpdateID))
	binary.LittleEndian.PutUint64(b[16:24], math.Float64bits(ev.BidPrice))
	binary.LittleEndian.PutUint64(b[24:32], math.Float64bits(ev.BidQty))
	binary.LittleEndian.PutUint64(b[32:40], math.Float64bits(ev.AskPrice))
	binary.LittleEndian.PutUint64(b[40:48], math.Float64bits(ev.AskQty))
	b[48] = byte(len(sym))
	copy(b[49:], sym)
	return buf
}

// DecodeBestBidAsk parses the payload portion of a BestBidAsk envelope,
// the bytes after the 3 byte envelope header.
func DecodeBestBidAsk(payload []byte) (BestBidAsk, error) {
	if len(payload) < bestBidAskFixedSize {
		return BestBidAsk{}, fmt.Errorf("best bid ask payload too short: %d bytes", len(payload))
	}
	symLen := int(payload[48])
	if len(payload) < bestBidAskFixedSize+symLen {
		return BestBidAsk{}, fmt.Errorf("best bid ask payload truncated: symbol needs %d bytes, have %d", symLen, len(payload)-bestBidAskFixedSize)
	}
	return BestBidAsk{
		EventTime: int64(binary.LittleEndian.Uint64(payload[0:8])),
		UpdateID:  int64(binary.LittleEndian.Uint64(payload[8:16])),
		BidPrice:  math.Float64frombits(binary.LittleEndian.Uint64(payload[16:24])),
		BidQty:    math.Float64frombits(binary.LittleEndian.Uint64(payload[24:32])),
		AskPrice:  math.Float64frombits(binary.LittleEndian.Uint64(payload[32:40])),
		AskQty:    math.Float64frombits(binary.LittleEndian.Uint64(payload[40:48])),
		Symbol:    string(payload[49 : 49+symLen]),
	}, nil
}

// HeartbeatFrame returns the 3 byte heartbeat envelope with a zero length
// payload.
func HeartbeatFrame() []byte {
	return []byte{byte(MsgTypeHeartbeat), 0x00, 0x00}
}

// ReadEnvelope reads one envelope off r and returns its type and payload.
// Unknown message types are returned as-is so consumers can skip the payload
// and continue with the next envelope.
func ReadEnvelope(r io.Reader) (MsgType, []byte, error) {
	var header [EnvelopeHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	payloadLen := int(binary.LittleEndian.Uint16(header[1:3]))
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("envelope payload: %w", err)
	}
	return MsgType(header[0]), payload, nil
}
