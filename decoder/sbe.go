package decoder

import (
	"encoding/binary"
	"math"

	"feedflow/models"
)

// Identity of the Binance SBE market data schema (stream_1_0.xml). Frames
// from other schemas are skipped, not rejected with an error.
const (
	SchemaID      = 1
	SchemaVersion = 0

	headerSize          = 8
	bestBidAskBlockSize = 50
)

// Template ids of the schema. Only BestBidAsk carries a decoder today, the
// rest are reserved stream kinds.
const (
	TemplateTrades        uint16 = 10000
	TemplateBestBidAsk    uint16 = 10001
	TemplateDepthSnapshot uint16 = 10002
	TemplateDepthDiff     uint16 = 10003
)

// sbeHeader is the fixed 8 byte message header, four uint16 little endian
// fields.
type sbeHeader struct {
	BlockLength uint16
	TemplateID  uint16
	SchemaID    uint16
	Version     uint16
}

type sbeDecodeFunc func(frame []byte, header sbeHeader) (models.BestBidAsk, bool)

// sbeDecoders dispatches template id to decoder. Populated once here, there
// is no runtime registration.
var sbeDecoders = map[uint16]sbeDecodeFunc{
	TemplateBestBidAsk: decodeBestBidAskFrame,
}

// DecodeSBE parses one binary frame. The second return value is false for
// anything that cannot be decoded: short frames, foreign schemas, unknown or
// reserved templates, truncated bodies or symbols. Malformed input never
// panics outward, the caller only counts and logs skips.
func DecodeSBE(frame []byte) (ev models.BestBidAsk, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ev, ok = models.BestBidAsk{}, false
		}
	}()

	if len(frame) < headerSize {
		return models.BestBidAsk{}, false
	}
	header := sbeHeader{
		BlockLength: binary.LittleEndian.Uint16(frame[0:2]),
		TemplateID:  binary.LittleEndian.Uint16(frame[2:4]),
		SchemaID:    binary.LittleEndian.Uint16(frame[4:6]),
		Version:     binary.LittleEndian.Uint16(frame[6:8]),
	}
	if header.SchemaID != SchemaID {
		return models.BestBidAsk{}, false
	}
	decode, known := sbeDecoders[header.TemplateID]
	if !known {
		return models.BestBidAsk{}, false
	}
	return decode(frame, header)
}

// decodeBestBidAskFrame reads the fixed 50 byte block following the header:
// eventTime int64, bookUpdateId int64, priceExponent int8, qtyExponent int8,
// then bid price, bid qty, ask price and ask qty mantissas as int64. The
// symbol follows as a varString8 at 8+blockLength, with blockLength taken
// from the header rather than the constant.
func decodeBestBidAskFrame(frame []byte, header sbeHeader) (models.BestBidAsk, bool) {
	if len(frame) < headerSize+bestBidAskBlockSize {
		return models.BestBidAsk{}, false
	}

	b := frame[headerSize:]
	eventTime := int64(binary.LittleEndian.Uint64(b[0:8]))
	updateID := int64(binary.LittleEndian.Uint64(b[8:16]))
	priceExp := int8(b[16])
	qtyExp := int8(b[17])
	bidPriceMantissa := int64(binary.LittleEndian.Uint64(b[18:26]))
	bidQtyMantissa := int64(binary.LittleEndian.Uint64(b[26:34]))
	askPriceMantissa := int64(binary.LittleEndian.Uint64(b[34:42]))
	askQtyMantissa := int64(binary.LittleEndian.Uint64(b[42:50]))

	symbol, ok := varString8(frame, headerSize+int(header.BlockLength))
	if !ok {
		return models.BestBidAsk{}, false
	}

	priceMult := math.Pow(10, float64(priceExp))
	qtyMult := math.Pow(10, float64(qtyExp))

	return models.BestBidAsk{
		Symbol:    symbol,
		UpdateID:  updateID,
		BidPrice:  float64(bidPriceMantissa) * priceMult,
		BidQty:    float64(bidQtyMantissa) * qtyMult,
		AskPrice:  float64(askPriceMantissa) * priceMult,
		AskQty:    float64(askQtyMantissa) * qtyMult,
		EventTime: eventTime,
	}, true
}

// varString8 reads a length prefixed string: one length byte then that many
// bytes of UTF-8. Offsets at or past the end of the frame and declared
// lengths that overrun it both fail.
func varString8(frame []byte, offset int) (string, bool) {
	if offset < 0 || offset >= len(frame) {
		return "", false
	}
	n := int(frame[offset])
	end := offset + 1 + n
	if end > len(frame) {
		return "", false
	}
	return string(frame[offset+1 : end]), true
}
