package decoder

import (
	"encoding/json"
	"strconv"

	"feedflow/internal/streams"
	"feedflow/models"
)

type jsonDecodeFunc func(data json.RawMessage) (models.BestBidAsk, bool)

// jsonDecoders dispatches stream type to decoder, mirroring the template
// registry on the binary side. Populated once here, no runtime registration.
var jsonDecoders = map[string]jsonDecodeFunc{
	"bookTicker": decodeBookTicker,
}

// DecodeJSON parses one text message, either a combined stream wrapper
// {"stream":"btcusdt@bookTicker","data":{...}} or a bare object. Bare objects
// carry no stream name, so only wrapped messages dispatch; everything else,
// subscription acks included, is not decodable and the caller just counts it.
func DecodeJSON(raw []byte) (models.BestBidAsk, bool) {
	var msg models.CombinedStreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.BestBidAsk{}, false
	}

	data := msg.Data
	if len(data) == 0 {
		// no wrapper, the whole message is the payload
		data = raw
	}

	decode, known := jsonDecoders[streams.StreamType(msg.Stream)]
	if !known {
		return models.BestBidAsk{}, false
	}
	return decode(data)
}

func decodeBookTicker(data json.RawMessage) (models.BestBidAsk, bool) {
	var resp models.BookTickerResp
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.BestBidAsk{}, false
	}

	bidPrice, err1 := parseDecimal(resp.BidPrice)
	bidQty, err2 := parseDecimal(resp.BidQty)
	askPrice, err3 := parseDecimal(resp.AskPrice)
	askQty, err4 := parseDecimal(resp.AskQty)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return models.BestBidAsk{}, false
	}

	return models.BestBidAsk{
		Symbol:   resp.Symbol,
		UpdateID: resp.UpdateID,
		BidPrice: bidPrice,
		BidQty:   bidQty,
		AskPrice: askPrice,
		AskQty:   askQty,
	}, true
}

// parseDecimal converts Binance's string encoded numbers. A missing field
// comes through as the empty string and coerces to zero.
func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
