package streams

import "strings"

// Pair joins a symbol and stream type into the <symbol>@<streamType> form used
// in stream URLs and SUBSCRIBE params. Symbols are lowercased, the stream type
// keeps its casing (bestBidAsk, bookTicker).
func Pair(symbol, stream string) string {
	return strings.ToLower(symbol) + "@" + stream
}

// Expand returns every symbol/stream combination in symbol major order: for
// symbols s1,s2 and streams t1,t2 the result is s1@t1, s1@t2, s2@t1, s2@t2.
func Expand(symbols, streams []string) []string {
	pairs := make([]string, 0, len(symbols)*len(streams))
	for _, sym := range symbols {
		for _, st := range streams {
			pairs = append(pairs, Pair(sym, st))
		}
	}
	return pairs
}

// StreamType extracts the type portion of a combined stream name, the part
// after the first "@". Names without "@" are returned whole.
func StreamType(name string) string {
	if i := strings.Index(name, "@"); i >= 0 {
		return name[i+1:]
	}
	return name
}
