// Command feedtap connects to a running feedflow publisher and prints every
// best bid/ask update it receives. It is the quickest way to confirm the
// pipeline is alive end to end.
//
// Usage:
//
//	feedtap                          # unix socket at the default path
//	feedtap -socket /tmp/other.sock  # unix socket at a custom path
//	feedtap -tcp 127.0.0.1:9878      # TCP fallback listener
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"feedflow/models"
)

func main() {
	socketPath := flag.String("socket", "/tmp/binance_feed.sock", "Publisher unix socket path")
	tcpAddr := flag.String("tcp", "", "Publisher TCP address (host:port), overrides -socket")
	showHeartbeats := flag.Bool("heartbeats", false, "Print a line for every heartbeat")
	flag.Parse()

	network, addr := "unix", *socketPath
	if *tcpAddr != "" {
		network, addr = "tcp", *tcpAddr
	}

	conn, err := net.Dial(network, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "feedtap: connect %s %s: %v\n", network, addr, err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		// Closing the connection unblocks the read loop.
		conn.Close()
	}()

	fmt.Printf("connected to %s %s\n\n", network, addr)
	printHeader()

	var events, heartbeats, unknown int
	for {
		msgType, payload, err := models.ReadEnvelope(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				fmt.Fprintf(os.Stderr, "feedtap: read: %v\n", err)
			}
			break
		}

		switch msgType {
		case models.MsgTypeHeartbeat:
			heartbeats++
			if *showHeartbeats {
				fmt.Println("  <heartbeat>")
			}
		case models.MsgTypeBestBidAsk:
			ev, err := models.DecodeBestBidAsk(payload)
			if err != nil {
				fmt.Fprintf(os.Stderr, "feedtap: decode: %v\n", err)
				continue
			}
			events++
			printEvent(events, ev)
		default:
			// Unknown types are length prefixed, so skipping is safe.
			unknown++
		}
	}

	fmt.Printf("\n%d events, %d heartbeats", events, heartbeats)
	if unknown > 0 {
		fmt.Printf(", %d unknown frames", unknown)
	}
	fmt.Println()
}

func printHeader() {
	fmt.Printf("  %-5s  %-10s  %14s  %12s  %14s  %12s  %10s\n",
		"#", "Symbol", "Bid", "BidQty", "Ask", "AskQty", "UpdateID")
	fmt.Printf("  %s  %s  %s  %s  %s  %s  %s\n",
		strings.Repeat("-", 5), strings.Repeat("-", 10), strings.Repeat("-", 14),
		strings.Repeat("-", 12), strings.Repeat("-", 14), strings.Repeat("-", 12),
		strings.Repeat("-", 10))
}

func printEvent(n int, ev models.BestBidAsk) {
	fmt.Printf("  %-5d  %-10s  %14.4f  %12.8f  %14.4f  %12.8f  %10d\n",
		n, ev.Symbol, ev.BidPrice, ev.BidQty, ev.AskPrice, ev.AskQty, ev.UpdateID)
}
