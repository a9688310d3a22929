package publisher

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "feedflow/config"
	"feedflow/internal/channel"
	"feedflow/models"
)

func minimalConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Publisher.UDSPath = ""
	cfg.Publisher.TCPPort = 0
	cfg.Publisher.HeartbeatIntervalMs = 0
	return cfg
}

func startPublisher(t *testing.T, cfg *appconfig.Config) (*Publisher, *channel.Channels) {
	t.Helper()

	ch := channel.NewChannels(8, 8, 1)
	p := NewPublisher(cfg, ch)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(p.Stop)
	return p, ch
}

func waitForClients(t *testing.T, p *Publisher, want int) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for p.ClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("client count = %d, want %d", p.ClientCount(), want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func readEnvelope(t *testing.T, conn net.Conn) (models.MsgType, []byte) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := models.ReadEnvelope(conn)
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	return msgType, payload
}

func TestPublisherTCPFallback(t *testing.T) {
	p, _ := startPublisher(t, minimalConfig())

	if p.Network() != "tcp" {
		t.Fatalf("network = %q, want tcp", p.Network())
	}
	if p.Port() == 0 {
		t.Fatal("expected a resolved TCP port after start")
	}

	conn, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, p, 1)

	ev := models.BestBidAsk{
		Symbol:    "BTCUSDT",
		UpdateID:  42,
		BidPrice:  50000.5,
		BidQty:    1.25,
		AskPrice:  50001.0,
		AskQty:    0.75,
		EventTime: 1700000000000000,
	}
	p.Publish(ev)

	msgType, payload := readEnvelope(t, conn)
	if msgType != models.MsgTypeBestBidAsk {
		t.Fatalf("msg type = %#x, want %#x", msgType, models.MsgTypeBestBidAsk)
	}
	got, err := models.DecodeBestBidAsk(payload)
	if err != nil {
		t.Fatalf("DecodeBestBidAsk failed: %v", err)
	}
	if got != ev {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, ev)
	}
}

func TestPublisherUnixSocket(t *testing.T) {
	cfg := minimalConfig()
	cfg.Publisher.UDSPath = filepath.Join(t.TempDir(), "feed.sock")

	p, _ := startPublisher(t, cfg)
	if p.Network() != "unix" {
		t.Fatalf("network = %q, want unix", p.Network())
	}
	if _, err := os.Lstat(cfg.Publisher.UDSPath); err != nil {
		t.Fatalf("socket file missing: %v", err)
	}

	conn, err := net.Dial("unix", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, p, 1)

	p.Publish(models.BestBidAsk{Symbol: "ethusdt", UpdateID: 7, BidPrice: 1, BidQty: 2, AskPrice: 3, AskQty: 4})

	msgType, payload := readEnvelope(t, conn)
	if msgType != models.MsgTypeBestBidAsk {
		t.Fatalf("msg type = %#x, want %#x", msgType, models.MsgTypeBestBidAsk)
	}
	got, err := models.DecodeBestBidAsk(payload)
	if err != nil {
		t.Fatalf("DecodeBestBidAsk failed: %v", err)
	}
	if got.Symbol != "ethusdt" {
		t.Errorf("symbol = %q, want ethusdt", got.Symbol)
	}

	p.Stop()
	if _, err := os.Lstat(cfg.Publisher.UDSPath); !os.IsNotExist(err) {
		t.Errorf("socket file still present after stop: %v", err)
	}
}

func TestRemoveStaleSocket(t *testing.T) {
	dir := t.TempDir()

	if err := removeStaleSocket(filepath.Join(dir, "missing.sock")); err != nil {
		t.Errorf("missing path should be fine, got %v", err)
	}

	regular := filepath.Join(dir, "not-a-socket")
	if err := os.WriteFile(regular, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := removeStaleSocket(regular); err == nil {
		t.Error("expected error for regular file at socket path")
	}
	if _, err := os.Lstat(regular); err != nil {
		t.Errorf("regular file should be untouched: %v", err)
	}
}

func TestPublisherMaxClients(t *testing.T) {
	cfg := minimalConfig()
	cfg.Publisher.MaxClients = 1

	p, _ := startPublisher(t, cfg)

	first, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()
	waitForClients(t, p, 1)

	second, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Error("expected rejected client to be closed")
	}
	if got := p.ClientCount(); got != 1 {
		t.Errorf("client count = %d, want 1", got)
	}
}

func TestPublisherHeartbeat(t *testing.T) {
	cfg := minimalConfig()
	cfg.Publisher.HeartbeatIntervalMs = 10

	p, _ := startPublisher(t, cfg)

	conn, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, p, 1)

	msgType, payload := readEnvelope(t, conn)
	if msgType != models.MsgTypeHeartbeat {
		t.Fatalf("msg type = %#x, want heartbeat", msgType)
	}
	if len(payload) != 0 {
		t.Errorf("heartbeat payload length = %d, want 0", len(payload))
	}
}

func TestPublisherBroadcastsToAllClients(t *testing.T) {
	p, _ := startPublisher(t, minimalConfig())

	first, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer first.Close()
	second, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer second.Close()
	waitForClients(t, p, 2)

	events := []models.BestBidAsk{
		{Symbol: "btcusdt", UpdateID: 1, BidPrice: 100, AskPrice: 101},
		{Symbol: "btcusdt", UpdateID: 2, BidPrice: 102, AskPrice: 103},
	}
	for _, ev := range events {
		p.Publish(ev)
	}

	for i, ev := range events {
		_, firstPayload := readEnvelope(t, first)
		_, secondPayload := readEnvelope(t, second)
		if !bytes.Equal(firstPayload, secondPayload) {
			t.Errorf("event %d: clients received different payload bytes", i)
		}
		got, err := models.DecodeBestBidAsk(firstPayload)
		if err != nil {
			t.Fatalf("DecodeBestBidAsk failed: %v", err)
		}
		if got.UpdateID != ev.UpdateID {
			t.Errorf("event %d: update id = %d, want %d", i, got.UpdateID, ev.UpdateID)
		}
	}
}

func TestPublisherRemovesDisconnectedClient(t *testing.T) {
	p, _ := startPublisher(t, minimalConfig())

	conn, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	waitForClients(t, p, 1)

	conn.Close()
	waitForClients(t, p, 0)
}

func TestPublisherDropsStuckClient(t *testing.T) {
	cfg := minimalConfig()
	cfg.Publisher.UDSPath = filepath.Join(t.TempDir(), "feed.sock")
	cfg.Publisher.WriteTimeoutMs = 50

	p, _ := startPublisher(t, cfg)

	conn, err := net.Dial("unix", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, p, 1)

	// The client never reads, so publishing fills the socket buffer until a
	// write blocks past its deadline and the client gets dropped.
	ev := models.BestBidAsk{Symbol: strings.Repeat("X", 200), UpdateID: 1}
	deadline := time.Now().Add(5 * time.Second)
	for p.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stuck client was never dropped")
		}
		p.Publish(ev)
	}

	// With the client gone later publishes return promptly.
	start := time.Now()
	p.Publish(ev)
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("publish after drop took %v", elapsed)
	}
}

func TestPublishWithoutClients(t *testing.T) {
	p, _ := startPublisher(t, minimalConfig())

	p.Publish(models.BestBidAsk{Symbol: "btcusdt"})
	if got := p.Stats().EventsPublished; got != 1 {
		t.Errorf("events published = %d, want 1", got)
	}
}

func TestPublisherConsumesNormChannel(t *testing.T) {
	p, ch := startPublisher(t, minimalConfig())

	conn, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, p, 1)

	ch.BBA.Norm <- models.BestBidAsk{Symbol: "solusdt", UpdateID: 9}

	msgType, payload := readEnvelope(t, conn)
	if msgType != models.MsgTypeBestBidAsk {
		t.Fatalf("msg type = %#x, want %#x", msgType, models.MsgTypeBestBidAsk)
	}
	got, err := models.DecodeBestBidAsk(payload)
	if err != nil {
		t.Fatalf("DecodeBestBidAsk failed: %v", err)
	}
	if got.Symbol != "solusdt" || got.UpdateID != 9 {
		t.Errorf("unexpected event: %+v", got)
	}

	if err := p.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}
