package processor

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	appconfig "feedflow/config"
	"feedflow/decoder"
	"feedflow/internal/channel"
	"feedflow/logger"
	"feedflow/models"
)

// buildFrame returns a valid best bid/ask frame with zero exponents so the
// decoded values equal the mantissas.
func buildFrame(updateID int64, symbol string) []byte {
	frame := make([]byte, 8+50+1+len(symbol))
	binary.LittleEndian.PutUint16(frame[0:2], 50)
	binary.LittleEndian.PutUint16(frame[2:4], decoder.TemplateBestBidAsk)
	binary.LittleEndian.PutUint16(frame[4:6], decoder.SchemaID)
	binary.LittleEndian.PutUint16(frame[6:8], decoder.SchemaVersion)

	body := frame[8:]
	binary.LittleEndian.PutUint64(body[0:8], uint64(1700000000000000))
	binary.LittleEndian.PutUint64(body[8:16], uint64(updateID))
	body[16] = 0
	body[17] = 0
	binary.LittleEndian.PutUint64(body[18:26], 100)
	binary.LittleEndian.PutUint64(body[26:34], 5)
	binary.LittleEndian.PutUint64(body[34:42], 101)
	binary.LittleEndian.PutUint64(body[42:50], 6)

	body[50] = byte(len(symbol))
	copy(body[51:], symbol)
	return frame
}

func newTestProcessor(cfg *appconfig.Config, ch *channel.Channels) *BBAProcessor {
	return &BBAProcessor{
		config:   cfg,
		channels: ch,
		ctx:      context.Background(),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func receiveNorm(t *testing.T, ch *channel.Channels) models.BestBidAsk {
	t.Helper()

	select {
	case ev := <-ch.BBA.Norm:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return models.BestBidAsk{}
	}
}

func TestNewBBAProcessor(t *testing.T) {
	cfg := appconfig.Default()
	if p := NewBBAProcessor(cfg, channel.NewChannels(1, 1, 1)); p == nil {
		t.Fatal("NewBBAProcessor returned nil")
	}
}

func TestHandleFrameDecodesSBE(t *testing.T) {
	cfg := appconfig.Default()
	ch := channel.NewChannels(4, 4, 1)
	p := newTestProcessor(cfg, ch)

	p.handleFrame(models.RawFrame{Kind: models.FrameBinary, Data: buildFrame(7, "BTCUSDT")})

	ev := receiveNorm(t, ch)
	if ev.Symbol != "BTCUSDT" || ev.UpdateID != 7 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.BidPrice != 100 || ev.BidQty != 5 || ev.AskPrice != 101 || ev.AskQty != 6 {
		t.Errorf("unexpected prices: %+v", ev)
	}
	if got := p.eventsDecoded.Load(); got != 1 {
		t.Errorf("events decoded = %d, want 1", got)
	}
}

func TestHandleFrameSkipsControlFrames(t *testing.T) {
	cfg := appconfig.Default()
	ch := channel.NewChannels(4, 4, 1)
	p := newTestProcessor(cfg, ch)

	p.handleFrame(models.RawFrame{Kind: models.FrameText, Data: []byte(`{"result":null,"id":1}`)})
	p.handleFrame(models.RawFrame{Kind: models.FrameBinary, Data: []byte{0x01, 0x02}})

	if got := p.framesSkipped.Load(); got != 2 {
		t.Errorf("frames skipped = %d, want 2", got)
	}
	if len(ch.BBA.Norm) != 0 {
		t.Errorf("norm channel should be empty, has %d", len(ch.BBA.Norm))
	}
}

func TestHandleFrameJSONProtocol(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Binance.Protocol = appconfig.ProtocolJSON
	ch := channel.NewChannels(4, 4, 1)
	p := newTestProcessor(cfg, ch)

	msg := `{"stream":"btcusdt@bookTicker","data":{"u":400900217,"s":"BTCUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}}`
	p.handleFrame(models.RawFrame{Kind: models.FrameText, Data: []byte(msg)})

	ev := receiveNorm(t, ch)
	if ev.Symbol != "BTCUSDT" || ev.UpdateID != 400900217 {
		t.Errorf("unexpected event: %+v", ev)
	}

	// binary frames are not expected on a json connection
	p.handleFrame(models.RawFrame{Kind: models.FrameBinary, Data: buildFrame(1, "BTCUSDT")})
	if got := p.framesSkipped.Load(); got != 1 {
		t.Errorf("frames skipped = %d, want 1", got)
	}
}

func TestHandleFrameDropsWhenNormFull(t *testing.T) {
	cfg := appconfig.Default()
	ch := channel.NewChannels(4, 1, 1)
	p := newTestProcessor(cfg, ch)

	p.handleFrame(models.RawFrame{Kind: models.FrameBinary, Data: buildFrame(1, "BTCUSDT")})
	p.handleFrame(models.RawFrame{Kind: models.FrameBinary, Data: buildFrame(2, "BTCUSDT")})

	stats := ch.BBA.GetStats()
	if stats.NormSent != 1 || stats.NormDropped != 1 {
		t.Errorf("unexpected channel stats: %+v", stats)
	}
}

func TestProcessorPreservesOrder(t *testing.T) {
	cfg := appconfig.Default()
	ch := channel.NewChannels(64, 64, 1)
	p := NewBBAProcessor(cfg, ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	if err := p.Start(ctx); err == nil {
		t.Error("expected error on second Start")
	}

	const n = 50
	for i := 1; i <= n; i++ {
		ch.BBA.Raw <- models.RawFrame{Kind: models.FrameBinary, Data: buildFrame(int64(i), "BTCUSDT")}
	}

	for i := 1; i <= n; i++ {
		ev := receiveNorm(t, ch)
		if ev.UpdateID != int64(i) {
			t.Fatalf("event %d arrived with update id %d", i, ev.UpdateID)
		}
	}
}
