package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	appconfig "feedflow/config"
	"feedflow/decoder"
	"feedflow/internal/channel"
	"feedflow/internal/metrics"
	"feedflow/logger"
	"feedflow/models"
)

// BBAProcessor decodes raw websocket frames into best bid/ask events and
// forwards them to the publish stage.
type BBAProcessor struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	framesProcessed atomic.Int64
	eventsDecoded   atomic.Int64
	framesSkipped   atomic.Int64
}

// NewBBAProcessor creates a new processor instance.
func NewBBAProcessor(cfg *appconfig.Config, channels *channel.Channels) *BBAProcessor {
	return &BBAProcessor{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (p *BBAProcessor) start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("bba processor already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	log := p.log.WithComponent("bba_processor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting bba processor")

	// A single worker keeps decoded events in arrival order.
	p.wg.Add(2)
	go p.worker()
	go p.metricsReporter()

	log.Info("bba processor started successfully")
	return nil
}

func (p *BBAProcessor) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("bba_processor").Info("stopping bba processor")
	p.cancel()
	p.wg.Wait()
	p.log.WithComponent("bba_processor").Info("bba processor stopped")
}

// Start exposes the start method for external callers.
func (p *BBAProcessor) Start(ctx context.Context) error { return p.start(ctx) }

// Stop exposes the stop method for external callers.
func (p *BBAProcessor) Stop() { p.stop() }

func (p *BBAProcessor) worker() {
	defer p.wg.Done()

	log := p.log.WithComponent("bba_processor").WithFields(logger.Fields{"worker": "decode"})
	debug := p.log.Logger.IsLevelEnabled(logrus.DebugLevel)

	for {
		select {
		case <-p.ctx.Done():
			return
		case frame, ok := <-p.channels.BBA.Raw:
			if !ok {
				return
			}
			if debug {
				start := time.Now()
				p.handleFrame(frame)
				logger.LogPerformanceEntry(log, "bba_processor", "handle_frame", time.Since(start), logger.Fields{
					"frame_bytes": len(frame.Data),
				})
				continue
			}
			p.handleFrame(frame)
		}
	}
}

func (p *BBAProcessor) handleFrame(frame models.RawFrame) {
	p.framesProcessed.Add(1)

	var (
		ev models.BestBidAsk
		ok bool
	)
	switch p.config.Binance.Protocol {
	case appconfig.ProtocolJSON:
		if frame.Kind != models.FrameText {
			p.skip("unexpected_binary")
			return
		}
		ev, ok = decoder.DecodeJSON(frame.Data)
	default:
		if frame.Kind == models.FrameText {
			// On the binary protocol text frames carry no market data,
			// they are subscribe acks and other control traffic.
			p.logControlFrame(frame.Data)
			p.skip("control_frame")
			return
		}
		ev, ok = decoder.DecodeSBE(frame.Data)
	}
	if !ok {
		p.skip("decode_failed")
		return
	}

	p.eventsDecoded.Add(1)
	logger.IncrementEventDecoded()
	metrics.IncrementDecoded(ev.Symbol)

	if !p.channels.BBA.SendNorm(p.ctx, ev) {
		p.log.WithComponent("bba_processor").WithFields(logger.Fields{
			"symbol": ev.Symbol,
		}).Warn("norm channel full, dropping event")
		metrics.EmitDropMetric(p.log, metrics.DropMetricNormEvent, ev.Symbol, "processor")
		return
	}

	if p.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.LogDataFlowEntry(
			p.log.WithComponent("bba_processor").WithFields(logger.Fields{
				"symbol":    ev.Symbol,
				"update_id": ev.UpdateID,
			}),
			"raw_channel", "norm_channel", 1, "best_bid_ask",
		)
	}
}

func (p *BBAProcessor) skip(reason string) {
	p.framesSkipped.Add(1)
	logger.IncrementEventSkipped()
	metrics.IncrementSkipped(reason)
}

func (p *BBAProcessor) logControlFrame(data []byte) {
	log := p.log.WithComponent("bba_processor")

	var ack models.ControlAck
	if err := json.Unmarshal(data, &ack); err == nil && ack.ID != 0 {
		log.WithFields(logger.Fields{
			"id":     ack.ID,
			"result": string(ack.Result),
		}).Info("subscription acknowledged")
		return
	}
	log.WithFields(logger.Fields{"size": len(data)}).Debug("ignoring text frame")
}

func (p *BBAProcessor) metricsReporter() {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			metrics.ReportProcessorMetrics(p.log, metrics.ProcessorMetrics{
				FramesProcessed: p.framesProcessed.Load(),
				EventsDecoded:   p.eventsDecoded.Load(),
				FramesSkipped:   p.framesSkipped.Load(),
				RawChannelLen:   len(p.channels.BBA.Raw),
				RawChannelCap:   cap(p.channels.BBA.Raw),
				NormChannelLen:  len(p.channels.BBA.Norm),
				NormChannelCap:  cap(p.channels.BBA.Norm),
			})
		}
	}
}
