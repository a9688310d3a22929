package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	spot "github.com/adshao/go-binance/v2"
	"github.com/sirupsen/logrus"

	appconfig "feedflow/config"
	"feedflow/internal/channel"
	"feedflow/internal/metrics"
	"feedflow/logger"
	"feedflow/models"
)

// BookTickerReader streams best bid/ask updates through the exchange SDK
// instead of the raw SBE session. Events arrive already parsed, so they are
// normalized in place and forwarded directly to the norm channel.
type BookTickerReader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// NewBookTickerReader creates an SDK based reader for the configured symbols.
func NewBookTickerReader(cfg *appconfig.Config, channels *channel.Channels) *BookTickerReader {
	return &BookTickerReader{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start subscribes to book ticker streams for the configured symbols.
func (r *BookTickerReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("book ticker reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("bookticker_reader").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"symbols": r.config.Binance.Symbols}).Info("starting book ticker reader")

	r.wg.Add(1)
	go r.streamSymbols()

	log.Info("book ticker reader started successfully")
	return nil
}

// Stop terminates the websocket subscription and waits for the worker.
func (r *BookTickerReader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("bookticker_reader").Info("stopping book ticker reader")
	r.wg.Wait()
	r.log.WithComponent("bookticker_reader").Info("book ticker reader stopped")
}

func (r *BookTickerReader) isRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *BookTickerReader) streamSymbols() {
	defer r.wg.Done()

	log := r.log.WithComponent("bookticker_reader").WithFields(logger.Fields{"worker": "sdk_stream"})

	handler := func(event *spot.WsBookTickerEvent) {
		ev, err := bookTickerEvent(event)
		if err != nil {
			log.WithError(err).Warn("failed to parse book ticker event")
			logger.IncrementEventSkipped()
			return
		}

		if r.channels.BBA.SendNorm(r.ctx, ev) {
			logger.IncrementEventDecoded()
			metrics.IncrementDecoded(ev.Symbol)
			if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
				logger.LogDataFlowEntry(log, "binance_sdk", "norm_channel", 1, "bba_event")
			}
			return
		}
		if r.ctx.Err() != nil {
			return
		}
		log.Warn("norm channel full, dropping event")
		metrics.EmitDropMetric(r.log, metrics.DropMetricNormEvent, ev.Symbol, "reader")
	}

	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	symbols := r.config.Binance.Symbols
	maxAttempts := r.config.Connection.MaxReconnectAttempts
	bo := newReconnectBackoff(r.config.Connection)
	attempts := 0

	for {
		if r.ctx.Err() != nil || !r.isRunning() {
			log.Info("book ticker stream stopped")
			return
		}

		var (
			doneC chan struct{}
			stopC chan struct{}
			err   error
		)
		if len(symbols) == 1 {
			doneC, stopC, err = spot.WsBookTickerServe(symbols[0], handler, errHandler)
		} else {
			doneC, stopC, err = spot.WsCombinedBookTickerServe(symbols, handler, errHandler)
		}
		if err == nil {
			attempts = 0
			bo.Reset()
			log.Info("book ticker stream connected")

			select {
			case <-r.ctx.Done():
				close(stopC)
				<-doneC
				log.Info("book ticker stream stopped")
				return
			case <-doneC:
				err = fmt.Errorf("book ticker stream ended")
			}
		}

		if r.ctx.Err() != nil {
			return
		}

		attempts++
		logger.IncrementRetryCount()
		metrics.IncrementReconnect()
		if maxAttempts > 0 && attempts > maxAttempts {
			log.WithError(err).WithFields(logger.Fields{"attempts": attempts}).Error("reconnect attempts exhausted")
			r.channels.ReportFatal(fmt.Errorf("book ticker reader: %d consecutive failures: %w", attempts, err))
			return
		}
		delay := bo.NextBackOff()
		log.WithError(err).WithFields(logger.Fields{
			"attempt":  attempts,
			"retry_in": delay.String(),
		}).Warn("book ticker stream failed, retrying")
		select {
		case <-time.After(delay):
		case <-r.ctx.Done():
			return
		}
	}
}

// bookTickerEvent converts an SDK book ticker event into the internal event
// model. Spot book ticker payloads carry no event time, so it stays zero.
func bookTickerEvent(event *spot.WsBookTickerEvent) (models.BestBidAsk, error) {
	bid, err := strconv.ParseFloat(event.BestBidPrice, 64)
	if err != nil {
		return models.BestBidAsk{}, fmt.Errorf("bid price %q: %w", event.BestBidPrice, err)
	}
	bidQty, err := strconv.ParseFloat(event.BestBidQty, 64)
	if err != nil {
		return models.BestBidAsk{}, fmt.Errorf("bid qty %q: %w", event.BestBidQty, err)
	}
	ask, err := strconv.ParseFloat(event.BestAskPrice, 64)
	if err != nil {
		return models.BestBidAsk{}, fmt.Errorf("ask price %q: %w", event.BestAskPrice, err)
	}
	askQty, err := strconv.ParseFloat(event.BestAskQty, 64)
	if err != nil {
		return models.BestBidAsk{}, fmt.Errorf("ask qty %q: %w", event.BestAskQty, err)
	}

	return models.BestBidAsk{
		Symbol:   event.Symbol,
		UpdateID: event.UpdateID,
		BidPrice: bid,
		BidQty:   bidQty,
		AskPrice: ask,
		AskQty:   askQty,
	}, nil
}
