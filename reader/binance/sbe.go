package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	appconfig "feedflow/config"
	"feedflow/internal/channel"
	"feedflow/internal/metrics"
	"feedflow/internal/streams"
	"feedflow/logger"
	"feedflow/models"
)

// readResult describes why a websocket read loop ended.
type readResult int

const (
	readFailed readResult = iota
	readRecycled
	readStopped
)

// readIdleTimeout bounds how long a read may block without any traffic.
// Binance pings every 20 seconds so a healthy session refreshes the deadline
// well within this window.
const readIdleTimeout = 3 * time.Minute

// SBEReader maintains the upstream websocket session for the Binance SBE
// market data endpoint and forwards every application frame to the raw
// channel. Sessions are recycled before the exchange's 24 hour connection
// limit and re-established with exponential backoff after failures.
type SBEReader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	conn     *websocket.Conn
	log      *logger.Log
	limiter  *rate.Limiter
	tracker  *metrics.WSTracker
}

// NewSBEReader creates a reader for the configured symbols and streams.
func NewSBEReader(cfg *appconfig.Config, channels *channel.Channels) *SBEReader {
	return &SBEReader{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.Connection.SubscribeRatePerSecond), cfg.Connection.SubscribeBurst),
		tracker:  metrics.NewWSTracker(),
	}
}

// Start launches the websocket stream worker.
func (r *SBEReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("sbe reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("sbe_reader").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"url":     r.streamURL(),
		"symbols": r.config.Binance.Symbols,
		"streams": r.config.Binance.Streams,
	}).Info("starting sbe reader")

	r.wg.Add(1)
	go r.stream()

	r.wg.Add(1)
	go r.reportMetrics()

	log.Info("sbe reader started successfully")
	return nil
}

// Stop terminates the websocket session and waits for the workers.
func (r *SBEReader) Stop() {
	r.mu.Lock()
	r.running = false
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	r.log.WithComponent("sbe_reader").Info("stopping sbe reader")
	if conn != nil {
		conn.Close()
	}
	r.wg.Wait()
	r.log.WithComponent("sbe_reader").Info("sbe reader stopped")
}

func (r *SBEReader) isRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

func (r *SBEReader) setConn(conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

func (r *SBEReader) stream() {
	defer r.wg.Done()

	log := r.log.WithComponent("sbe_reader").WithFields(logger.Fields{"worker": "ws_stream"})

	url := r.streamURL()
	headers := r.authHeaders()
	maxAttempts := r.config.Connection.MaxReconnectAttempts
	bo := newReconnectBackoff(r.config.Connection)
	attempts := 0

	// wait sleeps for the next backoff delay after a failed session and
	// reports whether the loop should keep going.
	wait := func(err error, what string) bool {
		attempts++
		logger.IncrementRetryCount()
		metrics.IncrementReconnect()
		if maxAttempts > 0 && attempts > maxAttempts {
			log.WithError(err).WithFields(logger.Fields{"attempts": attempts}).Error("reconnect attempts exhausted")
			r.channels.ReportFatal(fmt.Errorf("sbe reader: %d consecutive failures: %w", attempts, err))
			return false
		}
		delay := bo.NextBackOff()
		log.WithError(err).WithFields(logger.Fields{
			"attempt":  attempts,
			"retry_in": delay.String(),
		}).Warn(what)
		select {
		case <-time.After(delay):
			return true
		case <-r.ctx.Done():
			return false
		}
	}

	for {
		if r.ctx.Err() != nil || !r.isRunning() {
			log.Info("sbe reader stream stopped")
			return
		}

		r.tracker.RegisterConnectionAttempt()
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, resp, err := dialer.DialContext(r.ctx, url, headers)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			if !wait(err, "failed to connect websocket") {
				return
			}
			continue
		}
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}

		// A successful handshake resets the failure count and the delay
		// sequence.
		attempts = 0
		bo.Reset()

		conn.SetReadLimit(r.config.Connection.ReadLimitBytes)
		r.setConn(conn)
		log.WithFields(logger.Fields{"url": url}).Info("websocket connected")

		if err := r.subscribe(conn); err != nil {
			r.setConn(nil)
			conn.Close()
			if r.ctx.Err() != nil {
				return
			}
			if !wait(err, "failed to subscribe") {
				return
			}
			continue
		}

		reason, readErr := r.readLoop(conn)
		r.setConn(nil)
		conn.Close()

		switch reason {
		case readStopped:
			log.Info("sbe reader stream stopped")
			return
		case readRecycled:
			log.WithFields(logger.Fields{
				"session_age": r.config.Connection.PreemptiveAge().String(),
			}).Info("recycling websocket session before upstream limit")
		default:
			if !wait(readErr, "websocket read failed") {
				return
			}
		}
	}
}

// readLoop consumes frames until the session ends. The session age is checked
// after every read and before dispatch, so the frame that trips the limit is
// sacrificed in favour of a clean close.
func (r *SBEReader) readLoop(conn *websocket.Conn) (readResult, error) {
	sessionStart := time.Now()
	maxAge := r.config.Connection.PreemptiveAge()

	conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		r.tracker.RegisterOutgoing(1)
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() != nil || !r.isRunning() {
				return readStopped, nil
			}
			return readFailed, err
		}
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))

		if maxAge > 0 && time.Since(sessionStart) >= maxAge {
			deadline := time.Now().Add(5 * time.Second)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session age limit")
			conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return readRecycled, nil
		}

		switch msgType {
		case websocket.BinaryMessage:
			r.forward(models.RawFrame{Kind: models.FrameBinary, Data: data, Received: time.Now()})
		case websocket.TextMessage:
			r.forward(models.RawFrame{Kind: models.FrameText, Data: data, Received: time.Now()})
		}
	}
}

func (r *SBEReader) forward(frame models.RawFrame) {
	if r.channels.BBA.SendRaw(r.ctx, frame) {
		logger.IncrementFrameRead(len(frame.Data))
		if r.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			logger.LogDataFlowEntry(r.log.WithComponent("sbe_reader"), "binance_ws", "raw_channel", 1, "bba_frame")
		}
		return
	}
	if r.ctx.Err() != nil {
		return
	}
	r.log.WithComponent("sbe_reader").Warn("raw channel full, dropping frame")
	metrics.EmitDropMetric(r.log, metrics.DropMetricRawFrame, "", "reader")
}

// subscribe sends the SUBSCRIBE control message for all configured pairs.
func (r *SBEReader) subscribe(conn *websocket.Conn) error {
	if err := r.limiter.Wait(r.ctx); err != nil {
		return err
	}

	req := models.SubscribeRequest{Method: "SUBSCRIBE", Params: r.pairs(), ID: 1}
	if err := conn.WriteJSON(&req); err != nil {
		return fmt.Errorf("failed to send subscribe request: %w", err)
	}
	r.tracker.RegisterOutgoing(1)

	r.log.WithComponent("sbe_reader").WithFields(logger.Fields{"params": req.Params}).Debug("subscribe request sent")
	return nil
}

func (r *SBEReader) reportMetrics() {
	defer r.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if !r.isRunning() {
				return
			}
			metrics.ReportWSWeight(r.log, r.tracker)
		}
	}
}

func (r *SBEReader) pairs() []string {
	return streams.Expand(r.config.Binance.Symbols, r.config.Binance.Streams)
}

// streamURL builds the websocket endpoint. A single pair uses the direct /ws/
// path, multiple pairs use the combined /stream endpoint.
func (r *SBEReader) streamURL() string {
	base := strings.TrimRight(r.config.Binance.WSBaseURL, "/")
	pairs := r.pairs()
	if len(pairs) == 1 {
		return base + "/ws/" + pairs[0]
	}
	return base + "/stream?streams=" + strings.Join(pairs, "/")
}

// authHeaders returns the handshake headers. The key is assigned directly
// because Header.Set would canonicalise its casing.
func (r *SBEReader) authHeaders() http.Header {
	headers := http.Header{}
	if key := r.config.Binance.APIKey; key != "" {
		headers["X-MBX-APIKEY"] = []string{key}
	}
	return headers
}

// newReconnectBackoff builds the reconnect delay sequence. Delays follow the
// configured geometric progression without jitter and never stop on their own.
func newReconnectBackoff(cfg appconfig.ConnectionConfig) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialDelay()
	bo.RandomizationFactor = 0
	bo.Multiplier = cfg.ReconnectBackoffMultiplier
	bo.MaxInterval = cfg.MaxDelay()
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
