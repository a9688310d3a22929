package publisher

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appconfig "feedflow/config"
	"feedflow/internal/channel"
	"feedflow/internal/metrics"
	"feedflow/logger"
	"feedflow/models"
)

// client is one connected downstream consumer. The mutex serializes writes so
// envelopes never interleave on the wire.
type client struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

type feedPublisher struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	listener net.Listener
	network  string
	addr     string
	port     int

	clientsMu sync.Mutex
	clients   map[string]*client

	eventsPublished atomic.Int64
	heartbeatsSent  atomic.Int64
	bytesWritten    atomic.Int64
	clientDrops     atomic.Int64
}

// Publisher is an exported alias for feedPublisher allowing external packages
// to interact with the publisher while keeping the underlying implementation private.
type Publisher = feedPublisher

func newFeedPublisher(cfg *appconfig.Config, channels *channel.Channels) *feedPublisher {
	log := logger.GetLogger()

	p := &feedPublisher{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      log,
		clients:  make(map[string]*client),
	}

	log.WithComponent("ipc_publisher").WithFields(logger.Fields{
		"uds_path":    cfg.Publisher.UDSPath,
		"tcp_port":    cfg.Publisher.TCPPort,
		"max_clients": cfg.Publisher.MaxClients,
	}).Info("ipc publisher initialized")

	return p
}

// NewPublisher constructs a new Publisher instance.
func NewPublisher(cfg *appconfig.Config, channels *channel.Channels) *Publisher {
	return newFeedPublisher(cfg, channels)
}

func (p *feedPublisher) start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("ipc publisher already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	log := p.log.WithComponent("ipc_publisher").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting ipc publisher")

	if err := p.listen(); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return err
	}

	log.WithFields(logger.Fields{
		"network": p.network,
		"addr":    p.addr,
	}).Info("publisher listening")

	p.wg.Add(3)
	go p.acceptLoop()
	go p.publishWorker()
	go p.reportMetrics()

	if p.config.Publisher.HeartbeatInterval() > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	log.Info("ipc publisher started successfully")
	return nil
}

func (p *feedPublisher) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("ipc_publisher").Info("stopping ipc publisher")

	p.cancel()
	if p.listener != nil {
		p.listener.Close()
	}
	p.closeClients()
	p.wg.Wait()
	p.log.WithComponent("ipc_publisher").Info("ipc publisher stopped")
}

func (p *feedPublisher) isRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// listen binds the Unix domain socket when a path is configured, falling back
// to loopback TCP when the path is empty or the bind fails. A leftover socket
// file from a previous run is removed, anything else at the path is left alone.
func (p *feedPublisher) listen() error {
	log := p.log.WithComponent("ipc_publisher")

	if path := p.config.Publisher.UDSPath; path != "" {
		if err := removeStaleSocket(path); err != nil {
			log.WithError(err).WithFields(logger.Fields{"path": path}).Warn("unable to clear socket path, falling back to tcp")
		} else if ln, err := net.Listen("unix", path); err != nil {
			log.WithError(err).WithFields(logger.Fields{"path": path}).Warn("unix socket bind failed, falling back to tcp")
		} else {
			if ul, ok := ln.(*net.UnixListener); ok {
				ul.SetUnlinkOnClose(true)
			}
			p.listener = ln
			p.network = "unix"
			p.addr = path
			return nil
		}
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.config.Publisher.TCPPort))
	if err != nil {
		return fmt.Errorf("failed to bind publisher listener: %w", err)
	}
	p.listener = ln
	p.network = "tcp"
	p.addr = ln.Addr().String()
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		p.port = tcpAddr.Port
	}
	return nil
}

// removeStaleSocket removes the socket file left behind by an unclean
// shutdown. A path occupied by a regular file or directory is an error.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("path %s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// Network reports which listener family is active, "unix" or "tcp".
func (p *feedPublisher) Network() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.network
}

// Addr returns the socket path or the TCP address clients should dial.
func (p *feedPublisher) Addr() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.addr
}

// Port returns the bound TCP port after Start, zero on a unix socket. With
// tcp_port configured as 0 this is where the OS assigned port shows up.
func (p *feedPublisher) Port() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.port
}

func (p *feedPublisher) acceptLoop() {
	defer p.wg.Done()

	log := p.log.WithComponent("ipc_publisher").WithFields(logger.Fields{"worker": "accept"})
	log.Info("starting accept worker")

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if !p.isRunning() || p.ctx.Err() != nil {
				log.Info("accept worker stopped")
				return
			}
			log.WithError(err).Warn("accept failed")
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		p.admit(conn)
	}
}

func (p *feedPublisher) admit(conn net.Conn) {
	log := p.log.WithComponent("ipc_publisher")

	maxClients := p.config.Publisher.MaxClients
	p.clientsMu.Lock()
	if maxClients > 0 && len(p.clients) >= maxClients {
		p.clientsMu.Unlock()
		log.WithFields(logger.Fields{"max_clients": maxClients}).Warn("rejecting client, connection limit reached")
		conn.Close()
		return
	}
	c := &client{id: uuid.New().String(), conn: conn}
	p.clients[c.id] = c
	connected := len(p.clients)
	p.clientsMu.Unlock()

	logger.IncrementClientConnect()
	metrics.SetConnectedClients(connected)
	log.WithFields(logger.Fields{
		"client_id": c.id,
		"remote":    conn.RemoteAddr().String(),
		"connected": connected,
	}).Info("client connected")

	p.wg.Add(1)
	go p.drainClient(c)
}

// drainClient consumes whatever a client sends so the kernel buffer never
// fills and detects the disconnect when the read fails.
func (p *feedPublisher) drainClient(c *client) {
	defer p.wg.Done()

	buf := make([]byte, 512)
	for {
		if _, err := c.conn.Read(buf); err != nil {
			break
		}
	}
	p.dropClient(c, "client disconnected")
}

// dropClient removes c from the client set and closes its connection. Both the
// drain goroutine and a failed broadcast write can race here, only the first
// caller does the work.
func (p *feedPublisher) dropClient(c *client, reason string) {
	p.clientsMu.Lock()
	_, present := p.clients[c.id]
	if present {
		delete(p.clients, c.id)
	}
	remaining := len(p.clients)
	p.clientsMu.Unlock()
	if !present {
		return
	}

	c.conn.Close()
	p.clientDrops.Add(1)
	logger.IncrementClientDrop()
	metrics.SetConnectedClients(remaining)

	p.log.WithComponent("ipc_publisher").WithFields(logger.Fields{
		"client_id": c.id,
		"reason":    reason,
		"connected": remaining,
	}).Info("client removed")
}

func (p *feedPublisher) closeClients() {
	p.clientsMu.Lock()
	for id, c := range p.clients {
		c.conn.Close()
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	metrics.SetConnectedClients(0)
}

// ClientCount returns the number of currently connected clients.
func (p *feedPublisher) ClientCount() int {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	return len(p.clients)
}

func (p *feedPublisher) publishWorker() {
	defer p.wg.Done()

	log := p.log.WithComponent("ipc_publisher").WithFields(logger.Fields{"worker": "publish"})
	log.Info("starting publish worker")

	for {
		select {
		case <-p.ctx.Done():
			log.Info("publish worker stopped due to context cancellation")
			return
		case ev, ok := <-p.channels.BBA.Norm:
			if !ok {
				log.Info("norm channel closed, publish worker stopping")
				return
			}
			p.Publish(ev)
		}
	}
}

// Publish serializes ev once and fans the envelope out to every connected
// client. With no clients connected the event is counted and discarded before
// any serialization work.
func (p *feedPublisher) Publish(ev models.BestBidAsk) {
	p.eventsPublished.Add(1)
	metrics.IncrementPublished(ev.Symbol)

	if p.ClientCount() == 0 {
		return
	}

	frame := models.EncodeBestBidAsk(ev)
	delivered := p.broadcast(frame)
	logger.IncrementEventPublished(len(frame))

	if p.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.LogDataFlowEntry(
			p.log.WithComponent("ipc_publisher").WithFields(logger.Fields{
				"symbol":    ev.Symbol,
				"delivered": delivered,
			}),
			"norm_channel", "ipc_clients", 1, "best_bid_ask",
		)
	}
}

// broadcast writes frame to every client concurrently, each write bounded by
// the configured deadline, and reports how many clients received it. Clients
// whose write fails are dropped after the pass.
func (p *feedPublisher) broadcast(frame []byte) int {
	p.clientsMu.Lock()
	targets := make([]*client, 0, len(p.clients))
	for _, c := range p.clients {
		targets = append(targets, c)
	}
	p.clientsMu.Unlock()

	if len(targets) == 0 {
		return 0
	}

	timeout := p.config.Publisher.WriteTimeout()

	var writeWG sync.WaitGroup
	var delivered atomic.Int64
	var failedMu sync.Mutex
	var failed []*client

	for _, c := range targets {
		writeWG.Add(1)
		go func(c *client) {
			defer writeWG.Done()
			c.mu.Lock()
			defer c.mu.Unlock()
			if timeout > 0 {
				c.conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			n, err := c.conn.Write(frame)
			if err != nil {
				failedMu.Lock()
				failed = append(failed, c)
				failedMu.Unlock()
				return
			}
			p.bytesWritten.Add(int64(n))
			delivered.Add(1)
		}(c)
	}
	writeWG.Wait()

	for _, c := range failed {
		p.log.WithComponent("ipc_publisher").WithFields(logger.Fields{
			"client_id": c.id,
		}).Warn("client write failed, dropping client")
		metrics.EmitDropMetric(p.log, metrics.DropMetricClientWrite, "", "publisher")
		p.dropClient(c, "write timeout or error")
	}

	return int(delivered.Load())
}

func (p *feedPublisher) heartbeatLoop() {
	defer p.wg.Done()

	log := p.log.WithComponent("ipc_publisher").WithFields(logger.Fields{"worker": "heartbeat"})
	log.Info("starting heartbeat worker")

	ticker := time.NewTicker(p.config.Publisher.HeartbeatInterval())
	defer ticker.Stop()

	frame := models.HeartbeatFrame()
	for {
		select {
		case <-p.ctx.Done():
			log.Info("heartbeat worker stopped due to context cancellation")
			return
		case <-ticker.C:
			if p.broadcast(frame) > 0 {
				p.heartbeatsSent.Add(1)
				logger.IncrementHeartbeat()
			}
		}
	}
}

func (p *feedPublisher) reportMetrics() {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			metrics.ReportPublisher(p.log, "ipc_publisher", p.Stats())
		}
	}
}

// Stats returns a point in time snapshot of the publisher counters.
func (p *feedPublisher) Stats() metrics.PublisherStats {
	return metrics.PublisherStats{
		EventsPublished:  p.eventsPublished.Load(),
		HeartbeatsSent:   p.heartbeatsSent.Load(),
		BytesWritten:     p.bytesWritten.Load(),
		ClientsConnected: p.ClientCount(),
		ClientDrops:      p.clientDrops.Load(),
		NormChannelLen:   len(p.channels.BBA.Norm),
		NormChannelCap:   cap(p.channels.BBA.Norm),
	}
}

// Start exposes the start method of feedPublisher.
func (p *Publisher) Start(ctx context.Context) error { return p.start(ctx) }

// Stop exposes the stop method of feedPublisher.
func (p *Publisher) Stop() { p.stop() }
