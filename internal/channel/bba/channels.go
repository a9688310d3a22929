package bba

import (
	"context"
	"sync"

	"feedflow/logger"
	"feedflow/models"
)

type ChannelStats struct {
	RawSent     int64
	NormSent    int64
	RawDropped  int64
	NormDropped int64
}

// Channels carries best bid/ask data between pipeline stages: Raw holds
// undecoded websocket frames, Norm holds decoded events ready to publish.
type Channels struct {
	Raw  chan models.RawFrame
	Norm chan models.BestBidAsk

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, normBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:  make(chan models.RawFrame, rawBufferSize),
		Norm: make(chan models.BestBidAsk, normBufferSize),
		log:  log,
	}

	log.WithComponent("bba_channels").WithFields(logger.Fields{
		"raw_buffer_size":  rawBufferSize,
		"norm_buffer_size": normBufferSize,
	}).Info("BBA channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Norm)
	c.log.WithComponent("bba_channels").Info("BBA channels closed")
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementNormSent() {
	c.statsMutex.Lock()
	c.stats.NormSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementNormDropped() {
	c.statsMutex.Lock()
	c.stats.NormDropped++
	c.statsMutex.Unlock()
}

// SendRaw forwards a frame without ever blocking the websocket read loop. A
// full buffer drops the frame and records it in the stats.
func (c *Channels) SendRaw(ctx context.Context, frame models.RawFrame) bool {
	select {
	case c.Raw <- frame:
		c.IncrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementRawDropped()
		return false
	}
}

// SendNorm forwards a decoded event with the same non-blocking semantics as
// SendRaw.
func (c *Channels) SendNorm(ctx context.Context, ev models.BestBidAsk) bool {
	select {
	case c.Norm <- ev:
		c.IncrementNormSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementNormDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
