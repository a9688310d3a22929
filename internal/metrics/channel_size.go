package metrics

import (
	"context"
	"time"

	"feedflow/internal/channel"
	"feedflow/logger"
)

// StartChannelSizeMetrics emits occupancy metrics for the raw frame and
// normalized event channel buffers. Metrics are logged every `interval` until
// the context is cancelled. When interval <=0, a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if channels.BBA != nil {
					EmitMetric(log, component, "raw_buffer_length", len(channels.BBA.Raw), "gauge", logger.Fields{
						"buffer":   "bba_raw",
						"capacity": cap(channels.BBA.Raw),
					})
					EmitMetric(log, component, "norm_buffer_length", len(channels.BBA.Norm), "gauge", logger.Fields{
						"buffer":   "bba_norm",
						"capacity": cap(channels.BBA.Norm),
					})
				}
			}
		}
	}()
}
