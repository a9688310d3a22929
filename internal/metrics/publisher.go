package metrics

import "feedflow/logger"

// PublisherStats holds metrics for the IPC publisher.
type PublisherStats struct {
	EventsPublished  int64
	HeartbeatsSent   int64
	BytesWritten     int64
	ClientsConnected int
	ClientDrops      int64
	NormChannelLen   int
	NormChannelCap   int
}

// ReportPublisher emits publisher metrics using the provided logger and component name.
func ReportPublisher(log *logger.Log, component string, stats PublisherStats) {
	l := log.WithComponent(component)

	avgBytesPerEvent := float64(0)
	if stats.EventsPublished > 0 {
		avgBytesPerEvent = float64(stats.BytesWritten) / float64(stats.EventsPublished)
	}

	l.LogMetric(component, "events_published", stats.EventsPublished, "counter", logger.Fields{})
	l.LogMetric(component, "heartbeats_sent", stats.HeartbeatsSent, "counter", logger.Fields{})
	l.LogMetric(component, "bytes_written", stats.BytesWritten, "counter", logger.Fields{})
	l.LogMetric(component, "client_drops", stats.ClientDrops, "counter", logger.Fields{})
	l.LogMetric(component, "connected_clients", stats.ClientsConnected, "gauge", logger.Fields{})
	l.LogMetric(component, "avg_bytes_per_event", avgBytesPerEvent, "gauge", logger.Fields{})

	entry := l.WithFields(logger.Fields{
		"events_published":    stats.EventsPublished,
		"heartbeats_sent":     stats.HeartbeatsSent,
		"bytes_written":       stats.BytesWritten,
		"client_drops":        stats.ClientDrops,
		"connected_clients":   stats.ClientsConnected,
		"avg_bytes_per_event": avgBytesPerEvent,
		"norm_channel_len":    stats.NormChannelLen,
		"norm_channel_cap":    stats.NormChannelCap,
	})

	if stats.ClientDrops > 0 {
		entry.Warn(component + " metrics")
		return
	}

	entry.Info(component + " metrics")
}
