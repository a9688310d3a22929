package metrics

import "feedflow/logger"

// ProcessorMetrics holds counters and channel sizes for the decode stage.
type ProcessorMetrics struct {
	FramesProcessed int64
	EventsDecoded   int64
	FramesSkipped   int64
	RawChannelLen   int
	RawChannelCap   int
	NormChannelLen  int
	NormChannelCap  int
}

// ReportProcessorMetrics emits metrics for the decode stage.
func ReportProcessorMetrics(log *logger.Log, stats ProcessorMetrics) {
	l := log.WithComponent("processor")

	skipRate := float64(0)
	if stats.FramesProcessed > 0 {
		skipRate = float64(stats.FramesSkipped) / float64(stats.FramesProcessed)
	}

	l.LogMetric("processor", "frames_processed", stats.FramesProcessed, "counter", logger.Fields{})
	l.LogMetric("processor", "events_decoded", stats.EventsDecoded, "counter", logger.Fields{})
	l.LogMetric("processor", "frames_skipped", stats.FramesSkipped, "counter", logger.Fields{})
	l.LogMetric("processor", "skip_rate", skipRate, "gauge", logger.Fields{})

	l.WithFields(logger.Fields{
		"frames_processed": stats.FramesProcessed,
		"events_decoded":   stats.EventsDecoded,
		"frames_skipped":   stats.FramesSkipped,
		"skip_rate":        skipRate,
		"raw_channel_len":  stats.RawChannelLen,
		"raw_channel_cap":  stats.RawChannelCap,
		"norm_channel_len": stats.NormChannelLen,
		"norm_channel_cap": stats.NormChannelCap,
	}).Info("processor metrics")
}
