package metrics

import "feedflow/logger"

// DropMetric identifies the metric name emitted when pipeline messages are dropped.
type DropMetric string

const (
	// DropMetricRawFrame records upstream frames dropped before decoding.
	DropMetricRawFrame DropMetric = "raw_frames_dropped"
	// DropMetricNormEvent records decoded events dropped before publishing.
	DropMetricNormEvent DropMetric = "norm_events_dropped"
	// DropMetricClientWrite records client writes abandoned by the publisher.
	DropMetricClientWrite DropMetric = "client_writes_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped message. The
// metric value is always incremented by one so callers should invoke this helper
// for each dropped message. Optional metadata (symbol, stage) is added to the
// metric fields when provided which enables downstream aggregation per stream
// and pipeline stage.
func EmitDropMetric(log *logger.Log, metric DropMetric, symbol, stage string) {
	fields := logger.Fields{}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
