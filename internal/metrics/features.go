package metrics

import (
	"strings"
	"sync/atomic"

	"feedflow/config"
)

// Feature identifies an optional metric stream that can be toggled from
// configuration.
type Feature string

const (
	// FeatureWSWeight gates websocket session weight metrics.
	FeatureWSWeight Feature = "ws_weight"
	// FeatureChannelSize gates channel occupancy metrics.
	FeatureChannelSize Feature = "channel_size"
)

type featureState struct {
	wsWeight    bool
	channelSize bool
}

var features atomic.Pointer[featureState]

func init() {
	features.Store(&featureState{wsWeight: true, channelSize: true})
}

// Configure applies the metric feature flags from configuration. It replaces
// the current state atomically so emitters never observe a partial update.
func Configure(cfg config.MetricsConfig) {
	features.Store(&featureState{
		wsWeight:    cfg.WSWeight,
		channelSize: cfg.ChannelSize,
	})
}

// IsFeatureEnabled reports whether the given metric feature is active.
// Unknown features are treated as enabled.
func IsFeatureEnabled(f Feature) bool {
	state := features.Load()
	if state == nil {
		return true
	}
	switch f {
	case FeatureWSWeight:
		return state.wsWeight
	case FeatureChannelSize:
		return state.channelSize
	default:
		return true
	}
}

// metricAllowed filters metric names that belong to a toggleable feature.
// Names outside the known families are always allowed.
func metricAllowed(name string) bool {
	switch {
	case strings.HasPrefix(name, "ws_"):
		return IsFeatureEnabled(FeatureWSWeight)
	case strings.HasSuffix(name, "_buffer_length"):
		return IsFeatureEnabled(FeatureChannelSize)
	default:
		return true
	}
}
