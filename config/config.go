package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Wire protocol selectors for the upstream market data session.
const (
	ProtocolSBE  = "sbe"
	ProtocolJSON = "json"
)

type Config struct {
	Feedflow   FeedflowConfig   `yaml:"feedflow"`
	Binance    BinanceConfig    `yaml:"binance"`
	Connection ConnectionConfig `yaml:"connection"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Publisher  PublisherConfig  `yaml:"publisher"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type FeedflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type BinanceConfig struct {
	WSBaseURL    string   `yaml:"ws_base_url"`
	APIKey       string   `yaml:"api_key"`
	Protocol     string   `yaml:"protocol"`
	Symbols      []string `yaml:"symbols"`
	Streams      []string `yaml:"streams"`
	UseSDKReader bool     `yaml:"use_sdk_reader"`
}

type ConnectionConfig struct {
	ReconnectDelayInitial      float64 `yaml:"reconnect_delay_initial"`
	ReconnectDelayMax          float64 `yaml:"reconnect_delay_max"`
	ReconnectBackoffMultiplier float64 `yaml:"reconnect_backoff_multiplier"`
	MaxReconnectAttempts       int     `yaml:"max_reconnect_attempts"`
	PreemptiveReconnectHours   float64 `yaml:"preemptive_reconnect_hours"`
	ReadLimitBytes             int64   `yaml:"read_limit_bytes"`
	SubscribeRatePerSecond     int     `yaml:"subscribe_rate_per_second"`
	SubscribeBurst             int     `yaml:"subscribe_burst"`
}

type ChannelsConfig struct {
	RawBuffer   int `yaml:"raw_buffer"`
	NormBuffer  int `yaml:"norm_buffer"`
	ErrorBuffer int `yaml:"error_buffer"`
}

type PublisherConfig struct {
	UDSPath             string `yaml:"uds_path"`
	TCPPort             int    `yaml:"tcp_port"`
	MaxClients          int    `yaml:"max_clients"`
	WriteTimeoutMs      int    `yaml:"write_timeout_ms"`
	HeartbeatIntervalMs int    `yaml:"heartbeat_interval_ms"`
}

type MetricsConfig struct {
	WSWeight    bool `yaml:"ws_weight"`
	ChannelSize bool `yaml:"channel_size"`
}

type DashboardConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Listen            string `yaml:"listen"`
	RefreshIntervalMs int    `yaml:"refresh_interval_ms"`
	LogHistory        int    `yaml:"log_history"`
	MetricsHistory    int    `yaml:"metrics_history"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

// Default returns a configuration populated with the values used when a key is
// absent from the configuration file.
func Default() *Config {
	return &Config{
		Feedflow: FeedflowConfig{
			Name:    "feedflow",
			Version: "1.0.0",
		},
		Binance: BinanceConfig{
			WSBaseURL: "wss://stream-sbe.binance.com:9443",
			Protocol:  ProtocolSBE,
			Symbols:   []string{"btcusdt"},
			Streams:   []string{"bestBidAsk"},
		},
		Connection: ConnectionConfig{
			ReconnectDelayInitial:      1.0,
			ReconnectDelayMax:          60.0,
			ReconnectBackoffMultiplier: 2.0,
			MaxReconnectAttempts:       0,
			PreemptiveReconnectHours:   23.5,
			ReadLimitBytes:             1 << 20,
			SubscribeRatePerSecond:     5,
			SubscribeBurst:             1,
		},
		Channels: ChannelsConfig{
			RawBuffer:   8192,
			NormBuffer:  8192,
			ErrorBuffer: 16,
		},
		Publisher: PublisherConfig{
			UDSPath:             "/tmp/binance_feed.sock",
			TCPPort:             0,
			MaxClients:          10,
			WriteTimeoutMs:      100,
			HeartbeatIntervalMs: 5000,
		},
		Metrics: MetricsConfig{
			WSWeight:    true,
			ChannelSize: true,
		},
		Dashboard: DashboardConfig{
			Enabled:           false,
			Listen:            ":8080",
			RefreshIntervalMs: 5000,
			LogHistory:        200,
			MetricsHistory:    200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			MaxAge: 7,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override sensitive settings from environment variables if available
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Binance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("FEEDFLOW_UDS_PATH"); v != "" {
		config.Publisher.UDSPath = strings.TrimSpace(v)
	}

	config.Binance.WSBaseURL = strings.TrimSpace(config.Binance.WSBaseURL)
	config.Publisher.UDSPath = strings.TrimSpace(config.Publisher.UDSPath)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// InitialDelay returns the first reconnect delay as a duration.
func (c ConnectionConfig) InitialDelay() time.Duration {
	return time.Duration(c.ReconnectDelayInitial * float64(time.Second))
}

// MaxDelay returns the reconnect delay cap as a duration.
func (c ConnectionConfig) MaxDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMax * float64(time.Second))
}

// PreemptiveAge returns the session age after which the connection is
// recycled. Zero disables the preemptive reconnect.
func (c ConnectionConfig) PreemptiveAge() time.Duration {
	return time.Duration(c.PreemptiveReconnectHours * float64(time.Hour))
}

// WriteTimeout returns the per client write deadline as a duration.
func (p PublisherConfig) WriteTimeout() time.Duration {
	return time.Duration(p.WriteTimeoutMs) * time.Millisecond
}

// HeartbeatInterval returns the idle heartbeat period as a duration. Zero
// disables heartbeats.
func (p PublisherConfig) HeartbeatInterval() time.Duration {
	return time.Duration(p.HeartbeatIntervalMs) * time.Millisecond
}

// RefreshInterval returns how often the dashboard UI polls for new data.
func (d DashboardConfig) RefreshInterval() time.Duration {
	return time.Duration(d.RefreshIntervalMs) * time.Millisecond
}

func validateConfig(cfg *Config) error {
	if cfg.Feedflow.Name == "" {
		return fmt.Errorf("feedflow.name is required")
	}

	if cfg.Feedflow.Version == "" {
		return fmt.Errorf("feedflow.version is required")
	}

	if !isValidWSURL(cfg.Binance.WSBaseURL) {
		return fmt.Errorf("binance.ws_base_url '%s' is invalid", cfg.Binance.WSBaseURL)
	}

	if cfg.Binance.Protocol != ProtocolSBE && cfg.Binance.Protocol != ProtocolJSON {
		return fmt.Errorf("binance.protocol must be '%s' or '%s'", ProtocolSBE, ProtocolJSON)
	}

	if len(cfg.Binance.Symbols) == 0 {
		return fmt.Errorf("binance.symbols must not be empty")
	}
	for _, s := range cfg.Binance.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("binance.symbols must not contain empty entries")
		}
	}

	if len(cfg.Binance.Streams) == 0 {
		return fmt.Errorf("binance.streams must not be empty")
	}
	for _, s := range cfg.Binance.Streams {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("binance.streams must not contain empty entries")
		}
	}

	if cfg.Connection.ReconnectDelayInitial <= 0 {
		return fmt.Errorf("connection.reconnect_delay_initial must be greater than 0")
	}
	if cfg.Connection.ReconnectDelayMax < cfg.Connection.ReconnectDelayInitial {
		return fmt.Errorf("connection.reconnect_delay_max must not be less than connection.reconnect_delay_initial")
	}
	if cfg.Connection.ReconnectBackoffMultiplier < 1 {
		return fmt.Errorf("connection.reconnect_backoff_multiplier must be at least 1")
	}
	if cfg.Connection.MaxReconnectAttempts < 0 {
		return fmt.Errorf("connection.max_reconnect_attempts must not be negative")
	}
	if cfg.Connection.PreemptiveReconnectHours < 0 {
		return fmt.Errorf("connection.preemptive_reconnect_hours must not be negative")
	}
	if cfg.Connection.ReadLimitBytes <= 0 {
		return fmt.Errorf("connection.read_limit_bytes must be greater than 0")
	}
	if cfg.Connection.SubscribeRatePerSecond <= 0 {
		return fmt.Errorf("connection.subscribe_rate_per_second must be greater than 0")
	}
	if cfg.Connection.SubscribeBurst <= 0 {
		return fmt.Errorf("connection.subscribe_burst must be greater than 0")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.NormBuffer <= 0 {
		return fmt.Errorf("channels.norm_buffer must be greater than 0")
	}
	if cfg.Channels.ErrorBuffer < 0 {
		return fmt.Errorf("channels.error_buffer must not be negative")
	}

	if cfg.Publisher.TCPPort < 0 || cfg.Publisher.TCPPort > 65535 {
		return fmt.Errorf("publisher.tcp_port must be between 0 and 65535")
	}
	if cfg.Publisher.MaxClients <= 0 {
		return fmt.Errorf("publisher.max_clients must be greater than 0")
	}
	if cfg.Publisher.WriteTimeoutMs <= 0 {
		return fmt.Errorf("publisher.write_timeout_ms must be greater than 0")
	}
	if cfg.Publisher.HeartbeatIntervalMs < 0 {
		return fmt.Errorf("publisher.heartbeat_interval_ms must not be negative")
	}

	return nil
}

var wsURLRegexp = regexp.MustCompile(`^wss?://[^\s]+$`)

func isValidWSURL(url string) bool {
	return wsURLRegexp.MatchString(url)
}
