package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"feedflow/config"
	"feedflow/internal/channel"
	"feedflow/internal/dashboard"
	"feedflow/internal/metrics"
	"feedflow/logger"
	"feedflow/processor"
	"feedflow/publisher"
	"feedflow/reader/binance"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":  cfg.Feedflow.Name,
		"version":  cfg.Feedflow.Version,
		"protocol": cfg.Binance.Protocol,
	}).Info("starting feedflow")

	metrics.Configure(cfg.Metrics)
	metrics.Init()

	if region := os.Getenv("AWS_REGION"); region != "" {
		logger.InitCloudWatch(region, "", cfg.Logging.DashboardName)
		metrics.InitCloudWatch(region, "", cfg.Logging.DashboardName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.RawBuffer,
		cfg.Channels.NormBuffer,
		cfg.Channels.ErrorBuffer,
	)
	defer channels.Close()

	metrics.StartChannelSizeMetrics(ctx, channels, time.Second)

	pub := publisher.NewPublisher(cfg, channels)
	proc := processor.NewBBAProcessor(cfg, channels)

	var feedReader interface {
		Start(context.Context) error
		Stop()
	}
	if cfg.Binance.UseSDKReader {
		feedReader = binance.NewBookTickerReader(cfg, channels)
	} else {
		feedReader = binance.NewSBEReader(cfg, channels)
	}

	// Downstream components come up before the upstream connection so the
	// first decoded event already has somewhere to go.
	if err := pub.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start publisher")
		os.Exit(1)
	}
	if err := proc.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start processor")
		os.Exit(1)
	}
	if err := feedReader.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start reader")
		os.Exit(1)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}
	if dash != nil {
		dash.SetStatsSource(func() map[string]any {
			return map[string]any{
				"channels":       channels.BBA.GetStats(),
				"publisher":      pub.Stats(),
				"publisher_addr": pub.Addr(),
			}
		})
		go func() {
			log.WithFields(logger.Fields{"address": dash.Address()}).Info("starting dashboard")
			if err := dash.Run(ctx, cfg.Feedflow.Name); err != nil {
				log.WithError(err).Warn("dashboard server exited")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-channels.Errors:
		log.WithError(err).Error("fatal component error")
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		feedReader.Stop()
		proc.Stop()
		pub.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("feedflow stopped")
}
