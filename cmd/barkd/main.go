package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maomorales/bark-sensor-home-assistant/internal/audio"
	"github.com/maomorales/bark-sensor-home-assistant/internal/capture"
	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
	"github.com/maomorales/bark-sensor-home-assistant/internal/detect"
	"github.com/maomorales/bark-sensor-home-assistant/internal/metrics"
	"github.com/maomorales/bark-sensor-home-assistant/internal/mqtt"
	"github.com/maomorales/bark-sensor-home-assistant/internal/pipeline"
	"github.com/maomorales/bark-sensor-home-assistant/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	listDevices := flag.Bool("list-devices", false, "List capture devices and exit")
	dryRun := flag.Bool("dry-run", false, "Run the pipeline without publishing events")
	flag.Parse()

	if *listDevices {
		if err := printInputDevices(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list capture devices: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	if *dryRun {
		cfg.MQTT.Enabled = false
		logger.Info("Dry run: events will be logged but not published")
	}

	logger.Info("Starting bark detector",
		slog.String("config", *configPath),
		slog.String("device_id", cfg.DeviceID),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	m := metrics.NewMetrics()

	detector, err := detect.NewHeuristicDetector(cfg.Detection, cfg.Audio.SampleRate)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}

	captureMgr := capture.NewManager(cfg.Capture, cfg.Audio.SampleRate, logger, m)

	var notifiers []pipeline.Notifier
	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(cfg.MQTT, logger, m)
		if err := publisher.Start(); err != nil {
			return fmt.Errorf("failed to start MQTT publisher: %w", err)
		}
		notifiers = append(notifiers, publisher)
	}

	pipe := pipeline.NewPipeline(cfg, detector, nil, captureMgr, notifiers, logger, m)

	stream, err := audio.NewStream(audio.StreamConfig{
		TargetRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		HopSeconds:    cfg.Audio.HopSeconds,
		DeviceIndex:   cfg.Audio.MicDeviceIndex,
		QueueCapacity: cfg.Audio.QueueCapacity,
		RetryBackoff:  cfg.Audio.GetRetryBackoff(),
		FallbackRates: cfg.Audio.FallbackRates,
	}, logger, m)
	if err != nil {
		return fmt.Errorf("failed to create audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	var srv *server.Server
	if cfg.HTTP.Enabled {
		srv = server.New(cfg, logger, m, func() server.StatsSnapshot {
			return server.StatsSnapshot{
				Stream:   stream.GetStats(),
				Pipeline: pipe.GetStats(),
				Capture:  captureMgr.GetStats(),
			}
		})
		srv.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Shutdown signal received", slog.String("signal", sig.String()))
		cancel()
	}()

	runErr := pipe.Run(ctx, stream)

	// Ordered shutdown: stop producing, flush pending captures, then
	// release the outward-facing pieces
	stream.Stop()
	pipe.Flush()
	if publisher != nil {
		publisher.Stop()
	}
	if srv != nil {
		srv.Stop()
	}

	stats := pipe.GetStats()
	logger.Info("Final statistics",
		slog.Uint64("chunks_processed", stats.ChunksProcessed),
		slog.Uint64("windows_classified", stats.WindowsClassified),
		slog.Uint64("events_triggered", stats.EventsTriggered),
	)

	if runErr == context.Canceled {
		return nil
	}
	return runErr
}

// printInputDevices writes the capture device table to stdout
func printInputDevices() error {
	devices, err := audio.ListInputDevices()
	if err != nil {
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No capture devices found")
		return nil
	}

	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %3d  %s\n", marker, d.Index, d.Name)
	}
	return nil
}

// initLogger creates the process logger from logging configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
