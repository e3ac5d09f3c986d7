// main.go
package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"counterlens/internal/config"
	"counterlens/internal/counters"
	"counterlens/internal/engine"
	"counterlens/internal/logger"
	"counterlens/internal/trace"
)

var (
	version = "0.1.0"
)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to configuration file (optional).")
		processName    = flag.String("process", "", "Name prefix of the process to analyze.")
		intervalMs     = flag.Float64("interval", 0, "Frame interval in milliseconds.")
		counterLog     = flag.String("counters", "", "Path to the hardware counter log.")
		counterDate    = flag.String("date", "", "Calendar date of the counter log (2006-01-02).")
		duration       = flag.Int("duration", -1, "Recording duration in seconds, 0 records until Ctrl-C.")
		generateConfig = flag.String("generate-config", "", "Write an example configuration file to the given path and exit.")
	)
	flag.Parse()

	if *generateConfig != "" {
		if err := config.GenerateExampleConfig(*generateConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *generateConfig)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Command line flags override the file.
	if *processName != "" {
		cfg.Analysis.ProcessName = *processName
	}
	if *intervalMs > 0 {
		cfg.Analysis.FrameIntervalMs = *intervalMs
	}
	if *counterLog != "" {
		cfg.Analysis.CounterLog = *counterLog
	}
	if *counterDate != "" {
		cfg.Analysis.CounterLogDate = *counterDate
	}
	if *duration >= 0 {
		cfg.Analysis.DurationSeconds = *duration
	}

	if err := logger.ConfigureLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure loggers: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("version", version).
		Str("process", cfg.Analysis.ProcessName).
		Float64("interval_ms", cfg.Analysis.FrameIntervalMs).
		Str("counter_log", cfg.Analysis.CounterLog).
		Msg("Starting counterlens")

	eng := engine.New(cfg.Analysis.ProcessName, cfg.Analysis.FrameInterval())

	// Optional debug listener: pipeline metrics and pprof while recording.
	if cfg.Server.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(engine.NewStatsCollector(eng.Stats))
		http.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			log.Info().Str("address", cfg.Server.ListenAddress).Msg("Starting debug HTTP server")
			if err := http.ListenAndServe(cfg.Server.ListenAddress, nil); err != nil {
				log.Error().Err(err).Msg("Debug HTTP server stopped")
			}
		}()
	}

	recording, err := record(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Trace recording failed")
	}

	date, err := cfg.Analysis.Date()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid counter log date")
	}
	samples, err := counters.ReadFile(cfg.Analysis.CounterLog, date)
	if err != nil {
		log.Fatal().Err(err).Msg("Counter log ingestion failed")
	}
	log.Info().Int("samples", len(samples)).Msg("Counter log ingested")

	store, err := eng.Run(recording, samples)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	if err := store.ExportFiles(cfg.Output.AggregatePath, cfg.Output.ByThreadPath); err != nil {
		log.Fatal().Err(err).Msg("Result export failed")
	}

	log.Info().
		Int64("switches", eng.Stats.SwitchesRecorded.Load()).
		Int64("faults", eng.Stats.FaultsRecorded.Load()).
		Int64("frames", eng.Stats.FramesBuilt.Load()).
		Int64("records", eng.Stats.RecordsEmitted.Load()).
		Msg("counterlens finished")
}

// record captures the kernel trace for the configured duration, or until
// SIGINT/SIGTERM when no duration is set.
func record(cfg *config.AppConfig) (*trace.Recording, error) {
	recorder := trace.NewRecorder()
	if err := recorder.Start(); err != nil {
		return nil, err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if d := cfg.Analysis.RecordingDuration(); d > 0 {
		log.Info().Dur("duration", d).Msg("Recording kernel trace...")
		select {
		case <-time.After(d):
		case <-sigChan:
			log.Info().Msg("Recording interrupted, analyzing what was captured")
		}
	} else {
		log.Info().Msg("Recording kernel trace, press Ctrl-C to stop and analyze...")
		<-sigChan
	}

	return recorder.Stop()
}
