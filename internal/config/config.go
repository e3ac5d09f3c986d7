package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Analysis parameters (process to monitor, frame interval, counter log)
	Analysis AnalysisConfig `toml:"analysis"`

	// Output file paths for the exported result views
	Output OutputConfig `toml:"output"`

	// Optional debug HTTP server (pprof + pipeline metrics)
	Server ServerConfig `toml:"server"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// AnalysisConfig contains the parameters of a single analysis run.
type AnalysisConfig struct {
	// Name prefix of the process to monitor (e.g. "myapp" matches myapp.exe).
	ProcessName string `toml:"process_name"`

	// Frame interval in milliseconds. Every core's timeline is cut into
	// buckets of this fixed length (default: 1).
	FrameIntervalMs float64 `toml:"frame_interval_ms"`

	// Path to the hardware counter log produced by the vendor tool.
	CounterLog string `toml:"counter_log"`

	// Calendar date anchoring the counter log's bare time-of-day stamps,
	// formatted 2006-01-02. Empty means today.
	CounterLogDate string `toml:"counter_log_date"`

	// How long to record the ETW trace before analyzing, in seconds.
	// Zero means record until interrupted.
	DurationSeconds int `toml:"duration_seconds"`
}

// OutputConfig contains the result export destinations.
type OutputConfig struct {
	// Aggregate view: one row per (metric, frame), values combined across threads.
	AggregatePath string `toml:"aggregate_path"`

	// Per-thread view: one row per (metric, frame, thread).
	ByThreadPath string `toml:"by_thread_path"`
}

// ServerConfig contains the debug HTTP server settings.
type ServerConfig struct {
	// Enable the debug listener while the recording runs (default: false).
	Enabled bool `toml:"enabled"`

	// Listen address (default: ":9190")
	ListenAddress string `toml:"listen_address"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path"`

	// Enable pprof endpoints on the same listener (default: true)
	PprofEnabled bool `toml:"pprof_enabled"`
}

// LoggingConfig contains the complete logging configuration.
type LoggingConfig struct {
	// Defaults applied to the root logger and inherited by component loggers.
	Defaults LogDefaults `toml:"defaults"`

	// Output destinations. At least one must be enabled.
	Outputs []LogOutput `toml:"outputs"`

	// Log level for the ETW library's internal loggers.
	LibLevel string `toml:"lib_level"`
}

// LogDefaults contains root logger settings.
type LogDefaults struct {
	// Log level: trace, debug, info, warn, error, fatal (default: "info")
	Level string `toml:"level"`

	// Caller reporting depth, 0 disables (default: 0)
	Caller int `toml:"caller"`

	// Field name for the timestamp, empty uses the library default.
	TimeField string `toml:"time_field"`

	// Timestamp format, "Unix", "UnixMs" or a reference layout.
	TimeFormat string `toml:"time_format"`

	// Time zone: "Local", "UTC" or an IANA location name.
	TimeLocation string `toml:"time_location"`
}

// LogOutput describes one log destination.
type LogOutput struct {
	// Output type: "console" or "file".
	Type string `toml:"type"`

	// Whether this output is active.
	Enabled bool `toml:"enabled"`

	Console *ConsoleConfig `toml:"console"`
	File    *FileConfig    `toml:"file"`
}

// ConsoleConfig contains console output settings.
type ConsoleConfig struct {
	// Destination stream: "stdout" or "stderr" (default: "stderr").
	Writer string `toml:"writer"`

	// Colorize output (default: true).
	ColorOutput bool `toml:"color_output"`

	// Quote string values in output.
	QuoteString bool `toml:"quote_string"`

	// Output format: "auto" (colorized), "logfmt" or "json".
	Format string `toml:"format"`

	// Buffer writes through an async writer.
	Async bool `toml:"async"`
}

// FileConfig contains file output settings.
type FileConfig struct {
	Filename     string `toml:"filename"`
	MaxSizeMB    int64  `toml:"max_size_mb"`
	MaxBackups   int    `toml:"max_backups"`
	TimeFormat   string `toml:"time_format"`
	LocalTime    bool   `toml:"local_time"`
	EnsureFolder bool   `toml:"ensure_folder"`
	Async        bool   `toml:"async"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Analysis: AnalysisConfig{
			FrameIntervalMs: 1,
			DurationSeconds: 0,
		},
		Output: OutputConfig{
			AggregatePath: "counterlens_aggregate.csv",
			ByThreadPath:  "counterlens_by_thread.csv",
		},
		Server: ServerConfig{
			Enabled:       false,
			ListenAddress: ":9190",
			MetricsPath:   "/metrics",
			PprofEnabled:  true,
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				Caller:       0,
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						Writer:      "stderr",
						ColorOutput: true,
						Format:      "auto",
					},
				},
			},
			LibLevel: "warn",
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
// when the path is empty or the file does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// A file that configures its own outputs replaces the default set
	// instead of appending to it.
	var probe struct {
		Logging struct {
			Outputs []LogOutput `toml:"outputs"`
		} `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if len(probe.Logging.Outputs) > 0 {
		config.Logging.Outputs = nil
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return config, nil
}

// Validate checks the configuration for errors.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Analysis.ProcessName) == "" {
		return fmt.Errorf("analysis.process_name cannot be empty")
	}
	if c.Analysis.FrameIntervalMs <= 0 {
		return fmt.Errorf("analysis.frame_interval_ms must be positive, got %v", c.Analysis.FrameIntervalMs)
	}
	if c.Analysis.CounterLog == "" {
		return fmt.Errorf("analysis.counter_log cannot be empty")
	}
	if c.Analysis.CounterLogDate != "" {
		if _, err := parseDate(c.Analysis.CounterLogDate); err != nil {
			return fmt.Errorf("analysis.counter_log_date: %w", err)
		}
	}
	if c.Output.AggregatePath == "" && c.Output.ByThreadPath == "" {
		return fmt.Errorf("at least one output path must be set")
	}
	if c.Server.Enabled && c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty when the server is enabled")
	}

	enabledOutputs := 0
	for _, output := range c.Logging.Outputs {
		if !output.Enabled {
			continue
		}
		switch output.Type {
		case "console", "file":
		default:
			return fmt.Errorf("unknown logging output type: %s", output.Type)
		}
		enabledOutputs++
	}
	if enabledOutputs == 0 {
		return fmt.Errorf("at least one logging output must be enabled")
	}

	return nil
}

// SaveConfig saves the configuration to a TOML file.
func SaveConfig(configPath string, config *AppConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// GenerateExampleConfig writes a documented example configuration file.
func GenerateExampleConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer f.Close()

	header := `# Counterlens Example Configuration
#
# Records an ETW kernel trace of the monitored process, ingests the vendor
# hardware counter log, and attributes per-frame counter estimates to the
# threads that ran.

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	example := DefaultConfig()
	example.Analysis.ProcessName = "myapp"
	example.Analysis.CounterLog = "counters.log"

	if err := toml.NewEncoder(f).Encode(example); err != nil {
		return fmt.Errorf("failed to encode example config: %w", err)
	}
	return nil
}
