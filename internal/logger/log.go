package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"counterlens/internal/config"

	"github.com/phuslu/log"
	"github.com/tekert/goetw/etw"
)

// parseLogLevel converts a string log level to log.Level.
func parseLogLevel(levelStr string) log.Level {
	switch levelStr {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// parseTimeLocation parses a time location string.
func parseTimeLocation(location string) *time.Location {
	switch location {
	case "Local":
		return time.Local
	case "UTC":
		return time.UTC
	default:
		if loc, err := time.LoadLocation(location); err == nil {
			return loc
		}
		return time.Local
	}
}

// mapTimeFormat maps a string time format to a log.TimeFormat.
func mapTimeFormat(format string) string {
	switch format {
	case "Unix":
		return log.TimeFormatUnix
	case "UnixMs":
		return log.TimeFormatUnixMs
	default:
		return format
	}
}

// createConsoleWriter creates a console writer based on configuration.
func createConsoleWriter(cfg *config.ConsoleConfig) (log.Writer, error) {
	var baseWriter *os.File
	switch cfg.Writer {
	case "stdout":
		baseWriter = os.Stdout
	default:
		baseWriter = os.Stderr
	}

	var writer log.Writer
	switch cfg.Format {
	case "json":
		writer = &log.IOWriter{Writer: baseWriter}
	case "logfmt":
		writer = &log.ConsoleWriter{
			ColorOutput:    cfg.ColorOutput,
			QuoteString:    cfg.QuoteString,
			EndWithMessage: true,
			Writer:         baseWriter,
			Formatter:      log.LogfmtFormatter{TimeField: "time"}.Formatter,
		}
	default:
		writer = &log.ConsoleWriter{
			ColorOutput:    cfg.ColorOutput,
			QuoteString:    cfg.QuoteString,
			EndWithMessage: true,
			Writer:         baseWriter,
		}
	}

	if cfg.Async {
		return &log.AsyncWriter{
			ChannelSize: 4096,
			Writer:      writer,
		}, nil
	}
	return writer, nil
}

// createFileWriter creates a file writer based on configuration.
func createFileWriter(cfg *config.FileConfig) (log.Writer, error) {
	if cfg.EnsureFolder {
		dir := filepath.Dir(cfg.Filename)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	baseWriter := &log.FileWriter{
		Filename:     cfg.Filename,
		FileMode:     0644,
		MaxSize:      cfg.MaxSizeMB * 1024 * 1024,
		MaxBackups:   cfg.MaxBackups,
		TimeFormat:   mapTimeFormat(cfg.TimeFormat),
		LocalTime:    cfg.LocalTime,
		EnsureFolder: cfg.EnsureFolder,
	}

	if cfg.Async {
		return &log.AsyncWriter{
			ChannelSize: 4096,
			Writer:      baseWriter,
		}, nil
	}
	return baseWriter, nil
}

// createWriter creates a log.Writer for one output configuration.
func createWriter(output config.LogOutput) (log.Writer, error) {
	if !output.Enabled {
		return nil, nil
	}

	switch output.Type {
	case "console":
		if output.Console == nil {
			return nil, fmt.Errorf("console output missing console configuration")
		}
		return createConsoleWriter(output.Console)

	case "file":
		if output.File == nil {
			return nil, fmt.Errorf("file output missing file configuration")
		}
		return createFileWriter(output.File)

	default:
		return nil, fmt.Errorf("unknown output type: %s", output.Type)
	}
}

// createMultiWriter creates a writer that fans out to all enabled outputs.
func createMultiWriter(outputs []config.LogOutput) (log.Writer, error) {
	var writers []log.Writer

	for _, output := range outputs {
		writer, err := createWriter(output)
		if err != nil {
			return nil, err
		}
		if writer != nil {
			writers = append(writers, writer)
		}
	}

	if len(writers) == 0 {
		// Fallback to stderr if no writers are configured.
		return &log.IOWriter{Writer: os.Stderr}, nil
	}
	if len(writers) == 1 {
		return writers[0], nil
	}

	multiWriter := log.MultiEntryWriter(writers)
	return &multiWriter, nil
}

// ConfigureLogging configures the global DefaultLogger from user configuration.
// Component loggers created afterwards inherit these settings.
func ConfigureLogging(cfg config.LoggingConfig) error {
	multiWriter, err := createMultiWriter(cfg.Outputs)
	if err != nil {
		return err
	}

	log.DefaultLogger = log.Logger{
		Level:        parseLogLevel(cfg.Defaults.Level),
		Caller:       cfg.Defaults.Caller,
		TimeField:    cfg.Defaults.TimeField,
		TimeFormat:   mapTimeFormat(cfg.Defaults.TimeFormat),
		TimeLocation: parseTimeLocation(cfg.Defaults.TimeLocation),
		Writer:       multiWriter,
	}

	if err := configureETWLibraryLogger(cfg.LibLevel, multiWriter); err != nil {
		return fmt.Errorf("failed to configure ETW library logging: %w", err)
	}

	log.Debug().
		Str("app_level", cfg.Defaults.Level).
		Str("lib_level", cfg.LibLevel).
		Int("outputs", len(cfg.Outputs)).
		Msg("Loggers configured")

	return nil
}

// NewLoggerWithContext creates a new logger by copying the global
// DefaultLogger and adding component-specific context. Call after
// ConfigureLogging so the configured settings are inherited.
func NewLoggerWithContext(component string) log.Logger {
	bl := &log.DefaultLogger
	return log.Logger{
		Level:        bl.Level,
		Caller:       0, // Disable caller for component loggers to avoid confusion
		TimeField:    bl.TimeField,
		TimeFormat:   bl.TimeFormat,
		TimeLocation: bl.TimeLocation,
		Writer:       bl.Writer,
		Context:      log.NewContext(bl.Context).Str("component", component).Value(),
	}
}

// configureETWLibraryLogger routes the ETW library's internal loggers to the
// shared writer at their own level.
func configureETWLibraryLogger(level string, sharedWriter log.Writer) error {
	lm := etw.GetLogManager()
	ctx := log.NewContext(nil).Str("source", "etw-lib").Value()
	levels := map[etw.LoggerName]log.Level{
		etw.ConsumerLogger: parseLogLevel(level),
		etw.SessionLogger:  parseLogLevel(level),
		etw.DefaultLogger:  parseLogLevel(level),
	}
	lm.SetLogLevels(levels)
	lm.SetBaseContext(ctx)
	lm.SetWriter(sharedWriter)
	return nil
}
