// Package helixlog provides structured logging for HelixDB using zerolog.
//
// A single global Logger is initialized once via Init and shared by every
// subsystem. Component loggers (WithComponent, WithQuery, WithTxn) attach
// context fields without threading a logger through every call.
package helixlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance, safe for concurrent use.
var Logger zerolog.Logger

// Level mirrors the configurable severities accepted by Init.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from cfg. Call once at process start,
// before any component logger is constructed.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	// Usable before Init is called (e.g. in unit tests).
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with a subsystem name, e.g.
// "storage", "hnsw", "bm25", "compiler", "handler".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithQuery returns a child logger tagged with the compiled query name
// currently executing.
func WithQuery(name string) zerolog.Logger {
	return Logger.With().Str("query", name).Logger()
}

// WithTxn returns a child logger tagged with a transaction id, useful for
// correlating a write transaction's lifecycle across log lines.
func WithTxn(txnID string) zerolog.Logger {
	return Logger.With().Str("txn", txnID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}
