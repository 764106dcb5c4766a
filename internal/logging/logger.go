package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide logger, set by Init.
var Logger zerolog.Logger

// Config controls log level, destination and rotation.
type Config struct {
	Level      string
	LogDir     string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// DefaultConfig returns the baseline logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// rotatingFile builds a lumberjack writer for name under cfg.LogDir,
// sharing cfg's size/backup/age/compress knobs.
func (cfg Config) rotatingFile(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, name),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

// Init builds the global Logger from cfg: a colored console writer, a
// rotated main log file, and a rotated error-only log file.
func Init(cfg Config) error {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	mainLog := cfg.rotatingFile("ctxpoold.log")
	errorLog := cfg.rotatingFile("ctxpoold_error.log")

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	multi := zerolog.MultiLevelWriter(
		console,
		mainLog,
		&FilteredWriter{Writer: errorLog, MinLevel: zerolog.ErrorLevel},
	)

	Logger = zerolog.New(multi).With().Timestamp().Caller().Logger()
	log.Logger = Logger

	Logger.Info().Str("level", cfg.Level).Str("log_dir", cfg.LogDir).Msg("logging initialized")
	return nil
}

// FilteredWriter drops entries below MinLevel in WriteLevel, which
// zerolog (and zerolog.MultiLevelWriter) calls on LevelWriters. Write
// carries no level and passes every entry through unfiltered.
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

func (w *FilteredWriter) Write(p []byte) (int, error) {
	return w.Writer.Write(p)
}

func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level >= w.MinLevel {
		return w.Writer.Write(p)
	}
	return len(p), nil
}

func Info(msg string)                           { Logger.Info().Msg(msg) }
func Infof(format string, args ...interface{})  { Logger.Info().Msgf(format, args...) }
func Warn(msg string)                           { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...interface{})  { Logger.Warn().Msgf(format, args...) }
func Error(err error, msg string)                { Logger.Error().Err(err).Msg(msg) }
func Errorf(format string, args ...interface{}) { Logger.Error().Msgf(format, args...) }
func Debug(msg string)                          { Logger.Debug().Msg(msg) }
func Debugf(format string, args ...interface{}) { Logger.Debug().Msgf(format, args...) }
func Fatal(err error, msg string)                { Logger.Fatal().Err(err).Msg(msg) }

// WithContext returns a logger scoped to one pool context, so every
// line it produces carries context_id without the caller having to
// repeat it in every message. Pool code logs persisted-context
// restore, meta-save failures and consecutive-error recreation through
// this instead of the bare package-level helpers.
func WithContext(contextID string) *zerolog.Logger {
	l := Logger.With().Str("context_id", contextID).Logger()
	return &l
}

// WithGeneration returns a logger scoped to one browser generation,
// for the whole-browser restart protocol where every context created
// or dropped during a restart attempt should be attributable to the
// generation that produced it.
func WithGeneration(generation uint64) *zerolog.Logger {
	l := Logger.With().Uint64("generation", generation).Logger()
	return &l
}
