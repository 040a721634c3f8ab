package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"tarpit/pkg/models"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl   zerolog.Logger
	file *os.File
}

func NewLogger(cfg *models.LogConfig) (*Logger, error) {
	var writers []io.Writer

	if cfg.ToStdout {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		})
	}

	var file *os.File
	if cfg.ToFile {
		if cfg.FilePath == "" {
			cfg.FilePath = "tarpit.log"
		}
		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		file = f
		writers = append(writers, f)
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	level := zerolog.InfoLevel
	if cfg.DebugEnabled {
		level = zerolog.DebugLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Prefix != "" {
		ctx = ctx.Str("service", cfg.Prefix)
	}

	return &Logger{
		zl:   ctx.Logger(),
		file: file,
	}, nil
}

func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

func (l *Logger) Warn(msg string) {
	l.zl.Warn().Msg(msg)
}

func (l *Logger) Debug(msg string) {
	l.zl.Debug().Msg(msg)
}

func (l *Logger) Error(msg string) {
	l.zl.Error().Msg(msg)
}

// Printf satisfies fasthttp.Logger. fasthttp reports per-connection failures
// here, mostly clients hanging up on a stalled download, so they stay at warn.
func (l *Logger) Printf(format string, args ...any) {
	l.zl.Warn().Str("source", "fasthttp").Msg(fmt.Sprintf(format, args...))
}

func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
