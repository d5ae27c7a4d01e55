// Package logging wraps logrus the way the rest of the platform does:
// a thin struct embedding *logrus.Logger, configured from Config.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with the service's field conventions.
type Logger struct {
	*logrus.Logger
}

// Config controls level, format and destination.
type Config struct {
	Level      string `env:"LOG_LEVEL"`
	Format     string `env:"LOG_FORMAT"`
	Output     string `env:"LOG_OUTPUT"`
	FilePrefix string `env:"LOG_FILE_PREFIX"`
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "social"
		}
		if mkErr := os.MkdirAll("logs", 0o755); mkErr == nil {
			path := filepath.Join("logs", prefix+".log")
			if f, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); openErr == nil {
				logger.SetOutput(f)
			}
		}
	default:
		logger.SetOutput(os.Stdout)
	}

	return &Logger{Logger: logger}
}

// NewDefault returns an info-level, text-formatted logger writing to stdout.
func NewDefault(service string) *Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stdout)
	return &Logger{Logger: logger}
}

// WithField is a convenience passthrough.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields is a convenience passthrough.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}
