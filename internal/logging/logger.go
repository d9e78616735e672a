// Package logging provides the structured logger used across the collection
// framework, the HTTP client, persistence, and the scheduler.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger so the rest of the codebase depends on this
// package instead of logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config controls level, format, and output of a Logger.
type Config struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "datahub"
		}
		if err := os.MkdirAll("logs", 0o755); err != nil {
			l.Errorf("failed to create logs directory: %v", err)
			break
		}
		path := filepath.Join("logs", prefix+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			l.Errorf("failed to open log file: %v", err)
			break
		}
		l.SetOutput(io.MultiWriter(os.Stdout, f))
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

// NewDefault builds a Logger with sane defaults, tagging every entry with
// the owning component name.
func NewDefault(component string) *Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stdout)
	if component != "" {
		l.AddHook(staticFieldHook{fields: logrus.Fields{"component": component}})
	}
	return &Logger{Logger: l}
}

// staticFieldHook injects the same fields into every log entry. Used to tag
// a Logger with its owning component without forking logrus.Entry state.
type staticFieldHook struct {
	fields logrus.Fields
}

func (h staticFieldHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h staticFieldHook) Fire(e *logrus.Entry) error {
	for k, v := range h.fields {
		if _, exists := e.Data[k]; !exists {
			e.Data[k] = v
		}
	}
	return nil
}
