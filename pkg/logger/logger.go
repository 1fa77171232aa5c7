// Package logger wraps logrus with the configuration surface used across the
// platform: leveled structured logging, JSON or text output, and optional
// time-bucketed log files.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout, stderr, or file
	// FilePrefix is the path prefix for rotated log files when Output is
	// "file". Files rotate every four hours.
	FilePrefix string
}

// Logger is a structured logger bound to a component name.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger from the supplied configuration.
func New(cfg LoggingConfig) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(strings.TrimSpace(strings.ToLower(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.TrimSpace(strings.ToLower(cfg.Format)) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	switch strings.TrimSpace(strings.ToLower(cfg.Output)) {
	case "stderr":
		base.SetOutput(os.Stderr)
	case "file":
		if cfg.FilePrefix != "" {
			base.SetOutput(newRotatingWriter(cfg.FilePrefix, 4*time.Hour))
		} else {
			base.SetOutput(os.Stdout)
		}
	default:
		base.SetOutput(os.Stdout)
	}

	return &Logger{entry: logrus.NewEntry(base)}
}

// NewDefault returns an info-level JSON logger tagged with a component name.
func NewDefault(component string) *Logger {
	log := New(LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
	return log.WithField("component", component)
}

// WithField returns a logger carrying an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a logger carrying additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError returns a logger carrying an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// SetOutput redirects the underlying logger output.
func (l *Logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// rotatingWriter appends to prefix-stamped files, opening a new file whenever
// the current time crosses a bucket boundary.
type rotatingWriter struct {
	mu     sync.Mutex
	prefix string
	bucket time.Duration
	file   *os.File
	opened time.Time
	now    func() time.Time
}

func newRotatingWriter(prefix string, bucket time.Duration) *rotatingWriter {
	if bucket <= 0 {
		bucket = 4 * time.Hour
	}
	return &rotatingWriter{prefix: prefix, bucket: bucket, now: time.Now}
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if w.file == nil || now.Truncate(w.bucket) != w.opened {
		if w.file != nil {
			_ = w.file.Close()
			w.file = nil
		}
		start := now.Truncate(w.bucket)
		path := fmt.Sprintf("%s-%s.log", w.prefix, start.Format("20060102-15"))
		if dir := filepath.Dir(path); dir != "." {
			_ = os.MkdirAll(dir, 0o750)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			// Fall back to stderr rather than dropping log lines.
			return os.Stderr.Write(p)
		}
		w.file = f
		w.opened = start
	}
	return w.file.Write(p)
}
