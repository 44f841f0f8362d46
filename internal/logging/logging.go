package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger writes to stdout and a rotating file under the log directory.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// New creates a Logger logging at level into dir.
func New(dir, level string) (*Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "emission-service.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 7,
		MaxAge:     28, // days
		Compress:   true,
	}
	l, err := NewWriter(io.MultiWriter(os.Stdout, file), level)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	l.file = file
	return l, nil
}

// NewWriter creates a Logger writing only to w.
func NewWriter(w io.Writer, level string) (*Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(lvl)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &Logger{Logger: base}, nil
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	l, _ := NewWriter(io.Discard, "panic")
	return l
}

// WithRequest tags entries with a request id.
func (l *Logger) WithRequest(requestID string) *logrus.Entry {
	return l.WithField("request_id", requestID)
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
