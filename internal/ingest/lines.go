package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"emission-service/internal/apperr"
	"emission-service/internal/logging"
	"emission-service/internal/utils"
)

// Submitter queues validated records; *Pipeline implements it.
type Submitter interface {
	Submit(ctx context.Context, rec Record) (string, error)
}

const (
	// maxLineSize bounds one JSON line.
	maxLineSize = 1 << 20

	submitAttempts   = 3
	submitRetryDelay = 500 * time.Millisecond
)

// LineStats counts the outcome of ReadLines.
type LineStats struct {
	Queued  int
	Skipped int
}

// ReadLines reads line-delimited JSON records from r and submits each one.
// Malformed or rejected lines are logged and skipped; retryable rejections
// such as an unreachable store are retried first. It stops at EOF, on a read
// error or as soon as ctx is done, even while r blocks. The reading goroutine
// may stay parked in r until the caller closes it.
func ReadLines(ctx context.Context, r io.Reader, sub Submitter, logger *logging.Logger) (LineStats, error) {
	var stats LineStats
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	lineNo := 0
	for {
		var text string
		var ok bool
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case text, ok = <-lines:
		}
		if !ok {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, <-scanErr
		}
		lineNo++
		line := strings.TrimSpace(text)
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logger.Warnf("Skipping malformed line %d: %v", lineNo, err)
			stats.Skipped++
			continue
		}
		if err := submit(ctx, sub, rec, logger); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logger.Warnf("Skipping line %d (sensor %q): %v", lineNo, rec.SensorID, err)
			stats.Skipped++
			continue
		}
		stats.Queued++
	}
}

func submit(ctx context.Context, sub Submitter, rec Record, logger *logging.Logger) error {
	return utils.Retry(ctx, logger, submitAttempts, submitRetryDelay, func() error {
		_, err := sub.Submit(ctx, rec)
		if err != nil && !apperr.Retryable(err) {
			return utils.Permanent(err)
		}
		return err
	})
}

// OpenSource opens path for ReadLines; "-" means standard input. Closing
// the result closes standard input too, which unblocks a pending read.
func OpenSource(path string) (io.ReadCloser, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}
