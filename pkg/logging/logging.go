// Package logging builds the shared structured logger for tunnel-server and
// tunnel-agent: JSON output to stdout or to a file, with optional daily or
// hourly rotation driven by the [logging] config section.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// New builds a *slog.Logger per the [logging] section: level, an optional
// output file, and rotation period ("daily" or "hourly"; ignored when file
// is empty). The returned close func flushes and closes the underlying
// file, if any; callers should defer it.
func New(level, file, rotation string) (*slog.Logger, func() error, error) {
	var w interface {
		Write([]byte) (int, error)
	}
	closeFn := func() error { return nil }

	if file == "" {
		w = os.Stdout
	} else {
		rw, err := newRotatingWriter(file, rotation)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = rw
		closeFn = rw.Close
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(handler), closeFn, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rotatingWriter reopens its underlying file when the rotation period
// boundary (day or hour) is crossed, appending the period's timestamp to
// the configured file name.
type rotatingWriter struct {
	mu       sync.Mutex
	basePath string
	rotation string
	current  *os.File
	periodAt time.Time
}

func newRotatingWriter(basePath, rotation string) (*rotatingWriter, error) {
	rw := &rotatingWriter{basePath: basePath, rotation: rotation}
	if err := rw.rotate(time.Now()); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *rotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	now := time.Now()
	if rw.needsRotation(now) {
		if err := rw.rotate(now); err != nil {
			return 0, err
		}
	}
	return rw.current.Write(p)
}

func (rw *rotatingWriter) needsRotation(now time.Time) bool {
	switch rw.rotation {
	case "hourly":
		return now.Truncate(time.Hour).After(rw.periodAt)
	case "daily":
		return now.Truncate(24 * time.Hour).After(rw.periodAt)
	default:
		return false
	}
}

func (rw *rotatingWriter) rotate(now time.Time) error {
	if rw.current != nil {
		_ = rw.current.Close()
	}

	path := rw.basePath
	switch rw.rotation {
	case "hourly":
		rw.periodAt = now.Truncate(time.Hour)
		path = fmt.Sprintf("%s.%s", rw.basePath, rw.periodAt.Format("2006-01-02-15"))
	case "daily":
		rw.periodAt = now.Truncate(24 * time.Hour)
		path = fmt.Sprintf("%s.%s", rw.basePath, rw.periodAt.Format("2006-01-02"))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	rw.current = f
	return nil
}

// Close closes the underlying file.
func (rw *rotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.current == nil {
		return nil
	}
	return rw.current.Close()
}
