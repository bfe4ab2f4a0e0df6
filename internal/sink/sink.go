// Package sink owns one bot's on-disk artifacts: a JSON log and a caption
// transcript, both named after the start time and bot id.
package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"captionbot/agent/internal/types"
)

const stampLayout = "20060102-150405"

type Sink struct {
	logPath        string
	transcriptPath string
	logger         *slog.Logger

	mu         sync.Mutex
	logFile    *os.File
	stdout     io.Writer
	transcript *os.File
	closed     bool
}

// Open creates <dir>/logs/<stamp>_<botID>.log and returns a Sink whose
// logger writes JSON records there and to stdout. The transcript file is
// created on the first caption.
func Open(dir, botID string, level slog.Level, started time.Time, stdout io.Writer) (*Sink, error) {
	stamp := started.Format(stampLayout)
	s := &Sink{
		logPath:        filepath.Join(dir, "logs", stamp+"_"+botID+".log"),
		transcriptPath: filepath.Join(dir, "transcripts", stamp+"_"+botID+".txt"),
	}
	f, err := openAppend(s.logPath)
	if err != nil {
		return nil, err
	}
	s.logFile, s.stdout = f, stdout
	h := slog.NewJSONHandler(logWriter{s}, &slog.HandlerOptions{Level: level})
	s.logger = slog.New(h).With("service", "captionbot", "botId", botID)
	return s, nil
}

// logWriter sends each record to stdout and, until Close, to the log file.
// Records logged during and after shutdown still reach stdout.
type logWriter struct{ s *Sink }

func (w logWriter) Write(p []byte) (int, error) {
	s := w.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.stdout != nil {
		if _, err := s.stdout.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	if !s.closed {
		if _, err := s.logFile.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}
	return len(p), nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func (s *Sink) Logger() *slog.Logger { return s.logger }

func (s *Sink) LogPath() string        { return s.logPath }
func (s *Sink) TranscriptPath() string { return s.transcriptPath }

// WriteCaption appends "[hh:mm:ss] speaker: text" to the transcript.
func (s *Sink) WriteCaption(c types.Caption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	if s.transcript == nil {
		f, err := openAppend(s.transcriptPath)
		if err != nil {
			return err
		}
		s.transcript = f
	}
	speaker := c.Speaker
	if speaker == "" {
		speaker = "unknown"
	}
	text := strings.ReplaceAll(c.Text, "\n", " ")
	_, err := fmt.Fprintf(s.transcript, "[%s] %s: %s\n", c.CapturedAt.Format("15:04:05"), speaker, text)
	return err
}

// Close flushes and closes both files. Later calls are no-ops.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.transcript != nil {
		errs = append(errs, s.transcript.Close())
	}
	errs = append(errs, s.logFile.Close())
	return errors.Join(errs...)
}

// ParseLevel maps debug/info/warn/error onto slog levels, defaulting to info.
func ParseLevel(v string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return slog.LevelInfo
	}
	return l
}
