// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger is the structured leveled logger shared by every
// component. It never exposes the underlying slog.Logger directly so the
// rest of the module logs through Tracef/Debugf/Infof/Warnf/Errorf only.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, expressed as slog.Level so TRACE/DEBUG can sit below the
// stdlib's own Debug/Info without colliding with library log output.
const (
	LevelTrace slog.Level = -8
	LevelDebug slog.Level = slog.LevelDebug
	LevelInfo  slog.Level = slog.LevelInfo
	LevelWarn  slog.Level = slog.LevelWarn
	LevelError slog.Level = slog.LevelError
	LevelOff   slog.Level = 100
)

// Severity names accepted in configuration, mirroring cfg.Config.Logging.Severity.
const (
	SeverityTrace = "trace"
	SeverityDebug = "debug"
	SeverityInfo  = "info"
	SeverityWarn  = "warning"
	SeverityError = "error"
	SeverityOff   = "off"
)

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

func levelForSeverity(severity string) slog.Level {
	switch severity {
	case SeverityTrace:
		return LevelTrace
	case SeverityDebug:
		return LevelDebug
	case SeverityInfo:
		return LevelInfo
	case SeverityWarn:
		return LevelWarn
	case SeverityError:
		return LevelError
	case SeverityOff:
		return LevelOff
	default:
		return LevelInfo
	}
}

// loggerFactory owns the sink (stderr, a rotating file, or a test buffer)
// and the wire format (text or json) for the process-wide default logger.
type loggerFactory struct {
	mu       sync.Mutex
	sink     io.Writer
	rotator  *lumberjack.Logger
	format   string // "text" or "json"
	extra    []io.Writer
	levelVar *slog.LevelVar
}

func newLoggerFactory() *loggerFactory {
	return &loggerFactory{
		sink:     os.Stderr,
		format:   "text",
		levelVar: new(slog.LevelVar),
	}
}

func (f *loggerFactory) writer() io.Writer {
	if len(f.extra) == 0 {
		return f.sink
	}
	writers := append([]io.Writer{f.sink}, f.extra...)
	return io.MultiWriter(writers...)
}

func (f *loggerFactory) createHandler() slog.Handler {
	return &semanticHandler{format: f.format, w: f.writer(), level: f.levelVar}
}

var (
	defaultLoggerFactory = newLoggerFactory()
	defaultLogger        = slog.New(defaultLoggerFactory.createHandler())
	loggerMu             sync.Mutex
)

// SetLoggingLevel updates the process-wide minimum severity.
func SetLoggingLevel(severity string) {
	defaultLoggerFactory.mu.Lock()
	defer defaultLoggerFactory.mu.Unlock()
	defaultLoggerFactory.levelVar.Set(levelForSeverity(severity))
}

// SetLogFormat switches the default logger between "text" and "json"
// rendering. An unrecognized format falls back to json.
func SetLogFormat(format string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if format != "text" {
		format = "json"
	}
	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.format = format
	defaultLoggerFactory.mu.Unlock()

	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
}

// InitLogFile redirects the default logger at a rotating file sink, the way
// a long-running mount daemon keeps its logs off of the controlling
// terminal. maxSizeMB/backups/compress follow lumberjack's own semantics.
func InitLogFile(path string, maxSizeMB, backups int, compress bool) error {
	if path == "" {
		return nil
	}

	rotator := &lumberjack.Logger{
		Filename: path,
		MaxSize:  maxSizeMB,
		MaxBackups: backups,
		Compress: compress,
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()

	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.rotator = rotator
	defaultLoggerFactory.sink = rotator
	defaultLoggerFactory.mu.Unlock()

	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
	return nil
}

// AddWriter fans default-logger output out to an additional sink (e.g. a
// test buffer or an auxiliary pipe), without disturbing the primary sink.
func AddWriter(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	defaultLoggerFactory.mu.Lock()
	defaultLoggerFactory.extra = append(defaultLoggerFactory.extra, w)
	defaultLoggerFactory.mu.Unlock()

	defaultLogger = slog.New(defaultLoggerFactory.createHandler())
}

func logf(level slog.Level, format string, v ...interface{}) {
	loggerMu.Lock()
	l := defaultLogger
	loggerMu.Unlock()

	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...interface{}) { logf(LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

// semanticHandler renders one line per record as either
//
//	time="2006/01/02 15:04:05.000000" severity=INFO message="..."
//
// or, in json mode,
//
//	{"timestamp":{"seconds":N,"nanos":N},"severity":"INFO","message":"..."}
//
// matching the wire format this module's operators already parse with their
// existing log-shipping pipelines.
type semanticHandler struct {
	format string
	w      io.Writer
	level  *slog.LevelVar
}

func (h *semanticHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *semanticHandler) Handle(_ context.Context, r slog.Record) error {
	sev := severityName(r.Level)

	if h.format == "text" {
		line := fmt.Sprintf("time=%q severity=%s message=%q\n", r.Time.Format("2006/01/02 15:04:05.000000"), sev, r.Message)
		_, err := io.WriteString(h.w, line)
		return err
	}

	payload := struct {
		Timestamp struct {
			Seconds int64 `json:"seconds"`
			Nanos   int64 `json:"nanos"`
		} `json:"timestamp"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	}{
		Severity: sev,
		Message:  r.Message,
	}
	payload.Timestamp.Seconds = r.Time.Unix()
	payload.Timestamp.Nanos = int64(r.Time.Nanosecond())

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = h.w.Write(b)
	return err
}

func (h *semanticHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *semanticHandler) WithGroup(_ string) slog.Handler      { return h }
