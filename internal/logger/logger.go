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

// Package logger wraps log/slog with the severity levels and text/json
// formats envfs' operators expect, optionally writing through lumberjack
// for on-disk rotation.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mic92/envfs/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// These levels map our five severities onto slog's level space, placing
// TRACE four integer levels below slog.LevelDebug.
const (
	levelTrace = slog.Level(-8)
	levelDebug = slog.LevelDebug
	levelInfo  = slog.LevelInfo
	levelWarn  = slog.LevelWarn
	levelError = slog.LevelError
)

var severityToLevel = map[config.Severity]slog.Level{
	config.TRACE:   levelTrace,
	config.DEBUG:   levelDebug,
	config.INFO:    levelInfo,
	config.WARNING: levelWarn,
	config.ERROR:   levelError,
}

var levelToName = map[slog.Level]string{
	levelTrace: "TRACE",
	levelDebug: "DEBUG",
	levelInfo:  "INFO",
	levelWarn:  "WARNING",
	levelError: "ERROR",
}

type loggerFactory struct {
	format string // "text" or "json"
	prefix string
}

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	if f.format == "json" {
		return &jsonHandler{w: w, level: level, prefix: prefix}
	}
	return &textHandler{w: w, level: level, prefix: prefix}
}

var (
	defaultLoggerFactory = &loggerFactory{format: "text"}
	programLevel         = new(slog.LevelVar)
	defaultLogger        = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, programLevel, ""))
)

func setLoggingLevel(severity config.Severity, v *slog.LevelVar) {
	if severity == config.OFF {
		v.Set(slog.Level(100)) // above ERROR, nothing passes
		return
	}
	v.Set(severityToLevel[severity])
}

// Init (re)configures the default logger: output destination, format and
// severity. A non-empty logFile switches to a rotating lumberjack writer.
func Init(format string, severity config.Severity, logFile string) error {
	defaultLoggerFactory = &loggerFactory{format: format}
	setLoggingLevel(severity, programLevel)

	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(w, programLevel, ""))
	return nil
}

func Tracef(format string, v ...any) { logAt(levelTrace, format, v...) }
func Debugf(format string, v ...any) { logAt(levelDebug, format, v...) }
func Infof(format string, v ...any)  { logAt(levelInfo, format, v...) }
func Warnf(format string, v ...any)  { logAt(levelWarn, format, v...) }
func Errorf(format string, v ...any) { logAt(levelError, format, v...) }

func Info(msg string)  { logAt(levelInfo, "%s", msg) }
func Warn(msg string)  { logAt(levelWarn, "%s", msg) }
func Error(msg string) { logAt(levelError, "%s", msg) }

func logAt(level slog.Level, format string, v ...any) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	msg := fmt.Sprintf(format, v...)
	defaultLogger.Log(context.Background(), level, msg)
}

////////////////////////////////////////////////////////////////////////
// Minimal handlers: text ("time=... severity=... message=...") and json
// ({"timestamp":{...},"severity":"...","message":"..."}).
////////////////////////////////////////////////////////////////////////

type textHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	sev := levelToName[r.Level]
	if sev == "" {
		sev = "INFO"
	}
	_, err := fmt.Fprintf(h.w, "time=%q severity=%s message=%q\n",
		r.Time.Format("2006/01/02 15:04:05.000000"), sev, h.prefix+r.Message)
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }

type jsonHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

type jsonTimestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int64 `json:"nanos"`
}

type jsonRecord struct {
	Timestamp jsonTimestamp `json:"timestamp"`
	Severity  string        `json:"severity"`
	Message   string        `json:"message"`
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *jsonHandler) Handle(_ context.Context, r slog.Record) error {
	sev := levelToName[r.Level]
	if sev == "" {
		sev = "INFO"
	}
	rec := jsonRecord{
		Timestamp: jsonTimestamp{Seconds: r.Time.Unix(), Nanos: int64(r.Time.Nanosecond())},
		Severity:  sev,
		Message:   h.prefix + r.Message,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = h.w.Write(b)
	return err
}

func (h *jsonHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *jsonHandler) WithGroup(_ string) slog.Handler      { return h }
