// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log is a small leveled logger, in the spirit of the Kratos-style
// logger the teacher threads through its File type as
// github.com/saferwall/pe/log. It exists so that non-fatal parsing
// anomalies can be reported without forcing every consumer onto a
// specific logging framework.
package log

import (
	"fmt"
	"io"
	"os"
)

// Level is the severity of a log record.
type Level int

// Recognized levels, from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal sink interface collaborators can implement to
// plug their own logging framework into a Context.
type Logger interface {
	Log(level Level, msg string) error
}

// stdLogger writes leveled lines to an io.Writer.
type stdLogger struct {
	w io.Writer
}

// NewStdLogger returns a Logger that writes "LEVEL msg" lines to w.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{w: w}
}

func (l *stdLogger) Log(level Level, msg string) error {
	_, err := fmt.Fprintf(l.w, "%s %s\n", level, msg)
	return err
}

// filter drops records below a minimum level before forwarding them.
type filter struct {
	next Logger
	min  Level
}

// FilterOption configures a filter.
type FilterOption func(*filter)

// FilterLevel sets the minimum level a filtered logger will forward.
func FilterLevel(min Level) FilterOption {
	return func(f *filter) { f.min = min }
}

// NewFilter wraps next with level filtering.
func NewFilter(next Logger, opts ...FilterOption) Logger {
	f := &filter{next: next, min: LevelError}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *filter) Log(level Level, msg string) error {
	if level < f.min {
		return nil
	}
	return f.next.Log(level, msg)
}

// Helper adds printf-style convenience methods over a Logger.
type Helper struct {
	logger Logger
}

// NewHelper wraps logger in a Helper.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

func (h *Helper) log(level Level, format string, args ...interface{}) {
	if h == nil || h.logger == nil {
		return
	}
	_ = h.logger.Log(level, fmt.Sprintf(format, args...))
}

// Debugf logs at LevelDebug.
func (h *Helper) Debugf(format string, args ...interface{}) { h.log(LevelDebug, format, args...) }

// Infof logs at LevelInfo.
func (h *Helper) Infof(format string, args ...interface{}) { h.log(LevelInfo, format, args...) }

// Warnf logs at LevelWarn.
func (h *Helper) Warnf(format string, args ...interface{}) { h.log(LevelWarn, format, args...) }

// Errorf logs at LevelError.
func (h *Helper) Errorf(format string, args ...interface{}) { h.log(LevelError, format, args...) }

// Warn logs a single message at LevelWarn.
func (h *Helper) Warn(msg string) { h.log(LevelWarn, "%s", msg) }

// DefaultHelper returns a Helper over a stderr logger filtered at LevelError,
// the default a Context uses when no Logger option is supplied.
func DefaultHelper() *Helper {
	return NewHelper(NewFilter(NewStdLogger(os.Stderr), FilterLevel(LevelError)))
}
