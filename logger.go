// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package modbus

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel is the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // disables logging entirely
)

var levelName = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

// SimpleLogger is the leveled logger the client, worker and dispatcher
// write through; the byte stream adapters do not log. It wraps an injected io.Writer the way the rest of this
// codebase wraps injected collaborators (ByteStream, RTS callback) instead
// of reaching for a package-global logger.
type SimpleLogger struct {
	mu     sync.Mutex
	level  LogLevel
	output io.Writer
	prefix string
}

// NewSimpleLogger creates a logger writing lines at or above level to
// output. A nil output defaults to os.Stdout.
func NewSimpleLogger(output io.Writer, level LogLevel) *SimpleLogger {
	if output == nil {
		output = os.Stdout
	}
	return &SimpleLogger{level: level, output: output}
}

// SetPrefix tags every subsequent line, e.g. with the client's transport
// name.
func (l *SimpleLogger) SetPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefix = prefix
}

// SetLevel changes the minimum level that is written.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *SimpleLogger) logf(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level || l.level == LevelNone {
		return
	}
	ts := time.Now().Format(time.RFC3339)
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		fmt.Fprintf(l.output, "%s [%s] <%s> %s\n", ts, levelName[level], l.prefix, msg)
		return
	}
	fmt.Fprintf(l.output, "%s [%s] %s\n", ts, levelName[level], msg)
}

func (l *SimpleLogger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *SimpleLogger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *SimpleLogger) Warnf(format string, args ...any)  { l.logf(LevelWarning, format, args...) }
func (l *SimpleLogger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// nopLogger is used when a client is constructed without an explicit
// logger, so call sites never need a nil check.
var nopLogger = NewSimpleLogger(io.Discard, LevelNone)
