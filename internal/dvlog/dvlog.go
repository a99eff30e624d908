/*************************************************************************
 * Copyright 2024 divertengine authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package dvlog provides the engine's internal structured logger and the
// three-sink message fan-out consumed by embedders (spec.md §6, "Message
// callbacks").
package dvlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level controls the minimum severity written by a Logger.
type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return `DEBUG`
	case INFO:
		return `INFO`
	case WARN:
		return `WARN`
	case ERROR:
		return `ERROR`
	case CRITICAL:
		return `CRITICAL`
	}
	return `OFF`
}

// ParseLevel maps a config string to a Level, defaulting to ERROR on an
// unrecognized value.
func ParseLevel(s string) Level {
	switch s {
	case `DEBUG`:
		return DEBUG
	case `INFO`:
		return INFO
	case `WARN`:
		return WARN
	case `ERROR`:
		return ERROR
	case `CRITICAL`:
		return CRITICAL
	case `OFF`:
		return OFF
	}
	return ERROR
}

// Sinks is the embedder's three message callbacks (info/warn/error), each
// receiving a fully formatted UTF-8 line. A nil func is simply not invoked.
// This is the function-value replacement for the original's
// EventReporter base class (spec.md §9).
type Sinks struct {
	OnInfo  func([]byte)
	OnWarn  func([]byte)
	OnError func([]byte)
}

// Logger writes leveled, RFC5424-framed lines to an internal writer and
// mirrors info/warn/error lines out to an attached Sinks, mirroring the
// teacher's Relay fan-out (ingest/log.Logger).
type Logger struct {
	mtx      sync.Mutex
	wtr      io.Writer
	lvl      Level
	sinks    Sinks
	hostname string
	appname  string
}

// New builds a Logger writing to wtr (os.Stderr if nil) at the given
// minimum level.
func New(wtr io.Writer, lvl Level) *Logger {
	if wtr == nil {
		wtr = os.Stderr
	}
	hn, _ := os.Hostname()
	return &Logger{
		wtr:      wtr,
		lvl:      lvl,
		hostname: hn,
		appname:  `divertengine`,
	}
}

// SetSinks attaches the embedder-supplied message callbacks. Safe to call
// at any time.
func (l *Logger) SetSinks(s Sinks) {
	l.mtx.Lock()
	l.sinks = s
	l.mtx.Unlock()
}

func (l *Logger) write(lvl Level, format string, args ...interface{}) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if lvl < l.lvl {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := rfc5424.Message{
		Priority:  rfc5424.Daemon | rfc5424.Info,
		Timestamp: time.Now(),
		Hostname:  l.hostname,
		AppName:   l.appname,
		Message:   []byte(fmt.Sprintf("[%s] %s", lvl, msg)),
	}
	buf, err := line.MarshalBinary()
	if err != nil {
		buf = []byte(fmt.Sprintf("[%s] %s\n", lvl, msg))
	} else {
		buf = append(buf, '\n')
	}
	l.wtr.Write(buf)

	switch lvl {
	case INFO, DEBUG:
		if l.sinks.OnInfo != nil {
			l.sinks.OnInfo([]byte(msg))
		}
	case WARN:
		if l.sinks.OnWarn != nil {
			l.sinks.OnWarn([]byte(msg))
		}
	case ERROR, CRITICAL:
		if l.sinks.OnError != nil {
			l.sinks.OnError([]byte(msg))
		}
	}
}

func (l *Logger) Debugf(format string, args ...interface{})    { l.write(DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})     { l.write(INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})     { l.write(WARN, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})    { l.write(ERROR, format, args...) }
func (l *Logger) Criticalf(format string, args ...interface{}) { l.write(CRITICAL, format, args...) }
