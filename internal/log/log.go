// Package log is procmon's operational/diagnostic logger, adapted from
// gravwell's ingest/log package: leveled, multi-writer, RFC 5424
// structured output. This is the daemon's own "am I healthy, what did I
// just do" logging, distinct from internal/sink which carries the
// finished image-exec records the core produces (spec.md §1 treats that
// as an external collaborator; this package is ambient infrastructure
// every handler in internal/procmon calls into directly, the way
// procmon.c called its own DEBUG() macro).
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

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
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	}
	return rfc5424.User | rfc5424.Debug
}

const defaultDepth = 3

var ErrNotOpen = errors.New("log: logger has no writers")

// Logger is a leveled, multi-writer diagnostic logger. The zero value is
// not usable; construct with New.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.Writer
	lvl      Level
	appname  string
	hostname string
}

// New builds a Logger at INFO level writing to wtr.
func New(wtr io.Writer) *Logger {
	l := &Logger{wtrs: []io.Writer{wtr}, lvl: INFO}
	l.hostname, _ = os.Hostname()
	if len(os.Args) > 0 {
		l.appname = filepath.Base(os.Args[0])
	}
	return l
}

// NewDiscard builds a Logger whose only writer is io.Discard, so every
// line is dropped unless another writer is added with AddWriter; useful
// for tests.
func NewDiscard() *Logger { return New(io.Discard) }

func (l *Logger) SetLevel(lvl Level) { l.mtx.Lock(); l.lvl = lvl; l.mtx.Unlock() }

func (l *Logger) AddWriter(wtr io.Writer) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.wtrs = append(l.wtrs, wtr)
}

func (l *Logger) Debugf(f string, args ...interface{})    { l.outputf(defaultDepth, DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{})     { l.outputf(defaultDepth, INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{})     { l.outputf(defaultDepth, WARN, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{})    { l.outputf(defaultDepth, ERROR, f, args...) }
func (l *Logger) Criticalf(f string, args ...interface{}) { l.outputf(defaultDepth, CRITICAL, f, args...) }

func (l *Logger) outputf(depth int, lvl Level, f string, args ...interface{}) {
	l.mtx.Lock()
	cur := l.lvl
	l.mtx.Unlock()
	if cur == OFF || lvl < cur {
		return
	}
	ts := time.Now()
	msg := fmt.Sprintf(f, args...)
	loc := callLoc(depth)
	b, err := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: ts,
		Hostname:  trim(255, l.hostname),
		AppName:   trim(48, l.appname),
		MessageID: trim(32, loc),
		Message:   []byte(msg),
	}.MarshalBinary()
	if err != nil || len(b) == 0 {
		return
	}
	line := strings.TrimRight(string(b), "\n\r\t") + "\n"

	l.mtx.Lock()
	defer l.mtx.Unlock()
	if len(l.wtrs) == 0 {
		return
	}
	for _, w := range l.wtrs {
		io.WriteString(w, line)
	}
}

func callLoc(depth int) string {
	if _, file, line, ok := runtime.Caller(depth); ok {
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return ""
}

func trim(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
