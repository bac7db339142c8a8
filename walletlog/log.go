// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package walletlog is the leveled logger the wallet engine writes
// diagnostics through. walletcore components take a Logger through their
// Log field (walletcore.Config.Log); there is no package-level UseLogger.
// A nil Log falls back to Disabled, which swallows everything, so the
// engine produces no output unless an owning application asks for it.
package walletlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jrick/logrotate/rotator"

	"github.com/hmel/boolberry/er"
)

// Level is the severity at which a message is logged.
type Level uint32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	LevelOff
)

var levelStrs = [...]string{"TRC", "DBG", "INF", "WRN", "ERR", "CRT"}

func (l Level) String() string {
	if l >= LevelOff || int(l) >= len(levelStrs) {
		return "OFF"
	}
	return levelStrs[l]
}

// LevelFromString parses a level name (case-insensitive, abbreviations
// accepted). ok is false if s is not recognized.
func LevelFromString(s string) (l Level, ok bool) {
	switch strings.ToLower(s) {
	case "trace", "trc":
		return LevelTrace, true
	case "debug", "dbg":
		return LevelDebug, true
	case "info", "inf":
		return LevelInfo, true
	case "warn", "wrn":
		return LevelWarn, true
	case "error", "err":
		return LevelError, true
	case "critical", "crt":
		return LevelCritical, true
	case "off":
		return LevelOff, true
	default:
		return LevelInfo, false
	}
}

// Logger is the interface every package in this module logs through.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	Level() Level
	SetLevel(level Level)
}

// backend is a Logger writing tagged, leveled lines to an io.Writer.
type backend struct {
	mu    sync.Mutex
	w     io.Writer
	tag   string
	lvl   Level
	color bool
}

// NewBackend creates a Logger that writes to w under the given subsystem
// tag, defaulting to LevelInfo.
func NewBackend(w io.Writer, tag string) Logger {
	return &backend{w: w, tag: tag, lvl: LevelInfo, color: true}
}

// NewRotatingFileBackend creates a Logger backed by github.com/jrick/logrotate,
// rolling the log file over once it exceeds maxSizeMB and keeping at most
// ten previous rolls, matching the rotation policy pktd's own log backend
// uses for its daemon log file.
func NewRotatingFileBackend(logDir, filename, tag string, maxSizeMB int64) (Logger, er.R) {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, er.E(err)
	}
	r, err := rotator.New(filepath.Join(logDir, filename), maxSizeMB*1024, false, 10)
	if err != nil {
		return nil, er.E(err)
	}
	return &backend{w: r, tag: tag, lvl: LevelInfo}, nil
}

func (b *backend) print(lvl Level, msg string) {
	if lvl < b.lvl {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("%s [%s] %s: %s\n", ts, lvl, b.tag, msg)
	io.WriteString(b.w, line)
}

func (b *backend) Tracef(format string, args ...interface{}) {
	b.print(LevelTrace, fmt.Sprintf(format, args...))
}
func (b *backend) Debugf(format string, args ...interface{}) {
	b.print(LevelDebug, fmt.Sprintf(format, args...))
}
func (b *backend) Infof(format string, args ...interface{}) {
	b.print(LevelInfo, fmt.Sprintf(format, args...))
}
func (b *backend) Warnf(format string, args ...interface{}) {
	b.print(LevelWarn, fmt.Sprintf(format, args...))
}
func (b *backend) Errorf(format string, args ...interface{}) {
	b.print(LevelError, fmt.Sprintf(format, args...))
}
func (b *backend) Criticalf(format string, args ...interface{}) {
	b.print(LevelCritical, fmt.Sprintf(format, args...))
}

func (b *backend) Level() Level { b.mu.Lock(); defer b.mu.Unlock(); return b.lvl }
func (b *backend) SetLevel(level Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lvl = level
}

type disabled struct{}

func (disabled) Tracef(string, ...interface{})    {}
func (disabled) Debugf(string, ...interface{})    {}
func (disabled) Infof(string, ...interface{})     {}
func (disabled) Warnf(string, ...interface{})     {}
func (disabled) Errorf(string, ...interface{})    {}
func (disabled) Criticalf(string, ...interface{}) {}
func (disabled) Level() Level                     { return LevelOff }
func (disabled) SetLevel(Level)                   {}

// Disabled is a Logger that discards everything; walletcore components use
// it whenever their Log field is nil.
var Disabled Logger = disabled{}

// StderrLogger is a convenience backend writing to os.Stderr.
func StderrLogger(tag string) Logger {
	return NewBackend(os.Stderr, tag)
}

// Coins renders an amount the way a wallet log line should: fixed-point
// coin units, not raw atomic integers.
func Coins(whole float64) string {
	return humanize.FormatFloat("#,###.########", whole)
}

// Age renders a duration the way a refresh-loop progress line should.
func Age(d time.Duration) string {
	return humanize.RelTime(time.Now().Add(-d), time.Now(), "ago", "")
}

// Height renders a block height.
func Height(h int64) string {
	return humanize.Comma(h)
}
