// Package log provides the colored, per-module logging used across Argus.
//
// It mirrors the module-scoped logger registry of the original analyzer
// (one named logger per package, a settable global level, and optional
// per-module overrides) while drawing its color palette from the
// fatih/color and mattn/go-colorable pair already used by the teacher's
// CLI for terminal output.
package log

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

// Level is a logging severity level, ordered from most to least verbose.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) color() *color.Color {
	switch l {
	case LevelDebug:
		return color.New(color.FgMagenta)
	case LevelInfo:
		return color.New(color.FgGreen)
	case LevelWarn:
		return color.New(color.FgYellow)
	case LevelError, LevelCritical:
		return color.New(color.FgRed)
	default:
		return color.New()
	}
}

var (
	mu             sync.Mutex
	globalLevel    = LevelInfo
	moduleLevels   = map[string]Level{}
	loggers        = map[string]*Logger{}
	out  io.Writer = colorable.NewColorableStdout()
)

// SetGlobalLevel sets the default level applied to every logger that has
// no per-module override, and updates already-created loggers in place.
func SetGlobalLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = level
	for name, l := range loggers {
		if _, overridden := moduleLevels[name]; !overridden {
			l.level = level
		}
	}
}

// SetModuleLevel pins a single named logger to a level regardless of the
// global level.
func SetModuleLevel(name string, level Level) {
	mu.Lock()
	defer mu.Unlock()
	moduleLevels[name] = level
	if l, ok := loggers[name]; ok {
		l.level = level
	}
}

// Logger is a single named, leveled logger.
type Logger struct {
	name  string
	level Level
}

// Get returns the logger for name, creating it on first use.
func Get(name string) *Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[name]; ok {
		return l
	}
	level := globalLevel
	if override, ok := moduleLevels[name]; ok {
		level = override
	}
	l := &Logger{name: name, level: level}
	loggers[name] = l
	return l
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	prefix := fmt.Sprintf("%s %s [%s] ", time.Now().Format("2006-01-02 15:04:05"), l.name, level)
	fmt.Fprint(out, prefix)
	level.color().Fprintln(out, msg)
}

func (l *Logger) Debugf(format string, args ...any)    { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)     { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)     { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any)    { l.log(LevelError, format, args...) }
func (l *Logger) Criticalf(format string, args ...any) { l.log(LevelCritical, format, args...) }
