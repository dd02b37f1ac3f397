// Package log provides structured logging for ttr.
// Entries go to the console (stderr by default) and, when a log file is
// configured, to a size-rotated file as well. --verbose lowers the minimum
// level to debug.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// Category groups related log messages.
type Category string

const (
	CatConfig   Category = "config"   // Settings and definition loading
	CatSelect   Category = "select"   // Selection and subtag overlays
	CatMatrix   Category = "matrix"   // Build-matrix expansion
	CatBuild    Category = "build"    // Fragment rendering and command building
	CatTool     Category = "tool"     // Configuration tool invocations
	CatRun      Category = "run"      // Run dispatch
	CatBinaries Category = "binaries" // Archive fetch and extraction
	CatLedger   Category = "ledger"   // Run ledger persistence
	CatTrace    Category = "trace"    // Tracing setup
	CatMetrics  Category = "metrics"  // Metrics export
)

// timeLayout is the entry timestamp, second precision in local time.
const timeLayout = "2006-01-02T15:04:05"

// defaultMaxSizeMB is the rotation threshold when none is configured.
const defaultMaxSizeMB = 10

// Config controls where log entries are written.
type Config struct {
	// Console receives every entry at or above the minimum level.
	// Defaults to os.Stderr.
	Console io.Writer
	// File enables a rotated log file in addition to the console.
	File string
	// MaxSizeMB is the rotation threshold for File. Defaults to 10.
	MaxSizeMB int
	// Verbose lowers the minimum level to debug.
	Verbose bool
}

// Logger writes formatted entries to one destination.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	file     *lumberjack.Logger
	disabled bool
	min      Level
}

var std = &Logger{out: os.Stderr, min: LevelInfo}

// Init configures the global logger from cfg.
// The returned function closes the log file, if one was opened.
func Init(cfg Config) (func(), error) {
	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	var file *lumberjack.Logger
	out := console
	if cfg.File != "" {
		size := cfg.MaxSizeMB
		if size <= 0 {
			size = defaultMaxSizeMB
		}
		file = &lumberjack.Logger{Filename: cfg.File, MaxSize: size, MaxBackups: 3}
		out = io.MultiWriter(console, file)
	}

	level := LevelInfo
	if cfg.Verbose {
		level = LevelDebug
	}

	std.mu.Lock()
	std.out, std.file, std.disabled, std.min = out, file, false, level
	std.mu.Unlock()

	return std.closeFile, nil
}

func (l *Logger) closeFile() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// SetOutput redirects log output. Used by tests to capture entries.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	std.mu.Lock()
	std.disabled = !enabled
	std.mu.Unlock()
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	std.mu.Lock()
	std.min = level
	std.mu.Unlock()
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) { std.emit(LevelDebug, cat, msg, fields) }

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) { std.emit(LevelInfo, cat, msg, fields) }

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) { std.emit(LevelWarn, cat, msg, fields) }

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) { std.emit(LevelError, cat, msg, fields) }

// ErrorErr logs at error level with err appended as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	value := "<nil>"
	if err != nil {
		value = err.Error()
	}
	std.emit(LevelError, cat, msg, append(fields, "error", value))
}

// emit writes one line:
//
//	2025-12-06T10:45:00 [ERROR] [tool] message key=value key2=value2
func (l *Logger) emit(level Level, cat Category, msg string, fields []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disabled || level < l.min || l.out == nil {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format(timeLayout))
	fmt.Fprintf(&b, " [%s] [%s] %s", level, cat, msg)
	writeFields(&b, fields)
	b.WriteByte('\n')

	_, _ = io.WriteString(l.out, b.String())
}

// writeFields appends key=value pairs. A trailing key without a value is
// written as key=<missing>.
func writeFields(b *strings.Builder, fields []any) {
	for i := 0; i < len(fields); i += 2 {
		if i+1 == len(fields) {
			fmt.Fprintf(b, " %v=<missing>", fields[i])
			return
		}
		fmt.Fprintf(b, " %v=%v", fields[i], fields[i+1])
	}
}
