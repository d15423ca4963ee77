package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
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
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a -log flag value to a level, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "critical":
		return CRITICAL
	default:
		return INFO
	}
}

type Logger struct {
	mu       sync.Mutex
	minLevel LogLevel
	file     *os.File
	out      io.Writer
	now      func() time.Time
}

// NewFileLogger appends to filePath and optionally mirrors every line to stdout
func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	var out io.Writer = f
	if alsoStdout {
		out = io.MultiWriter(f, os.Stdout)
	}
	return &Logger{
		minLevel: minLevel,
		file:     f,
		out:      out,
		now:      time.Now,
	}, nil
}

// NewWriterLogger logs to w. Used by tests and the simulator.
func NewWriterLogger(w io.Writer, minLevel LogLevel) *Logger {
	return &Logger{
		minLevel: minLevel,
		out:      w,
		now:      time.Now,
	}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// Enabled reports whether a message at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minLevel
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel || l.out == nil {
		return
	}

	ts := l.now().Format(time.RFC3339Nano)
	line := fmt.Sprintf("%s [%s] %s\n", ts, level.String(), fmt.Sprintf(msg, args...))

	_, _ = io.WriteString(l.out, line)
	if l.file != nil && level >= ERROR {
		_ = l.file.Sync()
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
