package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"runtime"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// Logger writes one JSON object per line. Loggers derived with WithField
// share the parent's output and level.
type Logger struct {
	core   *core
	fields map[string]any
}

type core struct {
	mu    sync.Mutex
	level Level
	out   io.Writer
}

type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

var std = New(INFO, os.Stdout)

func New(level Level, out io.Writer) *Logger {
	return &Logger{
		core:   &core{level: level, out: out},
		fields: make(map[string]any),
	}
}

// Default returns the process-wide logger.
func Default() *Logger { return std }

func SetLevel(level Level) { std.SetLevel(level) }

func SetOutput(out io.Writer) { std.SetOutput(out) }

func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

func (l *Logger) SetOutput(out io.Writer) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.out = out
}

func (l *Logger) Enabled(level Level) bool {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	return level >= l.core.level
}

func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	derived := &Logger{
		core:   l.core,
		fields: make(map[string]any, len(l.fields)+len(fields)),
	}
	maps.Copy(derived.fields, l.fields)
	maps.Copy(derived.fields, fields)
	return derived
}

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()

	if level < l.core.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
		Fields:    make(map[string]any, len(l.fields)+len(fields)),
	}
	maps.Copy(entry.Fields, l.fields)
	maps.Copy(entry.Fields, fields)

	if level >= ERROR {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data, _ = json.Marshal(LogEntry{
			Timestamp: entry.Timestamp,
			Level:     entry.Level,
			Message:   msg,
			Fields:    map[string]any{"marshal_error": err.Error()},
		})
	}
	_, _ = fmt.Fprintf(l.core.out, "%s\n", data)
}

func (l *Logger) Debug(msg string, fields ...map[string]any) {
	l.log(DEBUG, msg, mergeFields(fields...))
}

func (l *Logger) Info(msg string, fields ...map[string]any) {
	l.log(INFO, msg, mergeFields(fields...))
}

func (l *Logger) Warn(msg string, fields ...map[string]any) {
	l.log(WARN, msg, mergeFields(fields...))
}

func (l *Logger) Error(msg string, fields ...map[string]any) {
	l.log(ERROR, msg, mergeFields(fields...))
}

func Debug(msg string, fields ...map[string]any) {
	std.log(DEBUG, msg, mergeFields(fields...))
}

func Info(msg string, fields ...map[string]any) {
	std.log(INFO, msg, mergeFields(fields...))
}

func Warn(msg string, fields ...map[string]any) {
	std.log(WARN, msg, mergeFields(fields...))
}

func Error(msg string, fields ...map[string]any) {
	std.log(ERROR, msg, mergeFields(fields...))
}

func WithField(key string, value any) *Logger {
	return std.WithField(key, value)
}

func mergeFields(fields ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, f := range fields {
		maps.Copy(result, f)
	}
	return result
}

func ParseLevel(level string) Level {
	switch level {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}
