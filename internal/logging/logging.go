// Package logging provides the small field logger used across the service.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is a minimal leveled logger with structured fields.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[level]string{
	levelDebug: "debug",
	levelInfo:  "info",
	levelWarn:  "warn",
	levelError: "error",
}

func parseLevel(s string) level {
	switch strings.ToLower(s) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// JSONLogger writes one JSON object per line.
type JSONLogger struct {
	mu        sync.Mutex
	out       io.Writer
	min       level
	component string
}

// New returns a JSONLogger writing to stdout at the given level.
func New(component, lvl string) *JSONLogger {
	return NewWithWriter(os.Stdout, component, lvl)
}

func NewWithWriter(w io.Writer, component, lvl string) *JSONLogger {
	return &JSONLogger{out: w, min: parseLevel(lvl), component: component}
}

// With returns a logger sharing the same output under another component name.
func (l *JSONLogger) With(component string) *JSONLogger {
	return &JSONLogger{out: l.out, min: l.min, component: component}
}

func (l *JSONLogger) Debug(msg string, fields map[string]interface{}) { l.log(levelDebug, msg, fields) }
func (l *JSONLogger) Info(msg string, fields map[string]interface{})  { l.log(levelInfo, msg, fields) }
func (l *JSONLogger) Warn(msg string, fields map[string]interface{})  { l.log(levelWarn, msg, fields) }
func (l *JSONLogger) Error(msg string, fields map[string]interface{}) { l.log(levelError, msg, fields) }

func (l *JSONLogger) log(lv level, msg string, fields map[string]interface{}) {
	if lv < l.min {
		return
	}
	entry := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = levelNames[lv]
	entry["msg"] = msg
	if l.component != "" {
		entry["component"] = l.component
	}
	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(`{"level":"error","msg":"unencodable log entry"}`)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(line, '\n'))
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, map[string]interface{}) {}
func (Nop) Info(string, map[string]interface{})  {}
func (Nop) Warn(string, map[string]interface{})  {}
func (Nop) Error(string, map[string]interface{}) {}
