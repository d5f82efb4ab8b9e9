// Package events is the structured logger used across BlockBox. Entries are
// JSON lines or colored text; field names that look like secrets are
// redacted before anything is written.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/TheMichaelB/blockbox/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(s string) LogLevel {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return LogLevel(i)
		}
	}
	if strings.EqualFold(s, "warning") {
		return WarnLevel
	}
	return InfoLevel
}

// Fields are key/value pairs attached to an entry.
type Fields map[string]interface{}

// Redacted replaces the value of any field whose name marks it as secret.
const Redacted = "[REDACTED]"

var secretFields = []string{"key", "token", "password", "secret", "passphrase"}

func isSecret(name string) bool {
	name = strings.ToLower(name)
	for _, s := range secretFields {
		if name == s || strings.HasSuffix(name, "_"+s) {
			return true
		}
	}
	return false
}

// sink is shared by a logger and everything derived from it so that
// concurrent entries never interleave.
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) write(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(p)
}

// Logger provides structured logging. Loggers are immutable; With* methods
// return derived copies.
type Logger struct {
	out      *sink
	level    LogLevel
	json     bool
	color    bool
	hostname string
	fields   Fields
}

// NewLogger creates a logger from config.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
	}

	hostname, _ := os.Hostname()

	return &Logger{
		out:      &sink{w: w},
		level:    ParseLevel(cfg.Level),
		json:     strings.EqualFold(cfg.Format, "json"),
		color:    cfg.Color && isTerminal(w),
		hostname: hostname,
	}, nil
}

// NewTestLogger creates a colorless logger with a fixed hostname.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	return &Logger{
		out:      &sink{w: output},
		level:    level,
		json:     format == "json",
		hostname: "test-host",
	}
}

// Level returns the minimum level this logger writes.
func (l *Logger) Level() LogLevel {
	return l.level
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(Fields{key: value})
}

// WithFields returns a logger with additional fields. Later values win.
func (l *Logger) WithFields(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	derived := *l
	derived.fields = merged
	return &derived
}

// WithError adds an error field. A nil error returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(msg string) { l.log(DebugLevel, msg) }
func (l *Logger) Info(msg string)  { l.log(InfoLevel, msg) }
func (l *Logger) Warn(msg string)  { l.log(WarnLevel, msg) }
func (l *Logger) Error(msg string) { l.log(ErrorLevel, msg) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level <= DebugLevel {
		l.log(DebugLevel, fmt.Sprintf(format, args...))
	}
}

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level <= InfoLevel {
		l.log(InfoLevel, fmt.Sprintf(format, args...))
	}
}

func (l *Logger) log(level LogLevel, msg string) {
	if l == nil || l.out == nil || l.out.w == nil || level < l.level {
		return
	}

	// log is always two frames below the caller.
	caller := "???"
	if _, file, line, ok := runtime.Caller(2); ok {
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			file = file[i+1:]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	now := time.Now().UTC()
	if l.json {
		l.out.write(l.encodeJSON(now, level, msg, caller))
	} else {
		l.out.write(l.encodeText(now, level, msg))
	}
}

func (l *Logger) visibleFields() Fields {
	out := make(Fields, len(l.fields))
	for k, v := range l.fields {
		if isSecret(k) {
			v = Redacted
		}
		out[k] = v
	}
	return out
}

func (l *Logger) encodeJSON(now time.Time, level LogLevel, msg, caller string) []byte {
	entry := l.visibleFields()
	entry["time"] = now.Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	entry["hostname"] = l.hostname
	entry["caller"] = caller

	data, err := json.Marshal(entry)
	if err != nil {
		for k, v := range entry {
			entry[k] = fmt.Sprint(v)
		}
		data, _ = json.Marshal(entry)
	}
	return append(data, '\n')
}

var levelColors = map[LogLevel]*color.Color{
	DebugLevel: color.New(color.FgCyan),
	InfoLevel:  color.New(color.FgGreen),
	WarnLevel:  color.New(color.FgYellow),
	ErrorLevel: color.New(color.FgRed, color.Bold),
}

// encodeText renders "TIME [LEVEL] msg k=v ..." with keys sorted.
func (l *Logger) encodeText(now time.Time, level LogLevel, msg string) []byte {
	tag := "[" + strings.ToUpper(level.String()) + "]"
	if c, ok := levelColors[level]; ok && l.color {
		c.EnableColor()
		tag = c.Sprint(tag)
	}

	var sb strings.Builder
	sb.WriteString(now.Format(time.RFC3339))
	sb.WriteByte(' ')
	sb.WriteString(tag)
	sb.WriteByte(' ')
	sb.WriteString(msg)

	fields := l.visibleFields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, fields[k])
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
