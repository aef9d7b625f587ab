// pkg/logging/logging.go - session logging for msixinstaller
//
// Every run gets its own timestamped directory under the log root holding:
// - install.log, the human readable log
// - events.jsonl, one JSON object per entry
// - events.yaml, the same entries as a YAML document stream
// Older session directories are pruned to the configured retention.

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a level, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LogEntry is one structured record written to the JSON and YAML sinks.
type LogEntry struct {
	Time       int64                  `json:"time" yaml:"time"`
	Timestamp  string                 `json:"timestamp" yaml:"timestamp"`
	Level      string                 `json:"level" yaml:"level"`
	Message    string                 `json:"message" yaml:"message"`
	Component  string                 `json:"component" yaml:"component"`
	PID        int64                  `json:"pid" yaml:"pid"`
	Hostname   string                 `json:"hostname" yaml:"hostname"`
	SessionID  string                 `json:"session_id" yaml:"session_id"`
	RunType    string                 `json:"run_type" yaml:"run_type"`
	Properties map[string]interface{} `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Config controls where and how much the logger writes.
type Config struct {
	BaseDir   string
	Level     LogLevel
	Component string
	RunType   string // install, uninstall, list
	Retention int    // session directories kept, 0 keeps all
	Console   io.Writer
	NoColor   bool
}

// Logger writes every entry to the session files and echoes it to the console.
type Logger struct {
	mu        sync.Mutex
	cfg       Config
	sessionID string
	logDir    string
	hostname  string
	logFile   *os.File
	jsonFile  *os.File
	yamlFile  *os.File
	console   io.Writer
}

var (
	instanceMu sync.RWMutex
	instance   *Logger
)

// Init replaces the process logger. Any previous logger is closed.
func Init(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}

	instanceMu.Lock()
	prev := instance
	instance = l
	instanceMu.Unlock()

	if prev != nil {
		prev.close()
	}
	return nil
}

// Close flushes and closes the process logger.
func Close() {
	instanceMu.Lock()
	l := instance
	instance = nil
	instanceMu.Unlock()

	if l != nil {
		l.close()
	}
}

// CurrentLogDir returns the session directory, empty before Init.
func CurrentLogDir() string {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	if instance == nil {
		return ""
	}
	return instance.logDir
}

// SessionID returns the current session id, empty before Init.
func SessionID() string {
	instanceMu.RLock()
	defer instanceMu.RUnlock()
	if instance == nil {
		return ""
	}
	return instance.sessionID
}

func newLogger(cfg Config) (*Logger, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("log directory not configured")
	}
	if cfg.Component == "" {
		cfg.Component = "msixinstaller"
	}
	if cfg.Console == nil {
		cfg.Console = os.Stdout
	}

	sessionStart := time.Now()
	logDir := filepath.Join(cfg.BaseDir, sessionStart.Format("2006-01-02-150405"))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	l := &Logger{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		logDir:    logDir,
		hostname:  hostname,
		console:   cfg.Console,
	}
	if err := l.openFiles(); err != nil {
		l.close()
		return nil, err
	}

	if cfg.Retention > 0 {
		l.pruneSessions(cfg.Retention)
	}
	return l, nil
}

func (l *Logger) openFiles() error {
	var err error
	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(l.logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
	if l.logFile, err = open("install.log"); err != nil {
		return fmt.Errorf("failed to open main log file: %w", err)
	}
	if l.jsonFile, err = open("events.jsonl"); err != nil {
		return fmt.Errorf("failed to open JSON log file: %w", err)
	}
	if l.yamlFile, err = open("events.yaml"); err != nil {
		return fmt.Errorf("failed to open YAML log file: %w", err)
	}
	return nil
}

// pruneSessions removes the oldest session directories beyond keep.
// Directory names sort chronologically.
func (l *Logger) pruneSessions(keep int) {
	entries, err := os.ReadDir(l.cfg.BaseDir)
	if err != nil {
		return
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse("2006-01-02-150405", e.Name()); err == nil {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	for len(dirs) > keep {
		if dirs[0] != filepath.Base(l.logDir) {
			_ = os.RemoveAll(filepath.Join(l.cfg.BaseDir, dirs[0]))
		}
		dirs = dirs[1:]
	}
}

func (l *Logger) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range []**os.File{&l.logFile, &l.jsonFile, &l.yamlFile} {
		if *f != nil {
			_ = (*f).Sync()
			_ = (*f).Close()
			*f = nil
		}
	}
}

func (l *Logger) log(level LogLevel, message string, keyValues ...interface{}) {
	if level > l.cfg.Level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry := LogEntry{
		Time:       now.Unix(),
		Timestamp:  now.Format(time.RFC3339),
		Level:      level.String(),
		Message:    message,
		Component:  l.cfg.Component,
		PID:        int64(os.Getpid()),
		Hostname:   l.hostname,
		SessionID:  l.sessionID,
		RunType:    l.cfg.RunType,
		Properties: properties(keyValues),
	}

	line := formatLine(now, level, message, keyValues)
	if l.logFile != nil {
		fmt.Fprintln(l.logFile, line)
	}
	if l.jsonFile != nil {
		if data, err := json.Marshal(entry); err == nil {
			l.jsonFile.Write(append(data, '\n'))
		}
	}
	if l.yamlFile != nil {
		if data, err := yaml.Marshal(entry); err == nil {
			l.yamlFile.WriteString("---\n" + string(data))
		}
	}
	l.writeConsole(level, line)
}

func (l *Logger) writeConsole(level LogLevel, line string) {
	if l.console == nil {
		return
	}
	c := levelColor(level)
	if l.cfg.NoColor {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	c.Fprintln(l.console, line)
}

func levelColor(level LogLevel) *color.Color {
	switch level {
	case LevelError:
		return color.New(color.FgRed)
	case LevelWarn:
		return color.New(color.FgYellow)
	case LevelDebug:
		return color.New(color.FgBlue)
	default:
		return color.New(color.Reset)
	}
}

// properties converts alternating key/value arguments into a map.
func properties(keyValues []interface{}) map[string]interface{} {
	if len(keyValues) < 2 {
		return nil
	}
	props := make(map[string]interface{}, len(keyValues)/2)
	for i := 0; i+1 < len(keyValues); i += 2 {
		val := keyValues[i+1]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		props[fmt.Sprint(keyValues[i])] = val
	}
	return props
}

// formatLine renders "[ts] LEVEL message k=v ...".
func formatLine(ts time.Time, level LogLevel, message string, keyValues []interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-5s %s", ts.Format("2006-01-02 15:04:05"), level.String(), message)
	for i := 0; i+1 < len(keyValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keyValues[i], keyValues[i+1])
	}
	return b.String()
}

func logAt(level LogLevel, message string, keyValues ...interface{}) {
	instanceMu.RLock()
	l := instance
	instanceMu.RUnlock()

	if l == nil {
		if level <= LevelWarn {
			fmt.Fprintln(os.Stderr, formatLine(time.Now(), level, message, keyValues))
		}
		return
	}
	l.log(level, message, keyValues...)
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	logAt(LevelInfo, message, keyValues...)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	logAt(LevelDebug, message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	logAt(LevelWarn, message, keyValues...)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	logAt(LevelError, message, keyValues...)
}
