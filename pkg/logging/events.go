// pkg/logging/events.go - transaction events layered on the session log.

package logging

import (
	"fmt"
	"time"
)

// LogEvent describes one step of an install or uninstall transaction.
type LogEvent struct {
	EventType string
	Action    string
	Status    string
	Message   string
	Level     LogLevel
	Package   string
	Version   string
	Duration  *time.Duration
	Error     string
	Context   map[string]interface{}
}

// EventOption allows customizing log events
type EventOption func(*LogEvent)

// WithPackage sets the package name for the event
func WithPackage(name, version string) EventOption {
	return func(e *LogEvent) {
		e.Package = name
		e.Version = version
	}
}

// WithDuration sets the duration for the event
func WithDuration(duration time.Duration) EventOption {
	return func(e *LogEvent) {
		e.Duration = &duration
	}
}

// WithError sets the error message for the event and raises it to ERROR.
func WithError(err error) EventOption {
	return func(e *LogEvent) {
		if err != nil {
			e.Error = err.Error()
			e.Level = LevelError
		}
	}
}

// WithContext adds context information to the event
func WithContext(key string, value interface{}) EventOption {
	return func(e *LogEvent) {
		if e.Context == nil {
			e.Context = make(map[string]interface{})
		}
		e.Context[key] = value
	}
}

// Event writes a structured event through the process logger.
func Event(eventType, action, status, message string, opts ...EventOption) {
	e := LogEvent{
		EventType: eventType,
		Action:    action,
		Status:    status,
		Message:   message,
		Level:     LevelInfo,
	}
	for _, opt := range opts {
		opt(&e)
	}
	logAt(e.Level, e.Message, e.keyValues()...)
}

func (e LogEvent) keyValues() []interface{} {
	kv := []interface{}{"event_type", e.EventType, "action", e.Action, "status", e.Status}
	if e.Package != "" {
		kv = append(kv, "package", e.Package)
	}
	if e.Version != "" {
		kv = append(kv, "version", e.Version)
	}
	if e.Duration != nil {
		kv = append(kv, "duration", e.Duration.Round(time.Millisecond).String())
	}
	if e.Error != "" {
		kv = append(kv, "error", e.Error)
	}
	for k, v := range e.Context {
		kv = append(kv, k, v)
	}
	return kv
}

// LogInstallStart logs the start of a package installation
func LogInstallStart(packageName, version string) {
	Event("install", "start", "started",
		fmt.Sprintf("Starting installation of %s %s", packageName, version),
		WithPackage(packageName, version))
}

// LogInstallComplete logs successful completion of installation
func LogInstallComplete(packageName, version string, duration time.Duration) {
	Event("install", "complete", "completed",
		fmt.Sprintf("Installed %s %s", packageName, version),
		WithPackage(packageName, version),
		WithDuration(duration))
}

// LogInstallFailed logs a failed installation
func LogInstallFailed(packageName, version string, err error) {
	Event("install", "complete", "failed",
		fmt.Sprintf("Installation of %s %s failed", packageName, version),
		WithPackage(packageName, version),
		WithError(err))
}

// LogUninstallStart logs the start of a package uninstallation
func LogUninstallStart(packageName, version string) {
	Event("uninstall", "start", "started",
		fmt.Sprintf("Starting uninstallation of %s %s", packageName, version),
		WithPackage(packageName, version))
}

// LogUninstallComplete logs the terminal state of an uninstallation
func LogUninstallComplete(packageName, version, state string, warnings, failures int, duration time.Duration) {
	opts := []EventOption{
		WithPackage(packageName, version),
		WithDuration(duration),
		WithContext("warnings", warnings),
		WithContext("failures", failures),
	}
	if failures > 0 {
		opts = append(opts, WithError(fmt.Errorf("%d entries could not be reversed", failures)))
	}
	Event("uninstall", "complete", state,
		fmt.Sprintf("Uninstallation of %s %s %s", packageName, version, state), opts...)
}
