// pkg/utils/reporter.go - presentation interface shared by the installer and the UI layer.

package utils

// Reporter receives user-facing status for one transaction. Implementations
// must return quickly and be safe for concurrent use: the worker and the
// progress forwarder both call them.
type Reporter interface {
	Message(txt string)
	Detail(txt string)
	Percent(pct int) // -1 = indeterminate
	Error(err error)
	Stop()
}

// NoOpReporter implements Reporter but does nothing (for headless operation)
type NoOpReporter struct{}

func NewNoOpReporter() Reporter {
	return &NoOpReporter{}
}

func (r *NoOpReporter) Message(txt string) {}
func (r *NoOpReporter) Detail(txt string)  {}
func (r *NoOpReporter) Percent(pct int)    {}
func (r *NoOpReporter) Error(err error)    {}
func (r *NoOpReporter) Stop()              {}
