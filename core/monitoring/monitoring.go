// Package monitoring holds the process-wide error reporter. It defaults to a
// no-op and is replaced at startup by the Sentry adapter when configured.
package monitoring

import (
	"sync"
	"time"
)

// Monitor reports errors to an external service.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any)                          {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init installs m as the global monitor. nil is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records err with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Capture records an infrastructure failure of op in component.
func Capture(err error, component, op string) {
	CaptureException(err, map[string]string{"component": component, "op": op})
}

// Recover reports a panic of the calling goroutine and re-panics. It must be
// deferred directly.
func Recover() {
	if v := recover(); v != nil {
		m := get()
		m.CapturePanic(v)
		m.Flush(2 * time.Second)
		panic(v)
	}
}

// Flush waits for buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}
