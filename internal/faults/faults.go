// Package faults provides the shared fault channel for the snapshot core.
// Listener panics and background load failures are reported here instead of
// unwinding the delivery loop; contract violations are a separate, fatal
// ProgrammingError.
package faults

import (
	"fmt"
	"sync"
	"time"
)

// Kind classifies a reported fault.
type Kind string

const (
	// KindListener marks a panic recovered from a change listener.
	KindListener Kind = "listener"
	// KindLoad marks a failed background content load.
	KindLoad Kind = "load"
)

// Fault is one reported failure.
type Fault struct {
	Kind      Kind
	Err       error
	Listener  string
	Project   string
	Document  string
	Timestamp time.Time
}

func (f Fault) String() string {
	switch f.Kind {
	case KindListener:
		return fmt.Sprintf("listener %s: %v", f.Listener, f.Err)
	case KindLoad:
		return fmt.Sprintf("load %s/%s: %v", f.Project, f.Document, f.Err)
	default:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
}

// Collector accumulates faults and fans them out to subscribers. Reporting
// happens on the foreground context; reads may come from anywhere, so the
// collector keeps its own lock.
type Collector struct {
	mutex       sync.RWMutex
	faults      []Fault
	subscribers []func(Fault)
}

// NewCollector creates an empty fault collector.
func NewCollector() *Collector {
	return &Collector{faults: make([]Fault, 0)}
}

// Subscribe registers fn to be invoked for every subsequently reported fault.
func (c *Collector) Subscribe(fn func(Fault)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// Report records a fault and notifies subscribers.
func (c *Collector) Report(f Fault) {
	f.Timestamp = time.Now()

	c.mutex.Lock()
	c.faults = append(c.faults, f)
	subscribers := c.subscribers
	c.mutex.Unlock()

	for _, fn := range subscribers {
		fn(f)
	}
}

// Faults returns a copy of all recorded faults.
func (c *Collector) Faults() []Fault {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]Fault, len(c.faults))
	copy(result, c.faults)
	return result
}

// HasFaults returns true if any fault has been recorded.
func (c *Collector) HasFaults() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.faults) > 0
}

// Clear discards all recorded faults.
func (c *Collector) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.faults = c.faults[:0]
}

// ProgrammingError signals a caller contract violation, such as mutating
// manager state off the foreground context. It is always raised as a panic
// and never recovered by the core.
type ProgrammingError struct {
	msg string
}

func (e *ProgrammingError) Error() string { return "programming error: " + e.msg }

// Programmingf builds a ProgrammingError with a formatted message.
func Programmingf(format string, args ...interface{}) *ProgrammingError {
	return &ProgrammingError{msg: fmt.Sprintf(format, args...)}
}
