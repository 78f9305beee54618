package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

var warnPrefix = color.New(color.FgYellow).Sprint("warning:")

// Reporter writes diagnostics to a sink. The zero value discards
// everything; construct with NewReporter for real output.
type Reporter struct {
	mu   sync.Mutex
	out  io.Writer
	once map[string]bool

	warnings int
}

// NewReporter returns a Reporter writing to out (usually stderr).
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out, once: make(map[string]bool)}
}

// Warnf reports a warning.
func (r *Reporter) Warnf(format string, args ...any) {
	if r == nil || r.out == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings++
	fmt.Fprintf(r.out, "%s %s\n", warnPrefix, fmt.Sprintf(format, args...))
}

// WarnOnce reports a warning at most once per key for the lifetime of the
// reporter. Used for per-process guidance messages.
func (r *Reporter) WarnOnce(key, format string, args ...any) {
	if r == nil || r.out == nil {
		return
	}
	r.mu.Lock()
	if r.once[key] {
		r.mu.Unlock()
		return
	}
	r.once[key] = true
	r.warnings++
	fmt.Fprintf(r.out, "%s %s\n", warnPrefix, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// Warnings returns the number of warnings reported so far.
func (r *Reporter) Warnings() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warnings
}
