package asmjs

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// Fatal error kinds returned from EmitModule. Everything here terminates
// emission before any further text is produced; there is no partial
// output and no recovery path.
var (
	// ErrUnsupported marks IR constructs the backend cannot express.
	ErrUnsupported = errors.New("unsupported construct")
	// ErrLegalization marks IR that the upstream pass plan should have
	// rewritten (integers wider than 32 bits, unlowered constants).
	ErrLegalization = errors.New("legalization problem")
	// ErrInternal marks violated emitter invariants.
	ErrInternal = errors.New("internal error")
)

// emitPanic carries a fatal error up to the EmitModule boundary. Helper
// methods deep in expression translation panic with it instead of
// threading an error through every string-producing call.
type emitPanic struct {
	err error
}

func (e *Emitter) fatalf(kind error, format string, args ...any) {
	panic(emitPanic{err: fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))})
}

// convOffset narrows a host integer to a 32-bit offset; the memory image
// and the tables cannot address more than that.
func (e *Emitter) convOffset(v int) uint32 {
	r, err := safecast.Conv[uint32](v)
	if err != nil {
		e.fatalf(ErrInternal, "offset overflow: %v", err)
	}
	return r
}

func (e *Emitter) convOffset64(v int64) uint32 {
	r, err := safecast.Conv[uint32](v)
	if err != nil {
		e.fatalf(ErrInternal, "offset overflow: %v", err)
	}
	return r
}

func recoverEmit(err *error) {
	if r := recover(); r != nil {
		ep, ok := r.(emitPanic)
		if !ok {
			panic(r)
		}
		*err = ep.err
	}
}
