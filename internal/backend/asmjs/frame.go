package asmjs

import (
	"strconv"

	"emjs/internal/coloring"
	"emjs/internal/ir"
)

// funcEmitter is the per-function scratch state: declared locals, the
// planned frame, nativized allocas, and the invoke-state machine. Created
// at function entry, discarded at exit.
type funcEmitter struct {
	e  *Emitter
	fn *ir.Func

	usedVars  map[string]*ir.Type
	frame     *coloring.Frame
	nativized map[ir.Value]bool

	invokeState int
	stackBumped bool
}

func newFuncEmitter(e *Emitter, f *ir.Func) *funcEmitter {
	fe := &funcEmitter{
		e:         e,
		fn:        f,
		usedVars:  make(map[string]*ir.Type),
		nativized: make(map[ir.Value]bool),
	}
	// When optimizing, mem2reg and friends already took every
	// nativization opportunity.
	if e.cfg.OptLevel == 0 {
		fe.calculateNativizedVars()
	}
	fe.frame = coloring.Analyze(f, e.cfg.OptLevel != 0)
	return fe
}

// calculateNativizedVars finds allocas whose address never escapes: only
// loads from them and stores to them exist. Those become plain locals.
func (fe *funcEmitter) calculateNativizedVars() {
	for _, b := range fe.fn.Blocks {
		for _, i := range b.Instrs {
			if i.Op != ir.OpAlloca {
				continue
			}
			// Vectors keep their slots; the optimizer avoids
			// load/stores on them. Aggregates are not scalars.
			if i.Allocated.IsVector() || i.Allocated.IsAggregate() {
				continue
			}
			ok := true
			for _, u := range i.Users() {
				switch u.Op {
				case ir.OpLoad:
				case ir.OpStore:
					if u.Operand(0) == ir.Value(i) {
						ok = false // a store *of* the address escapes it
					}
				default:
					ok = false
				}
				if !ok {
					break
				}
			}
			if ok {
				fe.nativized[i] = true
			}
		}
	}
}

// adHocAssign declares the local and returns "name = ".
func (e *Emitter) adHocAssign(s string, t *ir.Type) string {
	e.fe.usedVars[s] = t
	return s + " = "
}

func (e *Emitter) getAssign(i *ir.Instr) string {
	return e.adHocAssign(e.jsName(i), i.Ty)
}

func (e *Emitter) getAssignIfNeeded(v ir.Value) string {
	if i, ok := v.(*ir.Instr); ok && i.Parent != nil && i.HasUses() {
		return e.getAssign(i)
	}
	return ""
}

func stackAlignRound(x uint64) uint64 {
	return (x + stackAlign - 1) &^ uint64(stackAlign-1)
}

func stackAlignStr(x string) string {
	return "((" + x + "+" + strconv.Itoa(stackAlign-1) + ")&-" + strconv.Itoa(stackAlign) + ")"
}

// getStackBump advances STACKTOP, with an overflow check under
// assertions.
func (e *Emitter) getStackBump(size string) string {
	ret := "STACKTOP = STACKTOP + " + size + "|0;"
	if e.cfg.Assertions > 0 {
		ret += " if ((STACKTOP|0) >= (STACK_MAX|0)) abort();"
	}
	return ret
}
