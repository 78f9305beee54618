// Package passes describes the upstream legalization plan the backend
// assumes has run, and selects the small emit-time subset it invokes
// itself. Pass internals live with the driver; this package only fixes
// names, order, and the registry contract.
package passes

import (
	"fmt"

	"emjs/internal/ir"
)

// Func transforms a module in place.
type Func func(*ir.Module) error

// Registered pass names, in their mandatory order.
const (
	ExpandInsertExtractElement = "expand-insert-extract-element"
	ExpandI64                  = "expand-i64"
	SimplifyAllocas            = "simplify-allocas"
)

// PrePlan is the ordered pass list that must run before optimization:
// pointer-to-int lowering, struct legalization, exception lowering, and
// friends. The backend does not run these; it assumes their effect.
var PrePlan = []string{
	"expand-struct-regs",
	"expand-varargs",
	"expand-arith-with-overflow",
	"lower-em-exceptions",
	"lower-em-setjmp",
	"expand-tail-calls",
	"flatten-globals",
	"expand-constant-expr",
	"promote-integers",
}

// EmitPlan returns the ordered emit-time subset for the given optimization
// level: the two mandatory expansions, plus alloca simplification when the
// regular optimizer has not had a chance to do it.
func EmitPlan(optLevel int) []string {
	plan := []string{ExpandInsertExtractElement, ExpandI64}
	if optLevel == 0 {
		plan = append(plan, SimplifyAllocas)
	}
	return plan
}

// Registry resolves pass names to implementations supplied by the driver.
// Unregistered passes run as the identity, on the assumption that their
// effect is already present in the input.
type Registry struct {
	impls map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{impls: make(map[string]Func)} }

// Register installs an implementation for name, replacing any previous one.
func (r *Registry) Register(name string, fn Func) { r.impls[name] = fn }

// Run applies the named passes in order.
func (r *Registry) Run(m *ir.Module, plan []string) error {
	for _, name := range plan {
		fn, ok := r.impls[name]
		if !ok {
			continue
		}
		if err := fn(m); err != nil {
			return fmt.Errorf("pass %s: %w", name, err)
		}
	}
	return nil
}
