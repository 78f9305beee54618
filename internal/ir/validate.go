package ir

import (
	"errors"
	"fmt"
)

// ExpectedTriple is the target triple the legalization pipeline produces.
const ExpectedTriple = "asmjs-unknown-emscripten"

// ErrNotLegalized marks modules that violate the input contract and were
// therefore not fully processed by the upstream pass plan.
var ErrNotLegalized = errors.New("module not legalized")

// Validate checks the input contract the backend relies on: integer widths,
// vector shapes, and terminator placement. A wrong target triple is not an
// error (the caller warns); a contract violation is.
func (m *Module) Validate() error {
	for _, f := range m.Funcs {
		for _, b := range m.blocksOf(f) {
			if b.Term() == nil {
				return fmt.Errorf("%w: function %q block %q has no terminator", ErrNotLegalized, f.Nm, b.Nm)
			}
			seenNonPhi := false
			for _, i := range b.Instrs {
				if i.Op == OpPhi {
					if seenNonPhi {
						return fmt.Errorf("%w: function %q has a non-leading phi", ErrNotLegalized, f.Nm)
					}
				} else {
					seenNonPhi = true
				}
				if err := checkInstrType(f, i); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Module) blocksOf(f *Func) []*Block { return f.Blocks }

func checkInstrType(f *Func, i *Instr) error {
	if err := checkType(f, i.Ty); err != nil {
		return err
	}
	for _, op := range i.Ops {
		if err := checkType(f, op.Type()); err != nil {
			return err
		}
	}
	return nil
}

func checkType(f *Func, t *Type) error {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case IntKind:
		if t.Bits > 32 {
			return fmt.Errorf("%w: function %q uses i%d (wider than 32 bits)", ErrNotLegalized, f.Nm, t.Bits)
		}
	case VectorKind:
		if t.Len > 4 {
			return fmt.Errorf("%w: function %q uses a %d-lane vector", ErrNotLegalized, f.Nm, t.Len)
		}
		elem := t.Elem
		switch {
		case elem.Kind == IntKind && (elem.Bits == 1 || elem.Bits == 32):
		case elem.Kind == FloatKind:
		default:
			return fmt.Errorf("%w: function %q uses a vector of unsupported element type", ErrNotLegalized, f.Nm)
		}
	}
	return nil
}
