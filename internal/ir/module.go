// Package ir defines the SSA intermediate representation consumed by the
// asm.js backend. The module arrives pre-legalized: integers are at most 32
// bits wide, pointers are 32-bit, and vectors have at most four lanes. The
// backend treats the whole structure as read-only.
package ir

// FuncAttr is a bitset of function attributes the backend cares about.
type FuncAttr uint8

const (
	// AttrMinSize corresponds to the minsize function attribute.
	AttrMinSize FuncAttr = 1 << iota
	// AttrOptSize corresponds to the optsize function attribute.
	AttrOptSize
)

// Func is a function definition or declaration (no blocks).
type Func struct {
	Nm     string
	Ty     *Type // FuncKind
	Args   []*Arg
	Blocks []*Block
	Align  uint32
	Attrs  FuncAttr
}

// Type returns the function's type.
func (f *Func) Type() *Type { return f.Ty }

// Ident returns the function's symbol name.
func (f *Func) Ident() string { return f.Nm }

// IsDeclaration reports whether f has no body.
func (f *Func) IsDeclaration() bool { return len(f.Blocks) == 0 }

// IsIntrinsic reports whether f names a compiler intrinsic.
func (f *Func) IsIntrinsic() bool {
	return len(f.Nm) > 5 && f.Nm[:5] == "llvm."
}

// Entry returns the function's entry block.
func (f *Func) Entry() *Block { return f.Blocks[0] }

// ComputeUses rebuilds the per-instruction user lists. Builders must call
// this (or Module.Finalize) before handing the function to the backend.
func (f *Func) ComputeUses() {
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			i.users = i.users[:0]
			i.Parent = b
		}
		b.Fn = f
	}
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			for _, op := range i.Ops {
				if d, ok := op.(*Instr); ok {
					d.users = append(d.users, i)
				}
			}
			for _, inc := range i.Incomings {
				if d, ok := inc.V.(*Instr); ok {
					d.users = append(d.users, i)
				}
			}
		}
	}
}

// Module is an ordered collection of globals and functions. Iteration
// order is the declared order and is significant: the emitted text must be
// deterministic across runs.
type Module struct {
	TargetTriple string
	Globals      []*Global
	Funcs        []*Func

	// UsedList mirrors the llvm.used kept-alive array, if present.
	UsedList []Value
}

// Finalize prepares every function for emission.
func (m *Module) Finalize() {
	for _, f := range m.Funcs {
		f.ComputeUses()
	}
}

// FuncByName returns the named function, or nil.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Nm == name {
			return f
		}
	}
	return nil
}

// GlobalByName returns the named global, or nil.
func (m *Module) GlobalByName(name string) *Global {
	for _, g := range m.Globals {
		if g.Nm == name {
			return g
		}
	}
	return nil
}
