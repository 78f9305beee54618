// Package testkit builds IR fixtures for tests. Outside the irfile
// decoder, production code never constructs IR; these helpers keep hand-built test modules short and make
// sure the use lists the backend relies on are in place.
package testkit

import (
	"strconv"

	"emjs/internal/ir"
)

// FuncBuilder accumulates blocks for one function.
type FuncBuilder struct {
	fn *ir.Func
}

// NewFunc starts a function with the given return and parameter types.
// Parameters are named p0, p1, ...
func NewFunc(name string, ret *ir.Type, params ...*ir.Type) *FuncBuilder {
	fn := &ir.Func{Nm: name, Ty: ir.FuncOf(ret, params...), Align: 1}
	for i, p := range params {
		fn.Args = append(fn.Args, &ir.Arg{Nm: "p" + strconv.Itoa(i), Ty: p, Parent: fn})
	}
	return &FuncBuilder{fn: fn}
}

// Arg returns the i-th argument.
func (fb *FuncBuilder) Arg(i int) *ir.Arg { return fb.fn.Args[i] }

// Block appends a new named block.
func (fb *FuncBuilder) Block(name string) *BlockBuilder {
	b := &ir.Block{Nm: name, Fn: fb.fn}
	fb.fn.Blocks = append(fb.fn.Blocks, b)
	return &BlockBuilder{b: b}
}

// Done finalizes the function.
func (fb *FuncBuilder) Done() *ir.Func {
	fb.fn.ComputeUses()
	return fb.fn
}

// BlockBuilder appends instructions to one block.
type BlockBuilder struct {
	b *ir.Block
}

// Raw returns the underlying block.
func (bb *BlockBuilder) Raw() *ir.Block { return bb.b }

func (bb *BlockBuilder) add(i *ir.Instr) *ir.Instr {
	i.Parent = bb.b
	bb.b.Instrs = append(bb.b.Instrs, i)
	return i
}

// Bin appends a binary operation.
func (bb *BlockBuilder) Bin(op ir.Opcode, name string, ty *ir.Type, a, b ir.Value) *ir.Instr {
	return bb.add(&ir.Instr{Op: op, Nm: name, Ty: ty, Ops: []ir.Value{a, b}})
}

// ICmp appends an integer comparison.
func (bb *BlockBuilder) ICmp(pred ir.CmpPred, name string, a, b ir.Value) *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpICmp, Nm: name, Ty: ir.I1, Pred: pred, Ops: []ir.Value{a, b}})
}

// FCmp appends a floating-point comparison.
func (bb *BlockBuilder) FCmp(pred ir.CmpPred, name string, a, b ir.Value) *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpFCmp, Nm: name, Ty: ir.I1, Pred: pred, Ops: []ir.Value{a, b}})
}

// Phi appends a φ node; incomings pair up as (block, value).
func (bb *BlockBuilder) Phi(name string, ty *ir.Type, incomings ...any) *ir.Instr {
	i := &ir.Instr{Op: ir.OpPhi, Nm: name, Ty: ty}
	for n := 0; n+1 < len(incomings); n += 2 {
		i.Incomings = append(i.Incomings, ir.Incoming{
			Pred: incomings[n].(*ir.Block),
			V:    incomings[n+1].(ir.Value),
		})
	}
	return bb.add(i)
}

// Alloca appends a static alloca of elem type with the given alignment.
func (bb *BlockBuilder) Alloca(name string, elem *ir.Type, count int64, align uint32) *ir.Instr {
	return bb.add(&ir.Instr{
		Op: ir.OpAlloca, Nm: name, Ty: ir.Ptr(elem), Allocated: elem, Align: align,
		Ops: []ir.Value{ir.IntConst(ir.I32, count)},
	})
}

// Load appends a load through ptr with the given alignment.
func (bb *BlockBuilder) Load(name string, ty *ir.Type, ptr ir.Value, align uint32) *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpLoad, Nm: name, Ty: ty, Align: align, Ops: []ir.Value{ptr}})
}

// Store appends a store of val through ptr.
func (bb *BlockBuilder) Store(val, ptr ir.Value, align uint32) *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpStore, Ty: ir.Void, Align: align, Ops: []ir.Value{val, ptr}})
}

// Call appends a call to callee.
func (bb *BlockBuilder) Call(name string, callee ir.Value, args ...ir.Value) *ir.Instr {
	ret := callee.Type().Ret
	if callee.Type().Kind == ir.PointerKind {
		ret = callee.Type().Elem.Ret
	}
	return bb.add(&ir.Instr{Op: ir.OpCall, Nm: name, Ty: ret, Callee: callee, Ops: args})
}

// Cast appends a cast instruction.
func (bb *BlockBuilder) Cast(op ir.Opcode, name string, ty *ir.Type, v ir.Value) *ir.Instr {
	return bb.add(&ir.Instr{Op: op, Nm: name, Ty: ty, Ops: []ir.Value{v}})
}

// Select appends a select.
func (bb *BlockBuilder) Select(name string, ty *ir.Type, cond, a, b ir.Value) *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpSelect, Nm: name, Ty: ty, Ops: []ir.Value{cond, a, b}})
}

// GEP appends a getelementptr over srcElem.
func (bb *BlockBuilder) GEP(name string, srcElem *ir.Type, resTy *ir.Type, ptr ir.Value, indices ...ir.Value) *ir.Instr {
	return bb.add(&ir.Instr{
		Op: ir.OpGEP, Nm: name, Ty: resTy, SrcElem: srcElem,
		Ops: append([]ir.Value{ptr}, indices...),
	})
}

// Ret appends a return; v may be nil for void.
func (bb *BlockBuilder) Ret(v ir.Value) *ir.Instr {
	i := &ir.Instr{Op: ir.OpRet, Ty: ir.Void}
	if v != nil {
		i.Ops = []ir.Value{v}
	}
	return bb.add(i)
}

// Br appends an unconditional branch.
func (bb *BlockBuilder) Br(dest *BlockBuilder) *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpBr, Ty: ir.Void, Succs: []*ir.Block{dest.b}})
}

// CondBr appends a conditional branch.
func (bb *BlockBuilder) CondBr(cond ir.Value, then, els *BlockBuilder) *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpBr, Ty: ir.Void, Ops: []ir.Value{cond}, Succs: []*ir.Block{then.b, els.b}})
}

// Switch appends a switch; cases pair up as (value, block).
func (bb *BlockBuilder) Switch(cond ir.Value, def *BlockBuilder, cases ...any) *ir.Instr {
	i := &ir.Instr{Op: ir.OpSwitch, Ty: ir.Void, Ops: []ir.Value{cond}, Succs: []*ir.Block{def.b}}
	for n := 0; n+1 < len(cases); n += 2 {
		i.Cases = append(i.Cases, ir.SwitchCase{
			Val:    cases[n].(int64),
			Target: cases[n+1].(*BlockBuilder).b,
		})
	}
	return bb.add(i)
}

// IndirectBr appends an indirect branch on addr.
func (bb *BlockBuilder) IndirectBr(addr ir.Value, dests ...*BlockBuilder) *ir.Instr {
	i := &ir.Instr{Op: ir.OpIndirectBr, Ty: ir.Void, Ops: []ir.Value{addr}}
	for _, d := range dests {
		i.Succs = append(i.Succs, d.b)
	}
	return bb.add(i)
}

// Unreachable appends an unreachable terminator.
func (bb *BlockBuilder) Unreachable() *ir.Instr {
	return bb.add(&ir.Instr{Op: ir.OpUnreachable, Ty: ir.Void})
}

// Module assembles a finalized module from globals and functions.
func Module(globals []*ir.Global, funcs ...*ir.Func) *ir.Module {
	m := &ir.Module{TargetTriple: ir.ExpectedTriple, Globals: globals, Funcs: funcs}
	m.Finalize()
	return m
}
