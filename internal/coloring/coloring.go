// Package coloring plans the fixed-size stack frame of a function. It
// assigns a frame offset to every static alloca in the entry block and
// reports the frame size and the maximum alignment demanded. The emitter
// consumes only the query interface; the packing strategy behind it is
// free to change.
package coloring

import (
	"emjs/internal/ir"
)

// StackAlign is the stack alignment contract of the emitted code.
const StackAlign = 16

// Frame is the result of analyzing one function.
type Frame struct {
	offsets  map[*ir.Instr]uint64
	rep      map[*ir.Instr]*ir.Instr
	size     uint64
	maxAlign uint32
}

// Analyze plans the frame for f. The coalesce flag is accepted but not
// used: every static alloca gets its own slot, packed linearly in entry
// block order, and is its own representative.
func Analyze(f *ir.Func, coalesce bool) *Frame {
	fr := &Frame{
		offsets:  make(map[*ir.Instr]uint64),
		rep:      make(map[*ir.Instr]*ir.Instr),
		maxAlign: StackAlign,
	}
	if f == nil || f.IsDeclaration() {
		return fr
	}
	var offset uint64
	for _, i := range f.Entry().Instrs {
		if i.Op != ir.OpAlloca || !i.IsStaticAlloca() {
			continue
		}
		count := i.Ops[0].(*ir.Const).Int
		if count < 0 {
			count = 0
		}
		size := uint64(ir.AllocSize(i.Allocated)) * uint64(count)
		align := i.Align
		if align == 0 {
			align = ir.ABIAlign(i.Allocated)
		}
		if align > fr.maxAlign {
			fr.maxAlign = align
		}
		offset = alignUp(offset, uint64(align))
		fr.offsets[i] = offset
		fr.rep[i] = i
		offset += size
	}
	fr.size = alignUp(offset, StackAlign)
	if len(fr.offsets) == 0 {
		fr.size = 0
	}
	_ = coalesce
	return fr
}

// FrameOffset returns the planned offset of a static alloca, if it has one.
func (fr *Frame) FrameOffset(a *ir.Instr) (uint64, bool) {
	off, ok := fr.offsets[a]
	return off, ok
}

// MaxAlignment returns the largest alignment any alloca demanded, at least
// StackAlign.
func (fr *Frame) MaxAlignment() uint32 { return fr.maxAlign }

// FrameSize returns the total fixed frame size in bytes, already rounded
// up to StackAlign.
func (fr *Frame) FrameSize() uint64 { return fr.size }

// Representative returns the alloca whose slot a shares. For uncoalesced
// allocas this is a itself.
func (fr *Frame) Representative(a *ir.Instr) *ir.Instr {
	if r, ok := fr.rep[a]; ok {
		return r
	}
	return a
}

func alignUp(x, a uint64) uint64 {
	if a <= 1 {
		return x
	}
	return (x + a - 1) &^ (a - 1)
}
