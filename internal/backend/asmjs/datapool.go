package asmjs

import (
	"encoding/binary"
	"math"
	"strconv"

	"emjs/internal/ir"
)

// Memory layout constants of the emitted program.
const (
	memAlignBits = 64
	stackAlign   = 16
)

// address locates a global inside its alignment bucket.
type address struct {
	offset uint32
	bits   uint32
}

// dataPool builds the flat global memory image. Three byte buffers are
// partitioned by alignment; within a bucket allocation is append-only with
// padding inserted up front. The final image is laid out 64-bucket first,
// then 32, then 8.
type dataPool struct {
	data8     []byte
	data32    []byte
	data64    []byte
	addresses map[string]address
}

func newDataPool() *dataPool {
	return &dataPool{addresses: make(map[string]address)}
}

func (p *dataPool) bucket(bits uint32) *[]byte {
	switch bits {
	case 8:
		return &p.data8
	case 32:
		return &p.data32
	case 64:
		return &p.data64
	}
	return nil
}

// allocateAddress pads the bucket for bits to its alignment, records the
// named address, and returns the bucket for appending.
func (e *Emitter) allocateAddress(name string, bits uint32) *[]byte {
	data := e.pool.bucket(bits)
	if data == nil {
		e.fatalf(ErrInternal, "unsupported data element size %d", bits)
	}
	for len(*data)%int(bits/8) != 0 {
		*data = append(*data, 0)
	}
	e.pool.addresses[name] = address{offset: e.convOffset(len(*data)), bits: bits}
	return data
}

// globalAddress returns the absolute address of a named global: its
// bucket-local offset, plus the global base, plus the sizes of all
// strictly larger buckets.
func (e *Emitter) globalAddress(name string) uint32 {
	a, ok := e.pool.addresses[name]
	if !ok {
		e.fatalf(ErrInternal, "cannot find global address %s", name)
	}
	base := e.convOffset(e.cfg.GlobalBase)
	switch a.bits {
	case 64:
		ret := a.offset + base
		if ret%8 != 0 {
			e.fatalf(ErrInternal, "misaligned 64-bit global %s at %d", name, ret)
		}
		return ret
	case 32:
		ret := a.offset + base + e.convOffset(len(e.pool.data64))
		if ret%4 != 0 {
			e.fatalf(ErrInternal, "misaligned 32-bit global %s at %d", name, ret)
		}
		return ret
	case 8:
		return a.offset + base + e.convOffset(len(e.pool.data64)+len(e.pool.data32))
	}
	e.fatalf(ErrInternal, "bad global address %s: offset=%d elementsize=%d", name, a.offset, a.bits)
	return 0
}

// relativeAddress returns the offset of a named global inside its bucket.
func (e *Emitter) relativeAddress(name string) uint32 {
	a, ok := e.pool.addresses[name]
	if !ok {
		e.fatalf(ErrInternal, "cannot find global address %s", name)
	}
	return a.offset
}

// constAsOffset resolves a value written into a global slot to a numeric
// offset: functions become table indices, block addresses their dense
// index, defined globals their absolute address. An external symbol has no
// compile-time value, so it leaves zeros behind and logs a post-set to the
// absolute target slot.
func (e *Emitter) constAsOffset(v ir.Value, absoluteTarget uint32) uint32 {
	v = ir.ResolveFully(v)
	switch x := v.(type) {
	case *ir.Func:
		return e.convOffset(e.functionIndex(x))
	case *ir.Const:
		if x.Kind == ir.ConstBlockAddress {
			return e.convOffset(e.blockAddress(x.Fn, x.Block))
		}
	case *ir.Global:
		if x.IsDeclaration() {
			// Post-sets are always of external pointers, hence 32-bit.
			name := e.jsName(x)
			e.externals[name] = true
			e.postSets = append(e.postSets, "HEAP32["+strconv.FormatUint(uint64(absoluteTarget>>2), 10)+"] = "+name+";")
			return 0
		}
		return e.globalAddress(x.Nm)
	}
	e.fatalf(ErrInternal, "cannot resolve %T to an offset", v)
	return 0
}

// isAbsolute reports whether a pointer is a known absolute value: an
// inttoptr of a constant, a null, or an undef. Loads through these are
// deliberate faults.
func isAbsolute(p ir.Value) bool {
	if i, ok := p.(*ir.Instr); ok && i.Op == ir.OpIntToPtr {
		_, isConst := i.Operand(0).(*ir.Const)
		return isConst
	}
	if c, ok := p.(*ir.Const); ok {
		return c.Kind == ir.ConstNull || c.Kind == ir.ConstUndef
	}
	return false
}

// processConstants runs the two-phase constant walk: first compute every
// address, then emit the contents that reference other globals.
func (e *Emitter) processConstants() {
	for _, g := range e.mod.Globals {
		if g.Init != nil {
			e.parseConstant(g.Nm, g.Init, true)
		}
	}
	for _, g := range e.mod.Globals {
		if g.Init != nil {
			e.parseConstant(g.Nm, g.Init, false)
		}
	}
}

// parseConstant appends the bytes of a global initializer. In the
// calculate phase it sizes and places everything; the emit phase only
// revisits constants that embed relocations, which could not be resolved
// until all addresses existed.
func (e *Emitter) parseConstant(name string, c *ir.Const, calculate bool) {
	switch c.Kind {
	case ir.ConstData:
		if calculate {
			data := e.allocateAddress(name, memAlignBits)
			*data = append(*data, c.Bytes...)
		}
	case ir.ConstFloat:
		if calculate {
			data := e.allocateAddress(name, memAlignBits)
			switch c.Ty.Kind {
			case ir.FloatKind:
				*data = binary.LittleEndian.AppendUint32(*data, math.Float32bits(float32(c.Float)))
			case ir.DoubleKind:
				*data = binary.LittleEndian.AppendUint64(*data, math.Float64bits(c.Float))
			default:
				e.fatalf(ErrUnsupported, "unsupported floating-point constant type")
			}
		}
	case ir.ConstInt:
		if calculate {
			// Integer slots are stored as 64 bits with a zero high word.
			data := e.allocateAddress(name, memAlignBits)
			*data = binary.LittleEndian.AppendUint64(*data, uint64(uint32(c.Int)))
		}
	case ir.ConstNull:
		e.fatalf(ErrLegalization, "unlowered null pointer initializer for %s", name)
	case ir.ConstAggregateZero:
		if calculate {
			data := e.allocateAddress(name, memAlignBits)
			for i := uint32(0); i < ir.StoreSize(c.Ty); i++ {
				*data = append(*data, 0)
			}
		}
	case ir.ConstArray:
		if calculate {
			switch name {
			case "llvm.used":
				for _, el := range c.Elems {
					kept := ir.ResolveFully(el)
					if g, ok := kept.(*ir.Global); ok && !g.IsDeclaration() {
						// Kept-alive data is exposed to the driver by
						// name; it resolves the address itself.
						e.usedGlobals = append(e.usedGlobals, g)
						continue
					}
					e.exports = append(e.exports, e.jsName(kept))
				}
			case "llvm.global.annotations":
				// Ignorable.
			default:
				e.fatalf(ErrUnsupported, "unexpected constant array %s", name)
			}
		}
	case ir.ConstStruct:
		e.parseStructConstant(name, c, calculate)
	case ir.ConstVector:
		e.fatalf(ErrLegalization, "unlowered vector initializer for %s", name)
	case ir.ConstBlockAddress:
		e.fatalf(ErrLegalization, "unlowered blockaddress initializer for %s", name)
	case ir.ConstExpr:
		e.parseExprConstant(name, c, calculate)
	case ir.ConstUndef:
		e.fatalf(ErrLegalization, "unlowered undef initializer for %s", name)
	default:
		e.fatalf(ErrUnsupported, "unsupported constant kind for %s", name)
	}
}

func (e *Emitter) parseStructConstant(name string, c *ir.Const, calculate bool) {
	if name == "__init_array_start" {
		// The global static initializer list. Its members run at load
		// time instead of occupying memory.
		if calculate {
			for _, el := range c.Elems {
				e.globalInitializers = append(e.globalInitializers, e.jsName(ir.ResolveFully(el)))
			}
		}
		return
	}
	if calculate {
		data := e.allocateAddress(name, memAlignBits)
		for i := uint32(0); i < ir.StoreSize(c.Ty); i++ {
			*data = append(*data, 0)
		}
		return
	}
	// The flattened-globals ABI guarantees a packed struct here. It is
	// the one constant whose contents can reference other globals, so
	// the bytes are patched in the emit phase.
	if !c.Ty.Packed {
		e.fatalf(ErrLegalization, "global struct %s is not packed", name)
	}
	offset := e.relativeAddress(name)
	offsetStart := offset
	absolute := e.globalAddress(name)
	for _, el := range c.Elems {
		ec, ok := el.(*ir.Const)
		if !ok {
			e.fatalf(ErrUnsupported, "unexpected operand kind in %s", name)
		}
		switch ec.Kind {
		case ir.ConstAggregateZero:
			offset += ir.StoreSize(ec.Ty)
		case ir.ConstExpr:
			var data uint32
			switch ec.Op {
			case ir.OpPtrToInt:
				data = e.constAsOffset(ec.Ops[0], absolute+offset-offsetStart)
			case ir.OpAdd:
				inner, okInner := ec.Ops[0].(*ir.Const)
				addend, okAddend := ec.Ops[1].(*ir.Const)
				if !okInner || inner.Kind != ir.ConstExpr || !okAddend || addend.Kind != ir.ConstInt {
					e.fatalf(ErrUnsupported, "unexpected constant expr shape in %s", name)
				}
				data = e.constAsOffset(inner.Ops[0], absolute+offset-offsetStart)
				data += e.convOffset64(addend.Int)
			default:
				e.fatalf(ErrUnsupported, "unexpected constant expr kind in %s", name)
			}
			if int(offset)+4 > len(e.pool.data64) {
				e.fatalf(ErrInternal, "relocation in %s overruns the 64-bit bucket", name)
			}
			binary.LittleEndian.PutUint32(e.pool.data64[offset:], data)
			offset += 4
		case ir.ConstData:
			if int(offset)+len(ec.Bytes) > len(e.pool.data64) {
				e.fatalf(ErrInternal, "string in %s overruns the 64-bit bucket", name)
			}
			copy(e.pool.data64[offset:], ec.Bytes)
			offset += e.convOffset(len(ec.Bytes))
		default:
			e.fatalf(ErrUnsupported, "unexpected constant kind in %s", name)
		}
	}
}

func (e *Emitter) parseExprConstant(name string, c *ir.Const, calculate bool) {
	switch name {
	case "__init_array_start":
		if calculate {
			e.globalInitializers = append(e.globalInitializers, e.jsName(ir.ResolveFully(c.Ops[0])))
		}
		return
	case "__fini_array_start":
		return
	}
	// A global equal to a ptrtoint of a function or global: a 32-bit
	// integer slot patched in the emit phase.
	if calculate {
		data := e.allocateAddress(name, memAlignBits)
		*data = append(*data, 0, 0, 0, 0)
		return
	}
	var data uint32
	expr := c
	if expr.Op == ir.OpAdd {
		addend, ok := expr.Ops[1].(*ir.Const)
		if !ok || addend.Kind != ir.ConstInt {
			e.fatalf(ErrUnsupported, "unexpected addend in %s", name)
		}
		data = e.convOffset64(addend.Int)
		inner, ok := expr.Ops[0].(*ir.Const)
		if !ok || inner.Kind != ir.ConstExpr {
			e.fatalf(ErrUnsupported, "unexpected constant expr shape in %s", name)
		}
		expr = inner
	}
	var v ir.Value = expr
	if expr.Op == ir.OpPtrToInt {
		v = expr.Ops[0]
	}
	v, baseOffset := e.pointerBaseWithOffset(v)
	data += baseOffset
	data += e.constAsOffset(v, e.globalAddress(name))
	offset := e.relativeAddress(name)
	if int(offset)+4 > len(e.pool.data64) {
		e.fatalf(ErrInternal, "relocation for %s overruns the 64-bit bucket", name)
	}
	binary.LittleEndian.PutUint32(e.pool.data64[offset:], data)
}

// pointerBaseWithOffset peels lowered getelementptr chains, accumulating
// the constant byte offset.
func (e *Emitter) pointerBaseWithOffset(v ir.Value) (ir.Value, uint32) {
	var off uint32
	for {
		c, ok := v.(*ir.Const)
		if !ok || c.Kind != ir.ConstExpr {
			return v, off
		}
		switch c.Op {
		case ir.OpAdd:
			if addend, ok := c.Ops[1].(*ir.Const); ok && addend.Kind == ir.ConstInt {
				off += e.convOffset64(addend.Int)
				v = c.Ops[0]
				continue
			}
			return v, off
		case ir.OpPtrToInt, ir.OpBitCast, ir.OpIntToPtr:
			v = c.Ops[0]
		default:
			return v, off
		}
	}
}
