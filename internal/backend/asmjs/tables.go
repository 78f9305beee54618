package asmjs

import (
	"emjs/internal/ir"
)

// Function pointer tables. Every signature gets its own table; the index
// of a function in its table is the integer value of pointers to it.

// signatureLetter encodes one type in a table signature: v void, i
// int/pointer, d double, f precise float, I SIMD int, F SIMD float.
func (e *Emitter) signatureLetter(t *ir.Type) byte {
	switch {
	case t.IsVoid():
		return 'v'
	case t.IsFloatingPoint():
		if e.cfg.PreciseF32 && t.Kind == ir.FloatKind {
			return 'f'
		}
		return 'd'
	case t.IsVector():
		e.checkVectorType(t)
		if t.Elem.IsInt() {
			return 'I'
		}
		return 'F'
	default:
		return 'i'
	}
}

// functionSignature returns the signature key of a function type: return
// letter first, then one letter per parameter.
func (e *Emitter) functionSignature(ft *ir.Type) string {
	sig := make([]byte, 0, 1+len(ft.Params))
	sig = append(sig, e.signatureLetter(ft.Ret))
	for _, p := range ft.Params {
		sig = append(sig, e.signatureLetter(p))
	}
	return string(sig)
}

// ensureTable returns the table for a function type, creating it at its
// minimum size. Reserved slots must stay 2-aligned, so a nonzero
// reservation claims 2*(reserved+1) leading null entries.
func (e *Emitter) ensureTable(ft *ir.Type) *[]string {
	sig := e.functionSignature(ft)
	table, ok := e.functionTables[sig]
	if !ok {
		table = &[]string{}
		e.functionTables[sig] = table
	}
	minSize := 1
	if e.cfg.ReservedFunctionPointers > 0 {
		minSize = 2 * (e.cfg.ReservedFunctionPointers + 1)
	}
	for len(*table) < minSize {
		*table = append(*table, "0")
	}
	return table
}

// functionIndex places a function in its signature table on first use and
// returns its stable index.
func (e *Emitter) functionIndex(f *ir.Func) int {
	name := e.jsName(f)
	if idx, ok := e.indexedFunctions[name]; ok {
		return idx
	}
	table := e.ensureTable(f.Ty)
	if e.cfg.NoAliasingFunctionPointers {
		for len(*table) < e.nextFnIndex {
			*table = append(*table, "0")
		}
	}
	// Function alignment is read from the IR but is 1 in practice; the
	// ARM-like ABI tolerates unaligned functions. A forced alignment
	// still pads, preserving the escape hatch.
	alignment := int(f.Align)
	if alignment == 0 {
		alignment = 1
	}
	for len(*table)%alignment != 0 {
		*table = append(*table, "0")
	}
	index := len(*table)
	*table = append(*table, name)
	e.indexedFunctions[name] = index
	if e.cfg.NoAliasingFunctionPointers {
		e.nextFnIndex = index + 1
	}

	// The function may be indexed without ever being called directly;
	// its call handler still needs its side effects (declares,
	// redirects) to happen.
	if h, ok := e.handlers[name]; ok {
		h(e, nil, name, -1)
	}

	return index
}

// blockAddress returns the dense per-function enumeration of a block,
// assigning the next number on first use. Block addresses start from 0.
func (e *Emitter) blockAddress(f *ir.Func, b *ir.Block) int {
	blocks, ok := e.blockAddresses[f]
	if !ok {
		blocks = make(map[*ir.Block]int)
		e.blockAddresses[f] = blocks
	}
	if idx, ok := blocks[b]; ok {
		return idx
	}
	idx := len(blocks)
	blocks[b] = idx
	return idx
}
