package ir

// Data layout queries for the asmjs target: ILP32, little-endian, 128-bit
// vectors. These mirror what the upstream legalizer assumed when it sized
// aggregates, so both sides must agree.

// AllocSize returns the in-memory allocation size of t in bytes, including
// tail padding.
func AllocSize(t *Type) uint32 {
	switch t.Kind {
	case IntKind:
		switch {
		case t.Bits <= 8:
			return 1
		case t.Bits <= 16:
			return 2
		default:
			return 4
		}
	case FloatKind, PointerKind:
		return 4
	case DoubleKind:
		return 8
	case VectorKind:
		return 16
	case ArrayKind:
		return AllocSize(t.Elem) * t.Len
	case StructKind:
		size := uint32(0)
		for _, f := range t.Fields {
			if !t.Packed {
				size = alignTo(size, ABIAlign(f))
			}
			size += AllocSize(f)
		}
		if !t.Packed && len(t.Fields) > 0 {
			size = alignTo(size, ABIAlign(t))
		}
		return size
	default:
		return 0
	}
}

// StoreSize returns the number of bytes a store of t writes. It differs
// from AllocSize only for oddly sized integers.
func StoreSize(t *Type) uint32 {
	if t.Kind == IntKind {
		return (t.Bits + 7) / 8
	}
	return AllocSize(t)
}

// ABIAlign returns the ABI alignment of t in bytes.
func ABIAlign(t *Type) uint32 {
	switch t.Kind {
	case IntKind:
		switch {
		case t.Bits <= 8:
			return 1
		case t.Bits <= 16:
			return 2
		default:
			return 4
		}
	case FloatKind, PointerKind:
		return 4
	case DoubleKind:
		return 8
	case VectorKind:
		return 16
	case ArrayKind:
		return ABIAlign(t.Elem)
	case StructKind:
		if t.Packed {
			return 1
		}
		align := uint32(1)
		for _, f := range t.Fields {
			if a := ABIAlign(f); a > align {
				align = a
			}
		}
		return align
	default:
		return 1
	}
}

// FieldOffset returns the byte offset of field i within struct type t.
func FieldOffset(t *Type, i int) uint32 {
	off := uint32(0)
	for j := 0; j <= i; j++ {
		f := t.Fields[j]
		if !t.Packed {
			off = alignTo(off, ABIAlign(f))
		}
		if j == i {
			return off
		}
		off += AllocSize(f)
	}
	return off
}

func alignTo(x, a uint32) uint32 {
	if a <= 1 {
		return x
	}
	return (x + a - 1) &^ (a - 1)
}
