package asmjs

import (
	"strconv"

	"emjs/internal/ir"
)

// heapAccess names the heap view indexing expression for an access of the
// given byte width.
func (e *Emitter) heapAccess(name string, bytes uint32, integer bool) string {
	switch bytes {
	case 8:
		return "HEAPF64[" + name + ">>3]"
	case 4:
		if integer {
			return "HEAP32[" + name + ">>2]"
		}
		return "HEAPF32[" + name + ">>2]"
	case 2:
		return "HEAP16[" + name + ">>1]"
	case 1:
		return "HEAP8[" + name + ">>0]"
	}
	e.fatalf(ErrUnsupported, "unsupported heap access width %d", bytes)
	return ""
}

// ptrUse renders the heap slot a pointer refers to. Defined globals
// collapse to a constant index into the right view.
func (e *Emitter) ptrUse(ptr ir.Value) string {
	t := ptr.Type().Elem
	bytes := ir.AllocSize(t)
	if g, ok := ir.StripPointerCasts(ptr).(*ir.Global); ok && !g.IsDeclaration() {
		addr := uint64(e.globalAddress(g.Nm))
		switch bytes {
		case 8:
			return "HEAPF64[" + strconv.FormatUint(addr>>3, 10) + "]"
		case 4:
			if t.IsInt() || t.IsPointer() {
				return "HEAP32[" + strconv.FormatUint(addr>>2, 10) + "]"
			}
			return "HEAPF32[" + strconv.FormatUint(addr>>2, 10) + "]"
		case 2:
			return "HEAP16[" + strconv.FormatUint(addr>>1, 10) + "]"
		case 1:
			return "HEAP8[" + strconv.FormatUint(addr, 10) + "]"
		}
		e.fatalf(ErrUnsupported, "unsupported global access width %d", bytes)
	}
	return e.heapAccess(e.valueAsStr(ptr, castSigned), bytes, t.IsInt() || t.IsPointer())
}

func (e *Emitter) ptrLoad(ptr ir.Value) string {
	return e.cast(e.ptrUse(ptr), ptr.Type().Elem, castNonspecific)
}

// getLoad renders a load of type t through p. Misaligned accesses go
// byte-group by byte-group through the tempDoublePtr scratch slot.
func (e *Emitter) getLoad(i *ir.Instr, p ir.Value, t *ir.Type, alignment uint32, sep string) string {
	assign := e.getAssign(i)
	bytes := ir.AllocSize(t)
	if bytes <= alignment || alignment == 0 {
		text := assign + e.ptrLoad(p)
		if isAbsolute(p) {
			// A load from an absolute constant address is either an
			// intentional segfault or a code problem; fault loudly.
			text += "; abort() /* segfault, load from absolute addr */"
		}
		return text
	}
	if e.cfg.WarnOnUnaligned {
		e.rep.Warnf("unaligned load in %s: %s | %s", i.Parent.Fn.Nm, i.Op, dbgSuffix(i))
	}
	ps := e.valueAsStr(p, castSigned)
	switch bytes {
	case 8:
		var text string
		switch alignment {
		case 4:
			text = "HEAP32[tempDoublePtr>>2]=HEAP32[" + ps + ">>2]" + sep +
				"HEAP32[tempDoublePtr+4>>2]=HEAP32[" + ps + "+4>>2]"
		case 2:
			text = "HEAP16[tempDoublePtr>>1]=HEAP16[" + ps + ">>1]" + sep +
				"HEAP16[tempDoublePtr+2>>1]=HEAP16[" + ps + "+2>>1]" + sep +
				"HEAP16[tempDoublePtr+4>>1]=HEAP16[" + ps + "+4>>1]" + sep +
				"HEAP16[tempDoublePtr+6>>1]=HEAP16[" + ps + "+6>>1]"
		case 1:
			text = "HEAP8[tempDoublePtr>>0]=HEAP8[" + ps + ">>0]" + sep +
				"HEAP8[tempDoublePtr+1>>0]=HEAP8[" + ps + "+1>>0]" + sep +
				"HEAP8[tempDoublePtr+2>>0]=HEAP8[" + ps + "+2>>0]" + sep +
				"HEAP8[tempDoublePtr+3>>0]=HEAP8[" + ps + "+3>>0]" + sep +
				"HEAP8[tempDoublePtr+4>>0]=HEAP8[" + ps + "+4>>0]" + sep +
				"HEAP8[tempDoublePtr+5>>0]=HEAP8[" + ps + "+5>>0]" + sep +
				"HEAP8[tempDoublePtr+6>>0]=HEAP8[" + ps + "+6>>0]" + sep +
				"HEAP8[tempDoublePtr+7>>0]=HEAP8[" + ps + "+7>>0]"
		default:
			e.fatalf(ErrUnsupported, "bad alignment %d for 8-byte load", alignment)
		}
		return text + sep + assign + "+HEAPF64[tempDoublePtr>>3]"
	case 4:
		if t.IsInt() || t.IsPointer() {
			switch alignment {
			case 2:
				return assign + "HEAPU16[" + ps + ">>1]|" +
					"(HEAPU16[" + ps + "+2>>1]<<16)"
			case 1:
				return assign + "HEAPU8[" + ps + ">>0]|" +
					"(HEAPU8[" + ps + "+1>>0]<<8)|" +
					"(HEAPU8[" + ps + "+2>>0]<<16)|" +
					"(HEAPU8[" + ps + "+3>>0]<<24)"
			default:
				e.fatalf(ErrUnsupported, "bad alignment %d for 4-byte load", alignment)
			}
		}
		var text string
		switch alignment {
		case 2:
			text = "HEAP16[tempDoublePtr>>1]=HEAP16[" + ps + ">>1]" + sep +
				"HEAP16[tempDoublePtr+2>>1]=HEAP16[" + ps + "+2>>1]"
		case 1:
			text = "HEAP8[tempDoublePtr>>0]=HEAP8[" + ps + ">>0]" + sep +
				"HEAP8[tempDoublePtr+1>>0]=HEAP8[" + ps + "+1>>0]" + sep +
				"HEAP8[tempDoublePtr+2>>0]=HEAP8[" + ps + "+2>>0]" + sep +
				"HEAP8[tempDoublePtr+3>>0]=HEAP8[" + ps + "+3>>0]"
		default:
			e.fatalf(ErrUnsupported, "bad alignment %d for 4-byte float load", alignment)
		}
		return text + sep + assign + e.cast("HEAPF32[tempDoublePtr>>2]", ir.Float, castSigned)
	case 2:
		return assign + "HEAPU8[" + ps + ">>0]|" +
			"(HEAPU8[" + ps + "+1>>0]<<8)"
	default:
		e.fatalf(ErrUnsupported, "bad load size %d", bytes)
		return ""
	}
}

// getStore renders a store of vs (of type t) through p.
func (e *Emitter) getStore(i *ir.Instr, p ir.Value, t *ir.Type, vs string, alignment uint32) string {
	bytes := ir.AllocSize(t)
	if bytes <= alignment || alignment == 0 {
		text := e.ptrUse(p) + " = " + vs
		if alignment == 536870912 {
			text += "; abort() /* segfault */"
		}
		return text
	}
	if e.cfg.WarnOnUnaligned {
		e.rep.Warnf("unaligned store in %s: %s | %s", i.Parent.Fn.Nm, i.Op, dbgSuffix(i))
	}
	ps := e.valueAsStr(p, castSigned)
	switch bytes {
	case 8:
		text := "HEAPF64[tempDoublePtr>>3]=" + vs + ";"
		switch alignment {
		case 4:
			text += "HEAP32[" + ps + ">>2]=HEAP32[tempDoublePtr>>2];" +
				"HEAP32[" + ps + "+4>>2]=HEAP32[tempDoublePtr+4>>2]"
		case 2:
			text += "HEAP16[" + ps + ">>1]=HEAP16[tempDoublePtr>>1];" +
				"HEAP16[" + ps + "+2>>1]=HEAP16[tempDoublePtr+2>>1];" +
				"HEAP16[" + ps + "+4>>1]=HEAP16[tempDoublePtr+4>>1];" +
				"HEAP16[" + ps + "+6>>1]=HEAP16[tempDoublePtr+6>>1]"
		case 1:
			text += "HEAP8[" + ps + ">>0]=HEAP8[tempDoublePtr>>0];" +
				"HEAP8[" + ps + "+1>>0]=HEAP8[tempDoublePtr+1>>0];" +
				"HEAP8[" + ps + "+2>>0]=HEAP8[tempDoublePtr+2>>0];" +
				"HEAP8[" + ps + "+3>>0]=HEAP8[tempDoublePtr+3>>0];" +
				"HEAP8[" + ps + "+4>>0]=HEAP8[tempDoublePtr+4>>0];" +
				"HEAP8[" + ps + "+5>>0]=HEAP8[tempDoublePtr+5>>0];" +
				"HEAP8[" + ps + "+6>>0]=HEAP8[tempDoublePtr+6>>0];" +
				"HEAP8[" + ps + "+7>>0]=HEAP8[tempDoublePtr+7>>0]"
		default:
			e.fatalf(ErrUnsupported, "bad alignment %d for 8-byte store", alignment)
		}
		return text
	case 4:
		if t.IsInt() || t.IsPointer() {
			switch alignment {
			case 2:
				return "HEAP16[" + ps + ">>1]=" + vs + "&65535;" +
					"HEAP16[" + ps + "+2>>1]=" + vs + ">>>16"
			case 1:
				return "HEAP8[" + ps + ">>0]=" + vs + "&255;" +
					"HEAP8[" + ps + "+1>>0]=(" + vs + ">>8)&255;" +
					"HEAP8[" + ps + "+2>>0]=(" + vs + ">>16)&255;" +
					"HEAP8[" + ps + "+3>>0]=" + vs + ">>24"
			default:
				e.fatalf(ErrUnsupported, "bad alignment %d for 4-byte store", alignment)
			}
		}
		text := "HEAPF32[tempDoublePtr>>2]=" + vs + ";"
		switch alignment {
		case 2:
			text += "HEAP16[" + ps + ">>1]=HEAP16[tempDoublePtr>>1];" +
				"HEAP16[" + ps + "+2>>1]=HEAP16[tempDoublePtr+2>>1]"
		case 1:
			text += "HEAP8[" + ps + ">>0]=HEAP8[tempDoublePtr>>0];" +
				"HEAP8[" + ps + "+1>>0]=HEAP8[tempDoublePtr+1>>0];" +
				"HEAP8[" + ps + "+2>>0]=HEAP8[tempDoublePtr+2>>0];" +
				"HEAP8[" + ps + "+3>>0]=HEAP8[tempDoublePtr+3>>0]"
		default:
			e.fatalf(ErrUnsupported, "bad alignment %d for 4-byte float store", alignment)
		}
		return text
	case 2:
		return "HEAP8[" + ps + ">>0]=" + vs + "&255;" +
			"HEAP8[" + ps + "+1>>0]=" + vs + ">>8"
	default:
		e.fatalf(ErrUnsupported, "bad store size %d", bytes)
		return ""
	}
}

// dbgSuffix formats the optional source location of an instruction.
func dbgSuffix(i *ir.Instr) string {
	if i.Dbg.Line == 0 {
		return "?"
	}
	file := i.Dbg.File
	if file == "" {
		file = "?"
	}
	return file + ":" + strconv.FormatUint(uint64(i.Dbg.Line), 10)
}
