package asmjs

import (
	"strconv"
	"strings"

	"emjs/internal/ir"
)

func lsbMask(numBits uint32) uint64 {
	if numBits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << numBits) - 1
}

// isFNeg recognizes the canonical fneg spelling: fsub -0.0, x.
func isFNeg(i *ir.Instr) bool {
	if i.Op != ir.OpFSub {
		return false
	}
	c, ok := i.Operand(0).(*ir.Const)
	return ok && c.Kind == ir.ConstFloat && c.Float == 0 && strconv.FormatFloat(c.Float, 'g', -1, 64) == "-0"
}

// getIMul multiplies two 32-bit values. Powers of two become shifts,
// small constants use the JS multiply (exact below 2^20 factors), and the
// general case goes through Math_imul.
func (e *Emitter) getIMul(v1, v2 ir.Value) string {
	var ci *ir.Const
	var other ir.Value
	if c, ok := v1.(*ir.Const); ok && c.Kind == ir.ConstInt {
		ci, other = c, v2
	} else if c, ok := v2.(*ir.Const); ok && c.Kind == ir.ConstInt {
		ci, other = c, v1
	}
	// Multiplying two constants is the optimizer's job; no need here.
	if ci != nil {
		otherStr := e.valueAsStr(other, castSigned)
		c := uint32(ci.Int)
		if c == 0 {
			return "0"
		}
		if c == 1 {
			return otherStr
		}
		orig := c
		shifts := uint32(0)
		for c != 0 {
			if c&1 != 0 && c != 1 {
				break // not a power of 2
			}
			c >>= 1
			shifts++
			if c == 0 {
				return otherStr + "<<" + strconv.FormatUint(uint64(shifts-1), 10)
			}
		}
		if orig < 1<<20 {
			return "(" + otherStr + "*" + strconv.FormatUint(uint64(orig), 10) + ")|0" // small enough, avoid imul
		}
	}
	return "Math_imul(" + e.valueAsStr(v1, castSigned) + ", " + e.valueAsStr(v2, castSigned) + ")|0"
}

// generateExpression translates one instruction (or constant expression)
// into statement text. Pointer-cast no-ops never get here: operands and
// instructions alike are stripped before translation.
func (e *Emitter) generateExpression(i *ir.Instr, code *strings.Builder) {
	if i.Ty.IsInt() && i.Ty.Bits > 32 {
		e.fatalf(ErrLegalization, "i%d survived to emission", i.Ty.Bits)
	}

	if !e.generateSIMDExpression(i, code) {
		if !e.generateScalarExpression(i, code) {
			return
		}
	}

	if i.Parent != nil {
		code.WriteString(";")
		if i.Dbg.Line != 0 {
			file := i.Dbg.File
			if file == "" {
				file = "?"
			}
			code.WriteString(" //@line " + strconv.FormatUint(uint64(i.Dbg.Line), 10) + " \"" + file + "\"")
		}
		code.WriteString("\n")
	}
}

func (e *Emitter) generateScalarExpression(i *ir.Instr, code *strings.Builder) bool {
	switch i.Op {
	case ir.OpRet:
		if e.fe.stackBumped {
			code.WriteString("STACKTOP = sp;")
		}
		code.WriteString("return")
		if len(i.Ops) > 0 {
			code.WriteString(" " + e.valueAsCastParenStr(i.Operand(0), castNonspecific|castMustCast))
		}

	case ir.OpBr, ir.OpIndirectBr, ir.OpSwitch:
		// Handled while relooping.
		return false

	case ir.OpUnreachable:
		// There is usually an abort right before these.
		code.WriteString("// unreachable")

	case ir.OpAdd:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.parenCast(
			e.valueAsParenStr(i.Operand(0))+" + "+e.valueAsParenStr(i.Operand(1)),
			i.Ty, castSigned))
	case ir.OpSub:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.parenCast(
			e.valueAsParenStr(i.Operand(0))+" - "+e.valueAsParenStr(i.Operand(1)),
			i.Ty, castSigned))
	case ir.OpMul:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.getIMul(i.Operand(0), i.Operand(1)))
	case ir.OpUDiv, ir.OpSDiv, ir.OpURem, ir.OpSRem:
		sign := asmCast(castUnsigned)
		if i.Op == ir.OpSDiv || i.Op == ir.OpSRem {
			sign = castSigned
		}
		op := " % "
		if i.Op == ir.OpUDiv || i.Op == ir.OpSDiv {
			op = " / "
		}
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString("(" +
			e.valueAsCastParenStr(i.Operand(0), sign) + op +
			e.valueAsCastParenStr(i.Operand(1), sign) + ")&-1")
	case ir.OpAnd:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.valueAsStr(i.Operand(0), castSigned) + " & " + e.valueAsStr(i.Operand(1), castSigned))
	case ir.OpOr:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.valueAsStr(i.Operand(0), castSigned) + " | " + e.valueAsStr(i.Operand(1), castSigned))
	case ir.OpXor:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.valueAsStr(i.Operand(0), castSigned) + " ^ " + e.valueAsStr(i.Operand(1), castSigned))
	case ir.OpShl:
		code.WriteString(e.getAssignIfNeeded(i))
		shifted := e.valueAsStr(i.Operand(0), castSigned) + " << " + e.valueAsStr(i.Operand(1), castSigned)
		if i.Ty.Bits < 32 {
			// Drop the bits shifted beyond this value's width.
			shifted = e.parenCast(shifted, i.Ty, castUnsigned)
		}
		code.WriteString(shifted)
	case ir.OpAShr, ir.OpLShr:
		code.WriteString(e.getAssignIfNeeded(i))
		input := e.valueAsStr(i.Operand(0), castSigned)
		if i.Ty.Bits < 32 {
			// Fill in the high bits; the shift itself is 32-bit.
			sign := asmCast(castUnsigned)
			if i.Op == ir.OpAShr {
				sign = castSigned
			}
			input = "(" + e.cast(input, i.Ty, sign) + ")"
		}
		op := " >>> "
		if i.Op == ir.OpAShr {
			op = " >> "
		}
		code.WriteString(input + op + e.valueAsStr(i.Operand(1), castSigned))

	case ir.OpFAdd:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.ensureFloat(e.valueAsStr(i.Operand(0), castSigned)+" + "+e.valueAsStr(i.Operand(1), castSigned), i.Ty))
	case ir.OpFMul:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.ensureFloat(e.valueAsStr(i.Operand(0), castSigned)+" * "+e.valueAsStr(i.Operand(1), castSigned), i.Ty))
	case ir.OpFDiv:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.ensureFloat(e.valueAsStr(i.Operand(0), castSigned)+" / "+e.valueAsStr(i.Operand(1), castSigned), i.Ty))
	case ir.OpFRem:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.ensureFloat(e.valueAsStr(i.Operand(0), castSigned)+" % "+e.valueAsStr(i.Operand(1), castSigned), i.Ty))
	case ir.OpFSub:
		code.WriteString(e.getAssignIfNeeded(i))
		if isFNeg(i) {
			code.WriteString(e.ensureFloat("-"+e.valueAsStr(i.Operand(1), castSigned), i.Ty))
		} else {
			code.WriteString(e.ensureFloat(e.valueAsStr(i.Operand(0), castSigned)+" - "+e.valueAsStr(i.Operand(1), castSigned), i.Ty))
		}

	case ir.OpFCmp:
		e.generateScalarFCmp(i, code)

	case ir.OpICmp:
		sign := asmCast(castSigned)
		if i.Pred.IsUnsigned() {
			sign = castUnsigned
		}
		var op string
		switch i.Pred {
		case ir.IntEQ:
			op = "=="
		case ir.IntNE:
			op = "!="
		case ir.IntULE, ir.IntSLE:
			op = "<="
		case ir.IntUGE, ir.IntSGE:
			op = ">="
		case ir.IntULT, ir.IntSLT:
			op = "<"
		case ir.IntUGT, ir.IntSGT:
			op = ">"
		default:
			e.fatalf(ErrInternal, "invalid icmp predicate")
		}
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString("(" + e.valueAsCastStr(i.Operand(0), sign) + ")" + op +
			"(" + e.valueAsCastStr(i.Operand(1), sign) + ")")

	case ir.OpAlloca:
		return e.generateAlloca(i, code)

	case ir.OpLoad:
		p := i.Operand(0)
		if e.fe.nativized[p] {
			code.WriteString(e.getAssign(i) + e.valueAsStr(p, castSigned))
		} else {
			code.WriteString(e.getLoad(i, p, i.Ty, i.Align, ";"))
		}

	case ir.OpStore:
		p := i.Operand(1)
		v := i.Operand(0)
		vs := e.valueAsStr(v, castSigned)
		if e.fe.nativized[p] {
			code.WriteString(e.valueAsStr(p, castSigned) + " = " + vs)
		} else {
			code.WriteString(e.getStore(i, p, v.Type(), vs, i.Align))
		}
		if t := v.Type(); t.IsInt() && t.Bits > 32 {
			e.fatalf(ErrLegalization, "store of i%d survived to emission", t.Bits)
		}

	case ir.OpGEP:
		e.generateGEP(i, code)

	case ir.OpPhi:
		// Handled separately: pushed back into the relooper branchings.
		return false

	case ir.OpPtrToInt, ir.OpIntToPtr:
		code.WriteString(e.getAssignIfNeeded(i))
		if i.Parent == nil {
			code.WriteString("(" + e.valueAsStr(i.Operand(0), castSigned) + ")")
		} else {
			code.WriteString(e.valueAsStr(i.Operand(0), castSigned))
		}

	case ir.OpTrunc:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.valueAsStr(i.Operand(0), castSigned) + "&" + strconv.FormatUint(lsbMask(i.Ty.Bits), 10))
	case ir.OpSExt:
		code.WriteString(e.getAssignIfNeeded(i))
		bits := strconv.FormatUint(uint64(32-i.Operand(0).Type().Bits), 10)
		code.WriteString(e.valueAsStr(i.Operand(0), castSigned) + " << " + bits + " >> " + bits)
	case ir.OpZExt:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.valueAsCastStr(i.Operand(0), castUnsigned))
	case ir.OpFPExt:
		code.WriteString(e.getAssignIfNeeded(i))
		if e.cfg.PreciseF32 {
			code.WriteString("+" + e.valueAsStr(i.Operand(0), castSigned))
		} else {
			code.WriteString(e.valueAsStr(i.Operand(0), castSigned))
		}
	case ir.OpFPTrunc:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.ensureFloat(e.valueAsStr(i.Operand(0), castSigned), i.Ty))
	case ir.OpSIToFP:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString("(" + e.cast(e.valueAsCastParenStr(i.Operand(0), castSigned), i.Ty, castSigned) + ")")
	case ir.OpUIToFP:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString("(" + e.cast(e.valueAsCastParenStr(i.Operand(0), castUnsigned), i.Ty, castSigned) + ")")
	case ir.OpFPToSI:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString("(" + doubleToInt(e.valueAsParenStr(i.Operand(0))) + ")")
	case ir.OpFPToUI:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString("(" + e.cast(doubleToInt(e.valueAsParenStr(i.Operand(0))), i.Ty, castUnsigned) + ")")

	case ir.OpBitCast:
		code.WriteString(e.getAssignIfNeeded(i))
		inType := i.Operand(0).Type()
		outType := i.Ty
		v := e.valueAsStr(i.Operand(0), castSigned)
		switch {
		case inType.IsInt() && outType.IsFloatingPoint():
			if inType.Bits != 32 {
				e.fatalf(ErrUnsupported, "bitcast from i%d to float", inType.Bits)
			}
			code.WriteString("(HEAP32[tempDoublePtr>>2]=" + v + "," + e.cast("HEAPF32[tempDoublePtr>>2]", ir.Float, castSigned) + ")")
		case outType.IsInt() && inType.IsFloatingPoint():
			if outType.Bits != 32 {
				e.fatalf(ErrUnsupported, "bitcast from float to i%d", outType.Bits)
			}
			code.WriteString("(HEAPF32[tempDoublePtr>>2]=" + v + ",HEAP32[tempDoublePtr>>2]|0)")
		default:
			code.WriteString(v)
		}

	case ir.OpCall:
		call := e.handleCall(i)
		if call == "" {
			return false
		}
		code.WriteString(call)

	case ir.OpSelect:
		code.WriteString(e.getAssignIfNeeded(i))
		code.WriteString(e.valueAsStr(i.Operand(0), castSigned) + " ? " +
			e.valueAsStr(i.Operand(1), castSigned) + " : " +
			e.valueAsStr(i.Operand(2), castSigned))

	case ir.OpAtomicRMW:
		// Single-threaded target: a plain load, compute, store sequence.
		p := i.Operand(0)
		vs := e.valueAsStr(i.Operand(1), castSigned)
		name := e.jsName(i)
		code.WriteString(e.getLoad(i, p, i.Ty, 0, ";") + ";")
		switch i.Atomic {
		case ir.AtomicXchg:
			code.WriteString(e.getStore(i, p, i.Ty, vs, 0))
		case ir.AtomicAdd:
			code.WriteString(e.getStore(i, p, i.Ty, "(("+name+"+"+vs+")|0)", 0))
		case ir.AtomicSub:
			code.WriteString(e.getStore(i, p, i.Ty, "(("+name+"-"+vs+")|0)", 0))
		case ir.AtomicAnd:
			code.WriteString(e.getStore(i, p, i.Ty, "("+name+"&"+vs+")", 0))
		case ir.AtomicNand:
			code.WriteString(e.getStore(i, p, i.Ty, "(~("+name+"&"+vs+"))", 0))
		case ir.AtomicOr:
			code.WriteString(e.getStore(i, p, i.Ty, "("+name+"|"+vs+")", 0))
		case ir.AtomicXor:
			code.WriteString(e.getStore(i, p, i.Ty, "("+name+"^"+vs+")", 0))
		default:
			e.fatalf(ErrUnsupported, "bad atomic operation")
		}

	case ir.OpFence:
		// No threads, so nothing to order.
		code.WriteString("/* fence */")

	default:
		e.fatalf(ErrUnsupported, "invalid instruction %s", i.Op)
	}
	return true
}

func (e *Emitter) generateScalarFCmp(i *ir.Instr, code *strings.Builder) {
	a := func() string { return e.valueAsStr(i.Operand(0), castSigned) }
	b := func() string { return e.valueAsStr(i.Operand(1), castSigned) }
	code.WriteString(e.getAssignIfNeeded(i))
	switch i.Pred {
	// Comparisons which are simple JS operators.
	case ir.FloatOEQ:
		code.WriteString(a() + " == " + b())
	case ir.FloatUNE:
		code.WriteString(a() + " != " + b())
	case ir.FloatOGT:
		code.WriteString(a() + " > " + b())
	case ir.FloatOGE:
		code.WriteString(a() + " >= " + b())
	case ir.FloatOLT:
		code.WriteString(a() + " < " + b())
	case ir.FloatOLE:
		code.WriteString(a() + " <= " + b())

	// Comparisons which are inverses of JS operators.
	case ir.FloatUGT:
		code.WriteString("!(" + a() + " <= " + b() + ")")
	case ir.FloatUGE:
		code.WriteString("!(" + a() + " < " + b() + ")")
	case ir.FloatULT:
		code.WriteString("!(" + a() + " >= " + b() + ")")
	case ir.FloatULE:
		code.WriteString("!(" + a() + " > " + b() + ")")

	// Comparisons which require explicit NaN checks.
	case ir.FloatUEQ:
		code.WriteString("(" + a() + " != " + a() + ") | " +
			"(" + b() + " != " + b() + ") |" +
			"(" + a() + " == " + b() + ")")
	case ir.FloatONE:
		code.WriteString("(" + a() + " == " + a() + ") & " +
			"(" + b() + " == " + b() + ") &" +
			"(" + a() + " != " + b() + ")")

	// Simple NaN checks.
	case ir.FloatORD:
		code.WriteString("(" + a() + " == " + a() + ") & " +
			"(" + b() + " == " + b() + ")")
	case ir.FloatUNO:
		code.WriteString("(" + a() + " != " + a() + ") | " +
			"(" + b() + " != " + b() + ")")

	// Simple constants.
	case ir.FloatFalse:
		code.WriteString("0")
	case ir.FloatTrue:
		code.WriteString("1")

	default:
		e.fatalf(ErrInternal, "bad fcmp predicate")
	}
}

func (e *Emitter) generateAlloca(i *ir.Instr, code *strings.Builder) bool {
	// The stack was bumped for this frame, so returns must restore it.
	// Nativized vars are still counted in the frame offsets, so the
	// restore stays necessary even for them.
	e.fe.stackBumped = true

	if e.fe.nativized[i] {
		// A nativized stack variable only needs a var definition.
		e.fe.usedVars[e.jsName(i)] = i.Allocated
		return false
	}

	if i.IsStaticAlloca() {
		if offset, ok := e.fe.frame.FrameOffset(i); ok {
			code.WriteString(e.getAssign(i))
			if e.fe.frame.MaxAlignment() <= stackAlign {
				code.WriteString("sp")
			} else {
				code.WriteString("sp_a") // aligned base of stack is different, use that
			}
			if offset != 0 {
				code.WriteString(" + " + strconv.FormatUint(offset, 10) + "|0")
			}
			return true
		}
		// This alloca is represented by another one, so there is
		// nothing to print.
		return false
	}

	if i.Align > stackAlign {
		e.fatalf(ErrUnsupported, "dynamic alloca with alignment %d", i.Align)
	}

	baseSize := uint64(ir.AllocSize(i.Allocated))
	var size string
	if c, ok := i.Operand(0).(*ir.Const); ok && c.Kind == ir.ConstInt {
		size = strconv.FormatUint(stackAlignRound(baseSize*uint64(c.Int)), 10)
	} else {
		size = stackAlignStr("((" + strconv.FormatUint(baseSize, 10) + "*" + e.valueAsStr(i.Operand(0), castSigned) + ")|0)")
	}
	code.WriteString(e.getAssign(i) + "STACKTOP; " + e.getStackBump(size))
	return true
}

func (e *Emitter) generateGEP(i *ir.Instr, code *strings.Builder) {
	code.WriteString(e.getAssignIfNeeded(i))
	text := e.valueAsParenStr(i.Operand(0))
	var constantOffset int64
	cur := ir.Ptr(i.SrcElem)
	for _, index := range i.Ops[1:] {
		if cur.Kind == ir.StructKind {
			// A struct index adds the member offset and must be constant.
			c, ok := index.(*ir.Const)
			if !ok || c.Kind != ir.ConstInt {
				e.fatalf(ErrInternal, "non-constant struct index in gep")
			}
			field := int(c.Int)
			constantOffset += int64(ir.FieldOffset(cur, field))
			cur = cur.Fields[field]
			continue
		}
		// An array-style index scales by the element size.
		if cur.Elem == nil {
			e.fatalf(ErrInternal, "gep walks into a scalar")
		}
		cur = cur.Elem
		elementSize := int64(ir.AllocSize(cur))
		if c, ok := index.(*ir.Const); ok && c.Kind == ir.ConstInt {
			constantOffset += c.Int * elementSize
		} else {
			text = "(" + text + " + (" + e.getIMul(index, ir.IntConst(ir.I32, elementSize)) + ")|0)"
		}
	}
	if constantOffset != 0 {
		text = "(" + text + " + " + strconv.FormatInt(int64(int32(constantOffset)), 10) + "|0)"
	}
	code.WriteString(text)
}
