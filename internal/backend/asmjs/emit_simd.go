package asmjs

import (
	"strconv"
	"strings"

	"emjs/internal/ir"
)

const (
	simdLaneUpper = "XYZW"
	simdLaneLower = "xyzw"
)

// generateSIMDExpression handles vector-producing and vector-consuming
// instructions. Returns false when the instruction is scalar after all
// (e.g. a call that merely returns a SIMD value, or a select with a
// scalar condition).
func (e *Emitter) generateSIMDExpression(i *ir.Instr, code *strings.Builder) bool {
	if i.Ty.IsVector() {
		vt := i.Ty
		e.checkVectorType(vt)
		a := func(n int) string { return e.valueAsStr(i.Operand(n), castSigned) }

		switch i.Op {
		case ir.OpCall:
			// The return value is just a SIMD value, no special handling.
			return false
		case ir.OpPhi:
			// Handled separately: pushed back into the relooper branchings.
		case ir.OpICmp:
			e.generateVectorICmp(i, code)
		case ir.OpFCmp:
			e.generateVectorFCmp(i, code)
		case ir.OpSExt:
			// Since i1 vectors are represented as sign-extended wider
			// lanes, sign-extending them is a no-op.
			elem := i.Operand(0).Type().Elem
			if !elem.IsInt() || elem.Bits != 1 {
				e.fatalf(ErrUnsupported, "vector sign-extension from non-i1 elements")
			}
			code.WriteString(e.getAssignIfNeeded(i) + a(0))
		case ir.OpSelect:
			if !i.Operand(0).Type().IsVector() {
				// A scalar condition is just a ?: operator.
				return false
			}
			// An i1-vector condition selects elementwise.
			if vt.Elem.IsInt() {
				code.WriteString(e.getAssignIfNeeded(i) + "SIMD_int32x4_select(" + a(0) + "," + a(1) + "," + a(2) + ")")
			} else {
				code.WriteString(e.getAssignIfNeeded(i) + "SIMD_float32x4_select(" + a(0) + "," + a(1) + "," + a(2) + ")")
			}
		case ir.OpFAdd:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_float32x4_add(" + a(0) + "," + a(1) + ")")
		case ir.OpFMul:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_float32x4_mul(" + a(0) + "," + a(1) + ")")
		case ir.OpFDiv:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_float32x4_div(" + a(0) + "," + a(1) + ")")
		case ir.OpAdd:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_int32x4_add(" + a(0) + "," + a(1) + ")")
		case ir.OpSub:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_int32x4_sub(" + a(0) + "," + a(1) + ")")
		case ir.OpMul:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_int32x4_mul(" + a(0) + "," + a(1) + ")")
		case ir.OpAnd:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_int32x4_and(" + a(0) + "," + a(1) + ")")
		case ir.OpOr:
			code.WriteString(e.getAssignIfNeeded(i) + "SIMD_int32x4_or(" + a(0) + "," + a(1) + ")")
		case ir.OpXor:
			// A not(x) arrives as -1 ^ x.
			code.WriteString(e.getAssignIfNeeded(i))
			if arg, ok := isVectorNot(i); ok {
				code.WriteString("SIMD_int32x4_not(" + e.valueAsStr(arg, castSigned) + ")")
			} else {
				code.WriteString("SIMD_int32x4_xor(" + a(0) + "," + a(1) + ")")
			}
		case ir.OpFSub:
			// An fneg(x) arrives as -0.0 - x.
			code.WriteString(e.getAssignIfNeeded(i))
			if arg, ok := isVectorFNeg(i); ok {
				code.WriteString("SIMD_float32x4_neg(" + e.valueAsStr(arg, castSigned) + ")")
			} else {
				code.WriteString("SIMD_float32x4_sub(" + a(0) + "," + a(1) + ")")
			}
		case ir.OpBitCast:
			code.WriteString(e.getAssignIfNeeded(i))
			if vt.Elem.IsInt() {
				code.WriteString("SIMD_int32x4_fromFloat32x4Bits(" + a(0) + ")")
			} else {
				code.WriteString("SIMD_float32x4_fromInt32x4Bits(" + a(0) + ")")
			}
		case ir.OpLoad:
			ps := e.valueAsStr(i.Operand(0), castSigned)
			part := e.partialAccess(vt)
			code.WriteString(e.getAssignIfNeeded(i))
			if vt.Elem.IsInt() {
				code.WriteString("SIMD_int32x4_load" + part + "(HEAPU8, " + ps + ")")
			} else {
				code.WriteString("SIMD_float32x4_load" + part + "(HEAPU8, " + ps + ")")
			}
		case ir.OpInsertElement:
			e.generateInsertElementExpression(i, code)
		case ir.OpShuffleVector:
			e.generateShuffleVectorExpression(i, code)
		case ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem:
			// The SIMD API has no vector division; unroll to scalar
			// lanes, which matches what hardware would do anyway.
			e.generateUnrolledExpression(i, code)
		case ir.OpAShr, ir.OpLShr, ir.OpShl:
			e.generateVectorShiftExpression(i, code)
		default:
			e.fatalf(ErrUnsupported, "invalid vector instruction %s", i.Op)
		}
		return true
	}

	// Vector-consuming instructions with scalar (or void) results.
	if i.Op == ir.OpStore && i.Operand(0).Type().IsVector() {
		vt := i.Operand(0).Type()
		e.checkVectorType(vt)
		p := i.Operand(1)
		ps := e.jsName(p)
		vs := e.valueAsStr(i.Operand(0), castSigned)
		code.WriteString(e.adHocAssign(ps, p.Type()) + e.valueAsStr(p, castSigned) + ";")
		part := e.partialAccess(vt)
		if vt.Elem.IsInt() {
			code.WriteString("SIMD_int32x4_store" + part + "(HEAPU8, " + ps + ", " + vs + ")")
		} else {
			code.WriteString("SIMD_float32x4_store" + part + "(HEAPU8, " + ps + ", " + vs + ")")
		}
		return true
	}
	if i.Op == ir.OpExtractElement {
		e.generateExtractElementExpression(i, code)
		return true
	}
	return false
}

func (e *Emitter) partialAccess(vt *ir.Type) string {
	// Fewer than four lanes loads/stores only a prefix of the register.
	partial := [4]string{"X", "XY", "XYZ", ""}
	if vt.Len < 1 || vt.Len > 4 {
		e.fatalf(ErrUnsupported, "invalid number of lanes in SIMD operation")
	}
	return partial[vt.Len-1]
}

func isVectorNot(i *ir.Instr) (ir.Value, bool) {
	isAllOnes := func(v ir.Value) bool {
		c, ok := v.(*ir.Const)
		if !ok {
			return false
		}
		if c.Kind == ir.ConstInt && c.Int == -1 {
			return true
		}
		if c.Kind == ir.ConstVector {
			for _, el := range c.Elems {
				ec, ok := el.(*ir.Const)
				if !ok || ec.Kind != ir.ConstInt || ec.Int != -1 {
					return false
				}
			}
			return len(c.Elems) > 0
		}
		return false
	}
	if isAllOnes(i.Operand(1)) {
		return i.Operand(0), true
	}
	if isAllOnes(i.Operand(0)) {
		return i.Operand(1), true
	}
	return nil, false
}

func isVectorFNeg(i *ir.Instr) (ir.Value, bool) {
	c, ok := i.Operand(0).(*ir.Const)
	if !ok {
		return nil, false
	}
	isNegZero := func(v float64) bool {
		return v == 0 && strconv.FormatFloat(v, 'g', -1, 64) == "-0"
	}
	switch c.Kind {
	case ir.ConstFloat:
		if isNegZero(c.Float) {
			return i.Operand(1), true
		}
	case ir.ConstVector:
		for _, el := range c.Elems {
			ec, ok := el.(*ir.Const)
			if !ok || ec.Kind != ir.ConstFloat || !isNegZero(ec.Float) {
				return nil, false
			}
		}
		if len(c.Elems) > 0 {
			return i.Operand(1), true
		}
	}
	return nil, false
}

func (e *Emitter) generateVectorICmp(i *ir.Instr, code *strings.Builder) {
	invert := false
	var name string
	switch i.Pred {
	case ir.IntEQ:
		name = "equal"
	case ir.IntNE:
		name, invert = "equal", true
	case ir.IntSLE:
		name, invert = "greaterThan", true
	case ir.IntSGE:
		name, invert = "lessThan", true
	case ir.IntULE:
		name = "unsignedLessThanOrEqual"
	case ir.IntUGE:
		name = "unsignedGreaterThanOrEqual"
	case ir.IntULT:
		name = "unsignedLessThan"
	case ir.IntSLT:
		name = "lessThan"
	case ir.IntUGT:
		name = "unsignedGreaterThan"
	case ir.IntSGT:
		name = "greaterThan"
	default:
		e.fatalf(ErrUnsupported, "invalid vector icmp")
	}
	code.WriteString(e.getAssignIfNeeded(i))
	if invert {
		code.WriteString("SIMD_int32x4_not(")
	}
	code.WriteString("SIMD_int32x4_" + name + "(" +
		e.valueAsStr(i.Operand(0), castSigned) + ", " + e.valueAsStr(i.Operand(1), castSigned) + ")")
	if invert {
		code.WriteString(")")
	}
}

func (e *Emitter) generateVectorFCmp(i *ir.Instr, code *strings.Builder) {
	a := func() string { return e.valueAsStr(i.Operand(0), castSigned) }
	b := func() string { return e.valueAsStr(i.Operand(1), castSigned) }
	invert := false
	var name string
	code.WriteString(e.getAssignIfNeeded(i))
	switch i.Pred {
	case ir.FloatFalse:
		code.WriteString("SIMD_int32x4_splat(0)")
		return
	case ir.FloatTrue:
		code.WriteString("SIMD_int32x4_splat(-1)")
		return
	case ir.FloatONE:
		code.WriteString("SIMD_float32x4_and(SIMD_float32x4_and(" +
			"SIMD_float32x4_equal(" + a() + ", " + a() + "), " +
			"SIMD_float32x4_equal(" + b() + ", " + b() + ")), " +
			"SIMD_float32x4_notEqual(" + a() + ", " + b() + "))")
		return
	case ir.FloatUEQ:
		code.WriteString("SIMD_float32x4_or(SIMD_float32x4_or(" +
			"SIMD_float32x4_notEqual(" + a() + ", " + a() + "), " +
			"SIMD_float32x4_notEqual(" + b() + ", " + b() + ")), " +
			"SIMD_float32x4_equal(" + a() + ", " + b() + "))")
		return
	case ir.FloatORD:
		code.WriteString("SIMD_float32x4_and(" +
			"SIMD_float32x4_equal(" + a() + ", " + a() + "), " +
			"SIMD_float32x4_equal(" + b() + ", " + b() + "))")
		return
	case ir.FloatUNO:
		code.WriteString("SIMD_float32x4_or(" +
			"SIMD_float32x4_notEqual(" + a() + ", " + a() + "), " +
			"SIMD_float32x4_notEqual(" + b() + ", " + b() + "))")
		return
	case ir.FloatOEQ:
		name = "equal"
	case ir.FloatOGT:
		name = "greaterThan"
	case ir.FloatOGE:
		name = "greaterThanOrEqual"
	case ir.FloatOLT:
		name = "lessThan"
	case ir.FloatOLE:
		name = "lessThanOrEqual"
	case ir.FloatUGT:
		name, invert = "lessThanOrEqual", true
	case ir.FloatUGE:
		name, invert = "lessThan", true
	case ir.FloatULT:
		name, invert = "greaterThanOrEqual", true
	case ir.FloatULE:
		name, invert = "greaterThan", true
	case ir.FloatUNE:
		name = "notEqual"
	default:
		e.fatalf(ErrUnsupported, "invalid vector fcmp")
	}
	if invert {
		code.WriteString("SIMD_int32x4_not(")
	}
	code.WriteString("SIMD_float32x4_" + name + "(" + a() + ", " + b() + ")")
	if invert {
		code.WriteString(")")
	}
}

// elementAt digs the lane-i value out of an insertelement chain.
func elementAt(v ir.Value, lane int64) ir.Value {
	if ii, ok := v.(*ir.Instr); ok && ii.Op == ir.OpInsertElement {
		if c, ok := ii.Operand(2).(*ir.Const); ok && c.Kind == ir.ConstInt && c.Int == lane {
			return ii.Operand(1)
		}
		return elementAt(ii.Operand(0), lane)
	}
	return nil
}

// splatValue returns the single value every lane holds, if any.
func splatValue(v ir.Value) ir.Value {
	if c, ok := v.(*ir.Const); ok {
		switch c.Kind {
		case ir.ConstVector:
			var result ir.Value
			for _, el := range c.Elems {
				if result == nil {
					result = el
				} else if !sameConst(result, el) {
					return nil
				}
			}
			return result
		case ir.ConstAggregateZero:
			return ir.IntConst(c.Ty.Elem, 0)
		}
		return nil
	}
	vt := v.Type()
	var result ir.Value
	for lane := int64(0); lane < int64(vt.Len); lane++ {
		el := elementAt(v, lane)
		if el == nil {
			return nil
		}
		if result == nil {
			result = el
		} else if result != el {
			return nil
		}
	}
	return result
}

func sameConst(a, b ir.Value) bool {
	ca, okA := a.(*ir.Const)
	cb, okB := b.(*ir.Const)
	if !okA || !okB || ca.Kind != cb.Kind {
		return a == b
	}
	switch ca.Kind {
	case ir.ConstInt:
		return ca.Int == cb.Int
	case ir.ConstFloat:
		return ca.Float == cb.Float
	}
	return ca == cb
}

// generateInsertElementExpression renders insertelement chains. A chain
// that fully initializes the vector becomes a constructor (or a splat); a
// partial chain becomes a series of _with lane updates.
func (e *Emitter) generateInsertElementExpression(i *ir.Instr, code *strings.Builder) {
	// A single-use insertelement feeding another insert, or feeding the
	// splat shuffle idiom, is emitted when the end of the chain is
	// reached.
	if i.HasOneUse() {
		u := i.Users()[0]
		if u.Op == ir.OpInsertElement {
			return
		}
		if u.Op == ir.OpShuffleVector && isZeroMask(u.Mask) {
			base, baseIsInsert := i.Operand(0).(*ir.Instr)
			idx, idxIsConst := i.Operand(2).(*ir.Const)
			if (!baseIsInsert || base.Op != ir.OpInsertElement) && idxIsConst && idx.Int == 0 {
				return
			}
		}
	}

	vt := i.Ty
	numElems := int(vt.Len)
	operands := make([]ir.Value, numElems)
	numInserted := 0
	splat := i.Operand(1)
	var base ir.Value = i
	for {
		bi := base.(*ir.Instr)
		idx, ok := bi.Operand(2).(*ir.Const)
		if !ok || idx.Kind != ir.ConstInt {
			e.fatalf(ErrUnsupported, "insertelement with non-constant lane")
		}
		lane := int(idx.Int)
		if operands[lane] == nil {
			numInserted++
			operands[lane] = bi.Operand(1)
			if bi.Operand(1) != splat {
				splat = nil
			}
		}
		base = bi.Operand(0)
		next, isInstr := base.(*ir.Instr)
		if !isInstr || next.Op != ir.OpInsertElement || !next.HasOneUse() {
			break
		}
	}

	code.WriteString(e.getAssignIfNeeded(i))
	if numInserted == numElems {
		if splat != nil {
			if vt.Elem.IsInt() {
				code.WriteString("SIMD_int32x4_splat(" + e.valueAsStr(splat, castSigned) + ")")
			} else {
				operand := e.valueAsStr(splat, castSigned)
				if !e.cfg.PreciseF32 {
					// The splat builtin requires an actual float32 even
					// when we are otherwise not being precise about it.
					operand = "Math_fround(" + operand + ")"
				}
				code.WriteString("SIMD_float32x4_splat(" + operand + ")")
			}
			return
		}
		if vt.Elem.IsInt() {
			code.WriteString("SIMD_int32x4(")
		} else {
			code.WriteString("SIMD_float32x4(")
		}
		for lane := 0; lane < numElems; lane++ {
			if lane != 0 {
				code.WriteString(", ")
			}
			operand := e.valueAsStr(operands[lane], castSigned)
			if !e.cfg.PreciseF32 && vt.Elem.Kind == ir.FloatKind {
				operand = "Math_fround(" + operand + ")"
			}
			code.WriteString(operand)
		}
		code.WriteString(")")
		return
	}

	// A partial chain updates lanes one at a time.
	result := e.valueAsStr(base, castSigned)
	for lane := 0; lane < numElems; lane++ {
		if operands[lane] == nil {
			continue
		}
		with := "SIMD_int32x4_with"
		if !vt.Elem.IsInt() {
			with = "SIMD_float32x4_with"
		}
		operand := e.valueAsStr(operands[lane], castSigned)
		if !e.cfg.PreciseF32 {
			operand = "Math_fround(" + operand + ")"
		}
		result = with + string(simdLaneUpper[lane]) + "(" + result + "," + operand + ")"
	}
	code.WriteString(result)
}

func (e *Emitter) generateExtractElementExpression(i *ir.Instr, code *strings.Builder) {
	vt := i.Operand(0).Type()
	e.checkVectorType(vt)
	idx, ok := i.Operand(1).(*ir.Const)
	if !ok || idx.Kind != ir.ConstInt {
		e.fatalf(ErrUnsupported, "SIMD extract element with non-constant index")
	}
	if idx.Int > 3 {
		e.fatalf(ErrUnsupported, "SIMD extract lane %d out of range", idx.Int)
	}
	code.WriteString(e.getAssignIfNeeded(i))
	operand := e.valueAsStr(i.Operand(0), castSigned) + "." + string(simdLaneLower[idx.Int])
	code.WriteString(e.cast(operand, i.Ty, castSigned))
}

func isZeroMask(mask []int32) bool {
	for _, m := range mask {
		if m != 0 {
			return false
		}
	}
	return len(mask) > 0
}

func (e *Emitter) generateShuffleVectorExpression(i *ir.Instr, code *strings.Builder) {
	code.WriteString(e.getAssignIfNeeded(i))

	// The splat idiom: insert into lane 0, then shuffle with a zero mask.
	if isZeroMask(i.Mask) {
		if iei, ok := i.Operand(0).(*ir.Instr); ok && iei.Op == ir.OpInsertElement {
			if c, isConst := iei.Operand(2).(*ir.Const); isConst && c.Kind == ir.ConstInt && c.Int == 0 {
				operand := e.valueAsStr(iei.Operand(1), castSigned)
				if !e.cfg.PreciseF32 {
					operand = "Math_fround(" + operand + ")"
				}
				if i.Ty.Elem.IsInt() {
					code.WriteString("SIMD_int32x4_splat(")
				} else {
					code.WriteString("SIMD_float32x4_splat(")
				}
				code.WriteString(operand + ")")
				return
			}
		}
	}

	a := e.valueAsStr(i.Operand(0), castSigned)
	b := e.valueAsStr(i.Operand(1), castSigned)
	opNumElements := int32(i.Operand(0).Type().Len)
	resultNumElements := int(i.Ty.Len)
	maskAt := func(n int) int32 {
		if n < len(i.Mask) {
			return i.Mask[n]
		}
		return -1
	}

	// One-source masks become swizzles.
	swizzleA, swizzleB := true, true
	for n := 0; n < 4; n++ {
		m := int32(-1)
		if n < resultNumElements {
			m = maskAt(n)
		}
		if m >= opNumElements {
			swizzleA = false
		}
		if !(m < 0 || (m >= opNumElements && m < opNumElements*2)) {
			swizzleB = false
		}
	}
	if swizzleA || swizzleB {
		t := a
		if swizzleB {
			t = b
		}
		if i.Ty.Elem.IsInt() {
			code.WriteString("SIMD_int32x4_swizzle(" + t)
		} else {
			code.WriteString("SIMD_float32x4_swizzle(" + t)
		}
		n := 0
		for ; n < resultNumElements; n++ {
			code.WriteString(", ")
			m := maskAt(n)
			switch {
			case m < 0:
				code.WriteString("0")
			case m < opNumElements:
				code.WriteString(strconv.FormatInt(int64(m), 10))
			default:
				code.WriteString(strconv.FormatInt(int64(m-opNumElements), 10))
			}
		}
		for ; n < 4; n++ {
			code.WriteString(", 0")
		}
		code.WriteString(")")
		return
	}

	// The fully-general two-source shuffle.
	if i.Ty.Elem.IsInt() {
		code.WriteString("SIMD_int32x4_shuffle(")
	} else {
		code.WriteString("SIMD_float32x4_shuffle(")
	}
	code.WriteString(a + ", " + b + ", ")
	for n, m := range i.Mask {
		if n != 0 {
			code.WriteString(", ")
		}
		if m >= opNumElements {
			m = m - opNumElements + 4
		}
		if m < 0 {
			code.WriteString("0")
		} else {
			code.WriteString(strconv.FormatInt(int64(m), 10))
		}
	}
	code.WriteString(")")
}

// generateVectorShiftExpression shifts every lane by the same splat
// amount with a ByScalar builtin; SIMD.js has no vector-vector shifts, so
// anything else unrolls.
func (e *Emitter) generateVectorShiftExpression(i *ir.Instr, code *strings.Builder) {
	if splat := splatValue(i.Operand(1)); splat != nil {
		code.WriteString(e.getAssignIfNeeded(i) + "SIMD_int32x4_")
		switch i.Op {
		case ir.OpAShr:
			code.WriteString("shiftRightArithmeticByScalar")
		case ir.OpLShr:
			code.WriteString("shiftRightLogicalByScalar")
		default:
			code.WriteString("shiftLeftByScalar")
		}
		code.WriteString("(" + e.valueAsStr(i.Operand(0), castSigned) + ", " + e.valueAsStr(splat, castSigned) + ")")
		return
	}
	e.generateUnrolledExpression(i, code)
}

func (e *Emitter) generateUnrolledExpression(i *ir.Instr, code *strings.Builder) {
	vt := i.Ty
	code.WriteString(e.getAssignIfNeeded(i))
	if vt.Elem.IsInt() {
		code.WriteString("SIMD_int32x4(")
	} else {
		code.WriteString("SIMD_float32x4(")
	}
	a := e.valueAsStr(i.Operand(0), castSigned)
	b := e.valueAsStr(i.Operand(1), castSigned)
	for lane := 0; lane < int(vt.Len); lane++ {
		if lane != 0 {
			code.WriteString(", ")
		}
		fround := !e.cfg.PreciseF32 && vt.Elem.Kind == ir.FloatKind
		if fround {
			code.WriteString("Math_fround(")
		}
		l := "." + string(simdLaneLower[lane])
		switch i.Op {
		case ir.OpSDiv:
			code.WriteString("(" + a + l + "|0) / (" + b + l + "|0)|0")
		case ir.OpSRem:
			code.WriteString("(" + a + l + "|0) % (" + b + l + "|0)|0")
		case ir.OpUDiv:
			code.WriteString("(" + a + l + ">>>0) / (" + b + l + ">>>0)>>>0")
		case ir.OpURem:
			code.WriteString("(" + a + l + ">>>0) % (" + b + l + ">>>0)>>>0")
		case ir.OpAShr:
			code.WriteString("(" + a + l + "|0) >> (" + b + l + "|0)|0")
		case ir.OpLShr:
			code.WriteString("(" + a + l + "|0) >>> (" + b + l + "|0)|0")
		case ir.OpShl:
			code.WriteString("(" + a + l + "|0) << (" + b + l + "|0)|0")
		default:
			e.fatalf(ErrUnsupported, "invalid unrolled vector instruction %s", i.Op)
		}
		if fround {
			code.WriteString(")")
		}
	}
	code.WriteString(")")
}
