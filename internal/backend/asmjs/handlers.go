package asmjs

import (
	"strconv"

	"emjs/internal/ir"
)

// handlerFunc emits the text for one recognized call. It is invoked
// either at a true call site, or once at function-indexing time with a
// nil instruction and numArgs -1, for handlers whose side effects
// (declares, redirects, table setup) must happen even when the function
// is only ever called through a pointer.
type handlerFunc func(e *Emitter, call *ir.Instr, name string, numArgs int) string

// handleCall dispatches a call instruction through the registry; unknown
// callees fall through to generic emission.
func (e *Emitter) handleCall(ci *ir.Instr) string {
	callee := ir.StripPointerCasts(ci.Callee)
	if f, ok := callee.(*ir.Func); ok {
		name := e.jsName(f)
		if h, ok := e.handlers[name]; ok {
			return h(e, ci, name, len(ci.Ops))
		}
		return e.defaultCall(ci, name, -1)
	}
	return e.defaultCall(ci, "", -1)
}

// defaultCall is the generic emission: a direct or table-indexed call
// with per-argument FFI coercions and a coerced result.
func (e *Emitter) defaultCall(ci *ir.Instr, forcedName string, numArgs int) string {
	if ci == nil {
		return "" // index-time invocation, side effects only
	}
	callee := ir.StripPointerCasts(ci.Callee)
	var ft *ir.Type
	var target string
	ffi := false
	switch f := callee.(type) {
	case *ir.Func:
		ft = f.Ty
		target = forcedName
		if target == "" {
			target = e.jsName(f)
		}
		if f.IsDeclaration() {
			// Foreign calls go through the runtime; their values are
			// limited to what survives an FFI boundary. The metadata
			// walk picks the declaration itself up.
			ffi = true
		}
	default:
		pt := callee.Type()
		if !pt.IsPointer() || pt.Elem.Kind != ir.FuncKind {
			e.fatalf(ErrUnsupported, "call through a non-function value")
		}
		ft = pt.Elem
		sig := e.functionSignature(ft)
		e.ensureTable(ft)
		// The table mask is a placeholder: tables grow until metadata
		// time, and the driver patches the final power-of-two mask.
		target = "FUNCTION_TABLE_" + sig + "[" + e.valueAsStr(callee, castSigned) + " & #FM_" + sig + "#]"
	}

	var args []string
	if e.fe != nil && e.fe.invokeState == 1 {
		// Calls inside an invoke go through an invoke_SIG trampoline
		// with the callee's pointer as the leading argument.
		sig := e.functionSignature(ft)
		e.declares["invoke_"+sig] = true
		target = "invoke_" + sig
		ffi = true
		if f, ok := callee.(*ir.Func); ok {
			args = append(args, strconv.Itoa(e.functionIndex(f)))
		} else {
			args = append(args, e.valueAsStr(callee, castSigned))
		}
		e.fe.invokeState = 2
	}

	n := len(ci.Ops)
	if numArgs >= 0 && numArgs < n {
		n = numArgs
	}
	argSign := castNonspecific
	if ffi {
		argSign |= castFFIOut
	}
	for k := 0; k < n; k++ {
		args = append(args, e.valueAsCastStr(ci.Ops[k], argSign))
	}

	text := target + "("
	for k, a := range args {
		if k > 0 {
			text += ","
		}
		text += a
	}
	text += ")"

	if !ci.Ty.IsVoid() && ci.Parent != nil && ci.HasUses() {
		retSign := castNonspecific
		if ffi {
			retSign |= castFFIIn
		}
		text = e.getAssign(ci) + e.cast(text, ci.Ty, retSign)
	}
	return text
}

// elidedCall drops the call entirely: lifetime markers and debug info
// have no representation here.
func elidedCall(*Emitter, *ir.Instr, string, int) string { return "" }

// libcCall redirects an intrinsic to a runtime library function.
func libcCall(decl, target string) handlerFunc {
	return func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		e.declares[decl] = true
		if ci == nil {
			return ""
		}
		return e.defaultCall(ci, target, 3) + "|0"
	}
}

// mathCall routes a float intrinsic to the asm.js Math builtin.
func mathCall(target string) handlerFunc {
	return func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		if ci == nil {
			return ""
		}
		text := target + "("
		for k := range ci.Ops {
			if k > 0 {
				text += ","
			}
			text += e.valueAsCastStr(ci.Ops[k], castNonspecific)
		}
		text += ")"
		if ci.HasUses() {
			text = e.getAssign(ci) + e.cast(text, ci.Ty, castNonspecific)
		}
		return text
	}
}

// simdCall routes an emscripten SIMD builtin to its SIMD.js operation.
func simdCall(target string) handlerFunc {
	return func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		if ci == nil {
			return ""
		}
		e.usesSIMD = true
		text := target + "("
		for k := range ci.Ops {
			if k > 0 {
				text += ","
			}
			text += e.valueAsStr(ci.Ops[k], castSigned)
		}
		text += ")"
		return e.getAssignIfNeeded(ci) + text
	}
}

func buildCallHandlers() map[string]handlerFunc {
	h := map[string]handlerFunc{}

	// Memory intrinsics lower to the runtime's libc.
	h["_llvm_memcpy_p0i8_p0i8_i32"] = libcCall("memcpy", "_memcpy")
	h["_llvm_memset_p0i8_i32"] = libcCall("memset", "_memset")
	h["_llvm_memmove_p0i8_p0i8_i32"] = libcCall("memmove", "_memmove")

	// Always no-ops, expanded away or meaningless here.
	for _, name := range []string{
		"_llvm_lifetime_start", "_llvm_lifetime_end",
		"_llvm_invariant_start", "_llvm_invariant_end",
		"_llvm_dbg_declare", "_llvm_dbg_value",
		"_llvm_prefetch",
	} {
		h[name] = elidedCall
	}

	// llvm.expect returns its first operand; the hint itself is dropped.
	h["_llvm_expect_i32"] = func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		if ci == nil {
			return ""
		}
		return e.getAssignIfNeeded(ci) + e.valueAsStr(ci.Operand(0), castSigned)
	}
	// The rounding mode is fixed: round-to-nearest.
	h["_llvm_flt_rounds"] = func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		if ci == nil {
			return ""
		}
		return e.getAssignIfNeeded(ci) + "1"
	}

	// The i64 legalizer communicates high words through tempRet0.
	h["_setTempRet0"] = func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		if ci == nil {
			return ""
		}
		return "tempRet0 = (" + e.valueAsStr(ci.Operand(0), castSigned) + ")"
	}
	h["_getTempRet0"] = func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		if ci == nil {
			return ""
		}
		return e.getAssignIfNeeded(ci) + "(tempRet0|0)"
	}

	// Invoke lowering: preInvoke, the call itself through an invoke_SIG
	// trampoline, then postInvoke. The state machine cycles 0, 1, 2, 0
	// within a block; anything else means the lowering upstream broke.
	h["_emscripten_preinvoke"] = func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		e.declares["emscripten_preinvoke"] = true
		if ci == nil {
			return ""
		}
		if e.fe.invokeState != 0 {
			e.fatalf(ErrInternal, "preInvoke in invoke state %d", e.fe.invokeState)
		}
		e.fe.invokeState = 1
		return "__THREW__ = 0"
	}
	h["_emscripten_postinvoke"] = func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		e.declares["emscripten_postinvoke"] = true
		if ci == nil {
			return ""
		}
		if e.fe.invokeState != 2 {
			e.fatalf(ErrInternal, "postInvoke in invoke state %d", e.fe.invokeState)
		}
		e.fe.invokeState = 0
		return e.getAssignIfNeeded(ci) + "__THREW__; __THREW__ = 0"
	}

	// Exception-handling bridges left by the emscripten EH lowering.
	for _, name := range []string{"___resumeException", "___cxa_find_matching_catch", "_llvm_eh_typeid_for"} {
		unmangled := name[1:]
		h[name] = func(e *Emitter, ci *ir.Instr, fname string, numArgs int) string {
			e.declares[unmangled] = true
			return e.defaultCall(ci, fname, -1)
		}
	}

	// SjLj lowering: setjmp sites become saveSetjmp/testSetjmp pairs,
	// and longjmp is redirected to the runtime's implementation.
	h["_emscripten_longjmp"] = func(e *Emitter, ci *ir.Instr, name string, numArgs int) string {
		e.declares["longjmp"] = true
		e.redirects["emscripten_longjmp"] = "_longjmp"
		return e.defaultCall(ci, "_longjmp", 2)
	}
	for _, name := range []string{"_saveSetjmp", "_testSetjmp"} {
		unmangled := name[1:]
		h[name] = func(e *Emitter, ci *ir.Instr, fname string, numArgs int) string {
			e.declares[unmangled] = true
			return e.defaultCall(ci, fname, -1)
		}
	}

	// Math intrinsics map straight onto asm.js stdlib builtins.
	h["_llvm_sqrt_f32"] = mathCall("Math_sqrt")
	h["_llvm_sqrt_f64"] = mathCall("Math_sqrt")
	h["_llvm_fabs_f32"] = mathCall("Math_abs")
	h["_llvm_fabs_f64"] = mathCall("Math_abs")
	h["_llvm_floor_f32"] = mathCall("Math_floor")
	h["_llvm_floor_f64"] = mathCall("Math_floor")
	h["_llvm_ceil_f32"] = mathCall("Math_ceil")
	h["_llvm_ceil_f64"] = mathCall("Math_ceil")
	h["_llvm_pow_f32"] = mathCall("Math_pow")
	h["_llvm_pow_f64"] = mathCall("Math_pow")
	h["_llvm_sin_f32"] = mathCall("Math_sin")
	h["_llvm_sin_f64"] = mathCall("Math_sin")
	h["_llvm_cos_f32"] = mathCall("Math_cos")
	h["_llvm_cos_f64"] = mathCall("Math_cos")
	h["_llvm_exp_f32"] = mathCall("Math_exp")
	h["_llvm_exp_f64"] = mathCall("Math_exp")
	h["_llvm_log_f32"] = mathCall("Math_log")
	h["_llvm_log_f64"] = mathCall("Math_log")

	// Emscripten SIMD builtins.
	for _, op := range []string{"min", "max", "abs", "sqrt", "reciprocalApproximation", "reciprocalSqrtApproximation"} {
		h["_emscripten_float32x4_"+op] = simdCall("SIMD_float32x4_" + op)
	}
	for _, op := range []string{"min", "max"} {
		h["_emscripten_int32x4_"+op] = simdCall("SIMD_int32x4_" + op)
	}

	return h
}

func (e *Emitter) setupCallHandlers() {
	e.handlers = buildCallHandlers()
}
