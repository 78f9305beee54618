package asmjs

import (
	"strings"
	"testing"

	"emjs/internal/config"
	"emjs/internal/ir"
	"emjs/internal/testkit"
)

var i32x4 = ir.Vec(ir.I32, 4)
var f32x4 = ir.Vec(ir.Float, 4)

func TestVectorArithmetic(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void, i32x4, i32x4, ir.Ptr(i32x4))
	bb := fb.Block("entry")
	sum := bb.Bin(ir.OpAdd, "s", i32x4, fb.Arg(0), fb.Arg(1))
	bb.Store(sum, fb.Arg(2), 16)
	bb.Ret(nil)
	t.Run("store", func(t *testing.T) {
		m := testkit.Module(nil, fb.Done())
		out := emit(t, m, config.Default())
		wantContains(t, out,
			"$s = SIMD_int32x4_add($p0,$p1);",
			"\"simd\": 1",
		)
	})
}

func TestVectorFNegStore(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void, f32x4, ir.Ptr(f32x4))
	bb := fb.Block("entry")
	neg := bb.Bin(ir.OpFSub, "n", f32x4, ir.FloatConst(f32x4, negZero()), fb.Arg(0))
	bb.Store(neg, fb.Arg(1), 16)
	bb.Ret(nil)
	m := testkit.Module(nil, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out,
		"SIMD_float32x4_neg($p0)",
		"SIMD_float32x4_store(HEAPU8, $p1, $n)",
	)
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestVectorCompareInversion(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void, i32x4, i32x4)
	bb := fb.Block("entry")
	cmp := &ir.Instr{Op: ir.OpICmp, Nm: "c", Ty: ir.Vec(ir.I1, 4), Pred: ir.IntNE,
		Ops: []ir.Value{fb.Arg(0), fb.Arg(1)}}
	bb.Raw().Instrs = append(bb.Raw().Instrs, cmp)
	sel := bb.Select("r", i32x4, cmp, fb.Arg(0), fb.Arg(1))
	bb.Store(sel, ir.Undef(ir.Ptr(i32x4)), 16)
	bb.Ret(nil)
	m := testkit.Module(nil, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out,
		"SIMD_int32x4_not(",
		"SIMD_int32x4_equal($p0, $p1)",
		"SIMD_int32x4_select($c,$p0,$p1)",
	)
}

func TestExtractElement(t *testing.T) {
	fb := testkit.NewFunc("f", ir.I32, i32x4)
	bb := fb.Block("entry")
	ex := &ir.Instr{Op: ir.OpExtractElement, Nm: "e", Ty: ir.I32,
		Ops: []ir.Value{fb.Arg(0), ir.IntConst(ir.I32, 2)}}
	bb.Raw().Instrs = append(bb.Raw().Instrs, ex)
	bb.Ret(ex)
	m := testkit.Module(nil, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out, "$e = $p0.z|0;")
}

func TestSplatFromInsertShuffle(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void, ir.I32)
	bb := fb.Block("entry")
	ins := &ir.Instr{Op: ir.OpInsertElement, Nm: "i", Ty: i32x4,
		Ops: []ir.Value{ir.Undef(i32x4), fb.Arg(0), ir.IntConst(ir.I32, 0)}}
	shuf := &ir.Instr{Op: ir.OpShuffleVector, Nm: "sp", Ty: i32x4,
		Ops:  []ir.Value{ins, ir.Undef(i32x4)},
		Mask: []int32{0, 0, 0, 0}}
	bb.Raw().Instrs = append(bb.Raw().Instrs, ins, shuf)
	bb.Store(shuf, ir.Undef(ir.Ptr(i32x4)), 16)
	bb.Ret(nil)
	m := testkit.Module(nil, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out, "$sp = SIMD_int32x4_splat(Math_fround($p0))")
	if strings.Contains(out, "$i = ") {
		t.Errorf("the consumed insertelement must not render on its own:\n%s", out)
	}
}

func TestInsertChainBecomesConstructor(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void, ir.I32, ir.I32)
	bb := fb.Block("entry")
	i0 := &ir.Instr{Op: ir.OpInsertElement, Nm: "a", Ty: i32x4,
		Ops: []ir.Value{ir.Undef(i32x4), fb.Arg(0), ir.IntConst(ir.I32, 0)}}
	i1 := &ir.Instr{Op: ir.OpInsertElement, Nm: "b", Ty: i32x4,
		Ops: []ir.Value{i0, fb.Arg(1), ir.IntConst(ir.I32, 1)}}
	i2 := &ir.Instr{Op: ir.OpInsertElement, Nm: "c", Ty: i32x4,
		Ops: []ir.Value{i1, fb.Arg(0), ir.IntConst(ir.I32, 2)}}
	i3 := &ir.Instr{Op: ir.OpInsertElement, Nm: "d", Ty: i32x4,
		Ops: []ir.Value{i2, fb.Arg(1), ir.IntConst(ir.I32, 3)}}
	bb.Raw().Instrs = append(bb.Raw().Instrs, i0, i1, i2, i3)
	bb.Store(i3, ir.Undef(ir.Ptr(i32x4)), 16)
	bb.Ret(nil)
	m := testkit.Module(nil, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out, "$d = SIMD_int32x4($p0, $p1, $p0, $p1)")
}

func TestVectorShiftBySplat(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void, i32x4)
	bb := fb.Block("entry")
	two := ir.IntConst(ir.I32, 2)
	amount := &ir.Const{Kind: ir.ConstVector, Ty: i32x4, Elems: []ir.Value{two, two, two, two}}
	sh := bb.Bin(ir.OpShl, "s", i32x4, fb.Arg(0), amount)
	bb.Store(sh, ir.Undef(ir.Ptr(i32x4)), 16)
	bb.Ret(nil)
	m := testkit.Module(nil, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out, "$s = SIMD_int32x4_shiftLeftByScalar($p0, 2)")
}

func TestVectorDivUnrolls(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void, i32x4, i32x4)
	bb := fb.Block("entry")
	q := bb.Bin(ir.OpSDiv, "q", i32x4, fb.Arg(0), fb.Arg(1))
	bb.Store(q, ir.Undef(ir.Ptr(i32x4)), 16)
	bb.Ret(nil)
	m := testkit.Module(nil, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out, "($p0.x|0) / ($p1.x|0)|0", "($p0.w|0) / ($p1.w|0)|0")
}
