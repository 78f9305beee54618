package asmjs

import (
	"testing"

	"emjs/internal/config"
	"emjs/internal/ir"
)

func TestFunctionSignature(t *testing.T) {
	e := testEmitter(config.Default())
	ft := ir.FuncOf(ir.Void, ir.I32, ir.Double, ir.Ptr(ir.I8))
	if got := e.functionSignature(ft); got != "vidi" {
		t.Errorf("signature = %q, want vidi", got)
	}
	ft = ir.FuncOf(ir.Float, ir.Float)
	if got := e.functionSignature(ft); got != "dd" {
		t.Errorf("float without precise-f32 = %q, want dd", got)
	}

	cfg := config.Default()
	cfg.PreciseF32 = true
	e = testEmitter(cfg)
	if got := e.functionSignature(ft); got != "ff" {
		t.Errorf("float with precise-f32 = %q, want ff", got)
	}
}

func TestFunctionIndexStability(t *testing.T) {
	e := testEmitter(config.Default())
	f := &ir.Func{Nm: "f", Ty: ir.FuncOf(ir.Void), Align: 1}
	g := &ir.Func{Nm: "g", Ty: ir.FuncOf(ir.Void), Align: 1}

	fi := e.functionIndex(f)
	gi := e.functionIndex(g)
	if fi == gi {
		t.Fatalf("distinct functions share index %d", fi)
	}
	if e.functionIndex(f) != fi || e.functionIndex(g) != gi {
		t.Error("function indices are not stable")
	}
}

func TestReservedSlots(t *testing.T) {
	cfg := config.Default()
	cfg.ReservedFunctionPointers = 2
	e := testEmitter(cfg)
	f := &ir.Func{Nm: "f", Ty: ir.FuncOf(ir.Void), Align: 1}
	// Each reserved slot must be 2-aligned: 2*(reserved+1) nulls first.
	if idx := e.functionIndex(f); idx != 6 {
		t.Errorf("first index with 2 reserved pointers = %d, want 6", idx)
	}
}

func TestNoAliasingIndices(t *testing.T) {
	cfg := config.Default()
	cfg.NoAliasingFunctionPointers = true
	e := testEmitter(cfg)
	f := &ir.Func{Nm: "f", Ty: ir.FuncOf(ir.Void), Align: 1}
	g := &ir.Func{Nm: "g", Ty: ir.FuncOf(ir.I32), Align: 1}
	h := &ir.Func{Nm: "h", Ty: ir.FuncOf(ir.Void), Align: 1}

	fi := e.functionIndex(f)
	gi := e.functionIndex(g)
	hi := e.functionIndex(h)
	// Indices are globally monotonic even across different tables.
	if !(fi < gi && gi < hi) {
		t.Errorf("indices not monotonic across tables: %d %d %d", fi, gi, hi)
	}
}

func TestBlockAddressDense(t *testing.T) {
	e := testEmitter(config.Default())
	f := &ir.Func{Nm: "f", Ty: ir.FuncOf(ir.Void)}
	b0 := &ir.Block{Nm: "a"}
	b1 := &ir.Block{Nm: "b"}
	if got := e.blockAddress(f, b0); got != 0 {
		t.Errorf("first block address = %d, want 0", got)
	}
	if got := e.blockAddress(f, b1); got != 1 {
		t.Errorf("second block address = %d, want 1", got)
	}
	if got := e.blockAddress(f, b0); got != 0 {
		t.Errorf("block address not cached: %d", got)
	}
}
