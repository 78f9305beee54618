package asmjs

import (
	"testing"

	"emjs/internal/config"
	"emjs/internal/ir"
)

func testEmitter(cfg config.Options) *Emitter {
	e := &Emitter{
		cfg:              cfg,
		names:            make(map[ir.Value]string),
		pool:             newDataPool(),
		externals:        make(map[string]bool),
		declares:         make(map[string]bool),
		redirects:        make(map[string]string),
		namedGlobals:     make(map[string]uint32),
		indexedFunctions: make(map[string]int),
		functionTables:   make(map[string]*[]string),
		blockAddresses:   make(map[*ir.Func]map[*ir.Block]int),
	}
	e.setupCallHandlers()
	return e
}

func TestCastInteger(t *testing.T) {
	e := testEmitter(config.Default())
	tests := []struct {
		ty   *ir.Type
		sign asmCast
		want string
	}{
		{ir.I32, castSigned, "x|0"},
		{ir.I32, castUnsigned, "x>>>0"},
		{ir.I32, castNonspecific, "x|0"},
		{ir.I16, castSigned, "x<<16>>16"},
		{ir.I16, castUnsigned, "x&65535"},
		{ir.I16, castNonspecific, "x|0"},
		{ir.I8, castSigned, "x<<24>>24"},
		{ir.I8, castUnsigned, "x&255"},
		{ir.I1, castSigned, "x<<31>>31"},
		{ir.I1, castUnsigned, "x&1"},
		{ir.Ptr(ir.I8), castSigned, "x|0"},
		{ir.Ptr(ir.I8), castUnsigned, "x>>>0"},
	}
	for _, tc := range tests {
		if got := e.cast("x", tc.ty, tc.sign); got != tc.want {
			t.Errorf("cast(x, %v, %d) = %q, want %q", tc.ty.Kind, tc.sign, got, tc.want)
		}
	}
}

func TestCastFloat(t *testing.T) {
	e := testEmitter(config.Default())
	if got := e.cast("x", ir.Float, castSigned); got != "+x" {
		t.Errorf("float without precise-f32 = %q, want +x", got)
	}
	if got := e.cast("x", ir.Double, castSigned); got != "+x" {
		t.Errorf("double = %q, want +x", got)
	}

	cfg := config.Default()
	cfg.PreciseF32 = true
	e = testEmitter(cfg)
	if got := e.cast("x", ir.Float, castSigned); got != "Math_fround(x)" {
		t.Errorf("precise float = %q, want Math_fround(x)", got)
	}
	if got := e.cast("x", ir.Float, castFFIIn); got != "Math_fround(+(x))" {
		t.Errorf("precise float ffi-in = %q, want Math_fround(+(x))", got)
	}
	// FFI parameters stay doubles: fround does not survive the boundary.
	if got := e.cast("x", ir.Float, castFFIOut); got != "+x" {
		t.Errorf("precise float ffi-out = %q, want +x", got)
	}
}

func TestCastVector(t *testing.T) {
	e := testEmitter(config.Default())
	if got := e.cast("x", ir.Vec(ir.I32, 4), castSigned); got != "SIMD_int32x4_check(x)" {
		t.Errorf("int vector = %q", got)
	}
	if got := e.cast("x", ir.Vec(ir.Float, 4), castSigned); got != "SIMD_float32x4_check(x)" {
		t.Errorf("float vector = %q", got)
	}
}

func TestEnsureCast(t *testing.T) {
	e := testEmitter(config.Default())
	if got := e.ensureCast("5", ir.I32, castSigned); got != "5" {
		t.Errorf("ensureCast without must-cast = %q, want 5", got)
	}
	if got := e.ensureCast("5", ir.I32, castMustCast); got != "5|0" {
		t.Errorf("ensureCast with must-cast = %q, want 5|0", got)
	}
}
