package asmjs

import (
	"strings"
	"testing"

	"emjs/internal/config"
	"emjs/internal/ir"
	"emjs/internal/testkit"
)

func TestBucketAlignment(t *testing.T) {
	e := testEmitter(config.Default())
	data := e.allocateAddress("a", 64)
	*data = append(*data, 1, 2, 3) // 3 bytes, misaligned tail
	e.allocateAddress("b", 64)     // must pad to 8 first
	if got := e.relativeAddress("b"); got != 8 {
		t.Errorf("second 64-bit allocation at offset %d, want 8", got)
	}
	if got := e.globalAddress("b"); got != 16 {
		t.Errorf("absolute address = %d, want 16 (base 8 + offset 8)", got)
	}
}

func TestAddressRoundTrip(t *testing.T) {
	// A stored i32 initializer must read back little-endian from the
	// image at the global's absolute address.
	g := &ir.Global{Nm: "g", Ty: ir.I32, Init: ir.IntConst(ir.I32, 0x0A0B0C0D)}
	fb := testkit.NewFunc("f", ir.Void)
	fb.Block("entry").Ret(nil)
	m := testkit.Module([]*ir.Global{g}, fb.Done())

	out, err := EmitModule(m, config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "allocate([13,12,11,10,0,0,0,0]") {
		t.Errorf("image is not little-endian:\n%s", out)
	}
}

func TestStringDataGlobal(t *testing.T) {
	g := &ir.Global{Nm: "str", Ty: ir.ArrayOf(ir.I8, 3), Init: ir.DataConst([]byte("hi\x00"))}
	fb := testkit.NewFunc("f", ir.Void)
	fb.Block("entry").Ret(nil)
	m := testkit.Module([]*ir.Global{g}, fb.Done())

	out, err := EmitModule(m, config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "allocate([104,105,0]") {
		t.Errorf("string bytes missing from image:\n%s", out)
	}
}

// TestPostSetForExternal checks that a global initialized to an external
// symbol leaves zeros behind and assigns at load time instead.
func TestPostSetForExternal(t *testing.T) {
	ext := &ir.Global{Nm: "external_thing", Ty: ir.I32} // no initializer
	init := ir.Expr(ir.OpPtrToInt, ir.I32, ext)
	g := &ir.Global{Nm: "g", Ty: ir.I32, Init: init}
	fb := testkit.NewFunc("f", ir.Void)
	fb.Block("entry").Ret(nil)
	m := testkit.Module([]*ir.Global{ext, g}, fb.Done())

	out, err := EmitModule(m, config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	// g sits at absolute address 8 (the global base); 8>>2 == 2.
	if !strings.Contains(out, "function runPostSets() {\n HEAP32[2] = _external_thing;") {
		t.Errorf("post-set missing:\n%s", out)
	}
	if !strings.Contains(out, "\"externs\": [\"_external_thing\"]") {
		t.Errorf("extern not recorded:\n%s", out)
	}
}

// TestFunctionRelocation checks a global holding a ptrtoint of a function:
// its image bytes are the function's table index.
func TestFunctionRelocation(t *testing.T) {
	fb := testkit.NewFunc("callee", ir.Void)
	fb.Block("entry").Ret(nil)
	callee := fb.Done()

	g := &ir.Global{Nm: "fp", Ty: ir.I32, Init: ir.Expr(ir.OpPtrToInt, ir.I32, callee)}
	fm := testkit.NewFunc("f", ir.Void)
	fm.Block("entry").Ret(nil)
	m := testkit.Module([]*ir.Global{g}, callee, fm.Done())

	out, err := EmitModule(m, config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	// The table starts with a null entry, so the first function gets
	// index 1, stored little-endian in the 4 reserved bytes.
	if !strings.Contains(out, "allocate([1,0,0,0]") {
		t.Errorf("function index not written into the image:\n%s", out)
	}
	if !strings.Contains(out, "var FUNCTION_TABLE_v = [0,_callee]") {
		t.Errorf("table missing the indexed function:\n%s", out)
	}
}

func TestInitArrayStreamsInitializers(t *testing.T) {
	ctor := testkit.NewFunc("ctor", ir.Void)
	ctor.Block("entry").Ret(nil)
	cf := ctor.Done()

	initStruct := &ir.Const{
		Kind:  ir.ConstStruct,
		Ty:    ir.StructOf(true, ir.I32),
		Elems: []ir.Value{ir.Expr(ir.OpPtrToInt, ir.I32, cf)},
	}
	g := &ir.Global{Nm: "__init_array_start", Ty: initStruct.Ty, Init: initStruct}
	fb := testkit.NewFunc("f", ir.Void)
	fb.Block("entry").Ret(nil)
	m := testkit.Module([]*ir.Global{g}, cf, fb.Done())

	out, err := EmitModule(m, config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "\"initializers\": [\"_ctor\"]") {
		t.Errorf("ctor not streamed into initializers:\n%s", out)
	}
}

func TestIsAbsolute(t *testing.T) {
	if !isAbsolute(ir.Null(ir.Ptr(ir.I32))) {
		t.Error("null pointer should be absolute")
	}
	if !isAbsolute(ir.Undef(ir.Ptr(ir.I32))) {
		t.Error("undef pointer should be absolute")
	}
	itp := &ir.Instr{Op: ir.OpIntToPtr, Ty: ir.Ptr(ir.I32), Ops: []ir.Value{ir.IntConst(ir.I32, 0)}}
	if !isAbsolute(itp) {
		t.Error("inttoptr of a constant should be absolute")
	}
}

// TestAbsoluteLoadFaults checks the deliberate segfault on loads from
// absolute constant addresses.
func TestAbsoluteLoadFaults(t *testing.T) {
	fb := testkit.NewFunc("f", ir.I32)
	bb := fb.Block("entry")
	ld := bb.Load("v", ir.I32, ir.Null(ir.Ptr(ir.I32)), 4)
	bb.Ret(ld)
	m := testkit.Module(nil, fb.Done())

	out, err := EmitModule(m, config.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "abort() /* segfault, load from absolute addr */") {
		t.Errorf("absolute load does not fault:\n%s", out)
	}
}
