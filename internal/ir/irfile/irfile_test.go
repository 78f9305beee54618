package irfile

import (
	"path/filepath"
	"testing"

	"emjs/internal/ir"
	"emjs/internal/testkit"
)

func roundTrip(t *testing.T, m *ir.Module) *ir.Module {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mod.mp")
	if err := Store(path, m); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return got
}

func TestRoundTripFunction(t *testing.T) {
	fb := testkit.NewFunc("f", ir.I32, ir.I32, ir.I32)
	entry := fb.Block("entry")
	then := fb.Block("then")
	els := fb.Block("else")
	cond := entry.ICmp(ir.IntSLT, "c", fb.Arg(0), fb.Arg(1))
	entry.CondBr(cond, then, els)
	sum := then.Bin(ir.OpAdd, "s", ir.I32, fb.Arg(0), fb.Arg(1))
	then.Ret(sum)
	els.Ret(ir.IntConst(ir.I32, 0))
	m := testkit.Module(nil, fb.Done())
	m.TargetTriple = ir.ExpectedTriple

	got := roundTrip(t, m)
	if got.TargetTriple != ir.ExpectedTriple {
		t.Errorf("triple = %q", got.TargetTriple)
	}
	if len(got.Funcs) != 1 {
		t.Fatalf("functions = %d, want 1", len(got.Funcs))
	}
	f := got.Funcs[0]
	if f.Nm != "f" || len(f.Args) != 2 || len(f.Blocks) != 3 {
		t.Fatalf("function shape lost: %s args=%d blocks=%d", f.Nm, len(f.Args), len(f.Blocks))
	}
	term := f.Blocks[0].Term()
	if term == nil || term.Op != ir.OpBr || len(term.Succs) != 2 {
		t.Fatalf("entry terminator lost")
	}
	if term.Succs[0] != f.Blocks[1] || term.Succs[1] != f.Blocks[2] {
		t.Error("branch successors do not point at the decoded blocks")
	}
	c := f.Blocks[0].Instrs[0]
	if c.Op != ir.OpICmp || c.Pred != ir.IntSLT {
		t.Errorf("icmp lost: op=%v pred=%v", c.Op, c.Pred)
	}
	if c.Ops[0] != ir.Value(f.Args[0]) {
		t.Error("operand does not reference the decoded argument")
	}
	// The decoded module must be finalized: users present.
	if !c.HasUses() {
		t.Error("use lists not rebuilt after decode")
	}
	if err := got.Validate(); err != nil {
		t.Errorf("decoded module invalid: %v", err)
	}
}

func TestRoundTripGlobals(t *testing.T) {
	g := &ir.Global{Nm: "g", Ty: ir.I32, Init: ir.IntConst(ir.I32, 42)}
	ext := &ir.Global{Nm: "ext", Ty: ir.I32}
	fb := testkit.NewFunc("f", ir.I32)
	bb := fb.Block("entry")
	ld := bb.Load("v", ir.I32, g, 4)
	bb.Ret(ld)
	m := testkit.Module([]*ir.Global{g, ext}, fb.Done())

	got := roundTrip(t, m)
	if len(got.Globals) != 2 {
		t.Fatalf("globals = %d, want 2", len(got.Globals))
	}
	dg := got.Globals[0]
	if dg.Nm != "g" || dg.Init == nil || dg.Init.Int != 42 {
		t.Errorf("global initializer lost: %+v", dg)
	}
	if !got.Globals[1].IsDeclaration() {
		t.Error("external global gained an initializer")
	}
	// The load must reference the decoded global, not a copy.
	ldGot := got.Funcs[0].Blocks[0].Instrs[0]
	if ldGot.Ops[0] != ir.Value(dg) {
		t.Error("load operand does not reference the decoded global")
	}
}

func TestRoundTripPhi(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void)
	a := fb.Block("A")
	b := fb.Block("B")
	ph := b.Phi("x", ir.I32, a.Raw(), ir.IntConst(ir.I32, 5))
	b.Ret(nil)
	a.Br(b)
	f := fb.Done()
	_ = ph
	g := &ir.Global{Nm: "ba", Ty: ir.I32, Init: nil}
	g.Aliasee = nil
	m := testkit.Module([]*ir.Global{g}, f)

	got := roundTrip(t, m)
	df := got.Funcs[0]
	phi := df.Blocks[1].Instrs[0]
	if phi.Op != ir.OpPhi || len(phi.Incomings) != 1 {
		t.Fatalf("phi lost")
	}
	if phi.Incomings[0].Pred != df.Blocks[0] {
		t.Error("phi predecessor does not reference the decoded block")
	}
}

func TestCurrentSchemaLoads(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void)
	fb.Block("entry").Ret(nil)
	m := testkit.Module(nil, fb.Done())
	path := filepath.Join(t.TempDir(), "mod.mp")
	if err := Store(path, m); err != nil {
		t.Fatal(err)
	}
	// Loading back with the current version works. A container with a
	// different schema version is not exercised here.
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}
}
