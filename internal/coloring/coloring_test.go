package coloring

import (
	"testing"

	"emjs/internal/ir"
	"emjs/internal/testkit"
)

func TestFramePacking(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void)
	bb := fb.Block("entry")
	a := bb.Alloca("a", ir.I8, 3, 1)
	b := bb.Alloca("b", ir.I32, 1, 4)
	c := bb.Alloca("c", ir.Double, 1, 8)
	bb.Ret(nil)
	f := fb.Done()

	fr := Analyze(f, false)
	offA, ok := fr.FrameOffset(a)
	if !ok || offA != 0 {
		t.Errorf("a at %d, want 0", offA)
	}
	offB, ok := fr.FrameOffset(b)
	if !ok || offB != 4 {
		t.Errorf("b at %d, want 4 (padded to its alignment)", offB)
	}
	offC, ok := fr.FrameOffset(c)
	if !ok || offC != 8 {
		t.Errorf("c at %d, want 8", offC)
	}
	if got := fr.FrameSize(); got != 16 {
		t.Errorf("frame size %d, want 16 (rounded to stack alignment)", got)
	}
	if got := fr.MaxAlignment(); got != StackAlign {
		t.Errorf("max alignment %d, want %d", got, StackAlign)
	}
}

func TestOveralignedFrame(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void)
	bb := fb.Block("entry")
	bb.Alloca("v", ir.Vec(ir.I32, 4), 1, 32)
	bb.Ret(nil)
	f := fb.Done()

	fr := Analyze(f, false)
	if got := fr.MaxAlignment(); got != 32 {
		t.Errorf("max alignment %d, want 32", got)
	}
}

func TestEmptyFrame(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void)
	fb.Block("entry").Ret(nil)
	fr := Analyze(fb.Done(), true)
	if fr.FrameSize() != 0 {
		t.Errorf("empty function has frame size %d", fr.FrameSize())
	}
}

func TestRepresentativeDefaultsToSelf(t *testing.T) {
	fb := testkit.NewFunc("f", ir.Void)
	bb := fb.Block("entry")
	a := bb.Alloca("a", ir.I32, 1, 4)
	bb.Ret(nil)
	fr := Analyze(fb.Done(), true)
	if fr.Representative(a) != a {
		t.Error("uncoalesced alloca should represent itself")
	}
}
