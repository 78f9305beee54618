package ir

import "testing"

func TestOpcodeString(t *testing.T) {
	tests := map[Opcode]string{
		OpRet:        "ret",
		OpGEP:        "getelementptr",
		OpAtomicRMW:  "atomicrmw",
		OpShuffleVector: "shufflevector",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", op, got, want)
		}
	}
	if Opcode(200).String() != "unknown" {
		t.Error("out-of-range opcode should stringify as unknown")
	}
}

func TestIsTerminator(t *testing.T) {
	for _, op := range []Opcode{OpRet, OpBr, OpSwitch, OpIndirectBr, OpUnreachable} {
		if !op.IsTerminator() {
			t.Errorf("%s should be a terminator", op)
		}
	}
	if OpAdd.IsTerminator() {
		t.Error("add is not a terminator")
	}
}

func TestComputeUses(t *testing.T) {
	f := &Func{Nm: "f", Ty: FuncOf(I32)}
	b := &Block{Nm: "entry", Fn: f}
	a := &Instr{Op: OpAdd, Nm: "a", Ty: I32, Ops: []Value{IntConst(I32, 1), IntConst(I32, 2)}}
	r := &Instr{Op: OpRet, Ty: Void, Ops: []Value{a}}
	b.Instrs = []*Instr{a, r}
	f.Blocks = []*Block{b}
	f.ComputeUses()

	if !a.HasUses() || !a.HasOneUse() {
		t.Error("add should have exactly one use")
	}
	if a.Users()[0] != r {
		t.Error("use list points at the wrong instruction")
	}
	if r.HasUses() {
		t.Error("ret has no result to use")
	}
}

func TestPhisAndTerm(t *testing.T) {
	f := &Func{Nm: "f", Ty: FuncOf(Void)}
	b := &Block{Nm: "entry", Fn: f}
	p := &Instr{Op: OpPhi, Nm: "p", Ty: I32}
	body := &Instr{Op: OpFence, Ty: Void}
	term := &Instr{Op: OpRet, Ty: Void}
	b.Instrs = []*Instr{p, body, term}

	if got := b.Phis(); len(got) != 1 || got[0] != p {
		t.Errorf("Phis() = %v", got)
	}
	if b.Term() != term {
		t.Error("Term() did not find the terminator")
	}
}

func TestIsStaticAlloca(t *testing.T) {
	f := &Func{Nm: "f", Ty: FuncOf(Void)}
	entry := &Block{Nm: "entry", Fn: f}
	other := &Block{Nm: "other", Fn: f}
	static := &Instr{Op: OpAlloca, Ty: Ptr(I32), Allocated: I32, Ops: []Value{IntConst(I32, 1)}}
	dynamic := &Instr{Op: OpAlloca, Ty: Ptr(I32), Allocated: I32, Ops: []Value{&Instr{Op: OpAdd, Ty: I32}}}
	late := &Instr{Op: OpAlloca, Ty: Ptr(I32), Allocated: I32, Ops: []Value{IntConst(I32, 1)}}
	entry.Instrs = []*Instr{static, dynamic, {Op: OpRet, Ty: Void}}
	other.Instrs = []*Instr{late, {Op: OpRet, Ty: Void}}
	f.Blocks = []*Block{entry, other}
	f.ComputeUses()

	if !static.IsStaticAlloca() {
		t.Error("constant-count entry alloca is static")
	}
	if dynamic.IsStaticAlloca() {
		t.Error("variable-count alloca is not static")
	}
	if late.IsStaticAlloca() {
		t.Error("alloca outside the entry block is not static")
	}
}
