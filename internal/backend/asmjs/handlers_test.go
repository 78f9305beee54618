package asmjs

import (
	"strings"
	"testing"

	"emjs/internal/config"
	"emjs/internal/ir"
	"emjs/internal/testkit"
)

func declFunc(name string, ret *ir.Type, params ...*ir.Type) *ir.Func {
	return &ir.Func{Nm: name, Ty: ir.FuncOf(ret, params...)}
}

func TestLifetimeMarkersElided(t *testing.T) {
	start := declFunc("llvm.lifetime.start", ir.Void, ir.I32, ir.Ptr(ir.I8))
	fb := testkit.NewFunc("f", ir.Void, ir.Ptr(ir.I8))
	bb := fb.Block("entry")
	bb.Call("", start, ir.IntConst(ir.I32, 4), fb.Arg(0))
	bb.Ret(nil)
	m := testkit.Module(nil, start, fb.Done())

	out := emit(t, m, config.Default())
	if strings.Contains(out, "lifetime") {
		t.Errorf("lifetime marker leaked into the output:\n%s", out)
	}
}

func TestMathIntrinsic(t *testing.T) {
	sqrt := declFunc("llvm.sqrt.f64", ir.Double, ir.Double)
	fb := testkit.NewFunc("f", ir.Double, ir.Double)
	bb := fb.Block("entry")
	r := bb.Call("r", sqrt, fb.Arg(0))
	bb.Ret(r)
	m := testkit.Module(nil, sqrt, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out, "$r = +Math_sqrt(+$p0);")
	if strings.Contains(out, "llvm_sqrt") {
		t.Errorf("math intrinsic must not survive as a call:\n%s", out)
	}
}

func TestTempRet0Handlers(t *testing.T) {
	set := declFunc("setTempRet0", ir.Void, ir.I32)
	get := declFunc("getTempRet0", ir.I32)
	fb := testkit.NewFunc("f", ir.I32, ir.I32)
	bb := fb.Block("entry")
	bb.Call("", set, fb.Arg(0))
	r := bb.Call("r", get)
	bb.Ret(r)
	m := testkit.Module(nil, set, get, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out,
		"tempRet0 = ($p0);",
		"$r = (tempRet0|0);",
	)
}

// TestInvokeSequence runs the lowered invoke protocol: preInvoke, the
// trampolined call, postInvoke.
func TestInvokeSequence(t *testing.T) {
	pre := declFunc("emscripten_preinvoke", ir.Void)
	post := declFunc("emscripten_postinvoke", ir.I32)
	risky := declFunc("may_throw", ir.Void, ir.I32)

	fb := testkit.NewFunc("f", ir.Void, ir.I32)
	bb := fb.Block("entry")
	bb.Call("", pre)
	bb.Call("", risky, fb.Arg(0))
	threw := bb.Call("threw", post)
	bb.Ret(nil)
	_ = threw
	m := testkit.Module(nil, pre, post, risky, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out,
		"__THREW__ = 0;",
		"invoke_vi(",
		"\"declares\": [", // invoke_vi lands among the declares
		"\"invoke_vi\"",
	)
	// The trampoline carries the callee's table index as its first arg.
	if !strings.Contains(out, "invoke_vi(1,") {
		t.Errorf("invoke trampoline must lead with the function index:\n%s", out)
	}
}

// TestInvokeStateAssertion: a postInvoke without a call in between is a
// lowering bug and must fail fatally.
func TestInvokeStateAssertion(t *testing.T) {
	pre := declFunc("emscripten_preinvoke", ir.Void)
	post := declFunc("emscripten_postinvoke", ir.I32)
	fb := testkit.NewFunc("f", ir.Void)
	bb := fb.Block("entry")
	bb.Call("", pre)
	bb.Call("", post)
	bb.Ret(nil)
	m := testkit.Module(nil, pre, post, fb.Done())

	_, err := EmitModule(m, config.Default(), nil)
	if err == nil {
		t.Fatal("postInvoke in state 1 must be fatal")
	}
}

func TestLongjmpRedirect(t *testing.T) {
	lj := declFunc("emscripten_longjmp", ir.Void, ir.I32, ir.I32)
	fb := testkit.NewFunc("f", ir.Void, ir.I32)
	bb := fb.Block("entry")
	bb.Call("", lj, fb.Arg(0), ir.IntConst(ir.I32, 1))
	bb.Ret(nil)
	m := testkit.Module(nil, lj, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out,
		"_longjmp($p0|0,1);",
		"\"redirects\": {\"_emscripten_longjmp\": \"_longjmp\"}",
		"\"longjmp\"",
	)
}

// TestHandlerFiresAtIndexTime: taking the address of a handled function
// must run its side effects even without a direct call.
func TestHandlerFiresAtIndexTime(t *testing.T) {
	lj := declFunc("emscripten_longjmp", ir.Void, ir.I32, ir.I32)
	g := &ir.Global{Nm: "fp", Ty: ir.I32, Init: ir.Expr(ir.OpPtrToInt, ir.I32, lj)}
	fb := testkit.NewFunc("f", ir.Void)
	fb.Block("entry").Ret(nil)
	m := testkit.Module([]*ir.Global{g}, lj, fb.Done())

	out := emit(t, m, config.Default())
	wantContains(t, out, "\"longjmp\"")
}
