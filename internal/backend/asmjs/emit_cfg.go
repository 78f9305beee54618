package asmjs

import (
	"strconv"
	"strings"

	"emjs/internal/ir"
	"emjs/internal/relooper"
)

// considerConditionVar decides whether a block's branching uses a
// condition variable: always for indirectbr, and for switches whose case
// set is dense enough that a real switch beats chained comparisons.
func considerConditionVar(term *ir.Instr) ir.Value {
	if term.Op == ir.OpIndirectBr {
		return term.Operand(0)
	}
	if term.Op != ir.OpSwitch {
		return nil
	}
	minn, maxx := int64(1)<<62, -(int64(1) << 62)
	for _, c := range term.Cases {
		if c.Val < minn {
			minn = c.Val
		}
		if c.Val > maxx {
			maxx = c.Val
		}
	}
	rng := maxx - minn
	num := int64(len(term.Cases))
	if num < 5 || rng > 10*1024 || rng/num > 1024 {
		return nil
	}
	return term.Operand(0)
}

// addBlock renders a basic block's body and registers it with the
// structurer.
func (e *Emitter) addBlock(b *ir.Block, r *relooper.Relooper, toRelooper map[*ir.Block]*relooper.Block) {
	var code strings.Builder
	for _, i := range b.Instrs {
		// No code or variables for the no-op pointer bitcasts and
		// all-zero geps the type system required.
		if ir.StripPointerCasts(i) == ir.Value(i) {
			e.generateExpression(i, &code)
		}
	}
	condition := ""
	if cv := considerConditionVar(b.Term()); cv != nil {
		condition = e.valueAsCastStr(cv, castSigned)
	}
	toRelooper[b] = r.AddBlock(code.String(), condition)
}

// printFunctionBody feeds the function's blocks and branches to the
// structurer and splices the rendered output into the function template.
func (e *Emitter) printFunctionBody(f *ir.Func) {
	r := relooper.New()
	if f.Attrs&(ir.AttrMinSize|ir.AttrOptSize) != 0 {
		r.SetMinSize(true)
	}
	toRelooper := make(map[*ir.Block]*relooper.Block, len(f.Blocks))
	for _, b := range f.Blocks {
		// Each block begins in invoke state 0; an unwinding call may
		// have left the previous block decapitated mid-sequence.
		e.fe.invokeState = 0
		e.addBlock(b, r, toRelooper)
	}

	for _, b := range f.Blocks {
		term := b.Term()
		from := toRelooper[b]
		switch term.Op {
		case ir.OpBr:
			if len(term.Succs) == 2 {
				s0, s1 := term.Succs[0], term.Succs[1]
				from.AddBranchTo(toRelooper[s0], e.valueAsStr(term.Operand(0), castSigned), e.getPhiCode(b, s0))
				from.AddBranchTo(toRelooper[s1], "", e.getPhiCode(b, s1))
			} else {
				s := term.Succs[0]
				from.AddBranchTo(toRelooper[s], "", e.getPhiCode(b, s))
			}
		case ir.OpIndirectBr:
			// The IR allows the same block to appear several times;
			// the first unique destination becomes the default.
			seen := make(map[*ir.Block]bool)
			setDefault := false
			for _, s := range term.Succs {
				if seen[s] {
					continue
				}
				seen[s] = true
				target := ""
				if setDefault {
					target = "case " + strconv.Itoa(e.blockAddress(f, s)) + ": "
				}
				setDefault = true
				from.AddBranchTo(toRelooper[s], target, e.getPhiCode(b, s))
			}
		case ir.OpSwitch:
			useSwitch := considerConditionVar(term) != nil
			dd := term.Succs[0]
			from.AddBranchTo(toRelooper[dd], "", e.getPhiCode(b, dd))
			conditions := make(map[*ir.Block]string)
			var order []*ir.Block
			for _, c := range term.Cases {
				curr := strconv.FormatInt(c.Val, 10)
				var condition string
				if useSwitch {
					condition = "case " + curr + ": "
				} else {
					condition = "(" + e.valueAsCastParenStr(term.Operand(0), castSigned) + " == " + curr + ")"
				}
				if prev, ok := conditions[c.Target]; ok {
					if !useSwitch {
						condition += " | " + prev
					} else {
						condition += prev
					}
				} else {
					order = append(order, c.Target)
				}
				conditions[c.Target] = condition
			}
			for _, target := range order {
				if target == dd {
					continue // the default dest gets there anyhow
				}
				from.AddBranchTo(toRelooper[target], conditions[target], e.getPhiCode(b, target))
			}
		case ir.OpRet, ir.OpUnreachable:
			// No outgoing edges.
		default:
			e.fatalf(ErrInternal, "invalid terminator %s", term.Op)
		}
	}

	r.Calculate(toRelooper[f.Entry()])
	var body strings.Builder
	r.Render(&body)

	// The fixed locals: the stack save, the aligned base when the frame
	// is overaligned, and the structurer's label variable.
	e.fe.usedVars["sp"] = ir.I32
	maxAlignment := e.fe.frame.MaxAlignment()
	if maxAlignment > stackAlign {
		e.fe.usedVars["sp_a"] = ir.I32
	}
	e.fe.usedVars["label"] = ir.I32

	e.printLocals()

	if e.cfg.OptLevel < 2 && len(e.fe.usedVars) > 2000 {
		e.rep.WarnOnce("many-locals",
			"emitted code will contain very large numbers of local variables, which is bad for performance (build with -O2 or above to avoid this)")
	}

	// Stack entry.
	e.out(" " + e.adHocAssign("sp", ir.I32) + "STACKTOP;")
	if frameSize := e.fe.frame.FrameSize(); frameSize > 0 {
		if maxAlignment > stackAlign {
			// The whole frame must sit on a stricter boundary than the
			// stack guarantees.
			e.nl()
			e.out(" sp_a = STACKTOP = (STACKTOP + " + strconv.FormatUint(uint64(maxAlignment-1), 10) +
				")&-" + strconv.FormatUint(uint64(maxAlignment), 10) + ";")
		}
		e.nl()
		e.out(" " + e.getStackBump(strconv.FormatUint(frameSize, 10)))
	}

	e.nl()
	text := body.String()
	e.out(text)

	// Ensure a final return if the rendered body does not end in one.
	rt := f.Ty.Ret
	if !rt.IsVoid() && !endsWithReturn(text) {
		e.out(" return " + e.parenCast(e.getConstant(ir.Undef(rt), castSigned), rt, castNonspecific) + ";\n")
	}
}

// endsWithReturn reports whether the text after the last closing brace
// contains a return.
func endsWithReturn(body string) bool {
	lastCurly := strings.LastIndexByte(body, '}')
	if lastCurly < 0 {
		lastCurly = 0
	}
	return strings.Contains(body[lastCurly:], "return ") || strings.Contains(body[lastCurly:], "return;")
}

// printLocals declares every used local, grouped in runs of 20 per var
// statement: huge single declarations are slow to parse.
func (e *Emitter) printLocals() {
	if len(e.fe.usedVars) == 0 {
		return
	}
	count := 0
	for _, name := range sortedKeys(e.fe.usedVars) {
		t := e.fe.usedVars[name]
		if count == 20 {
			e.out(";\n")
			count = 0
		}
		if count == 0 {
			e.out(" var ")
		} else {
			e.out(", ")
		}
		count++
		e.out(name + " = ")
		switch t.Kind {
		case ir.PointerKind, ir.IntKind:
			e.out("0")
		case ir.FloatKind:
			if e.cfg.PreciseF32 {
				e.out("Math_fround(0)")
				break
			}
			e.out("+0")
		case ir.DoubleKind:
			e.out("+0")
		case ir.VectorKind:
			if t.Elem.IsInt() {
				e.out("SIMD_int32x4(0,0,0,0)")
			} else {
				e.out("SIMD_float32x4(0,0,0,0)")
			}
		default:
			e.fatalf(ErrInternal, "unsupported variable initializer type")
		}
	}
	e.out(";")
	e.nl()
}
