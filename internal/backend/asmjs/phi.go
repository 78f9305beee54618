package asmjs

import (
	"emjs/internal/ir"
)

// getPhiCode emits the assignments carrying out To's φ nodes on the edge
// from From to To. All assignments have simultaneous semantics: when the incoming
// values form a cycle among the φs themselves, the cycle is broken by
// materializing one φ's incoming into a fresh "$phi" temporary first.
func (e *Emitter) getPhiCode(from, to *ir.Block) string {
	phiVars := make(map[string]bool)
	for _, p := range to.Phis() {
		phiVars[e.jsName(p)] = true
	}

	assigns := make(map[string]string)
	values := make(map[string]ir.Value)
	deps := make(map[string]string)
	undeps := make(map[string]string)
	for _, p := range to.Phis() {
		v, ok := incomingFor(p, from)
		if !ok {
			continue
		}
		name := e.jsName(p)
		assigns[name] = e.getAssign(p)
		// Strip pointer casts the same way expression translation does,
		// so dependencies on sibling φs are seen through them.
		v = ir.StripPointerCasts(v)
		values[name] = v
		vname := e.valueAsStr(v, castSigned)
		if vi, isInstr := v.(*ir.Instr); isInstr && vi.Parent == to && phiVars[vname] {
			deps[name] = vname
			undeps[vname] = name
		}
	}

	// Emit in rounds: anything without a pending dependency goes out; if
	// a round emits nothing, the last remaining φ reads its incoming
	// through a temporary. Every dependent φ ends up going through a
	// temporary this way, whether or not it is part of a cycle.
	pre, post := "", ""
	for len(assigns) > 0 {
		emitted := false
		names := sortedKeys(assigns)
		for idx, curr := range names {
			if _, alive := assigns[curr]; !alive {
				continue
			}
			v := values[curr]
			cv := e.valueAsStr(v, castSigned)
			dep, hasDep := deps[curr]
			if hasDep && (emitted || idx != len(names)-1) {
				continue
			}
			if hasDep {
				temp := curr + "$phi"
				pre += e.adHocAssign(temp, v.Type()) + cv + ";"
				cv = temp
				delete(deps, curr)
				delete(undeps, dep)
			}
			post += assigns[curr] + cv + ";"
			delete(assigns, curr)
			emitted = true
		}
	}
	return pre + post
}

func incomingFor(p *ir.Instr, from *ir.Block) (ir.Value, bool) {
	for _, inc := range p.Incomings {
		if inc.Pred == from {
			return inc.V, true
		}
	}
	return nil, false
}
