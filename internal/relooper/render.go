package relooper

import (
	"strconv"
	"strings"
)

// Render writes the structured program text for the calculated shape tree.
// Calculate must have run first.
func (r *Relooper) Render(buf *strings.Builder) {
	if r.root == nil {
		return
	}
	w := &writer{buf: buf}
	w.renderChain(r.root, 0)
}

type writer struct {
	buf *strings.Builder
}

func (w *writer) line(depth int, s string) {
	for i := 0; i < depth; i++ {
		w.buf.WriteByte(' ')
	}
	w.buf.WriteString(s)
	w.buf.WriteByte('\n')
}

func (w *writer) code(depth int, code string) {
	if code == "" {
		return
	}
	for _, ln := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		w.line(depth, ln)
	}
}

// renderChain renders a shape and everything chained after it.
func (w *writer) renderChain(s *shape, depth int) {
	for s != nil {
		switch s.kind {
		case shapeSimple:
			s = w.renderSimple(s, depth)
		case shapeMultiple:
			w.renderMultiple(s, depth)
			s = s.next
		case shapeLoop:
			w.line(depth, "L"+strconv.Itoa(s.id)+": while(1) {")
			w.renderChain(s.body, depth+1)
			w.line(depth, "}")
			s = s.next
		}
	}
}

// renderSimple renders a simple shape, fusing a directly following
// multiple into the branch arms. Returns the next shape to render.
func (w *writer) renderSimple(s *shape, depth int) *shape {
	b := s.inner
	var fused *shape
	next := s.next
	if next != nil && next.kind == shapeMultiple {
		fused = next
		next = next.next
	}

	inner := depth
	if fused != nil && fused.breaks {
		w.line(depth, "L"+strconv.Itoa(fused.id)+": do {")
		inner = depth + 1
	}
	w.code(inner, b.Code)
	if b.SwitchCondition != "" {
		w.renderSwitch(b, fused, inner)
	} else {
		w.renderIfChain(b, fused, inner)
	}
	if fused != nil && fused.breaks {
		w.line(depth, "} while(0);")
	}
	return next
}

// renderBranchBody emits the carry code, label update and flow statement
// for one branch, plus the fused inner shape when there is one.
func (w *writer) renderBranchBody(br *Branch, target *Block, fused *shape, depth int) {
	w.code(depth, br.Code)
	if target.checkedEntry {
		w.line(depth, "label = "+strconv.Itoa(target.id)+";")
	}
	switch br.flow {
	case flowBreak:
		w.line(depth, "break L"+strconv.Itoa(br.ancestor.id)+";")
	case flowContinue:
		w.line(depth, "continue L"+strconv.Itoa(br.ancestor.id)+";")
	case flowDirect:
		if fused != nil {
			if handled, ok := fused.handled[target]; ok {
				w.renderChain(handled, depth)
			}
		}
	}
}

// branchBodyText pre-renders a branch body so empty arms can be elided.
func (w *writer) branchBodyText(br *Branch, target *Block, fused *shape, depth int) string {
	var sub strings.Builder
	saved := w.buf
	w.buf = &sub
	w.renderBranchBody(br, target, fused, depth)
	w.buf = saved
	return sub.String()
}

func (w *writer) renderIfChain(b *Block, fused *shape, depth int) {
	type arm struct {
		cond   string
		target *Block
		br     *Branch
	}
	var conds []arm
	var def *arm
	for _, t := range b.branchOrder {
		br := b.branchesOut[t]
		if br.Condition == "" {
			def = &arm{target: t, br: br}
		} else {
			conds = append(conds, arm{cond: br.Condition, target: t, br: br})
		}
	}
	if len(conds) == 0 {
		if def != nil {
			w.renderBranchBody(def.br, def.target, fused, depth)
		}
		return
	}
	for i, a := range conds {
		open := "if (" + a.cond + ") {"
		if i > 0 {
			open = "} else " + open
		}
		w.line(depth, open)
		w.renderBranchBody(a.br, a.target, fused, depth+1)
	}
	if def != nil {
		body := w.branchBodyText(def.br, def.target, fused, depth+1)
		if body != "" {
			w.line(depth, "} else {")
			w.buf.WriteString(body)
		}
	}
	w.line(depth, "}")
}

func (w *writer) renderSwitch(b *Block, fused *shape, depth int) {
	// The label local doubles as the switch scrutinee so the dispatch
	// value is evaluated exactly once.
	w.line(depth, "label = "+b.SwitchCondition+";")
	w.line(depth, "switch (label|0) {")
	var def *Block
	for _, t := range b.branchOrder {
		br := b.branchesOut[t]
		if br.Condition == "" {
			def = t
			continue
		}
		w.line(depth, br.Condition+"{")
		w.renderBranchBody(br, t, fused, depth+1)
		if br.flow == flowDirect {
			w.line(depth+1, "break;")
		}
		w.line(depth, "}")
	}
	if def != nil {
		br := b.branchesOut[def]
		w.line(depth, "default: {")
		w.renderBranchBody(br, def, fused, depth+1)
		w.line(depth, "}")
	}
	w.line(depth, "}")
}

func (w *writer) renderMultiple(s *shape, depth int) {
	inner := depth
	if s.breaks {
		w.line(depth, "L"+strconv.Itoa(s.id)+": do {")
		inner = depth + 1
	}
	for i, e := range s.entryOrder {
		open := "if ((label|0) == " + strconv.Itoa(e.id) + ") {"
		if i > 0 {
			open = "} else " + open
		}
		w.line(inner, open)
		w.renderChain(s.handled[e], inner+1)
	}
	if len(s.entryOrder) > 0 {
		w.line(inner, "}")
	}
	if s.breaks {
		w.line(depth, "} while(0);")
	}
}
