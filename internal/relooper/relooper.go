// Package relooper reconstructs structured control flow from an arbitrary
// graph of basic blocks. Callers submit blocks of already-rendered code
// plus labelled branches, then Calculate derives a tree of Simple,
// Multiple and Loop shapes and Render prints it as if/else chains,
// labelled loops and switches.
//
// The protocol: AddBlock registers a block (with an optional switch
// condition expression), Block.AddBranchTo declares an outgoing edge with
// an optional condition label and carry code (φ assignments), Calculate
// fixes the shape tree from the entry, Render writes the structured text.
package relooper

// FlowType says how a processed branch reaches its target.
type flowType uint8

const (
	flowDirect flowType = iota
	flowBreak
	flowContinue
)

// Branch is an edge between two submitted blocks.
type Branch struct {
	// Condition is a boolean expression for if-mode blocks, or a
	// "case N: " label run for switch-mode blocks. Empty marks the
	// default branch.
	Condition string
	// Code runs right before the branch is taken (φ carry code).
	Code string

	ancestor *shape
	flow     flowType
}

// Block is one submitted basic block.
type Block struct {
	// Code is the rendered body of the block.
	Code string
	// SwitchCondition, when non-empty, makes the block's branching a
	// multi-way switch on this expression.
	SwitchCondition string

	id           int
	branchesOut  map[*Block]*Branch
	branchOrder  []*Block
	branchesIn   map[*Block]bool
	parent       *shape
	checkedEntry bool
}

// AddBranchTo declares an edge to target. condition follows the Branch
// contract; code is run on the edge. There can be only one branch between
// a pair of blocks.
func (b *Block) AddBranchTo(target *Block, condition, code string) {
	if _, ok := b.branchesOut[target]; ok {
		return
	}
	br := &Branch{Condition: condition, Code: code}
	b.branchesOut[target] = br
	b.branchOrder = append(b.branchOrder, target)
}

type shapeKind uint8

const (
	shapeSimple shapeKind = iota
	shapeMultiple
	shapeLoop
)

type shape struct {
	kind shapeKind
	id   int
	next *shape

	// Simple.
	inner *Block

	// Multiple.
	entryOrder []*Block
	handled    map[*Block]*shape
	breaks     bool

	// Loop.
	body *shape
}

// Relooper owns the submitted blocks and the calculated shape tree.
type Relooper struct {
	blocks  []*Block
	root    *shape
	shapeID int
	minSize bool
}

// New returns an empty Relooper.
func New() *Relooper { return &Relooper{} }

// SetMinSize records a preference for size over speed. Render does not
// read it; the rendered text is the same either way.
func (r *Relooper) SetMinSize(v bool) { r.minSize = v }

// AddBlock registers a block with its rendered code. A non-empty
// switchCondition turns the block's branching into a switch on it.
func (r *Relooper) AddBlock(code, switchCondition string) *Block {
	b := &Block{
		Code:            code,
		SwitchCondition: switchCondition,
		id:              len(r.blocks) + 1,
		branchesOut:     make(map[*Block]*Branch),
		branchesIn:      make(map[*Block]bool),
	}
	r.blocks = append(r.blocks, b)
	return b
}

func (r *Relooper) newShape(kind shapeKind) *shape {
	r.shapeID++
	return &shape{kind: kind, id: r.shapeID}
}

// Calculate derives the shape tree reaching every block from entry.
func (r *Relooper) Calculate(entry *Block) {
	// Incoming edges.
	for _, b := range r.blocks {
		for _, t := range b.branchOrder {
			t.branchesIn[b] = true
		}
	}
	live := make(blockSet)
	// Only blocks reachable from the entry take part.
	var mark func(b *Block)
	mark = func(b *Block) {
		if live[b] {
			return
		}
		live[b] = true
		for _, t := range b.branchOrder {
			mark(t)
		}
	}
	mark(entry)
	for _, b := range r.blocks {
		if !live[b] {
			for t := range b.branchesOut {
				delete(t.branchesIn, b)
			}
		}
	}
	c := &calculator{r: r}
	r.root = c.process(live, []*Block{entry})
}

type blockSet map[*Block]bool

type calculator struct {
	r *Relooper
}

// process consumes blocks until no entries remain, chaining the created
// shapes through next.
func (c *calculator) process(blocks blockSet, entries []*Block) *shape {
	var first, prev *shape
	attach := func(s *shape) {
		if first == nil {
			first = s
		}
		if prev != nil {
			prev.next = s
		}
		prev = s
	}
	for len(entries) > 0 {
		if len(entries) == 1 {
			e := entries[0]
			if !canReturnTo(e, blocks) {
				s, next := c.makeSimple(blocks, e)
				attach(s)
				entries = next
				continue
			}
			s, next := c.makeLoop(blocks, entries)
			attach(s)
			entries = next
			continue
		}
		groups := independentGroups(blocks, entries)
		if countNonEmpty(groups) > 0 {
			// A multiple directly after a simple is fused into its
			// branch arms at render time and needs no label dispatch.
			fused := prev != nil && prev.kind == shapeSimple
			s, next := c.makeMultiple(blocks, entries, groups, fused)
			attach(s)
			entries = next
			continue
		}
		s, next := c.makeLoop(blocks, entries)
		attach(s)
		entries = next
	}
	return first
}

// canReturnTo reports whether any block still in the set branches to e.
func canReturnTo(e *Block, blocks blockSet) bool {
	for from := range e.branchesIn {
		if blocks[from] {
			return true
		}
	}
	return false
}

func (c *calculator) makeSimple(blocks blockSet, e *Block) (*shape, []*Block) {
	s := c.r.newShape(shapeSimple)
	s.inner = e
	e.parent = s
	delete(blocks, e)
	var next []*Block
	seen := make(blockSet)
	for _, t := range e.branchOrder {
		if e.branchesOut[t].ancestor != nil {
			continue // already solipsized by an enclosing shape
		}
		if blocks[t] && !seen[t] {
			seen[t] = true
			next = append(next, t)
		}
		delete(t.branchesIn, e)
	}
	return s, next
}

func (c *calculator) makeLoop(blocks blockSet, entries []*Block) (*shape, []*Block) {
	s := c.r.newShape(shapeLoop)
	// The loop body is every block that can reach an entry while staying
	// inside the current set.
	inner := make(blockSet)
	queue := append([]*Block(nil), entries...)
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if inner[b] {
			continue
		}
		inner[b] = true
		for from := range b.branchesIn {
			if blocks[from] && !inner[from] {
				queue = append(queue, from)
			}
		}
	}
	// Branches back to an entry continue the loop; branches leaving the
	// body break out of it.
	entrySet := make(blockSet, len(entries))
	for _, e := range entries {
		entrySet[e] = true
		if len(entries) > 1 {
			e.checkedEntry = true
		}
	}
	var next []*Block
	nextSeen := make(blockSet)
	for _, b := range orderedBlocks(c.r, inner) {
		for _, t := range b.branchOrder {
			br := b.branchesOut[t]
			if br.ancestor != nil {
				continue
			}
			if entrySet[t] {
				br.ancestor = s
				br.flow = flowContinue
				delete(t.branchesIn, b)
			} else if !inner[t] && blocks[t] {
				br.ancestor = s
				br.flow = flowBreak
				if !nextSeen[t] {
					nextSeen[t] = true
					next = append(next, t)
				}
				delete(t.branchesIn, b)
			}
		}
	}
	for b := range inner {
		delete(blocks, b)
	}
	s.body = c.process(inner, entries)
	return s, next
}

// independentGroups maps each entry to the blocks reachable from it alone.
func independentGroups(blocks blockSet, entries []*Block) map[*Block]blockSet {
	owner := make(map[*Block]*Block)
	conflict := &Block{}
	queue := make([]*Block, 0, len(entries))
	for _, e := range entries {
		owner[e] = e
		queue = append(queue, e)
	}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		own := owner[b]
		for _, t := range b.branchOrder {
			if !blocks[t] || b.branchesOut[t].ancestor != nil {
				continue
			}
			prev, seen := owner[t]
			if !seen {
				owner[t] = own
				queue = append(queue, t)
			} else if prev != own && prev != conflict {
				owner[t] = conflict
				queue = append(queue, t)
			}
		}
	}
	groups := make(map[*Block]blockSet, len(entries))
	for _, e := range entries {
		groups[e] = make(blockSet)
	}
	for b, own := range owner {
		if own != conflict {
			groups[own][b] = true
		}
	}
	// A block with a predecessor outside its group cannot be hidden
	// inside it. Shrink to a fixpoint.
	changed := true
	for changed {
		changed = false
		for e, g := range groups {
			for b := range g {
				if b == e {
					continue
				}
				for from := range b.branchesIn {
					if blocks[from] && !g[from] {
						removeReachable(g, b, e)
						changed = true
						break
					}
				}
			}
		}
	}
	return groups
}

// removeReachable drops b and everything only reachable through it from g.
func removeReachable(g blockSet, b, entry *Block) {
	if !g[b] || b == entry {
		return
	}
	delete(g, b)
	for _, t := range b.branchOrder {
		if b.branchesOut[t].ancestor != nil {
			continue
		}
		removeReachable(g, t, entry)
	}
}

func countNonEmpty(groups map[*Block]blockSet) int {
	n := 0
	for _, g := range groups {
		if len(g) > 0 {
			n++
		}
	}
	return n
}

func (c *calculator) makeMultiple(blocks blockSet, entries []*Block, groups map[*Block]blockSet, fused bool) (*shape, []*Block) {
	s := c.r.newShape(shapeMultiple)
	s.handled = make(map[*Block]*shape)
	var next []*Block
	nextSeen := make(blockSet)
	addNext := func(t *Block) {
		if !nextSeen[t] {
			nextSeen[t] = true
			next = append(next, t)
		}
	}
	for _, e := range entries {
		g := groups[e]
		if len(g) == 0 {
			addNext(e)
			continue
		}
		// Branches leaving the group break past the multiple.
		for _, b := range orderedBlocks(c.r, g) {
			for _, t := range b.branchOrder {
				if g[t] || !blocks[t] {
					continue
				}
				br := b.branchesOut[t]
				if br.ancestor != nil {
					continue
				}
				br.ancestor = s
				br.flow = flowBreak
				s.breaks = true
				addNext(t)
				delete(t.branchesIn, b)
			}
		}
		// Without fusion the only way into an arm is the label
		// dispatch, so every handled entry must be checked.
		if !fused {
			e.checkedEntry = true
		}
		for b := range g {
			delete(blocks, b)
		}
		s.entryOrder = append(s.entryOrder, e)
		s.handled[e] = c.process(g, []*Block{e})
	}
	return s, next
}

func orderedBlocks(r *Relooper, set blockSet) []*Block {
	out := make([]*Block, 0, len(set))
	for _, b := range r.blocks {
		if set[b] {
			out = append(out, b)
		}
	}
	return out
}
