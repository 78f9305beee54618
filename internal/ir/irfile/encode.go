package irfile

import (
	"fmt"

	"fortio.org/safecast"

	"emjs/internal/ir"
)

type encoder struct {
	fm *fileModule

	types  map[*ir.Type]int32
	consts map[*ir.Const]int32

	globalIdx map[*ir.Global]int32
	funcIdx   map[*ir.Func]int32
	argIdx    map[*ir.Arg]ref2
	instrIdx  map[*ir.Instr]ref2
	blockIdx  map[*ir.Block]ref2
}

type ref2 struct {
	fn  int32
	idx int32
}

type indexOverflow struct{ err error }

// ix narrows an index; a module with 2^31 entities cannot be serialized.
func ix(v int) int32 {
	r, err := safecast.Conv[int32](v)
	if err != nil {
		panic(indexOverflow{err})
	}
	return r
}

func encode(m *ir.Module) (fm *fileModule, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ov, ok := r.(indexOverflow); ok {
				fm, err = nil, ov.err
				return
			}
			panic(r)
		}
	}()
	e := &encoder{
		fm:        &fileModule{Schema: SchemaVersion, Triple: m.TargetTriple},
		types:     make(map[*ir.Type]int32),
		consts:    make(map[*ir.Const]int32),
		globalIdx: make(map[*ir.Global]int32),
		funcIdx:   make(map[*ir.Func]int32),
		argIdx:    make(map[*ir.Arg]ref2),
		instrIdx:  make(map[*ir.Instr]ref2),
		blockIdx:  make(map[*ir.Block]ref2),
	}

	// Index every referenceable entity up front so forward references
	// (mutual recursion, φ back edges) resolve.
	for i, g := range m.Globals {
		e.globalIdx[g] = ix(i)
	}
	for i, f := range m.Funcs {
		fi := ix(i)
		e.funcIdx[f] = fi
		for j, a := range f.Args {
			e.argIdx[a] = ref2{fn: fi, idx: ix(j)}
		}
		flat := int32(0)
		for bi, b := range f.Blocks {
			e.blockIdx[b] = ref2{fn: fi, idx: ix(bi)}
			for _, ins := range b.Instrs {
				e.instrIdx[ins] = ref2{fn: fi, idx: flat}
				flat++
			}
		}
	}

	for _, g := range m.Globals {
		fg := fileGlobal{
			Name:  g.Nm,
			Type:  e.typeOf(g.Ty),
			Init:  -1,
			Align: g.Align,
		}
		if g.Init != nil {
			fg.Init = e.constOf(g.Init)
		}
		if g.Aliasee != nil {
			r, err := e.refOf(g.Aliasee)
			if err != nil {
				return nil, err
			}
			fg.Aliasee = r
		}
		e.fm.Globals = append(e.fm.Globals, fg)
	}

	for _, f := range m.Funcs {
		ff := fileFunc{
			Name:  f.Nm,
			Type:  e.typeOf(f.Ty),
			Align: f.Align,
			Attrs: uint8(f.Attrs),
		}
		for _, a := range f.Args {
			ff.Args = append(ff.Args, a.Nm)
		}
		for _, b := range f.Blocks {
			fb := fileBlock{Name: b.Nm}
			for _, ins := range b.Instrs {
				fi, err := e.encodeInstr(ins)
				if err != nil {
					return nil, fmt.Errorf("function %s: %w", f.Nm, err)
				}
				fb.Instrs = append(fb.Instrs, fi)
			}
			ff.Blocks = append(ff.Blocks, fb)
		}
		e.fm.Funcs = append(e.fm.Funcs, ff)
	}

	return e.fm, nil
}

func (e *encoder) typeOf(t *ir.Type) int32 {
	if t == nil {
		return -1
	}
	if idx, ok := e.types[t]; ok {
		return idx
	}
	// Reserve the slot first; recursive types are not representable in
	// this IR, but children may repeat.
	idx := ix(len(e.fm.Types))
	e.types[t] = idx
	e.fm.Types = append(e.fm.Types, fileType{})
	ft := fileType{
		Kind:   uint8(t.Kind),
		Bits:   t.Bits,
		Elem:   e.typeOf(t.Elem),
		Len:    t.Len,
		Packed: t.Packed,
		Ret:    e.typeOf(t.Ret),
	}
	for _, f := range t.Fields {
		ft.Fields = append(ft.Fields, e.typeOf(f))
	}
	for _, p := range t.Params {
		ft.Params = append(ft.Params, e.typeOf(p))
	}
	e.fm.Types[idx] = ft
	return idx
}

func (e *encoder) constOf(c *ir.Const) int32 {
	if idx, ok := e.consts[c]; ok {
		return idx
	}
	idx := ix(len(e.fm.Consts))
	e.consts[c] = idx
	e.fm.Consts = append(e.fm.Consts, fileConst{})
	fc := fileConst{
		Kind:  uint8(c.Kind),
		Type:  e.typeOf(c.Ty),
		Int:   c.Int,
		Float: c.Float,
		Bytes: c.Bytes,
		Op:    uint8(c.Op),
		Pred:  uint8(c.Pred),
		Fn:    -1,
		Block: -1,
	}
	for _, el := range c.Elems {
		r, err := e.refOf(el)
		if err != nil {
			panic(err)
		}
		fc.Elems = append(fc.Elems, r)
	}
	for _, op := range c.Ops {
		r, err := e.refOf(op)
		if err != nil {
			panic(err)
		}
		fc.Ops = append(fc.Ops, r)
	}
	if c.Kind == ir.ConstBlockAddress {
		fc.Fn = e.funcIdx[c.Fn]
		fc.Block = e.blockIdx[c.Block].idx
	}
	e.fm.Consts[idx] = fc
	return idx
}

func (e *encoder) refOf(v ir.Value) (fileRef, error) {
	switch x := v.(type) {
	case nil:
		return fileRef{Kind: refNil}, nil
	case *ir.Const:
		return fileRef{Kind: refConst, Index: e.constOf(x)}, nil
	case *ir.Global:
		return fileRef{Kind: refGlobal, Index: e.globalIdx[x]}, nil
	case *ir.Func:
		return fileRef{Kind: refFunc, Index: e.funcIdx[x]}, nil
	case *ir.Arg:
		r := e.argIdx[x]
		return fileRef{Kind: refArg, Fn: r.fn, Index: r.idx}, nil
	case *ir.Instr:
		r, ok := e.instrIdx[x]
		if !ok {
			return fileRef{}, fmt.Errorf("reference to an instruction outside the module")
		}
		return fileRef{Kind: refInstr, Fn: r.fn, Index: r.idx}, nil
	default:
		return fileRef{}, fmt.Errorf("unsupported value kind %T", v)
	}
}

func (e *encoder) encodeInstr(ins *ir.Instr) (fileInstr, error) {
	fi := fileInstr{
		Op:        uint8(ins.Op),
		Type:      e.typeOf(ins.Ty),
		Name:      ins.Nm,
		Pred:      uint8(ins.Pred),
		Align:     ins.Align,
		Allocated: e.typeOf(ins.Allocated),
		SrcElem:   e.typeOf(ins.SrcElem),
		Atomic:    uint8(ins.Atomic),
		Mask:      ins.Mask,
		DbgFile:   ins.Dbg.File,
		DbgLine:   ins.Dbg.Line,
	}
	for _, op := range ins.Ops {
		r, err := e.refOf(op)
		if err != nil {
			return fi, err
		}
		fi.Ops = append(fi.Ops, r)
	}
	for _, s := range ins.Succs {
		fi.Succs = append(fi.Succs, e.blockIdx[s].idx)
	}
	for _, inc := range ins.Incomings {
		fi.IncPreds = append(fi.IncPreds, e.blockIdx[inc.Pred].idx)
		r, err := e.refOf(inc.V)
		if err != nil {
			return fi, err
		}
		fi.IncVals = append(fi.IncVals, r)
	}
	for _, c := range ins.Cases {
		fi.CaseVals = append(fi.CaseVals, c.Val)
		fi.CaseTargets = append(fi.CaseTargets, e.blockIdx[c.Target].idx)
	}
	if ins.Callee != nil {
		r, err := e.refOf(ins.Callee)
		if err != nil {
			return fi, err
		}
		fi.Callee = r
		fi.HasCallee = true
	}
	return fi, nil
}
