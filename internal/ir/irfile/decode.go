package irfile

import (
	"fmt"

	"emjs/internal/ir"
)

type decoder struct {
	fm *fileModule

	types   []*ir.Type
	consts  []*ir.Const
	globals []*ir.Global
	funcs   []*ir.Func
	blocks  [][]*ir.Block
	instrs  [][]*ir.Instr
}

func decode(fm *fileModule) (*ir.Module, error) {
	d := &decoder{fm: fm}

	// Materialize every entity as an empty shell first, then link.
	d.types = make([]*ir.Type, len(fm.Types))
	for i := range fm.Types {
		d.types[i] = &ir.Type{}
	}
	for i, ft := range fm.Types {
		t := d.types[i]
		t.Kind = ir.TypeKind(ft.Kind)
		t.Bits = ft.Bits
		t.Elem = d.typeAt(ft.Elem)
		t.Len = ft.Len
		t.Packed = ft.Packed
		t.Ret = d.typeAt(ft.Ret)
		for _, f := range ft.Fields {
			t.Fields = append(t.Fields, d.typeAt(f))
		}
		for _, p := range ft.Params {
			t.Params = append(t.Params, d.typeAt(p))
		}
	}

	d.consts = make([]*ir.Const, len(fm.Consts))
	for i := range fm.Consts {
		d.consts[i] = &ir.Const{}
	}
	d.globals = make([]*ir.Global, len(fm.Globals))
	for i := range fm.Globals {
		d.globals[i] = &ir.Global{}
	}
	d.funcs = make([]*ir.Func, len(fm.Funcs))
	d.blocks = make([][]*ir.Block, len(fm.Funcs))
	d.instrs = make([][]*ir.Instr, len(fm.Funcs))
	for i, ff := range fm.Funcs {
		f := &ir.Func{Nm: ff.Name, Align: ff.Align, Attrs: ir.FuncAttr(ff.Attrs)}
		d.funcs[i] = f
		for range ff.Blocks {
			d.blocks[i] = append(d.blocks[i], &ir.Block{})
		}
		for _, fb := range ff.Blocks {
			for range fb.Instrs {
				d.instrs[i] = append(d.instrs[i], &ir.Instr{})
			}
		}
	}

	for i, fc := range fm.Consts {
		c := d.consts[i]
		c.Kind = ir.ConstKind(fc.Kind)
		c.Ty = d.typeAt(fc.Type)
		c.Int = fc.Int
		c.Float = fc.Float
		c.Bytes = fc.Bytes
		c.Op = ir.Opcode(fc.Op)
		c.Pred = ir.CmpPred(fc.Pred)
		for _, r := range fc.Elems {
			v, err := d.valueAt(r)
			if err != nil {
				return nil, err
			}
			c.Elems = append(c.Elems, v)
		}
		for _, r := range fc.Ops {
			v, err := d.valueAt(r)
			if err != nil {
				return nil, err
			}
			c.Ops = append(c.Ops, v)
		}
		if c.Kind == ir.ConstBlockAddress {
			if fc.Fn < 0 || int(fc.Fn) >= len(d.funcs) {
				return nil, fmt.Errorf("blockaddress references function %d", fc.Fn)
			}
			c.Fn = d.funcs[fc.Fn]
			c.Block = d.blocks[fc.Fn][fc.Block]
		}
	}

	for i, fg := range fm.Globals {
		g := d.globals[i]
		g.Nm = fg.Name
		g.Ty = d.typeAt(fg.Type)
		g.Align = fg.Align
		if fg.Init >= 0 {
			g.Init = d.consts[fg.Init]
		}
		if fg.Aliasee.Kind != refNil {
			v, err := d.valueAt(fg.Aliasee)
			if err != nil {
				return nil, err
			}
			g.Aliasee = v
		}
	}

	for i, ff := range fm.Funcs {
		f := d.funcs[i]
		f.Ty = d.typeAt(ff.Type)
		for j, name := range ff.Args {
			var ty *ir.Type
			if f.Ty != nil && j < len(f.Ty.Params) {
				ty = f.Ty.Params[j]
			}
			f.Args = append(f.Args, &ir.Arg{Nm: name, Ty: ty, Parent: f})
		}
		flat := 0
		for bi, fb := range ff.Blocks {
			b := d.blocks[i][bi]
			b.Nm = fb.Name
			b.Fn = f
			for range fb.Instrs {
				b.Instrs = append(b.Instrs, d.instrs[i][flat])
				flat++
			}
			f.Blocks = append(f.Blocks, b)
		}
		flat = 0
		for _, fb := range ff.Blocks {
			for _, fi := range fb.Instrs {
				if err := d.decodeInstr(i, d.instrs[i][flat], fi); err != nil {
					return nil, fmt.Errorf("function %s: %w", f.Nm, err)
				}
				flat++
			}
		}
	}

	m := &ir.Module{TargetTriple: fm.Triple, Globals: d.globals, Funcs: d.funcs}
	m.Finalize()
	return m, nil
}

func (d *decoder) typeAt(idx int32) *ir.Type {
	if idx < 0 {
		return nil
	}
	return d.types[idx]
}

func (d *decoder) valueAt(r fileRef) (ir.Value, error) {
	switch r.Kind {
	case refNil:
		return nil, nil
	case refConst:
		return d.consts[r.Index], nil
	case refGlobal:
		return d.globals[r.Index], nil
	case refFunc:
		return d.funcs[r.Index], nil
	case refArg:
		return d.funcs[r.Fn].Args[r.Index], nil
	case refInstr:
		return d.instrs[r.Fn][r.Index], nil
	default:
		return nil, fmt.Errorf("bad value reference kind %d", r.Kind)
	}
}

func (d *decoder) decodeInstr(fn int, ins *ir.Instr, fi fileInstr) error {
	ins.Op = ir.Opcode(fi.Op)
	ins.Ty = d.typeAt(fi.Type)
	ins.Nm = fi.Name
	ins.Pred = ir.CmpPred(fi.Pred)
	ins.Align = fi.Align
	ins.Allocated = d.typeAt(fi.Allocated)
	ins.SrcElem = d.typeAt(fi.SrcElem)
	ins.Atomic = ir.AtomicOp(fi.Atomic)
	ins.Mask = fi.Mask
	ins.Dbg = ir.Loc{File: fi.DbgFile, Line: fi.DbgLine}
	for _, r := range fi.Ops {
		v, err := d.valueAt(r)
		if err != nil {
			return err
		}
		ins.Ops = append(ins.Ops, v)
	}
	for _, s := range fi.Succs {
		ins.Succs = append(ins.Succs, d.blocks[fn][s])
	}
	for k := range fi.IncPreds {
		v, err := d.valueAt(fi.IncVals[k])
		if err != nil {
			return err
		}
		ins.Incomings = append(ins.Incomings, ir.Incoming{
			Pred: d.blocks[fn][fi.IncPreds[k]],
			V:    v,
		})
	}
	for k := range fi.CaseVals {
		ins.Cases = append(ins.Cases, ir.SwitchCase{
			Val:    fi.CaseVals[k],
			Target: d.blocks[fn][fi.CaseTargets[k]],
		})
	}
	if fi.HasCallee {
		v, err := d.valueAt(fi.Callee)
		if err != nil {
			return err
		}
		ins.Callee = v
	}
	return nil
}
