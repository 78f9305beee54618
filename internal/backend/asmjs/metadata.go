package asmjs

import (
	"strconv"
	"strings"

	"emjs/internal/ir"
)

// elidedIntrinsic reports intrinsics that are always no-ops or expand
// into other code, so their declaration never reaches the driver.
func elidedIntrinsic(name string) bool {
	for _, prefix := range []string{
		"llvm.dbg.declare", "llvm.dbg.value",
		"llvm.lifetime.start", "llvm.lifetime.end",
		"llvm.invariant.start", "llvm.invariant.end",
		"llvm.prefetch", "llvm.expect.", "llvm.flt.rounds",
		"llvm.memcpy.", "llvm.memset.", "llvm.memmove.",
	} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// usedDeclarations collects declared functions actually referenced by the
// module's bodies or globals.
func (e *Emitter) usedDeclarations() map[*ir.Func]bool {
	used := make(map[*ir.Func]bool)
	noteValue := func(v ir.Value) {
		if f, ok := ir.ResolveFully(ir.StripPointerCasts(v)).(*ir.Func); ok {
			used[f] = true
		}
	}
	for _, f := range e.mod.Funcs {
		for _, b := range f.Blocks {
			for _, i := range b.Instrs {
				if i.Callee != nil {
					noteValue(i.Callee)
				}
				for _, op := range i.Ops {
					noteValue(op)
				}
				for _, inc := range i.Incomings {
					noteValue(inc.V)
				}
			}
		}
	}
	var noteConst func(c *ir.Const)
	noteConst = func(c *ir.Const) {
		for _, el := range append(append([]ir.Value{}, c.Elems...), c.Ops...) {
			noteValue(el)
			if ec, ok := el.(*ir.Const); ok {
				noteConst(ec)
			}
		}
	}
	for _, g := range e.mod.Globals {
		if g.Init != nil {
			noteConst(g.Init)
		}
	}
	return used
}

// printMetadata emits the trailing metadata object the linking driver
// consumes. Key order is fixed.
func (e *Emitter) printMetadata() {
	e.out("\n\n// EMSCRIPTEN_METADATA\n")
	e.out("{\n")

	used := e.usedDeclarations()
	e.out("\"declares\": [")
	first := true
	comma := func() {
		if first {
			first = false
		} else {
			e.out(", ")
		}
	}
	for _, f := range e.mod.Funcs {
		if f.IsDeclaration() && used[f] {
			if f.IsIntrinsic() && elidedIntrinsic(f.Nm) {
				continue
			}
			comma()
			e.out("\"" + f.Nm + "\"")
		}
	}
	for _, name := range sortedKeys(e.declares) {
		comma()
		e.out("\"" + name + "\"")
	}
	e.out("],")

	e.out("\"redirects\": {")
	first = true
	for _, name := range sortedKeys(e.redirects) {
		comma()
		e.out("\"_" + name + "\": \"" + e.redirects[name] + "\"")
	}
	e.out("},")

	e.out("\"externs\": [")
	first = true
	for _, name := range sortedKeys(e.externals) {
		comma()
		e.out("\"" + name + "\"")
	}
	e.out("],")

	e.out("\"implementedFunctions\": [")
	first = true
	for _, f := range e.mod.Funcs {
		if !f.IsDeclaration() {
			comma()
			e.out("\"" + mangleGlobal(f.Nm) + "\"")
		}
	}
	e.out("],")

	e.out("\"tables\": {")
	sigs := sortedKeys(e.functionTables)
	for n, sig := range sigs {
		table := *e.functionTables[sig]
		// Tables are padded up to a power of two so indices can be
		// masked instead of bounds-checked.
		size := 1
		for size < len(table) {
			size <<= 1
		}
		for len(table) < size {
			table = append(table, "0")
		}
		e.out("  \"" + sig + "\": \"var FUNCTION_TABLE_" + sig + " = [" + strings.Join(table, ",") + "];\"")
		if n < len(sigs)-1 {
			e.out(",")
		}
		e.out("\n")
	}
	e.out("},")

	e.out("\"initializers\": [")
	first = true
	for _, init := range e.globalInitializers {
		comma()
		e.out("\"" + init + "\"")
	}
	e.out("],")

	e.out("\"exports\": [")
	first = true
	for _, exp := range e.exports {
		comma()
		e.out("\"" + exp + "\"")
	}
	e.out("],")

	e.out("\"cantValidate\": \"" + e.cantValidate + "\",")

	e.out("\"simd\": ")
	if e.usesSIMD {
		e.out("1")
	} else {
		e.out("0")
	}
	e.out(",")

	e.out("\"namedGlobals\": {")
	first = true
	for _, name := range sortedKeys(e.namedGlobals) {
		comma()
		e.out("\"_" + name + "\": \"" + strconv.FormatUint(uint64(e.namedGlobals[name]), 10) + "\"")
	}
	e.out("}")

	e.out("\n}\n")
}
