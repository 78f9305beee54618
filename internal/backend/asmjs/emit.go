// Package asmjs lowers a pre-legalized SSA module into asm.js text: one
// function at a time through the structurer, then the post-set function,
// the global memory image, and the metadata object consumed by the
// linking driver.
package asmjs

import (
	"sort"
	"strconv"
	"strings"

	"emjs/internal/config"
	"emjs/internal/diag"
	"emjs/internal/ir"
)

// Emitter owns all module-lifetime emission state. Ownership is strictly
// hierarchical: the emitter owns the pools, tables and accumulators, and
// holds only borrowed views of the IR.
type Emitter struct {
	cfg config.Options
	rep *diag.Reporter
	mod *ir.Module
	buf strings.Builder

	// Per-function name scratch, reset at every function boundary.
	names     map[ir.Value]string
	uniqueNum int

	pool               *dataPool
	externals          map[string]bool
	declares           map[string]bool
	redirects          map[string]string
	postSets           []string
	namedGlobals       map[string]uint32
	indexedFunctions   map[string]int
	functionTables     map[string]*[]string
	globalInitializers []string
	exports            []string
	usedGlobals        []*ir.Global
	blockAddresses     map[*ir.Func]map[*ir.Block]int

	cantValidate string
	usesSIMD     bool
	nextFnIndex  int
	handlers     map[string]handlerFunc

	fe *funcEmitter
}

// EmitModule lowers mod into asm.js text under the given options.
// Warnings go through rep; fatal conditions return an error wrapping one
// of ErrUnsupported, ErrLegalization or ErrInternal, and no partial text
// is returned.
func EmitModule(mod *ir.Module, cfg config.Options, rep *diag.Reporter) (out string, err error) {
	defer recoverEmit(&err)

	if mod.TargetTriple != ir.ExpectedTriple {
		rep.Warnf("incorrect target triple '%s' (did you run the legalization pipeline on all inputs?)", mod.TargetTriple)
	}

	e := &Emitter{
		cfg:              cfg,
		rep:              rep,
		mod:              mod,
		names:            make(map[ir.Value]string),
		pool:             newDataPool(),
		externals:        make(map[string]bool),
		declares:         make(map[string]bool),
		redirects:        make(map[string]string),
		namedGlobals:     make(map[string]uint32),
		indexedFunctions: make(map[string]int),
		functionTables:   make(map[string]*[]string),
		blockAddresses:   make(map[*ir.Func]map[*ir.Block]int),
	}
	e.setupCallHandlers()
	e.printModuleBody()
	return e.buf.String(), nil
}

func (e *Emitter) out(s string) { e.buf.WriteString(s) }

func (e *Emitter) nl() { e.buf.WriteByte('\n') }

// printModuleBody drives the whole emission in its fixed order.
func (e *Emitter) printModuleBody() {
	e.processConstants()
	for _, g := range e.usedGlobals {
		e.namedGlobals[g.Nm] = e.globalAddress(g.Nm)
	}

	e.nl()
	e.out("// EMSCRIPTEN_START_FUNCTIONS")
	e.nl()
	for _, f := range e.mod.Funcs {
		if !f.IsDeclaration() {
			e.printFunction(f)
		}
	}
	e.out("function runPostSets() {\n")
	e.out(" " + strings.Join(e.postSets, "") + "\n")
	e.out("}\n")
	e.postSets = nil
	e.out("// EMSCRIPTEN_END_FUNCTIONS\n\n")

	// The 32-bit bucket is reserved and must stay empty until optimal
	// constant alignments land.
	if len(e.pool.data32) != 0 {
		e.fatalf(ErrInternal, "32-bit global bucket is not empty")
	}

	e.out("/* memory initializer */ allocate([")
	e.printCommaSeparated(e.pool.data64)
	if len(e.pool.data64) > 0 && len(e.pool.data32)+len(e.pool.data8) > 0 {
		e.out(",")
	}
	e.printCommaSeparated(e.pool.data32)
	if len(e.pool.data32) > 0 && len(e.pool.data8) > 0 {
		e.out(",")
	}
	e.printCommaSeparated(e.pool.data8)
	e.out("], \"i8\", ALLOC_NONE, Runtime.GLOBAL_BASE);")

	e.printMetadata()
}

func (e *Emitter) printCommaSeparated(data []byte) {
	for i, b := range data {
		if i > 0 {
			e.out(",")
		}
		e.out(strconv.Itoa(int(b)))
	}
}

// printFunction emits one function definition: header, argument
// coercions, then the relooped body.
func (e *Emitter) printFunction(f *ir.Func) {
	e.names = make(map[ir.Value]string)
	e.uniqueNum = 0

	e.fe = newFuncEmitter(e, f)

	name := mangleGlobal(f.Nm)
	e.out("function " + name + "(")
	for i, a := range f.Args {
		if i > 0 {
			e.out(",")
		}
		e.out(e.jsName(a))
	}
	e.out(") {")
	e.nl()
	// Arguments re-coerce themselves so the body sees canonical types.
	for _, a := range f.Args {
		an := e.jsName(a)
		e.out(" " + an + " = " + e.cast(an, a.Ty, castNonspecific) + ";")
		e.nl()
	}
	e.printFunctionBody(f)
	e.out("}")
	e.nl()

	e.fe = nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
