package ir

// Value is anything an instruction operand can reference: another
// instruction, a function argument, a global, a function, or a constant.
// Values are compared by identity.
type Value interface {
	// Type returns the value's IR type.
	Type() *Type
	// Ident returns the value's IR-level name, or "" for anonymous values.
	Ident() string
}

// ConstKind enumerates constant kinds.
type ConstKind uint8

const (
	// ConstInt is an integer constant (value in Const.Int).
	ConstInt ConstKind = iota
	// ConstFloat is a float or double constant (value in Const.Float).
	ConstFloat
	// ConstNull is a null pointer.
	ConstNull
	// ConstUndef is an undefined value of any type.
	ConstUndef
	// ConstAggregateZero is an all-zero aggregate or vector.
	ConstAggregateZero
	// ConstData is raw sequential byte data (strings).
	ConstData
	// ConstVector is a vector built from scalar constant operands.
	ConstVector
	// ConstArray is an array of constant operands.
	ConstArray
	// ConstStruct is a struct of constant operands.
	ConstStruct
	// ConstExpr is a constant expression (opcode over constant operands).
	ConstExpr
	// ConstBlockAddress is the address of a basic block.
	ConstBlockAddress
)

// Const is a constant value. Exactly the fields implied by Kind are
// meaningful.
type Const struct {
	Kind ConstKind
	Ty   *Type

	Int   int64   // ConstInt, raw two's-complement bits
	Float float64 // ConstFloat (holds float32 values exactly)
	Bytes []byte  // ConstData
	Elems []Value // ConstVector/ConstArray/ConstStruct operands
	Op    Opcode  // ConstExpr opcode
	Ops   []Value // ConstExpr operands
	Pred  CmpPred // ConstExpr comparison predicate

	Fn    *Func   // ConstBlockAddress function
	Block *Block  // ConstBlockAddress target
}

// Type returns the constant's type.
func (c *Const) Type() *Type { return c.Ty }

// Ident returns ""; plain constants are unnamed.
func (c *Const) Ident() string { return "" }

// IntConst returns an integer constant of type t.
func IntConst(t *Type, v int64) *Const { return &Const{Kind: ConstInt, Ty: t, Int: v} }

// FloatConst returns a floating-point constant of type t.
func FloatConst(t *Type, v float64) *Const { return &Const{Kind: ConstFloat, Ty: t, Float: v} }

// Null returns a null pointer constant of type t.
func Null(t *Type) *Const { return &Const{Kind: ConstNull, Ty: t} }

// Undef returns an undef constant of type t.
func Undef(t *Type) *Const { return &Const{Kind: ConstUndef, Ty: t} }

// Zero returns an aggregate-zero constant of type t.
func Zero(t *Type) *Const { return &Const{Kind: ConstAggregateZero, Ty: t} }

// DataConst returns a raw byte-string constant.
func DataConst(b []byte) *Const {
	n, err := lenU32(b)
	if err != nil {
		panic(err)
	}
	return &Const{Kind: ConstData, Ty: ArrayOf(I8, n), Bytes: b}
}

// BlockAddress returns the address constant of block b in fn.
func BlockAddress(fn *Func, b *Block) *Const {
	return &Const{Kind: ConstBlockAddress, Ty: Ptr(I8), Fn: fn, Block: b}
}

// Expr returns a constant expression applying op to the given operands.
func Expr(op Opcode, t *Type, ops ...Value) *Const {
	return &Const{Kind: ConstExpr, Ty: t, Op: op, Ops: ops}
}

// Arg is a function argument.
type Arg struct {
	Nm     string
	Ty     *Type
	Parent *Func
}

// Type returns the argument's type.
func (a *Arg) Type() *Type { return a.Ty }

// Ident returns the argument's IR name.
func (a *Arg) Ident() string { return a.Nm }

// Global is a module-level variable. A nil Init marks an external
// declaration; a non-nil Aliasee marks a global alias.
type Global struct {
	Nm      string
	Ty      *Type // pointee type
	Init    *Const
	Aliasee Value
	Align   uint32
}

// Type returns the pointer type of the global.
func (g *Global) Type() *Type { return Ptr(g.Ty) }

// Ident returns the global's IR name.
func (g *Global) Ident() string { return g.Nm }

// IsDeclaration reports whether g has no initializer (an external symbol).
func (g *Global) IsDeclaration() bool { return g.Init == nil && g.Aliasee == nil }

// ResolveFully chases global aliases and constant-expression wrappers down
// to the underlying value.
func ResolveFully(v Value) Value {
	for {
		switch x := v.(type) {
		case *Global:
			if x.Aliasee != nil {
				v = x.Aliasee
				continue
			}
			return v
		case *Const:
			if x.Kind == ConstExpr {
				v = x.Ops[0]
				continue
			}
			return v
		default:
			return v
		}
	}
}

// StripPointerCasts walks through no-op pointer bitcasts and all-zero-index
// GEPs, mirroring what the expression translator elides.
func StripPointerCasts(v Value) Value {
	for {
		switch x := v.(type) {
		case *Instr:
			switch x.Op {
			case OpBitCast:
				if x.Ty.IsPointer() && x.Operand(0).Type().IsPointer() {
					v = x.Operand(0)
					continue
				}
			case OpGEP:
				if x.allZeroIndices() {
					v = x.Operand(0)
					continue
				}
			}
			return v
		case *Const:
			if x.Kind == ConstExpr && x.Op == OpBitCast && x.Ty.IsPointer() {
				v = x.Ops[0]
				continue
			}
			return v
		default:
			return v
		}
	}
}
