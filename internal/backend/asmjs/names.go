package asmjs

import (
	"strconv"

	"emjs/internal/ir"
)

// Symbol mangling. Globals and locals live in two disjoint textual
// namespaces: globals are prefixed "_" and locals "$", so a mangled local
// can never collide with a mangled global.

func isIdentByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func hexDigit(half byte) byte {
	if half <= 9 {
		return '0' + half
	}
	return 'A' + half - 10
}

// mangleGlobal prefixes "_" and flattens every invalid byte to "_".
// Globals arrive in C symbol format, so collisions are not a practical
// concern here.
func mangleGlobal(name string) string {
	out := make([]byte, 0, len(name)+1)
	out = append(out, '_')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isIdentByte(c) {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// mangleLocal prefixes "$" and rewrites invalid bytes reversibly: "." is
// replaced by "$" with a Z glyph queued, any other invalid byte becomes
// "$" followed by the queued Zs and two uppercase hex digits. "x.a"
// becomes "$x$a", "x..a" "$x$$a", and "x.,a" "$x$$Z2Ca": the hex suffix
// only appears once some non-dot byte forces it, and the queued Zs record
// how many plain-dot replacements preceded it.
func mangleLocal(name string) string {
	out := make([]byte, 0, len(name)+1)
	out = append(out, '$')
	queued := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isIdentByte(c) {
			out = append(out, c)
			continue
		}
		out = append(out, '$')
		if c == '.' {
			queued++
			continue
		}
		for ; queued > 0; queued-- {
			out = append(out, 'Z')
		}
		out = append(out, hexDigit(c>>4), hexDigit(c&0xf))
	}
	return string(out)
}

// jsName returns the mangled name for a value, minting and caching one on
// first use. Anonymous values get sequential numeric names. Static
// allocas coalesced by the frame planner share their representative's
// name.
func (e *Emitter) jsName(v ir.Value) string {
	if name, ok := e.names[v]; ok {
		return name
	}

	if i, ok := v.(*ir.Instr); ok && i.IsStaticAlloca() && e.fe != nil {
		if rep := e.fe.frame.Representative(i); rep != i {
			return e.jsName(rep)
		}
	}

	name := v.Ident()
	if name == "" {
		name = strconv.Itoa(e.uniqueNum)
		e.uniqueNum++
	}

	switch v.(type) {
	case *ir.Global, *ir.Func, *ir.Const:
		name = mangleGlobal(name)
	default:
		name = mangleLocal(name)
	}

	e.names[v] = name
	return name
}
