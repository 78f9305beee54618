package asmjs

import (
	"testing"
)

func TestMangleGlobal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"main", "_main"},
		{"llvm.memcpy.p0i8.p0i8.i32", "_llvm_memcpy_p0i8_p0i8_i32"},
		{"a-b", "_a_b"},
		{"_start", "__start"},
	}
	for _, tc := range tests {
		if got := mangleGlobal(tc.in); got != tc.want {
			t.Errorf("mangleGlobal(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMangleLocal(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"x", "$x"},
		{"x_a", "$x_a"},
		// A lone dot replaces cheaply without a hex tail.
		{"x.a", "$x$a"},
		{"x..a", "$x$$a"},
		// A non-dot invalid byte flushes the queued dots as Z glyphs.
		{"x.,a", "$x$$Z2Ca"},
		{"x,a", "$x$2Ca"},
		{"x..,", "$x$$$ZZ2C"},
	}
	for _, tc := range tests {
		if got := mangleLocal(tc.in); got != tc.want {
			t.Errorf("mangleLocal(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestMangleLocalInjective spot-checks that the classic collision pairs
// stay distinct.
func TestMangleLocalInjective(t *testing.T) {
	pairs := [][2]string{
		{"x.a", "x_a"},
		{"x.a", "x,a"},
		{"a.b.c", "a.b,c"},
		{"v.1", "v$1"},
	}
	for _, p := range pairs {
		if mangleLocal(p[0]) == mangleLocal(p[1]) {
			t.Errorf("mangleLocal collision: %q and %q both map to %q", p[0], p[1], mangleLocal(p[0]))
		}
	}
}

func TestMangleDeterministic(t *testing.T) {
	for _, s := range []string{"x.y", "weird\x01name", "plain"} {
		if mangleLocal(s) != mangleLocal(s) {
			t.Errorf("mangleLocal(%q) is not stable", s)
		}
	}
}
