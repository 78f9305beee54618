package diag

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestWarnf(t *testing.T) {
	color.NoColor = true
	var sb strings.Builder
	r := NewReporter(&sb)
	r.Warnf("something %s", "odd")
	if got := sb.String(); got != "warning: something odd\n" {
		t.Errorf("Warnf output = %q", got)
	}
	if r.Warnings() != 1 {
		t.Errorf("warning count = %d, want 1", r.Warnings())
	}
}

func TestWarnOnce(t *testing.T) {
	color.NoColor = true
	var sb strings.Builder
	r := NewReporter(&sb)
	r.WarnOnce("key", "first")
	r.WarnOnce("key", "second")
	r.WarnOnce("other", "third")
	out := sb.String()
	if strings.Count(out, "warning:") != 2 {
		t.Errorf("WarnOnce should fire once per key:\n%s", out)
	}
	if strings.Contains(out, "second") {
		t.Errorf("repeated warning leaked:\n%s", out)
	}
}

func TestNilReporterIsSilent(t *testing.T) {
	var r *Reporter
	r.Warnf("should not panic")
	r.WarnOnce("k", "should not panic")
	if r.Warnings() != 0 {
		t.Error("nil reporter counted warnings")
	}
}
