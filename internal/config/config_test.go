package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	opts := Default()
	if opts.GlobalBase != 8 {
		t.Errorf("default global-base = %d, want 8", opts.GlobalBase)
	}
	if opts.PreciseF32 || opts.WarnOnUnaligned || opts.NoAliasingFunctionPointers {
		t.Error("boolean options must default to false")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	opts, err := Load(filepath.Join(t.TempDir(), ManifestName))
	if err != nil {
		t.Fatalf("missing manifest should not error: %v", err)
	}
	if opts != Default() {
		t.Errorf("missing manifest should yield defaults, got %+v", opts)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	content := "precise-f32 = true\nglobal-base = 1024\nreserved-function-pointers = 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	opts, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.PreciseF32 || opts.GlobalBase != 1024 || opts.ReservedFunctionPointers != 2 {
		t.Errorf("manifest not applied: %+v", opts)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte("no-such-option = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("unknown key should be rejected")
	}
}

func TestLoadRejectsBadGlobalBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte("global-base = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("global-base must be 8-aligned")
	}
}
