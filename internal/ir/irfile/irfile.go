// Package irfile reads and writes IR modules as msgpack containers. The
// on-disk form is flat: types, constants and instructions live in index
// tables, and every value reference is a (kind, index) pair, so the
// pointer graph survives the round trip.
package irfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"emjs/internal/ir"
)

// SchemaVersion is bumped whenever the container format changes.
const SchemaVersion uint16 = 1

// ErrSchema marks containers written by an incompatible version.
var ErrSchema = errors.New("unsupported module schema")

const (
	refNil uint8 = iota
	refInstr
	refArg
	refGlobal
	refFunc
	refConst
)

type fileRef struct {
	Kind  uint8
	Fn    int32 // owning function for instr/arg refs
	Index int32
}

type fileType struct {
	Kind   uint8
	Bits   uint32
	Elem   int32
	Len    uint32
	Fields []int32
	Packed bool
	Ret    int32
	Params []int32
}

type fileConst struct {
	Kind  uint8
	Type  int32
	Int   int64
	Float float64
	Bytes []byte
	Elems []fileRef
	Op    uint8
	Ops   []fileRef
	Pred  uint8
	Fn    int32
	Block int32
}

type fileGlobal struct {
	Name    string
	Type    int32
	Init    int32
	Aliasee fileRef
	Align   uint32
}

type fileInstr struct {
	Op          uint8
	Type        int32
	Name        string
	Ops         []fileRef
	Succs       []int32
	Pred        uint8
	Align       uint32
	Allocated   int32
	SrcElem     int32
	IncPreds    []int32
	IncVals     []fileRef
	CaseVals    []int64
	CaseTargets []int32
	Atomic      uint8
	Callee      fileRef
	HasCallee   bool
	Mask        []int32
	DbgFile     string
	DbgLine     uint32
}

type fileBlock struct {
	Name   string
	Instrs []fileInstr
}

type fileFunc struct {
	Name  string
	Type  int32
	Args  []string
	Align uint32
	Attrs uint8

	Blocks []fileBlock
}

type fileModule struct {
	Schema  uint16
	Triple  string
	Types   []fileType
	Consts  []fileConst
	Globals []fileGlobal
	Funcs   []fileFunc
}

// Store writes m to path atomically.
func Store(path string, m *ir.Module) error {
	fm, err := encode(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(fm); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Load reads a module from path and finalizes it.
func Load(path string) (*ir.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var fm fileModule
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(&fm); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if fm.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSchema, fm.Schema, SchemaVersion)
	}
	return decode(&fm)
}
