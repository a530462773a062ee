package consensus

import (
	"context"
	"fmt"
)

// Program is a locking program: a named built-in module curried with arguments.
// The tree hash commits to the module name and every argument, so a puzzle hash
// can be computed from an inner puzzle hash without the inner program itself.
type Program struct {
	Mod  string `cbor:"1,keyasint"`
	Args []Arg  `cbor:"2,keyasint,omitempty"`
}

// Arg is either an atom or a nested program.
type Arg struct {
	Atom    []byte   `cbor:"1,keyasint,omitempty"`
	Program *Program `cbor:"2,keyasint,omitempty"`
}

const (
	treeTagMod  = 0x00
	treeTagAtom = 0x01
	treeTagCons = 0x02
)

func NewProgram(mod string, args ...Arg) *Program {
	return &Program{Mod: mod, Args: args}
}

func AtomArg(b []byte) Arg {
	return Arg{Atom: append([]byte(nil), b...)}
}

func HashArg(h Hash) Arg {
	return Arg{Atom: h.Bytes()}
}

func Uint64Arg(v uint64) Arg {
	return Arg{Atom: Uint64Atom(v)}
}

func ProgramArg(p *Program) Arg {
	return Arg{Program: p}
}

func ModHash(mod string) Hash {
	return stdHash([]byte{treeTagMod}, []byte(mod))
}

func AtomHash(atom []byte) Hash {
	return stdHash([]byte{treeTagAtom}, atom)
}

// CurryHash is the tree hash of mod curried with arguments whose hashes are given.
func CurryHash(mod string, argHashes ...Hash) Hash {
	mh := ModHash(mod)
	parts := make([][]byte, 0, len(argHashes)+2)
	parts = append(parts, []byte{treeTagCons}, mh[:])
	for i := range argHashes {
		parts = append(parts, argHashes[i][:])
	}
	return stdHash(parts...)
}

func (a Arg) Hash() Hash {
	if a.Program != nil {
		return a.Program.TreeHash()
	}
	return AtomHash(a.Atom)
}

func (p *Program) TreeHash() Hash {
	hashes := make([]Hash, len(p.Args))
	for i := range p.Args {
		hashes[i] = p.Args[i].Hash()
	}
	return CurryHash(p.Mod, hashes...)
}

func (p *Program) Bytes() ([]byte, error) {
	return Marshal(p)
}

// MustBytes is for test fixtures and built-in constructors whose shape is static.
func (p *Program) MustBytes() []byte {
	b, err := p.Bytes()
	if err != nil {
		panic(err)
	}
	return b
}

func (p *Program) String() string {
	return fmt.Sprintf("%s/%d", p.Mod, len(p.Args))
}

// AtomAt returns argument i as an atom, failing for nested programs.
func (p *Program) AtomAt(i int) ([]byte, error) {
	if i >= len(p.Args) {
		return nil, fmt.Errorf("%s: missing argument %d", p.Mod, i)
	}
	if p.Args[i].Program != nil {
		return nil, fmt.Errorf("%s: argument %d is a program", p.Mod, i)
	}
	return p.Args[i].Atom, nil
}

func (p *Program) HashAt(i int) (Hash, error) {
	atom, err := p.AtomAt(i)
	if err != nil {
		return Hash{}, err
	}
	return HashFromBytes(atom)
}

func (p *Program) ProgramAt(i int) (*Program, error) {
	if i >= len(p.Args) || p.Args[i].Program == nil {
		return nil, fmt.Errorf("%s: argument %d is not a program", p.Mod, i)
	}
	return p.Args[i].Program, nil
}

// DecodeProgram parses a puzzle reveal.
func DecodeProgram(b []byte) (*Program, error) {
	var p Program
	if err := Unmarshal(b, &p); err != nil {
		return nil, txerr(ERR_INVALID_PUZZLE, err.Error())
	}
	if err := p.check(); err != nil {
		return nil, txerr(ERR_INVALID_PUZZLE, err.Error())
	}
	return &p, nil
}

func (p *Program) check() error {
	if p.Mod == "" {
		return fmt.Errorf("program without module")
	}
	for i := range p.Args {
		a := p.Args[i]
		if a.Program != nil && len(a.Atom) != 0 {
			return fmt.Errorf("%s: argument %d is both atom and program", p.Mod, i)
		}
		if a.Program != nil {
			if err := a.Program.check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ExecResult is the ordered condition list of a successful run plus its cost.
type ExecResult struct {
	Conditions []Condition
	Cost       uint64
}

// ProgramExecutor runs a locking program against a solution. Implementations must be
// deterministic and must fail with an execution-kind *TxError when the budget or the
// context deadline is exhausted.
type ProgramExecutor interface {
	Execute(ctx context.Context, program *Program, solution []byte, budget uint64) (ExecResult, error)
}
