// Package puzzle is the reference ProgramExecutor: a registry of built-in locking
// programs plus the drivers that build their puzzles and solutions.
package puzzle

import (
	"context"
	"fmt"
	"sync"

	"smartcoin.dev/node/consensus"
)

// CostPerSolutionByte is charged for every byte of every solution a run decodes.
const CostPerSolutionByte = 12

// ModFunc evaluates one module. Args are the curried arguments, already checked
// against the registered arity.
type ModFunc func(rc *RunContext, p *consensus.Program, solution []byte) ([]consensus.Condition, error)

type mod struct {
	arity int // -1 accepts any number of arguments
	cost  uint64
	run   ModFunc
}

// Executor implements consensus.ProgramExecutor. It is safe for concurrent use.
type Executor struct {
	mu   sync.RWMutex
	mods map[string]mod
}

func NewExecutor() *Executor {
	e := &Executor{mods: make(map[string]mod)}
	registerBuiltins(e)
	return e
}

// Register adds a module. Names owned by the consensus engine cannot be shadowed.
func (e *Executor) Register(name string, arity int, cost uint64, fn ModFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("puzzle: invalid module registration %q", name)
	}
	if name == consensus.SingletonLauncherMod || name == consensus.SingletonTopLayerMod {
		return fmt.Errorf("puzzle: module %q is native to consensus", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.mods[name]; exists {
		return fmt.Errorf("puzzle: module %q already registered", name)
	}
	e.mods[name] = mod{arity: arity, cost: cost, run: fn}
	return nil
}

func (e *Executor) mustRegister(name string, arity int, cost uint64, fn ModFunc) {
	if err := e.Register(name, arity, cost, fn); err != nil {
		panic(err)
	}
}

func (e *Executor) lookup(name string) (mod, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.mods[name]
	return m, ok
}

func (e *Executor) Execute(ctx context.Context, p *consensus.Program, solution []byte, budget uint64) (consensus.ExecResult, error) {
	rc := &RunContext{ctx: ctx, exec: e, budget: budget}
	conds, err := rc.Run(p, solution)
	if err != nil {
		return consensus.ExecResult{}, err
	}
	return consensus.ExecResult{Conditions: conds, Cost: rc.cost}, nil
}

// RunContext carries the budget of one top-level run through nested programs.
type RunContext struct {
	ctx    context.Context
	exec   *Executor
	budget uint64
	cost   uint64
}

func (rc *RunContext) Cost() uint64 { return rc.cost }

func (rc *RunContext) charge(n uint64) error {
	if n > rc.budget-rc.cost {
		rc.cost = rc.budget
		return consensus.ExecFailure(consensus.ERR_COST_EXCEEDED, fmt.Sprintf("budget %d exhausted", rc.budget))
	}
	rc.cost += n
	return nil
}

// Run evaluates p against solution, charging the shared budget.
func (rc *RunContext) Run(p *consensus.Program, solution []byte) ([]consensus.Condition, error) {
	if err := rc.ctx.Err(); err != nil {
		return nil, consensus.ExecFailure(consensus.ERR_EXECUTION_TIMEOUT, err.Error())
	}
	if p == nil {
		return nil, consensus.ExecFailure(consensus.ERR_UNKNOWN_PROGRAM, "nil program")
	}
	m, ok := rc.exec.lookup(p.Mod)
	if !ok {
		return nil, consensus.ExecFailure(consensus.ERR_UNKNOWN_PROGRAM, p.Mod)
	}
	if m.arity >= 0 && len(p.Args) != m.arity {
		return nil, consensus.Raise("%s takes %d arguments, got %d", p.Mod, m.arity, len(p.Args))
	}
	if err := rc.charge(m.cost + uint64(len(solution))*CostPerSolutionByte); err != nil {
		return nil, err
	}
	return m.run(rc, p, solution)
}
