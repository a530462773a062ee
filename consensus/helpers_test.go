package consensus

import (
	"context"
	"errors"
	"testing"

	"smartcoin.dev/node/crypto"
)

const testExecCost = 1_000

// testExecutor understands a handful of modules: "acs" returns its solution as the
// condition list, "raise" always fails, anything else is unknown.
type testExecutor struct{}

func (testExecutor) Execute(ctx context.Context, p *Program, solution []byte, budget uint64) (ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecResult{}, ExecFailure(ERR_EXECUTION_TIMEOUT, err.Error())
	}
	if budget < testExecCost {
		return ExecResult{}, ExecFailure(ERR_COST_EXCEEDED, "budget")
	}
	switch p.Mod {
	case "acs":
		conds, err := DecodeConditions(solution)
		if err != nil {
			return ExecResult{}, ExecFailure(ERR_INVALID_SOLUTION, err.Error())
		}
		return ExecResult{Conditions: conds, Cost: testExecCost}, nil
	case "raise":
		return ExecResult{}, Raise("raised on purpose")
	default:
		return ExecResult{}, ExecFailure(ERR_UNKNOWN_PROGRAM, p.Mod)
	}
}

func acs(nonce string) *Program {
	return NewProgram("acs", AtomArg([]byte(nonce)))
}

func testParams(t *testing.T) Params {
	t.Helper()
	p, err := DefaultParams(crypto.StdProvider{}, "testnet")
	if err != nil {
		t.Fatalf("DefaultParams: %v", err)
	}
	return p
}

// fundedSet returns a snapshot at height 10 holding coins as coinbase records.
func fundedSet(t *testing.T, coins ...Coin) *CoinSet {
	t.Helper()
	s, err := NewCoinSet(10, 1_000).AddCoinbase(coins...)
	if err != nil {
		t.Fatalf("AddCoinbase: %v", err)
	}
	return s
}

func coinAt(parent byte, p *Program, amount uint64) Coin {
	var pid Hash
	pid[0] = parent
	return Coin{ParentCoinID: pid, PuzzleHash: p.TreeHash(), Amount: amount}
}

func acsSpend(t *testing.T, coin Coin, p *Program, conds ...Condition) CoinSpend {
	t.Helper()
	sol, err := EncodeConditions(conds)
	if err != nil {
		t.Fatalf("EncodeConditions: %v", err)
	}
	cs, err := MakeSpend(coin, p, sol)
	if err != nil {
		t.Fatalf("MakeSpend: %v", err)
	}
	return cs
}

func validate(t *testing.T, snap *CoinSet, b *SpendBundle) (*ValidatedBundle, error) {
	t.Helper()
	return ValidateBundle(context.Background(), testParams(t), crypto.StdProvider{}, testExecutor{}, snap, b)
}

func mustTxErrCode(t *testing.T, err error) ErrorCode {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error")
	}
	code, ok := CodeOf(err)
	if !ok {
		t.Fatalf("expected *TxError, got %T: %v", err, err)
	}
	return code
}

func asTxError(err error, out **TxError) bool {
	return errors.As(err, out)
}
