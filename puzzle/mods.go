package puzzle

import (
	"bytes"
	"fmt"

	"smartcoin.dev/node/consensus"
)

const (
	ModACS         = "acs"
	ModPassword    = "password"
	ModPiggybank   = "piggybank"
	ModP2PubKey    = "p2_pubkey"
	ModHeightLock  = "height_lock"
	ModSignedOuter = "signed_outer"
)

func registerBuiltins(e *Executor) {
	e.mustRegister(ModACS, -1, 100, runACS)
	e.mustRegister(ModPassword, 1, 2_000, runPassword)
	e.mustRegister(ModPiggybank, 2, 3_000, runPiggybank)
	e.mustRegister(ModP2PubKey, 1, 2_000, runP2PubKey)
	e.mustRegister(ModHeightLock, 1, 500, runHeightLock)
	e.mustRegister(ModSignedOuter, 2, 2_000, runSignedOuter)
}

func decodeConditions(solution []byte) ([]consensus.Condition, error) {
	conds, err := consensus.DecodeConditions(solution)
	if err != nil {
		return nil, consensus.ExecFailure(consensus.ERR_INVALID_SOLUTION, err.Error())
	}
	return conds, nil
}

func atomArg(p *consensus.Program, i int) ([]byte, error) {
	b, err := p.AtomAt(i)
	if err != nil {
		return nil, consensus.Raise("%v", err)
	}
	return b, nil
}

// acs: anyone can spend, the solution is the condition list. Extra curried
// arguments only salt the puzzle hash.
func runACS(_ *RunContext, _ *consensus.Program, solution []byte) ([]consensus.Condition, error) {
	return decodeConditions(solution)
}

type passwordSolution struct {
	_          struct{} `cbor:",toarray"`
	Password   []byte
	Conditions []consensus.Condition
}

// password(PASSWORD_HASH): [password, conditions].
func runPassword(_ *RunContext, p *consensus.Program, solution []byte) ([]consensus.Condition, error) {
	want, err := atomArg(p, 0)
	if err != nil {
		return nil, err
	}
	var sol passwordSolution
	if err := consensus.Unmarshal(solution, &sol); err != nil {
		return nil, consensus.ExecFailure(consensus.ERR_INVALID_SOLUTION, err.Error())
	}
	got := consensus.StdHash(sol.Password)
	if !bytes.Equal(got[:], want) {
		return nil, consensus.Raise("wrong password")
	}
	return sol.Conditions, nil
}

type piggybankSolution struct {
	_            struct{} `cbor:",toarray"`
	MyAmount     []byte
	NewAmount    []byte
	MyPuzzleHash []byte
}

// piggybank(TARGET_AMOUNT, CASH_OUT_PUZZLE_HASH): [my_amount, new_amount, my_puzzlehash].
// Only accepts deposits; once the target is exceeded the savings go to the cash out
// address and the bank restarts empty.
func runPiggybank(_ *RunContext, p *consensus.Program, solution []byte) ([]consensus.Condition, error) {
	targetAtom, err := atomArg(p, 0)
	if err != nil {
		return nil, err
	}
	cashOutAtom, err := atomArg(p, 1)
	if err != nil {
		return nil, err
	}
	target, err := consensus.AtomUint64(targetAtom)
	if err != nil {
		return nil, consensus.Raise("target amount: %v", err)
	}
	cashOut, err := consensus.HashFromBytes(cashOutAtom)
	if err != nil {
		return nil, consensus.Raise("cash out puzzle hash: %v", err)
	}

	var sol piggybankSolution
	if err := consensus.Unmarshal(solution, &sol); err != nil {
		return nil, consensus.ExecFailure(consensus.ERR_INVALID_SOLUTION, err.Error())
	}
	myAmount, err := consensus.AtomInt64(sol.MyAmount)
	if err != nil {
		return nil, consensus.Raise("my_amount: %v", err)
	}
	newAmount, err := consensus.AtomInt64(sol.NewAmount)
	if err != nil {
		return nil, consensus.Raise("new_amount: %v", err)
	}
	myPH, err := consensus.HashFromBytes(sol.MyPuzzleHash)
	if err != nil {
		return nil, consensus.Raise("my_puzzlehash: %v", err)
	}
	if newAmount <= myAmount {
		return nil, consensus.Raise("piggybank only accepts deposits: %d -> %d", myAmount, newAmount)
	}
	if myAmount < 0 {
		return nil, consensus.Raise("negative my_amount %d", myAmount)
	}

	asserts := []consensus.Condition{
		{Opcode: consensus.ASSERT_MY_AMOUNT, Args: [][]byte{sol.MyAmount}},
		consensus.AssertMyPuzzleHash(myPH),
		consensus.CreateCoinAnnouncement(sol.NewAmount),
	}
	if uint64(newAmount) > target {
		out := []consensus.Condition{
			{Opcode: consensus.CREATE_COIN, Args: [][]byte{cashOut.Bytes(), sol.NewAmount}},
			consensus.CreateCoin(myPH, 0),
		}
		return append(out, asserts...), nil
	}
	out := []consensus.Condition{{Opcode: consensus.CREATE_COIN, Args: [][]byte{myPH.Bytes(), sol.NewAmount}}}
	return append(out, asserts...), nil
}

// p2_pubkey(PUBKEY): the solution is a delegated condition list the key signs.
func runP2PubKey(_ *RunContext, p *consensus.Program, solution []byte) ([]consensus.Condition, error) {
	pk, err := atomArg(p, 0)
	if err != nil {
		return nil, err
	}
	conds, err := decodeConditions(solution)
	if err != nil {
		return nil, err
	}
	msg := consensus.StdHash(solution)
	return append(conds, consensus.AggSigMe(pk, msg.Bytes())), nil
}

// height_lock(REQUIRED_BLOCKS): the solution's conditions, only after the coin has
// aged REQUIRED_BLOCKS blocks.
func runHeightLock(_ *RunContext, p *consensus.Program, solution []byte) ([]consensus.Condition, error) {
	n, err := atomArg(p, 0)
	if err != nil {
		return nil, err
	}
	if _, err := consensus.AtomUint64(n); err != nil {
		return nil, consensus.Raise("required blocks: %v", err)
	}
	conds, err := decodeConditions(solution)
	if err != nil {
		return nil, err
	}
	lock := consensus.Condition{Opcode: consensus.ASSERT_HEIGHT_RELATIVE, Args: [][]byte{n}}
	return append([]consensus.Condition{lock}, conds...), nil
}

// signed_outer(PUBKEY, INNER): runs INNER with the solution and requires PUBKEY to
// sign the hash of that solution.
func runSignedOuter(rc *RunContext, p *consensus.Program, solution []byte) ([]consensus.Condition, error) {
	pk, err := atomArg(p, 0)
	if err != nil {
		return nil, err
	}
	inner, err := p.ProgramAt(1)
	if err != nil {
		return nil, consensus.Raise("%v", err)
	}
	conds, err := rc.Run(inner, solution)
	if err != nil {
		return nil, fmt.Errorf("inner %s: %w", inner.Mod, err)
	}
	msg := consensus.StdHash(solution)
	return append(conds, consensus.AggSigMe(pk, msg.Bytes())), nil
}
