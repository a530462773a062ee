package puzzle

import (
	"fmt"

	"smartcoin.dev/node/consensus"
)

func ACSPuzzle(salt ...[]byte) *consensus.Program {
	args := make([]consensus.Arg, len(salt))
	for i, s := range salt {
		args[i] = consensus.AtomArg(s)
	}
	return consensus.NewProgram(ModACS, args...)
}

func ConditionsSolution(conds ...consensus.Condition) ([]byte, error) {
	return consensus.EncodeConditions(conds)
}

func PasswordPuzzle(password string) *consensus.Program {
	return consensus.NewProgram(ModPassword, consensus.HashArg(consensus.StdHash([]byte(password))))
}

func PasswordSolution(password string, conds ...consensus.Condition) ([]byte, error) {
	if conds == nil {
		conds = []consensus.Condition{}
	}
	return consensus.Marshal(passwordSolution{Password: []byte(password), Conditions: conds})
}

func PiggybankPuzzle(target uint64, cashOutPuzzleHash consensus.Hash) *consensus.Program {
	return consensus.NewProgram(ModPiggybank, consensus.Uint64Arg(target), consensus.HashArg(cashOutPuzzleHash))
}

// PiggybankSolution deposits contribution into the piggybank coin. A negative
// contribution produces a solution the program rejects.
func PiggybankSolution(coin consensus.Coin, contribution int64) ([]byte, error) {
	newAmount, err := piggybankNewAmount(coin, contribution)
	if err != nil {
		return nil, err
	}
	return consensus.Marshal(piggybankSolution{
		MyAmount:     consensus.Uint64Atom(coin.Amount),
		NewAmount:    consensus.Int64Atom(newAmount),
		MyPuzzleHash: coin.PuzzleHash.Bytes(),
	})
}

// PiggybankAnnouncementAssertion is what the contributing spend must assert so that
// it only goes through together with the deposit.
func PiggybankAnnouncementAssertion(coin consensus.Coin, contribution int64) (consensus.Condition, error) {
	newAmount, err := piggybankNewAmount(coin, contribution)
	if err != nil {
		return consensus.Condition{}, err
	}
	id := consensus.CoinAnnouncementID(coin.ID(), consensus.Int64Atom(newAmount))
	return consensus.AssertCoinAnnouncement(id), nil
}

func piggybankNewAmount(coin consensus.Coin, contribution int64) (int64, error) {
	if coin.Amount > 1<<62 {
		return 0, fmt.Errorf("piggybank: amount %d too large", coin.Amount)
	}
	return int64(coin.Amount) + contribution, nil // #nosec G115 -- bounded above.
}

func P2PubKeyPuzzle(pubkey []byte) *consensus.Program {
	return consensus.NewProgram(ModP2PubKey, consensus.AtomArg(pubkey))
}

// P2PubKeySolution returns the solution and the message the key must sign with
// AGG_SIG_ME.
func P2PubKeySolution(conds ...consensus.Condition) ([]byte, consensus.Hash, error) {
	sol, err := consensus.EncodeConditions(conds)
	if err != nil {
		return nil, consensus.Hash{}, err
	}
	return sol, consensus.StdHash(sol), nil
}

func HeightLockPuzzle(requiredBlocks uint64) *consensus.Program {
	return consensus.NewProgram(ModHeightLock, consensus.Uint64Arg(requiredBlocks))
}

func SignedOuterPuzzle(pubkey []byte, inner *consensus.Program) *consensus.Program {
	return consensus.NewProgram(ModSignedOuter, consensus.AtomArg(pubkey), consensus.ProgramArg(inner))
}

// SignedOuterMessage is what the outer key signs for a given inner solution.
func SignedOuterMessage(innerSolution []byte) consensus.Hash {
	return consensus.StdHash(innerSolution)
}

// LaunchSingleton returns the conditions the funding spend must emit and the launcher
// spend to bundle with it.
func LaunchSingleton(parent consensus.Coin, inner *consensus.Program, amount uint64) ([]consensus.Condition, consensus.CoinSpend, error) {
	if amount%2 == 0 {
		return nil, consensus.CoinSpend{}, fmt.Errorf("singleton amount %d must be odd", amount)
	}
	return consensus.LaunchConditions(parent.ID(), inner, amount, nil)
}

// SingletonSpend builds the spend of a singleton coin whose parent was spent by
// parentSpend (the launcher spend for the eve coin).
func SingletonSpend(coin consensus.Coin, launcherID consensus.Hash, inner *consensus.Program, parentSpend consensus.CoinSpend, innerSolution []byte) (consensus.CoinSpend, error) {
	proof, err := consensus.LineageProofFor(parentSpend)
	if err != nil {
		return consensus.CoinSpend{}, err
	}
	return consensus.MakeSpend(coin, consensus.SingletonPuzzle(launcherID, inner), consensus.SingletonSolution{
		LineageProof:  proof,
		MyAmount:      coin.Amount,
		InnerSolution: innerSolution,
	})
}
