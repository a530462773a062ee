package consensus

import (
	"context"
	"fmt"
)

// Singleton layers are native to the engine: the engine owns the lineage rules,
// only the inner puzzle goes through the ProgramExecutor.
const (
	SingletonLauncherMod = "singleton_launcher"
	SingletonTopLayerMod = "singleton_top_layer"

	SingletonLayerCost = 500_000
)

var singletonLauncherHash = NewProgram(SingletonLauncherMod).TreeHash()

func SingletonLauncher() *Program {
	return NewProgram(SingletonLauncherMod)
}

// SingletonLauncherHash is the puzzle hash every launcher coin carries.
func SingletonLauncherHash() Hash {
	return singletonLauncherHash
}

// SingletonPuzzle wraps inner for the identity launcherID.
func SingletonPuzzle(launcherID Hash, inner *Program) *Program {
	return NewProgram(SingletonTopLayerMod, HashArg(launcherID), HashArg(singletonLauncherHash), ProgramArg(inner))
}

// SingletonPuzzleHash is wrap(launcher_id, inner_puzzle_hash). It needs only the
// inner puzzle hash, never the inner program.
func SingletonPuzzleHash(launcherID, innerPuzzleHash Hash) Hash {
	return CurryHash(SingletonTopLayerMod, AtomHash(launcherID[:]), AtomHash(singletonLauncherHash[:]), innerPuzzleHash)
}

// LauncherIDOf recovers the identity carried by a singleton puzzle reveal.
func LauncherIDOf(p *Program) (Hash, bool) {
	if p == nil || p.Mod != SingletonTopLayerMod {
		return Hash{}, false
	}
	id, err := p.HashAt(0)
	if err != nil {
		return Hash{}, false
	}
	return id, true
}

type LauncherSolution struct {
	SingletonPuzzleHash Hash     `cbor:"1,keyasint"`
	InnerPuzzleHash     Hash     `cbor:"2,keyasint"`
	Amount              uint64   `cbor:"3,keyasint"`
	KeyValues           [][]byte `cbor:"4,keyasint,omitempty"`
}

// LineageProof describes the parent of a singleton coin. ParentInnerPuzzleHash is
// nil in the eve form, where the parent is the launcher itself.
type LineageProof struct {
	ParentParentCoinID    Hash   `cbor:"1,keyasint"`
	ParentInnerPuzzleHash *Hash  `cbor:"2,keyasint,omitempty"`
	ParentAmount          uint64 `cbor:"3,keyasint"`
}

func (lp LineageProof) IsEve() bool {
	return lp.ParentInnerPuzzleHash == nil
}

type SingletonSolution struct {
	LineageProof  LineageProof `cbor:"1,keyasint"`
	MyAmount      uint64       `cbor:"2,keyasint"`
	InnerSolution []byte       `cbor:"3,keyasint"`
}

type SingletonState uint8

const (
	SingletonUnlaunched SingletonState = iota
	SingletonEve
	SingletonActive
	SingletonMelted
)

func (s SingletonState) String() string {
	switch s {
	case SingletonUnlaunched:
		return "unlaunched"
	case SingletonEve:
		return "eve"
	case SingletonActive:
		return "active"
	case SingletonMelted:
		return "melted"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// SingletonTransition records what one spend did to a singleton identity.
type SingletonTransition struct {
	LauncherID Hash
	Spent      Hash
	From       SingletonState
	To         SingletonState
	// Child is the next singleton coin, nil after a melt.
	Child           *Coin
	InnerPuzzleHash Hash
}

// LineageVerifier checks a claimed parent summary against the coin being spent.
type LineageVerifier func(proof LineageProof, coin Coin) error

// NewLineageVerifier binds the verification rules to one identity. A normal-form
// proof only has to show that the parent carried a singleton puzzle hash for the same
// launcher: that parent passed the same check when it was spent, back to the eve coin.
func NewLineageVerifier(launcherID Hash) LineageVerifier {
	return func(proof LineageProof, coin Coin) error {
		var parent Coin
		if proof.IsEve() {
			parent = Coin{ParentCoinID: proof.ParentParentCoinID, PuzzleHash: singletonLauncherHash, Amount: proof.ParentAmount}
			if parent.ID() != launcherID {
				return coinerr(ERR_SINGLETON_LINEAGE_INVALID, coin.ID(), "eve proof does not name the launcher")
			}
		} else {
			if proof.ParentAmount%2 == 0 {
				return coinerr(ERR_SINGLETON_LINEAGE_INVALID, coin.ID(), "parent amount is even")
			}
			parent = Coin{
				ParentCoinID: proof.ParentParentCoinID,
				PuzzleHash:   SingletonPuzzleHash(launcherID, *proof.ParentInnerPuzzleHash),
				Amount:       proof.ParentAmount,
			}
		}
		if parent.ID() != coin.ParentCoinID {
			return coinerr(ERR_SINGLETON_LINEAGE_INVALID, coin.ID(), "proof does not derive the parent coin id")
		}
		return nil
	}
}

// LineageProofFor builds the proof a child of parentSpend must present.
func LineageProofFor(parentSpend CoinSpend) (LineageProof, error) {
	prog, err := DecodeProgram(parentSpend.PuzzleReveal)
	if err != nil {
		return LineageProof{}, err
	}
	proof := LineageProof{ParentParentCoinID: parentSpend.Coin.ParentCoinID, ParentAmount: parentSpend.Coin.Amount}
	switch prog.Mod {
	case SingletonLauncherMod:
		return proof, nil
	case SingletonTopLayerMod:
		inner, err := prog.ProgramAt(2)
		if err != nil {
			return LineageProof{}, txerr(ERR_SINGLETON_MALFORMED, err.Error())
		}
		ih := inner.TreeHash()
		proof.ParentInnerPuzzleHash = &ih
		return proof, nil
	default:
		return LineageProof{}, txerr(ERR_SINGLETON_MALFORMED, "parent is not a singleton or launcher: "+prog.Mod)
	}
}

// LaunchConditions returns what the funding spend must output to create a launcher
// and the launcher spend itself. The asserted announcement ties the two together.
func LaunchConditions(parentCoinID Hash, inner *Program, amount uint64, keyValues [][]byte) ([]Condition, CoinSpend, error) {
	launcher := Coin{ParentCoinID: parentCoinID, PuzzleHash: singletonLauncherHash, Amount: amount}
	launcherID := launcher.ID()
	sol := LauncherSolution{
		SingletonPuzzleHash: SingletonPuzzleHash(launcherID, inner.TreeHash()),
		InnerPuzzleHash:     inner.TreeHash(),
		Amount:              amount,
		KeyValues:           keyValues,
	}
	solBytes, err := Marshal(sol)
	if err != nil {
		return nil, CoinSpend{}, err
	}
	spend, err := MakeSpend(launcher, SingletonLauncher(), solBytes)
	if err != nil {
		return nil, CoinSpend{}, err
	}
	conds := []Condition{
		CreateCoin(singletonLauncherHash, amount),
		AssertCoinAnnouncement(CoinAnnouncementID(launcherID, stdHash(solBytes).Bytes())),
	}
	return conds, spend, nil
}

func runLauncher(coin Coin, coinID Hash, prog *Program, solution []byte) (ExecResult, *SingletonTransition, error) {
	if len(prog.Args) != 0 {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, "launcher takes no arguments")
	}
	var sol LauncherSolution
	if err := Unmarshal(solution, &sol); err != nil {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, "launcher solution: "+err.Error())
	}
	if sol.Amount%2 == 0 {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_AMOUNT_NOT_ODD, coinID, fmt.Sprintf("launch amount %d", sol.Amount))
	}
	if sol.Amount > coin.Amount {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, fmt.Sprintf("launch amount %d exceeds launcher amount %d", sol.Amount, coin.Amount))
	}
	if SingletonPuzzleHash(coinID, sol.InnerPuzzleHash) != sol.SingletonPuzzleHash {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, "singleton puzzle hash does not wrap the inner puzzle")
	}
	child := Coin{ParentCoinID: coinID, PuzzleHash: sol.SingletonPuzzleHash, Amount: sol.Amount}
	res := ExecResult{
		Conditions: []Condition{
			CreateCoin(sol.SingletonPuzzleHash, sol.Amount),
			CreateCoinAnnouncement(stdHash(solution).Bytes()),
		},
		Cost: SingletonLayerCost,
	}
	tr := &SingletonTransition{
		LauncherID:      coinID,
		Spent:           coinID,
		From:            SingletonUnlaunched,
		To:              SingletonEve,
		Child:           &child,
		InnerPuzzleHash: sol.InnerPuzzleHash,
	}
	return res, tr, nil
}

func runTopLayer(ctx context.Context, exec ProgramExecutor, coin Coin, coinID Hash, prog *Program, solution []byte, budget uint64) (ExecResult, *SingletonTransition, error) {
	if len(prog.Args) != 3 {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, "top layer takes three arguments")
	}
	launcherID, err := prog.HashAt(0)
	if err != nil {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, err.Error())
	}
	launcherPH, err := prog.HashAt(1)
	if err != nil || launcherPH != singletonLauncherHash {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, "unknown launcher puzzle")
	}
	inner, err := prog.ProgramAt(2)
	if err != nil {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, err.Error())
	}
	var sol SingletonSolution
	if err := Unmarshal(solution, &sol); err != nil {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_MALFORMED, coinID, "singleton solution: "+err.Error())
	}
	if coin.Amount%2 == 0 {
		return ExecResult{}, nil, coinerr(ERR_SINGLETON_AMOUNT_NOT_ODD, coinID, fmt.Sprintf("coin amount %d", coin.Amount))
	}
	if err := NewLineageVerifier(launcherID)(sol.LineageProof, coin); err != nil {
		return ExecResult{}, nil, err
	}
	if budget < SingletonLayerCost {
		return ExecResult{}, nil, coinerr(ERR_COST_EXCEEDED, coinID, "budget below singleton layer cost")
	}
	innerRes, err := exec.Execute(ctx, inner, sol.InnerSolution, budget-SingletonLayerCost)
	if err != nil {
		return ExecResult{}, nil, withCoin(err, coinID)
	}

	innerPH := inner.TreeHash()
	tr := &SingletonTransition{LauncherID: launcherID, Spent: coinID, From: SingletonActive, To: SingletonMelted}
	if sol.LineageProof.IsEve() {
		tr.From = SingletonEve
	}
	conds := make([]Condition, 0, len(innerRes.Conditions)+1)
	conds = append(conds, AssertMyAmount(sol.MyAmount))
	for _, c := range innerRes.Conditions {
		if c.Opcode != CREATE_COIN || len(c.Args) < 2 {
			conds = append(conds, c)
			continue
		}
		ph, herr := HashFromBytes(c.Args[0])
		amount, aerr := AtomUint64(c.Args[1])
		if herr != nil || aerr != nil {
			// left for the condition processor to reject
			conds = append(conds, c)
			continue
		}
		if amount%2 == 0 {
			if ph == innerPH || ph == coin.PuzzleHash {
				return ExecResult{}, nil, conderr(ERR_SINGLETON_AMOUNT_NOT_ODD, coinID, CREATE_COIN, fmt.Sprintf("continuation amount %d is even", amount))
			}
			conds = append(conds, c)
			continue
		}
		if tr.Child != nil {
			return ExecResult{}, nil, conderr(ERR_SINGLETON_MALFORMED, coinID, CREATE_COIN, "more than one odd output")
		}
		if amount > coin.Amount {
			return ExecResult{}, nil, conderr(ERR_SINGLETON_MALFORMED, coinID, CREATE_COIN, fmt.Sprintf("child amount %d exceeds %d", amount, coin.Amount))
		}
		wrapped := SingletonPuzzleHash(launcherID, ph)
		child := Coin{ParentCoinID: coinID, PuzzleHash: wrapped, Amount: amount}
		tr.Child = &child
		tr.To = SingletonActive
		tr.InnerPuzzleHash = ph
		args := append([][]byte{wrapped.Bytes()}, c.Args[1:]...)
		conds = append(conds, Condition{Opcode: CREATE_COIN, Args: args})
	}
	return ExecResult{Conditions: conds, Cost: innerRes.Cost + SingletonLayerCost}, tr, nil
}
