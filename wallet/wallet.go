// Package wallet holds a key, watches the coins locked to its standard puzzle and
// builds signed bundles for them and for smart coins it controls.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/crypto"
	"smartcoin.dev/node/node"
	"smartcoin.dev/node/puzzle"
)

var ErrInsufficientFunds = errors.New("wallet: no coin large enough")

// Node is the part of a full node a wallet talks to. *rpc.Client implements it
// directly; LocalNode adapts an in-process chain.
type Node interface {
	GetCoinRecordsByPuzzleHash(ctx context.Context, ph consensus.Hash, includeSpent bool) ([]consensus.CoinRecord, error)
	PushTx(ctx context.Context, bundle *consensus.SpendBundle) (node.InclusionStatus, error)
}

type localNode struct {
	c *node.Chain
}

func LocalNode(c *node.Chain) Node {
	return localNode{c: c}
}

func (l localNode) GetCoinRecordsByPuzzleHash(_ context.Context, ph consensus.Hash, includeSpent bool) ([]consensus.CoinRecord, error) {
	return l.c.GetCoinRecordsByPuzzleHash(ph, includeSpent), nil
}

func (l localNode) PushTx(ctx context.Context, bundle *consensus.SpendBundle) (node.InclusionStatus, error) {
	return l.c.Submit(ctx, bundle)
}

type Wallet struct {
	key    *crypto.PrivateKey
	puzzle *consensus.Program
	ph     consensus.Hash
	node   Node
	exec   consensus.ProgramExecutor
	params consensus.Params
}

// New returns a wallet whose standard puzzle is p2_pubkey of key. params must be
// the chain's, so that AGG_SIG_ME messages carry the right additional data.
func New(key *crypto.PrivateKey, n Node, exec consensus.ProgramExecutor, params consensus.Params) *Wallet {
	p := puzzle.P2PubKeyPuzzle(key.PublicKey())
	return &Wallet{
		key:    key,
		puzzle: p,
		ph:     p.TreeHash(),
		node:   n,
		exec:   exec,
		params: params,
	}
}

func (w *Wallet) PublicKey() []byte          { return w.key.PublicKey() }
func (w *Wallet) Puzzle() *consensus.Program { return w.puzzle }
func (w *Wallet) PuzzleHash() consensus.Hash { return w.ph }

// Coins returns the unspent coins locked to the wallet's standard puzzle.
func (w *Wallet) Coins(ctx context.Context) ([]consensus.CoinRecord, error) {
	return w.node.GetCoinRecordsByPuzzleHash(ctx, w.ph, false)
}

func (w *Wallet) Balance(ctx context.Context) (uint64, error) {
	recs, err := w.Coins(ctx)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, r := range recs {
		total += r.Coin.Amount
	}
	return total, nil
}

// ChooseCoin picks the smallest unspent standard coin holding at least amount.
func (w *Wallet) ChooseCoin(ctx context.Context, amount uint64) (consensus.CoinRecord, error) {
	recs, err := w.Coins(ctx)
	if err != nil {
		return consensus.CoinRecord{}, err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Coin.Amount < recs[j].Coin.Amount })
	for _, r := range recs {
		if r.Coin.Amount >= amount {
			return r, nil
		}
	}
	return consensus.CoinRecord{}, fmt.Errorf("%w: want %d", ErrInsufficientFunds, amount)
}

// SpendStandard builds a signed bundle spending one of the wallet's standard coins
// with the given conditions.
func (w *Wallet) SpendStandard(ctx context.Context, coin consensus.Coin, conds ...consensus.Condition) (*consensus.SpendBundle, error) {
	sol, _, err := puzzle.P2PubKeySolution(conds...)
	if err != nil {
		return nil, err
	}
	cs, err := consensus.MakeSpend(coin, w.puzzle, sol)
	if err != nil {
		return nil, err
	}
	return w.SignBundle(ctx, cs)
}

// LaunchSmartCoin locks amount from one standard coin to program's puzzle hash,
// returning the change to the wallet. It returns the created coin.
func (w *Wallet) LaunchSmartCoin(ctx context.Context, program *consensus.Program, amount uint64) (consensus.Coin, error) {
	rec, err := w.ChooseCoin(ctx, amount)
	if err != nil {
		return consensus.Coin{}, err
	}
	ph := program.TreeHash()
	conds := []consensus.Condition{consensus.CreateCoin(ph, amount)}
	if change := rec.Coin.Amount - amount; change > 0 {
		conds = append(conds, consensus.CreateCoin(w.ph, change))
	}
	bundle, err := w.SpendStandard(ctx, rec.Coin, conds...)
	if err != nil {
		return consensus.Coin{}, err
	}
	if _, err := w.push(ctx, bundle); err != nil {
		return consensus.Coin{}, err
	}
	return consensus.Coin{ParentCoinID: rec.Coin.ID(), PuzzleHash: ph, Amount: amount}, nil
}

// SpendCoin spends a coin locked by program with solution, signs whatever the
// wallet's key is asked to sign and pushes it together with extra bundles.
func (w *Wallet) SpendCoin(ctx context.Context, coin consensus.Coin, program *consensus.Program, solution []byte, extra ...*consensus.SpendBundle) (node.InclusionStatus, error) {
	cs, err := consensus.MakeSpend(coin, program, solution)
	if err != nil {
		return node.StatusFailed, err
	}
	bundle, err := w.SignBundle(ctx, cs)
	if err != nil {
		return node.StatusFailed, err
	}
	return w.push(ctx, consensus.Aggregate(append([]*consensus.SpendBundle{bundle}, extra...)...))
}

// SignBundle wraps spends into a bundle signed by the wallet's key.
func (w *Wallet) SignBundle(ctx context.Context, spends ...consensus.CoinSpend) (*consensus.SpendBundle, error) {
	auth, err := w.Sign(ctx, spends...)
	if err != nil {
		return nil, err
	}
	return consensus.NewBundle(spends, auth), nil
}

// Sign runs every spend and signs the AGG_SIG_ME and AGG_SIG_UNSAFE conditions
// addressed to the wallet's key. Conditions for other keys are left to their
// holders.
func (w *Wallet) Sign(ctx context.Context, spends ...consensus.CoinSpend) (consensus.AuthToken, error) {
	pk := w.key.PublicKey()
	seen := make(map[string]struct{})
	var items []consensus.SigItem
	for _, cs := range spends {
		run, err := consensus.RunSpend(ctx, w.exec, cs, w.params.MaxBlockCost)
		if err != nil {
			return consensus.AuthToken{}, fmt.Errorf("run spend of %s: %w", cs.Coin.ID(), err)
		}
		for _, c := range run.Result.Conditions {
			if c.Opcode != consensus.AGG_SIG_ME && c.Opcode != consensus.AGG_SIG_UNSAFE {
				continue
			}
			if len(c.Args) < 2 || !bytes.Equal(c.Args[0], pk) {
				continue
			}
			msg := c.Args[1]
			if c.Opcode == consensus.AGG_SIG_ME {
				msg = consensus.AggSigMeMessage(msg, cs.Coin.ID(), w.params.AggSigMeAdditionalData)
			}
			if _, dup := seen[string(msg)]; dup {
				continue
			}
			seen[string(msg)] = struct{}{}
			items = append(items, consensus.Signature(pk, w.key.Sign(msg)))
		}
	}
	return consensus.NewAuthToken(items...), nil
}

func (w *Wallet) push(ctx context.Context, bundle *consensus.SpendBundle) (node.InclusionStatus, error) {
	status, err := w.node.PushTx(ctx, bundle)
	if err != nil {
		return status, err
	}
	if status == node.StatusFailed {
		return status, errors.New("wallet: bundle failed")
	}
	return status, nil
}
