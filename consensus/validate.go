package consensus

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"smartcoin.dev/node/crypto"
)

const DefaultMaxBlockCost = 11_000_000_000

type Params struct {
	MaxBlockCost           uint64
	AggSigMeAdditionalData Hash
	// Parallelism bounds concurrent program executions; <= 0 means GOMAXPROCS.
	Parallelism int
}

func DefaultParams(p crypto.CryptoProvider, network string) (Params, error) {
	data, err := AggSigMeAdditionalData(p, network)
	if err != nil {
		return Params{}, fmt.Errorf("agg_sig_me additional data: %w", err)
	}
	return Params{MaxBlockCost: DefaultMaxBlockCost, AggSigMeAdditionalData: data}, nil
}

// ValidatedBundle is the all-or-nothing verdict of ValidateBundle. It may only be
// applied to the snapshot version it was validated against.
type ValidatedBundle struct {
	Bundle          *SpendBundle
	BundleID        Hash
	SnapshotVersion uint64
	Removals        []Coin
	Additions       []Coin
	Fee             uint64
	Cost            uint64
	Singletons      []SingletonTransition
}

func (vb *ValidatedBundle) RemovalIDs() []Hash {
	out := make([]Hash, len(vb.Removals))
	for i, c := range vb.Removals {
		out[i] = c.ID()
	}
	return out
}

// SpendRun is one executed coin spend before condition processing.
type SpendRun struct {
	Program   *Program
	Result    ExecResult
	Singleton *SingletonTransition
}

// RunSpend executes the puzzle reveal of cs. Singleton layers run natively; every
// other program goes to exec.
func RunSpend(ctx context.Context, exec ProgramExecutor, cs CoinSpend, budget uint64) (*SpendRun, error) {
	coinID := cs.Coin.ID()
	prog, err := DecodeProgram(cs.PuzzleReveal)
	if err != nil {
		return nil, withCoin(err, coinID)
	}
	if prog.TreeHash() != cs.Coin.PuzzleHash {
		return nil, coinerr(ERR_WRONG_PUZZLE_HASH, coinID, "puzzle reveal does not hash to the coin's puzzle hash")
	}
	if err := ctx.Err(); err != nil {
		return nil, coinerr(ERR_EXECUTION_TIMEOUT, coinID, err.Error())
	}

	run := &SpendRun{Program: prog}
	switch prog.Mod {
	case SingletonLauncherMod:
		run.Result, run.Singleton, err = runLauncher(cs.Coin, coinID, prog, cs.Solution)
	case SingletonTopLayerMod:
		run.Result, run.Singleton, err = runTopLayer(ctx, exec, cs.Coin, coinID, prog, cs.Solution, budget)
	default:
		run.Result, err = exec.Execute(ctx, prog, cs.Solution, budget)
	}
	if err != nil {
		return nil, withCoin(err, coinID)
	}
	return run, nil
}

// ValidateBundle decides whether bundle may be applied to snap. It never mutates snap
// and returns the first failure in spend order.
func ValidateBundle(ctx context.Context, params Params, p crypto.CryptoProvider, exec ProgramExecutor, snap *CoinSet, bundle *SpendBundle) (*ValidatedBundle, error) {
	if bundle == nil || len(bundle.CoinSpends) == 0 {
		return nil, txerr(ERR_EMPTY_BUNDLE, "bundle has no coin spends")
	}
	if err := ctx.Err(); err != nil {
		return nil, txerr(ERR_EXECUTION_TIMEOUT, err.Error())
	}
	budget := params.MaxBlockCost
	if budget == 0 {
		budget = DefaultMaxBlockCost
	}

	spends := bundle.CoinSpends
	ids := make([]Hash, len(spends))
	seen := make(map[Hash]struct{}, len(spends))
	for i := range spends {
		ids[i] = spends[i].Coin.ID()
		if _, dup := seen[ids[i]]; dup {
			return nil, coinerr(ERR_DUPLICATE_SPEND, ids[i], "coin spent twice in one bundle")
		}
		seen[ids[i]] = struct{}{}
	}

	runs, err := runSpends(ctx, params, exec, spends, budget)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*SpendOutcome, len(spends))
	condErrs := make([]error, len(spends))
	pending := make([]bool, len(spends))
	for i := range spends {
		sc := SpendContext{
			Coin:         spends[i].Coin,
			CoinID:       ids[i],
			Height:       snap.Height(),
			Timestamp:    snap.Timestamp(),
			AggSigMeData: params.AggSigMeAdditionalData,
		}
		rec, ok := snap.Get(ids[i])
		switch {
		case ok && rec.Spent:
			return nil, coinerr(ERR_DOUBLE_SPEND, ids[i], fmt.Sprintf("spent at height %d", rec.SpentHeight))
		case ok:
			sc.ConfirmedHeight = rec.ConfirmedHeight
			sc.ConfirmedTimestamp = rec.Timestamp
		default:
			// must be created by another spend of this bundle
			sc.ConfirmedHeight = snap.Height()
			sc.ConfirmedTimestamp = snap.Timestamp()
			pending[i] = true
		}
		outcomes[i], condErrs[i] = ProcessConditions(sc, runs[i].Result.Conditions)
	}

	// A failing spend still declares its outputs, so a child of a failing spend
	// reports the parent's error rather than an unknown coin.
	created := make(map[Hash]struct{})
	for i := range spends {
		for _, c := range declaredAdditions(ids[i], runs[i].Result.Conditions) {
			created[c.ID()] = struct{}{}
		}
	}
	for i := range spends {
		if _, ok := created[ids[i]]; pending[i] && !ok {
			return nil, coinerr(ERR_UNKNOWN_UNSPENT, ids[i], "coin is neither in the coin set nor created by this bundle")
		}
		if condErrs[i] != nil {
			return nil, condErrs[i]
		}
	}

	if err := checkAnnouncements(outcomes); err != nil {
		return nil, err
	}

	vb := &ValidatedBundle{Bundle: bundle, SnapshotVersion: snap.Version()}
	var reserve uint64
	for i, o := range outcomes {
		vb.Removals = append(vb.Removals, spends[i].Coin)
		for _, c := range o.Additions {
			if _, exists := snap.Get(c.ID()); exists {
				return nil, conderr(ERR_DUPLICATE_OUTPUT, ids[i], CREATE_COIN, "coin "+c.ID().String()+" already exists")
			}
			vb.Additions = append(vb.Additions, c)
		}
		if reserve, err = addUint64(reserve, o.ReserveFee); err != nil {
			return nil, coinerr(ERR_RESERVE_FEE_CONDITION_FAILED, ids[i], "reserve fee overflow")
		}
		if vb.Cost, err = addUint64(vb.Cost, runs[i].Result.Cost); err != nil {
			return nil, coinerr(ERR_COST_EXCEEDED, ids[i], "cost overflow")
		}
		if vb.Cost, err = addUint64(vb.Cost, o.Cost); err != nil {
			return nil, coinerr(ERR_COST_EXCEEDED, ids[i], "cost overflow")
		}
		if runs[i].Singleton != nil {
			vb.Singletons = append(vb.Singletons, *runs[i].Singleton)
		}
	}

	sumIn, err := sumAmounts(vb.Removals)
	if err != nil {
		return nil, txerr(ERR_INVALID_BUNDLE, "input amounts overflow")
	}
	sumOut, err := sumAmounts(vb.Additions)
	if err != nil {
		return nil, txerr(ERR_MINTING_COIN, "output amounts overflow")
	}
	if sumOut > sumIn {
		return nil, txerr(ERR_MINTING_COIN, fmt.Sprintf("outputs %d exceed inputs %d", sumOut, sumIn))
	}
	vb.Fee = sumIn - sumOut
	if reserve > vb.Fee {
		return nil, txerr(ERR_RESERVE_FEE_CONDITION_FAILED, fmt.Sprintf("reserved %d, fee is %d", reserve, vb.Fee))
	}

	if vb.Cost > budget {
		return nil, txerr(ERR_COST_EXCEEDED, fmt.Sprintf("bundle cost %d exceeds %d", vb.Cost, budget))
	}

	obligations := make([]SigObligation, 0)
	for _, o := range outcomes {
		obligations = append(obligations, o.Obligations...)
	}
	if err := verifyAuth(p, bundle.AggregatedSignature, obligations); err != nil {
		return nil, err
	}

	if vb.BundleID, err = bundle.BundleID(); err != nil {
		return nil, txerr(ERR_INVALID_BUNDLE, err.Error())
	}
	return vb, nil
}

// runSpends executes every spend with bounded parallelism. Failures are collected by
// index rather than cancelling siblings, so the reported error is always the one of
// the lowest failing spend.
// declaredAdditions lists the well-formed CREATE_COIN outputs of a spend without
// evaluating any other condition.
func declaredAdditions(coinID Hash, conds []Condition) []Coin {
	var out []Coin
	for _, c := range conds {
		if c.Opcode != CREATE_COIN || len(c.Args) < 2 {
			continue
		}
		ph, err := HashFromBytes(c.Args[0])
		if err != nil {
			continue
		}
		amount, err := AtomUint64(c.Args[1])
		if err != nil {
			continue
		}
		out = append(out, Coin{ParentCoinID: coinID, PuzzleHash: ph, Amount: amount})
	}
	return out
}

func runSpends(ctx context.Context, params Params, exec ProgramExecutor, spends []CoinSpend, budget uint64) ([]*SpendRun, error) {
	runs := make([]*SpendRun, len(spends))
	errs := make([]error, len(spends))

	limit := params.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range spends {
		i := i
		g.Go(func() error {
			runs[i], errs[i] = RunSpend(ctx, exec, spends[i], budget)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return runs, nil
}
