package node_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/node"
	"smartcoin.dev/node/puzzle"
	"smartcoin.dev/node/wallet"
)

func spendAll(t *testing.T, w *wallet.Wallet, coin consensus.Coin, to consensus.Hash) *consensus.SpendBundle {
	t.Helper()
	b, err := w.SpendStandard(context.Background(), coin, consensus.CreateCoin(to, coin.Amount))
	require.NoError(t, err)
	return b
}

func TestGenesisAndRewards(t *testing.T) {
	c := newTestChain(t)
	require.Equal(t, uint64(0), c.CurrentHeight())
	require.Equal(t, node.DefaultConfig().GenesisTimestamp, c.CurrentTime())

	alice := fundedWallet(t, c, 1)
	require.Equal(t, uint64(1), c.CurrentHeight())
	require.Equal(t, node.PoolReward+node.FarmerReward, balance(t, alice))

	recs := c.GetCoinRecordsByPuzzleHash(alice.PuzzleHash(), false)
	require.Len(t, recs, 2)
	for _, r := range recs {
		require.True(t, r.Coinbase)
		require.Equal(t, uint64(1), r.ConfirmedHeight)
		got, ok := c.GetCoinRecordByName(r.Name())
		require.True(t, ok)
		require.Equal(t, r, got)
	}
}

func TestMempoolConflictAndDoubleSpend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.AutoFarm = false
	c := openChain(t, cfg)
	alice := fundedWallet(t, c, 1)
	bob := fundedWallet(t, c, 2)

	coin, err := alice.ChooseCoin(ctx, 1)
	require.NoError(t, err)

	first := spendAll(t, alice, coin.Coin, bob.PuzzleHash())
	status, err := c.Submit(ctx, first)
	require.NoError(t, err)
	require.Equal(t, node.StatusPending, status)
	require.Equal(t, 1, c.MempoolLen())

	// Resubmitting the same bundle is not a conflict.
	status, err = c.Submit(ctx, first)
	require.NoError(t, err)
	require.Equal(t, node.StatusPending, status)

	second := spendAll(t, alice, coin.Coin, alice.PuzzleHash())
	status, err = c.Submit(ctx, second)
	require.Equal(t, node.StatusFailed, status)
	requireCode(t, err, consensus.ERR_MEMPOOL_CONFLICT)

	blocks, err := c.Advance(ctx, 1, consensus.Hash{})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	id, err := first.BundleID()
	require.NoError(t, err)
	require.Equal(t, []consensus.Hash{id}, blocks[0].BundleIDs)
	require.Zero(t, c.MempoolLen())

	status, err = c.Submit(ctx, second)
	require.Equal(t, node.StatusFailed, status)
	requireCode(t, err, consensus.ERR_DOUBLE_SPEND)
	var te *consensus.TxError
	require.ErrorAs(t, err, &te)
	require.True(t, te.Retryable())
}

func TestCommitRejectsStaleValidation(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.AutoFarm = false
	c := openChain(t, cfg)
	alice := fundedWallet(t, c, 1)

	coins, err := alice.Coins(ctx)
	require.NoError(t, err)
	require.Len(t, coins, 2)

	v1, err := c.Validate(ctx, spendAll(t, alice, coins[0].Coin, alice.PuzzleHash()))
	require.NoError(t, err)
	b2 := spendAll(t, alice, coins[1].Coin, alice.PuzzleHash())
	v2, err := c.Validate(ctx, b2)
	require.NoError(t, err)

	s1, err := c.Commit(v1)
	require.NoError(t, err)
	require.Same(t, s1, c.Snapshot())

	_, err = c.Commit(v2)
	requireCode(t, err, consensus.ERR_SNAPSHOT_CONFLICT)

	v2, err = c.Validate(ctx, b2)
	require.NoError(t, err)
	_, err = c.Commit(v2)
	require.NoError(t, err)

	// Both removals landed in the tip block without moving the height.
	tip, ok, err := c.GetBlock(c.CurrentHeight())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, tip.BundleIDs, 2)
	require.Equal(t, uint64(1), c.CurrentHeight())
}

func TestCommitEvictsConflictingPoolEntries(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.AutoFarm = false
	c := openChain(t, cfg)
	alice := fundedWallet(t, c, 1)

	coin, err := alice.ChooseCoin(ctx, 1)
	require.NoError(t, err)
	pooled := spendAll(t, alice, coin.Coin, consensus.Hash{1})
	_, err = c.Submit(ctx, pooled)
	require.NoError(t, err)

	vb, err := c.Validate(ctx, spendAll(t, alice, coin.Coin, alice.PuzzleHash()))
	require.NoError(t, err)
	_, err = c.Commit(vb)
	require.NoError(t, err)
	require.Zero(t, c.MempoolLen())
}

func TestPassTimeUnlocksSecondsRelative(t *testing.T) {
	ctx := context.Background()
	c := newTestChain(t)
	alice := fundedWallet(t, c, 1)

	coin, err := alice.ChooseCoin(ctx, 1)
	require.NoError(t, err)
	bundle, err := alice.SpendStandard(ctx, coin.Coin,
		consensus.CreateCoin(alice.PuzzleHash(), coin.Coin.Amount),
		consensus.AssertSecondsRelative(3600),
	)
	require.NoError(t, err)

	status, err := c.Submit(ctx, bundle)
	require.Equal(t, node.StatusFailed, status)
	requireCode(t, err, consensus.ERR_ASSERT_SECONDS_RELATIVE_FAILED)

	before := c.CurrentTime()
	require.NoError(t, c.PassTime(3600))
	require.Equal(t, before+3600, c.CurrentTime())

	status, err = c.Submit(ctx, bundle)
	require.NoError(t, err)
	require.Equal(t, node.StatusSuccess, status)
}

func TestSubscribeReceivesFarmedBlocks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := newTestChain(t)

	sub := c.Subscribe()
	defer sub.Close()

	_, err := c.Advance(ctx, 2, consensus.Hash{})
	require.NoError(t, err)

	for want := uint64(1); want <= 2; want++ {
		b, ok := sub.Next(ctx)
		require.True(t, ok)
		require.Equal(t, want, b.Height)
		require.Len(t, b.Rewards, 2)
	}
}

func TestChainSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Persist = true

	c := openChain(t, cfg)
	alice := fundedWallet(t, c, 1)
	pw := puzzle.PasswordPuzzle("pw")
	coin, err := alice.LaunchSmartCoin(ctx, pw, 11)
	require.NoError(t, err)
	sol, err := puzzle.PasswordSolution("pw", consensus.CreateCoin(alice.PuzzleHash(), 11))
	require.NoError(t, err)
	_, err = alice.SpendCoin(ctx, coin, pw, sol)
	require.NoError(t, err)
	require.NoError(t, c.PassTime(60))

	state := c.State()
	bal := balance(t, alice)
	require.NoError(t, c.Close())

	reopened := openChain(t, cfg)
	got := reopened.State()
	require.Equal(t, state.Height, got.Height)
	require.Equal(t, state.Timestamp, got.Timestamp)
	require.Equal(t, state.SnapshotVersion, got.SnapshotVersion)
	require.Equal(t, state.TipHeaderHash, got.TipHeaderHash)
	require.Equal(t, state.CoinCount, got.CoinCount)

	require.Equal(t, bal, balance(t, newWallet(t, reopened, 1)))

	spend, ok, err := reopened.GetCoinSpend(coin.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sol, spend.Solution)

	_, err = reopened.Advance(ctx, 1, consensus.Hash{})
	require.NoError(t, err)
	require.Equal(t, state.Height+1, reopened.CurrentHeight())
}
