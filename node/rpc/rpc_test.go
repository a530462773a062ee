package rpc_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/crypto"
	"smartcoin.dev/node/node"
	"smartcoin.dev/node/node/rpc"
	"smartcoin.dev/node/puzzle"
	"smartcoin.dev/node/wallet"
)

func newServer(t *testing.T) (*node.Chain, *rpc.Client, *httptest.Server) {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.AutoFarm = true
	c, err := node.NewChain(cfg, crypto.StdProvider{}, puzzle.NewExecutor(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ts := httptest.NewServer(rpc.NewServer(c, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)
	return c, rpc.NewClient(ts.URL, ts.Client()), ts
}

func TestWalletOverRPC(t *testing.T) {
	ctx := context.Background()
	c, client, _ := newServer(t)

	key, err := crypto.KeyFromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	alice := wallet.New(key, client, puzzle.NewExecutor(), c.Params())

	ph := alice.PuzzleHash()
	blocks, err := client.FarmBlock(ctx, 1, &ph)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, uint64(1), blocks[0].Height)

	bal, err := alice.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, node.PoolReward+node.FarmerReward, bal)

	pw := puzzle.PasswordPuzzle("open sesame")
	coin, err := alice.LaunchSmartCoin(ctx, pw, 1_000)
	require.NoError(t, err)

	rec, ok, err := client.GetCoinRecordByName(ctx, coin.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, coin, rec.Coin)
	require.False(t, rec.Spent)

	bad, err := puzzle.PasswordSolution("nope", consensus.CreateCoin(ph, 1_000))
	require.NoError(t, err)
	status, err := alice.SpendCoin(ctx, coin, pw, bad)
	require.Equal(t, node.StatusFailed, status)
	code, isTx := consensus.CodeOf(err)
	require.True(t, isTx, "err=%v", err)
	require.Equal(t, consensus.ERR_PROGRAM_RAISED, code)

	good, err := puzzle.PasswordSolution("open sesame", consensus.CreateCoin(ph, 1_000))
	require.NoError(t, err)
	status, err = alice.SpendCoin(ctx, coin, pw, good)
	require.NoError(t, err)
	require.Equal(t, node.StatusSuccess, status)

	cs, err := client.GetPuzzleAndSolution(ctx, coin.ID())
	require.NoError(t, err)
	require.Equal(t, good, cs.Solution)
	require.Equal(t, coin, cs.Coin)

	spent, err := client.GetCoinRecordsByPuzzleHash(ctx, pw.TreeHash(), true)
	require.NoError(t, err)
	require.Len(t, spent, 1)
	require.True(t, spent[0].Spent)

	state, err := client.GetBlockchainState(ctx)
	require.NoError(t, err)
	require.Equal(t, c.CurrentHeight(), state.Height)
	require.Equal(t, c.State().TipHeaderHash, state.TipHeaderHash)
}

func TestUnknownCoinAndBadBody(t *testing.T) {
	ctx := context.Background()
	_, client, ts := newServer(t)

	_, ok, err := client.GetCoinRecordByName(ctx, consensus.Hash{9})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = client.GetPuzzleAndSolution(ctx, consensus.Hash{9})
	var re *rpc.RemoteError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusNotFound, re.Status)

	resp, err := ts.Client().Post(ts.URL+"/push_tx", rpc.ContentTypeCBOR, bytes.NewReader([]byte{0xff, 0x00}))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPassTimeOverRPC(t *testing.T) {
	ctx := context.Background()
	c, client, _ := newServer(t)
	before := c.CurrentTime()

	state, err := client.PassTime(ctx, 120)
	require.NoError(t, err)
	require.Equal(t, before+120, state.Timestamp)
	require.Equal(t, before+120, c.CurrentTime())
}
