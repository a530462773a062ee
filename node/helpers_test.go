package node_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/crypto"
	"smartcoin.dev/node/node"
	"smartcoin.dev/node/puzzle"
	"smartcoin.dev/node/wallet"
)

func testConfig(t *testing.T) node.Config {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.Network = "testnet"
	cfg.DataDir = t.TempDir()
	cfg.AutoFarm = true
	return cfg
}

func openChain(t *testing.T, cfg node.Config) *node.Chain {
	t.Helper()
	c, err := node.NewChain(cfg, crypto.StdProvider{}, puzzle.NewExecutor(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestChain(t *testing.T) *node.Chain {
	t.Helper()
	return openChain(t, testConfig(t))
}

func newWallet(t *testing.T, c *node.Chain, seed byte) *wallet.Wallet {
	t.Helper()
	key, err := crypto.KeyFromSeed(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return wallet.New(key, wallet.LocalNode(c), puzzle.NewExecutor(), c.Params())
}

// fundedWallet returns a wallet holding the rewards of one block.
func fundedWallet(t *testing.T, c *node.Chain, seed byte) *wallet.Wallet {
	t.Helper()
	w := newWallet(t, c, seed)
	_, err := c.Advance(context.Background(), 1, w.PuzzleHash())
	require.NoError(t, err)
	return w
}

func requireCode(t *testing.T, err error, want consensus.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	code, ok := consensus.CodeOf(err)
	require.Truef(t, ok, "not a TxError: %v", err)
	require.Equalf(t, want, code, "err=%v", err)
}

func balance(t *testing.T, w *wallet.Wallet) uint64 {
	t.Helper()
	b, err := w.Balance(context.Background())
	require.NoError(t, err)
	return b
}
