package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bobg/multichan"
	"go.uber.org/zap"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/crypto"
	"smartcoin.dev/node/node/store"
)

// InclusionStatus is the outcome of Submit.
type InclusionStatus string

const (
	StatusSuccess InclusionStatus = "SUCCESS"
	StatusPending InclusionStatus = "PENDING"
	StatusFailed  InclusionStatus = "FAILED"
)

var ErrChainClosed = errors.New("chain closed")

// Chain is the simulated chain. Readers load the published snapshot without
// locking; every publication happens under mu.
type Chain struct {
	cfg      Config
	params   consensus.Params
	provider crypto.CryptoProvider
	exec     consensus.ProgramExecutor
	log      *zap.Logger
	genesis  consensus.Hash

	snap atomic.Pointer[consensus.CoinSet]

	mu     sync.Mutex
	tip    store.BlockRecord
	closed bool

	pool *Mempool
	feed *multichan.W
	db   *store.DB
	hist *history
}

// BlockchainState is a point-in-time summary of the chain.
type BlockchainState struct {
	Network         string         `json:"network"`
	Height          uint64         `json:"height"`
	Timestamp       uint64         `json:"timestamp"`
	TipHeaderHash   consensus.Hash `json:"tip_header_hash"`
	SnapshotVersion uint64         `json:"snapshot_version"`
	MempoolSize     int            `json:"mempool_size"`
	CoinCount       int            `json:"coin_count"`
}

func NewChain(cfg Config, p crypto.CryptoProvider, exec consensus.ProgramExecutor, log *zap.Logger) (*Chain, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if p == nil {
		return nil, errors.New("nil crypto provider")
	}
	if exec == nil {
		return nil, errors.New("nil program executor")
	}
	if log == nil {
		log = zap.NewNop()
	}
	params, err := consensus.DefaultParams(p, cfg.Network)
	if err != nil {
		return nil, err
	}
	params.MaxBlockCost = cfg.MaxBlockCost

	c := &Chain{
		cfg:      cfg,
		params:   params,
		provider: p,
		exec:     exec,
		log:      log.With(zap.String("network", cfg.Network)),
		genesis:  GenesisChallenge(cfg.Network),
		pool:     NewMempool(),
		feed:     newBlockFeed(),
		hist:     newHistory(),
	}

	if cfg.Persist {
		db, err := store.Open(cfg.DataDir, cfg.Network)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		c.db = db
		if m := db.Manifest(); m != nil {
			if err := c.load(m); err != nil {
				_ = db.Close()
				return nil, err
			}
			c.log.Info("chain loaded",
				zap.Uint64("height", m.TipHeight),
				zap.Uint64("snapshot_version", m.SnapshotVersion),
				zap.String("dir", db.ChainDir()))
			return c, nil
		}
	}

	s := consensus.NewCoinSet(0, cfg.GenesisTimestamp)
	genesis := store.BlockRecord{Height: 0, Timestamp: cfg.GenesisTimestamp, HeaderHash: c.genesis}
	if err := c.persist(s, genesis, nil, nil); err != nil {
		c.closeStore()
		return nil, err
	}
	c.publish(s, genesis, nil)
	c.log.Info("chain initialized", zap.Stringer("genesis", c.genesis))
	return c, nil
}

// GenesisChallenge identifies a network; reward coin parents derive from it.
func GenesisChallenge(network string) consensus.Hash {
	return consensus.StdHash([]byte("smartcoin/genesis/"), []byte(network))
}

func (c *Chain) load(m *store.Manifest) error {
	records, err := c.db.LoadCoinRecords()
	if err != nil {
		return fmt.Errorf("load coin records: %w", err)
	}
	s := consensus.LoadCoinSet(m.SnapshotVersion, m.TipHeight, m.TipTimestamp, records)
	if m.CoinSetHash != "" {
		h, err := consensus.CoinSetHash(c.provider, s)
		if err != nil {
			return fmt.Errorf("coin set hash: %w", err)
		}
		if h.String() != m.CoinSetHash {
			return fmt.Errorf("coin set hash mismatch: manifest %s, store %s", m.CoinSetHash, h)
		}
	}
	tip, ok, err := c.db.GetBlock(m.TipHeight)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	if !ok {
		return fmt.Errorf("missing tip block %d", m.TipHeight)
	}
	c.tip = *tip
	c.snap.Store(s)
	return nil
}

// persist writes the block, the records of changed coins and the spends.
func (c *Chain) persist(s *consensus.CoinSet, block store.BlockRecord, changed []consensus.Hash, spends []consensus.CoinSpend) error {
	if c.db == nil {
		return nil
	}
	records := make([]consensus.CoinRecord, 0, len(changed))
	for _, id := range changed {
		r, ok := s.Get(id)
		if !ok {
			return fmt.Errorf("persist: coin %s missing from snapshot", id)
		}
		records = append(records, r)
	}
	setHash, err := consensus.CoinSetHash(c.provider, s)
	if err != nil {
		return fmt.Errorf("coin set hash: %w", err)
	}
	m := &store.Manifest{
		Network:         c.cfg.Network,
		TipHeight:       block.Height,
		TipTimestamp:    s.Timestamp(),
		TipHeaderHash:   block.HeaderHash.String(),
		SnapshotVersion: s.Version(),
		CoinSetHash:     setHash.String(),
	}
	if err := c.db.CommitBlock(store.BlockCommit{Block: block, Records: records, Spends: spends}, m); err != nil {
		return fmt.Errorf("commit block %d: %w", block.Height, err)
	}
	return nil
}

// publish makes s the visible snapshot. Callers hold mu (or own c exclusively).
func (c *Chain) publish(s *consensus.CoinSet, tip store.BlockRecord, spends []consensus.CoinSpend) {
	c.snap.Store(s)
	c.tip = tip
	if c.db == nil {
		c.hist.record(tip, spends)
	}
}

func (c *Chain) Snapshot() *consensus.CoinSet {
	return c.snap.Load()
}

func (c *Chain) Params() consensus.Params {
	return c.params
}

// RewardPuzzleHash is where blocks farmed without an explicit recipient pay.
func (c *Chain) RewardPuzzleHash() consensus.Hash {
	return c.cfg.RewardPuzzleHash
}

func (c *Chain) CurrentHeight() uint64 {
	return c.snap.Load().Height()
}

func (c *Chain) CurrentTime() uint64 {
	return c.snap.Load().Timestamp()
}

func (c *Chain) GetCoinRecordsByPuzzleHash(ph consensus.Hash, includeSpent bool) []consensus.CoinRecord {
	return c.snap.Load().CoinsByPuzzleHash(ph, includeSpent)
}

func (c *Chain) GetCoinRecordByName(id consensus.Hash) (consensus.CoinRecord, bool) {
	return c.snap.Load().Get(id)
}

// GetCoinSpend returns the puzzle reveal and solution a confirmed spend used.
func (c *Chain) GetCoinSpend(id consensus.Hash) (*consensus.CoinSpend, bool, error) {
	if c.db != nil {
		return c.db.GetCoinSpend(id)
	}
	cs, ok := c.hist.spend(id)
	return cs, ok, nil
}

func (c *Chain) GetBlock(height uint64) (*store.BlockRecord, bool, error) {
	if c.db != nil {
		return c.db.GetBlock(height)
	}
	b, ok := c.hist.block(height)
	return b, ok, nil
}

func (c *Chain) State() BlockchainState {
	c.mu.Lock()
	tip := c.tip.HeaderHash
	c.mu.Unlock()
	s := c.snap.Load()
	return BlockchainState{
		Network:         c.cfg.Network,
		Height:          s.Height(),
		Timestamp:       s.Timestamp(),
		TipHeaderHash:   tip,
		SnapshotVersion: s.Version(),
		MempoolSize:     c.pool.Len(),
		CoinCount:       s.Len(),
	}
}

// Validate checks bundle against the current snapshot without changing anything.
func (c *Chain) Validate(ctx context.Context, bundle *consensus.SpendBundle) (*consensus.ValidatedBundle, error) {
	return c.validate(ctx, c.snap.Load(), bundle)
}

func (c *Chain) validate(ctx context.Context, s *consensus.CoinSet, bundle *consensus.SpendBundle) (*consensus.ValidatedBundle, error) {
	vctx, cancel := context.WithTimeout(ctx, c.cfg.ValidateTimeout)
	defer cancel()
	return consensus.ValidateBundle(vctx, c.params, c.provider, c.exec, s, bundle)
}

// Commit applies a bundle validated by Validate to the current tip block, whose
// header hash is recomputed to cover the new bundle. It fails with
// SNAPSHOT_CONFLICT when another writer published first; the caller may
// re-validate and retry.
func (c *Chain) Commit(vb *consensus.ValidatedBundle) (*consensus.CoinSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChainClosed
	}
	snap := c.snap.Load()
	next, err := snap.Apply(vb, snap.Height(), snap.Timestamp())
	if err != nil {
		return nil, err
	}

	tip := c.tip
	tip.BundleIDs = append(append([]consensus.Hash(nil), c.tip.BundleIDs...), vb.BundleID)
	tip.Additions = append(append([]consensus.Coin(nil), c.tip.Additions...), vb.Additions...)
	tip.Removals = append(append([]consensus.Hash(nil), c.tip.Removals...), vb.RemovalIDs()...)
	tip.HeaderHash = blockHeaderHash(&tip)

	changed := append(coinIDs(vb.Additions), vb.RemovalIDs()...)
	if err := c.persist(next, tip, changed, vb.Bundle.CoinSpends); err != nil {
		return nil, err
	}
	c.publish(next, tip, vb.Bundle.CoinSpends)
	evicted := c.pool.EvictSpending(vb.RemovalIDs())

	c.log.Info("bundle committed",
		zap.Stringer("bundle_id", vb.BundleID),
		zap.Uint64("height", next.Height()),
		zap.Uint64("snapshot_version", next.Version()),
		zap.Int("evicted", evicted))
	return next, nil
}

// Submit validates bundle and pools it for the next block. With AutoFarm the
// block is farmed before returning.
func (c *Chain) Submit(ctx context.Context, bundle *consensus.SpendBundle) (InclusionStatus, error) {
	vb, err := c.Validate(ctx, bundle)
	if err != nil {
		c.log.Debug("bundle rejected", zap.Error(err))
		return StatusFailed, err
	}
	if !c.cfg.AutoFarm {
		if _, err := c.pool.Add(vb); err != nil {
			c.log.Debug("bundle conflicts with mempool", zap.Stringer("bundle_id", vb.BundleID), zap.Error(err))
			return StatusFailed, err
		}
		return StatusPending, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return StatusFailed, ErrChainClosed
	}
	if _, err := c.pool.Add(vb); err != nil {
		return StatusFailed, err
	}
	res, err := c.farmOne(ctx, c.cfg.RewardPuzzleHash)
	if err != nil {
		// other restored bundles wait for the next block; this one is reported failed
		c.pool.EvictSpending(vb.RemovalIDs())
		return StatusFailed, err
	}
	if dropErr, ok := res.dropped[vb.BundleID]; ok {
		return StatusFailed, dropErr
	}
	if !res.includes(vb.BundleID) {
		return StatusPending, nil
	}
	return StatusSuccess, nil
}

// Advance farms blocks, each including the pooled bundles that still validate
// and paying the block rewards to rewardPuzzleHash.
func (c *Chain) Advance(ctx context.Context, blocks int, rewardPuzzleHash consensus.Hash) ([]*store.BlockRecord, error) {
	if blocks < 0 {
		return nil, errors.New("blocks must be >= 0")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*store.BlockRecord, 0, blocks)
	for i := 0; i < blocks; i++ {
		res, err := c.farmOne(ctx, rewardPuzzleHash)
		if err != nil {
			return out, err
		}
		out = append(out, res.block)
	}
	return out, nil
}

// PassTime moves the chain clock forward without farming a block.
func (c *Chain) PassTime(seconds uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChainClosed
	}
	snap := c.snap.Load()
	next := snap.Advance(snap.Height(), snap.Timestamp()+seconds)
	if err := c.persist(next, c.tip, nil, nil); err != nil {
		return err
	}
	c.snap.Store(next)
	return nil
}

// Subscribe returns a feed of blocks farmed from now on.
func (c *Chain) Subscribe() *BlockSubscription {
	return &BlockSubscription{r: c.feed.Reader()}
}

func (c *Chain) MempoolLen() int {
	return c.pool.Len()
}

func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.feed.Close()
	return c.closeStore()
}

func (c *Chain) closeStore() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func coinIDs(coins []consensus.Coin) []consensus.Hash {
	out := make([]consensus.Hash, len(coins))
	for i, coin := range coins {
		out[i] = coin.ID()
	}
	return out
}

// history keeps blocks and spends for chains without a store.
type history struct {
	mu     sync.RWMutex
	blocks []store.BlockRecord
	spends map[consensus.Hash]consensus.CoinSpend
}

func newHistory() *history {
	return &history{spends: make(map[consensus.Hash]consensus.CoinSpend)}
}

func (h *history) record(b store.BlockRecord, spends []consensus.CoinSpend) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := uint64(len(h.blocks)); b.Height < n {
		h.blocks[b.Height] = b
	} else {
		h.blocks = append(h.blocks, b)
	}
	for _, cs := range spends {
		h.spends[cs.Coin.ID()] = cs
	}
}

func (h *history) block(height uint64) (*store.BlockRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if height >= uint64(len(h.blocks)) {
		return nil, false
	}
	b := h.blocks[height]
	return &b, true
}

func (h *history) spend(id consensus.Hash) (*consensus.CoinSpend, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cs, ok := h.spends[id]
	if !ok {
		return nil, false
	}
	return &cs, true
}
