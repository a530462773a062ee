package node

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"go.uber.org/zap"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/node/store"
)

const (
	PoolReward   uint64 = 1_750_000_000_000
	FarmerReward uint64 = 250_000_000_000
)

type farmResult struct {
	block   *store.BlockRecord
	dropped map[consensus.Hash]error
}

func (r *farmResult) includes(bundleID consensus.Hash) bool {
	for _, id := range r.block.BundleIDs {
		if id == bundleID {
			return true
		}
	}
	return false
}

// farmOne builds and publishes the next block. Callers hold c.mu.
func (c *Chain) farmOne(ctx context.Context, rewardPuzzleHash consensus.Hash) (*farmResult, error) {
	if c.closed {
		return nil, ErrChainClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := c.snap.Load()
	height := snap.Height() + 1
	timestamp := snap.Timestamp() + uint64(c.cfg.BlockInterval/time.Second)
	working := snap.Advance(height, timestamp)

	block := &store.BlockRecord{Height: height, Timestamp: timestamp, PrevHash: c.tip.HeaderHash}
	res := &farmResult{block: block, dropped: make(map[consensus.Hash]error)}
	var spends []consensus.CoinSpend

	// Pooled bundles were validated against an older snapshot; each one is
	// re-validated against the block being built. Included bundles go back to
	// the pool if the block is never published.
	var included []*consensus.ValidatedBundle
	for _, pooled := range c.pool.Take(c.cfg.MaxBundlesPerBlock) {
		vb, err := c.validate(ctx, working, pooled.Bundle)
		var next *consensus.CoinSet
		if err == nil {
			next, err = working.Apply(vb, height, timestamp)
		}
		if err != nil {
			res.dropped[pooled.BundleID] = err
			c.log.Info("bundle dropped from block", zap.Uint64("height", height), zap.Stringer("bundle_id", pooled.BundleID), zap.Error(err))
			continue
		}
		working = next
		included = append(included, pooled)
		block.BundleIDs = append(block.BundleIDs, vb.BundleID)
		block.Additions = append(block.Additions, vb.Additions...)
		block.Removals = append(block.Removals, vb.RemovalIDs()...)
		spends = append(spends, pooled.Bundle.CoinSpends...)
	}
	abort := func(err error) (*farmResult, error) {
		restored := c.pool.Restore(included)
		c.log.Warn("block not farmed", zap.Uint64("height", height), zap.Int("restored", restored), zap.Error(err))
		return nil, err
	}

	rewards := RewardCoins(c.genesis, height, rewardPuzzleHash)
	working, err := working.AddCoinbase(rewards...)
	if err != nil {
		return abort(err)
	}
	block.Rewards = rewards
	block.HeaderHash = blockHeaderHash(block)

	changed := append(coinIDs(block.Additions), block.Removals...)
	changed = append(changed, coinIDs(rewards)...)
	if err := c.persist(working, *block, changed, spends); err != nil {
		return abort(err)
	}
	c.publish(working, *block, spends)
	c.feed.Write(block)

	c.log.Info("block farmed",
		zap.Uint64("height", height),
		zap.Uint64("timestamp", timestamp),
		zap.Stringer("header_hash", block.HeaderHash),
		zap.Int("bundles", len(block.BundleIDs)),
		zap.Int("dropped", len(res.dropped)))
	return res, nil
}

// RewardCoins returns the pool and farmer reward coins of a block. Their parents
// are derived from the genesis challenge and the height, so every block's
// rewards are distinct.
func RewardCoins(genesis consensus.Hash, height uint64, puzzleHash consensus.Hash) []consensus.Coin {
	var poolParent, farmerParent consensus.Hash
	copy(poolParent[:16], genesis[:16])
	copy(farmerParent[:16], genesis[16:])
	binary.BigEndian.PutUint64(poolParent[24:], height)
	binary.BigEndian.PutUint64(farmerParent[24:], height)
	return []consensus.Coin{
		{ParentCoinID: poolParent, PuzzleHash: puzzleHash, Amount: PoolReward},
		{ParentCoinID: farmerParent, PuzzleHash: puzzleHash, Amount: FarmerReward},
	}
}

func blockHeaderHash(b *store.BlockRecord) consensus.Hash {
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[:8], b.Height)
	binary.BigEndian.PutUint64(hdr[8:], b.Timestamp)
	parts := [][]byte{b.PrevHash[:], hdr[:]}
	for i := range b.BundleIDs {
		parts = append(parts, b.BundleIDs[i][:])
	}
	for i := range b.Rewards {
		id := b.Rewards[i].ID()
		parts = append(parts, id[:])
	}
	return consensus.StdHash(parts...)
}

// FarmLoop farms a block every interval until ctx is done.
func (c *Chain) FarmLoop(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Advance(ctx, 1, c.cfg.RewardPuzzleHash); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Warn("farm failed", zap.Error(err))
				if errors.Is(err, ErrChainClosed) {
					return err
				}
			}
		}
	}
}
