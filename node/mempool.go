package node

import (
	"sync"

	"smartcoin.dev/node/consensus"
)

const defaultMaxBundlesPerBlock = 1024

// Mempool holds validated bundles waiting for the next farmed block, in arrival
// order. A coin may be spent by at most one pooled bundle.
type Mempool struct {
	mu      sync.Mutex
	order   []consensus.Hash
	bundles map[consensus.Hash]*consensus.ValidatedBundle
	spentBy map[consensus.Hash]consensus.Hash
}

func NewMempool() *Mempool {
	return &Mempool{
		bundles: make(map[consensus.Hash]*consensus.ValidatedBundle),
		spentBy: make(map[consensus.Hash]consensus.Hash),
	}
}

// Add pools vb. It reports false without error when the same bundle is already
// pooled.
func (m *Mempool) Add(vb *consensus.ValidatedBundle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bundles[vb.BundleID]; ok {
		return false, nil
	}
	for _, id := range vb.RemovalIDs() {
		if other, ok := m.spentBy[id]; ok {
			return false, consensus.CoinError(consensus.ERR_MEMPOOL_CONFLICT, id, "coin already spent by pooled bundle "+other.String())
		}
	}
	m.insertLocked(vb)
	m.order = append(m.order, vb.BundleID)
	return true, nil
}

// insertLocked indexes vb unless it is pooled already or spends a pooled coin.
// The caller places it in order.
func (m *Mempool) insertLocked(vb *consensus.ValidatedBundle) bool {
	if _, ok := m.bundles[vb.BundleID]; ok {
		return false
	}
	ids := vb.RemovalIDs()
	for _, id := range ids {
		if _, ok := m.spentBy[id]; ok {
			return false
		}
	}
	m.bundles[vb.BundleID] = vb
	for _, id := range ids {
		m.spentBy[id] = vb.BundleID
	}
	return true
}

func (m *Mempool) Contains(id consensus.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bundles[id]
	return ok
}

func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bundles)
}

// Take removes and returns up to limit bundles, oldest first.
func (m *Mempool) Take(limit int) []*consensus.ValidatedBundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]*consensus.ValidatedBundle, 0, limit)
	for _, id := range m.order[:limit] {
		out = append(out, m.bundles[id])
		m.removeLocked(id)
	}
	m.order = append([]consensus.Hash(nil), m.order[limit:]...)
	return out
}

// Restore puts bundles returned by Take back at the front of the pool, in their
// original order. Bundles that now conflict with a pooled one are skipped.
func (m *Mempool) Restore(vbs []*consensus.ValidatedBundle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	front := make([]consensus.Hash, 0, len(vbs))
	for _, vb := range vbs {
		if !m.insertLocked(vb) {
			continue
		}
		front = append(front, vb.BundleID)
	}
	m.order = append(front, m.order...)
	return len(front)
}

// EvictSpending drops every pooled bundle that spends one of the given coins.
func (m *Mempool) EvictSpending(coinIDs []consensus.Hash) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for _, id := range coinIDs {
		bid, ok := m.spentBy[id]
		if !ok {
			continue
		}
		m.removeLocked(bid)
		evicted++
	}
	if evicted > 0 {
		kept := m.order[:0]
		for _, id := range m.order {
			if _, ok := m.bundles[id]; ok {
				kept = append(kept, id)
			}
		}
		m.order = kept
	}
	return evicted
}

func (m *Mempool) removeLocked(id consensus.Hash) {
	vb, ok := m.bundles[id]
	if !ok {
		return
	}
	for _, cid := range vb.RemovalIDs() {
		delete(m.spentBy, cid)
	}
	delete(m.bundles, id)
}
