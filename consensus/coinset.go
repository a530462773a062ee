package consensus

import (
	"bytes"
	"sort"
)

// maxSnapshotDepth bounds the delta chain; deeper versions are flattened.
const maxSnapshotDepth = 16

type CoinRecord struct {
	Coin            Coin   `json:"coin" cbor:"1,keyasint"`
	ConfirmedHeight uint64 `json:"confirmed_block_index" cbor:"2,keyasint"`
	SpentHeight     uint64 `json:"spent_block_index" cbor:"3,keyasint"`
	Spent           bool   `json:"spent" cbor:"4,keyasint"`
	Coinbase        bool   `json:"coinbase" cbor:"5,keyasint"`
	Timestamp       uint64 `json:"timestamp" cbor:"6,keyasint"`
}

func (r CoinRecord) Name() Hash {
	return r.Coin.ID()
}

// CoinSet is an immutable, versioned snapshot of the ledger. Derived versions are
// copy-on-write layers over their base; nothing reachable from a published
// snapshot is ever mutated.
type CoinSet struct {
	version   uint64
	height    uint64
	timestamp uint64

	base     *CoinSet
	depth    int
	records  map[Hash]CoinRecord
	byPuzzle map[Hash][]Hash
}

func NewCoinSet(height, timestamp uint64) *CoinSet {
	return &CoinSet{
		height:    height,
		timestamp: timestamp,
		records:   map[Hash]CoinRecord{},
		byPuzzle:  map[Hash][]Hash{},
	}
}

// LoadCoinSet rebuilds a flat snapshot from persisted records.
func LoadCoinSet(version, height, timestamp uint64, records []CoinRecord) *CoinSet {
	s := NewCoinSet(height, timestamp)
	s.version = version
	for _, r := range records {
		s.put(r, true)
	}
	return s
}

func (s *CoinSet) Version() uint64   { return s.version }
func (s *CoinSet) Height() uint64    { return s.height }
func (s *CoinSet) Timestamp() uint64 { return s.timestamp }

func (s *CoinSet) Get(id Hash) (CoinRecord, bool) {
	for l := s; l != nil; l = l.base {
		if r, ok := l.records[id]; ok {
			return r, true
		}
	}
	return CoinRecord{}, false
}

// CoinsByPuzzleHash returns records ordered by confirmation height, then coin id.
func (s *CoinSet) CoinsByPuzzleHash(ph Hash, includeSpent bool) []CoinRecord {
	seen := make(map[Hash]struct{})
	var out []CoinRecord
	for l := s; l != nil; l = l.base {
		for _, id := range l.byPuzzle[ph] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			r, _ := s.Get(id)
			if r.Spent && !includeSpent {
				continue
			}
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// Records lists every coin record, sorted like CoinsByPuzzleHash.
func (s *CoinSet) Records() []CoinRecord {
	all := s.collect()
	out := make([]CoinRecord, 0, len(all))
	for _, r := range all {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

func (s *CoinSet) Len() int {
	return len(s.collect())
}

func sortRecords(rs []CoinRecord) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].ConfirmedHeight != rs[j].ConfirmedHeight {
			return rs[i].ConfirmedHeight < rs[j].ConfirmedHeight
		}
		a, b := rs[i].Name(), rs[j].Name()
		return bytes.Compare(a[:], b[:]) < 0
	})
}

func (s *CoinSet) collect() map[Hash]CoinRecord {
	layers := make([]*CoinSet, 0, s.depth+1)
	for l := s; l != nil; l = l.base {
		layers = append(layers, l)
	}
	out := make(map[Hash]CoinRecord)
	for i := len(layers) - 1; i >= 0; i-- {
		for id, r := range layers[i].records {
			out[id] = r
		}
	}
	return out
}

// derive starts the next version on top of s.
func (s *CoinSet) derive(height, timestamp uint64) *CoinSet {
	next := &CoinSet{
		version:   s.version + 1,
		height:    height,
		timestamp: timestamp,
		base:      s,
		depth:     s.depth + 1,
		records:   map[Hash]CoinRecord{},
		byPuzzle:  map[Hash][]Hash{},
	}
	if next.depth > maxSnapshotDepth {
		next.flatten()
	}
	return next
}

func (s *CoinSet) flatten() {
	all := s.collect()
	s.base = nil
	s.depth = 0
	s.records = make(map[Hash]CoinRecord, len(all))
	s.byPuzzle = make(map[Hash][]Hash)
	for _, r := range all {
		s.put(r, true)
	}
}

func (s *CoinSet) put(r CoinRecord, created bool) {
	id := r.Name()
	s.records[id] = r
	if created {
		s.byPuzzle[r.Coin.PuzzleHash] = append(s.byPuzzle[r.Coin.PuzzleHash], id)
	}
}

// Advance returns the next version at a new height and time with no coin changes.
func (s *CoinSet) Advance(height, timestamp uint64) *CoinSet {
	return s.derive(height, timestamp)
}

// AddCoinbase inserts reward coins confirmed at the snapshot's height.
func (s *CoinSet) AddCoinbase(coins ...Coin) (*CoinSet, error) {
	next := s.derive(s.height, s.timestamp)
	for _, c := range coins {
		if _, exists := s.Get(c.ID()); exists {
			return nil, coinerr(ERR_DUPLICATE_OUTPUT, c.ID(), "coinbase coin already exists")
		}
		next.put(CoinRecord{Coin: c, ConfirmedHeight: s.height, Coinbase: true, Timestamp: s.timestamp}, true)
	}
	return next, nil
}

// Apply marks the bundle's removals spent and inserts its additions, returning a new
// version. vb must have been validated against exactly this version.
func (s *CoinSet) Apply(vb *ValidatedBundle, height, timestamp uint64) (*CoinSet, error) {
	if vb == nil {
		return nil, txerr(ERR_INVALID_BUNDLE, "nil validated bundle")
	}
	if vb.SnapshotVersion != s.version {
		return nil, txerr(ERR_SNAPSHOT_CONFLICT, "bundle validated against a different snapshot version")
	}
	next := s.derive(height, timestamp)
	created := make(map[Hash]Coin, len(vb.Additions))
	for _, c := range vb.Additions {
		created[c.ID()] = c
	}
	for _, c := range vb.Additions {
		next.put(CoinRecord{Coin: c, ConfirmedHeight: height, Timestamp: timestamp}, true)
	}
	for _, c := range vb.Removals {
		id := c.ID()
		if _, ok := created[id]; ok {
			r, _ := next.Get(id)
			r.Spent = true
			r.SpentHeight = height
			next.put(r, false)
			continue
		}
		r, ok := s.Get(id)
		if !ok {
			return nil, coinerr(ERR_UNKNOWN_UNSPENT, id, "removal not in snapshot")
		}
		if r.Spent {
			return nil, coinerr(ERR_DOUBLE_SPEND, id, "removal already spent")
		}
		r.Spent = true
		r.SpentHeight = height
		next.put(r, false)
	}
	return next, nil
}
