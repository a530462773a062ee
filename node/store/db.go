package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"smartcoin.dev/node/consensus"
)

var (
	bucketCoins  = []byte("coins_by_id")
	bucketBlocks = []byte("blocks_by_height")
	bucketSpends = []byte("spends_by_coin_id")
)

// BlockRecord is what the simulated chain keeps per farmed block.
type BlockRecord struct {
	Height     uint64           `json:"height" cbor:"1,keyasint"`
	Timestamp  uint64           `json:"timestamp" cbor:"2,keyasint"`
	HeaderHash consensus.Hash   `json:"header_hash" cbor:"3,keyasint"`
	PrevHash   consensus.Hash   `json:"prev_header_hash" cbor:"4,keyasint"`
	BundleIDs  []consensus.Hash `json:"bundle_ids" cbor:"5,keyasint,omitempty"`
	Additions  []consensus.Coin `json:"additions" cbor:"6,keyasint,omitempty"`
	Removals   []consensus.Hash `json:"removals" cbor:"7,keyasint,omitempty"`
	Rewards    []consensus.Coin `json:"rewards" cbor:"8,keyasint,omitempty"`
}

// BlockCommit is everything one block changes, written in a single transaction.
type BlockCommit struct {
	Block   BlockRecord
	Records []consensus.CoinRecord
	Spends  []consensus.CoinSpend
}

type DB struct {
	chainDir string
	db       *bolt.DB
	manifest *Manifest
}

func Open(datadir string, network string) (*DB, error) {
	if datadir == "" {
		return nil, fmt.Errorf("datadir required")
	}
	if network == "" {
		return nil, fmt.Errorf("network required")
	}

	chainDir := ChainDir(datadir, network)
	if err := ensureDir(filepath.Join(chainDir, "db")); err != nil {
		return nil, err
	}

	path := filepath.Join(chainDir, "db", "kv.db")
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	d := &DB{chainDir: chainDir, db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCoins, bucketBlocks, bucketSpends} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(chainDir)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil // fresh chain; the caller farms genesis.
		}
		_ = bdb.Close()
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.SchemaVersion > SchemaVersionV1 {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	}
	if m.Network != network {
		_ = bdb.Close()
		return nil, fmt.Errorf("manifest network %q, want %q", m.Network, network)
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) ChainDir() string { return d.chainDir }

// Manifest is nil until the first block has been committed.
func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

// CommitBlock writes the block and its coin changes, then publishes the manifest.
// A crash between the two leaves data the manifest does not reference yet; Load
// ignores blocks above the manifest tip.
func (d *DB) CommitBlock(c BlockCommit, m *Manifest) error {
	if d == nil {
		return fmt.Errorf("db: nil")
	}
	blockBytes, err := consensus.Marshal(c.Block)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	err = d.db.Update(func(tx *bolt.Tx) error {
		coins := tx.Bucket(bucketCoins)
		for _, r := range c.Records {
			v, err := consensus.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode coin record: %w", err)
			}
			id := r.Name()
			if err := coins.Put(id[:], v); err != nil {
				return err
			}
		}
		spends := tx.Bucket(bucketSpends)
		for _, cs := range c.Spends {
			v, err := consensus.Marshal(cs)
			if err != nil {
				return fmt.Errorf("encode coin spend: %w", err)
			}
			id := cs.Coin.ID()
			if err := spends.Put(id[:], v); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketBlocks).Put(heightKey(c.Block.Height), blockBytes)
	})
	if err != nil {
		return err
	}
	m.SchemaVersion = SchemaVersionV1
	if err := writeManifestAtomic(d.chainDir, m); err != nil {
		return err
	}
	d.manifest = m
	return nil
}

func (d *DB) GetBlock(height uint64) (*BlockRecord, bool, error) {
	var out *BlockRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(heightKey(height))
		if v == nil {
			return nil
		}
		var b BlockRecord
		if err := consensus.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("decode block %d: %w", height, err)
		}
		out = &b
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (d *DB) GetCoinRecord(id consensus.Hash) (consensus.CoinRecord, bool, error) {
	var out consensus.CoinRecord
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCoins).Get(id[:])
		if v == nil {
			return nil
		}
		if err := consensus.Unmarshal(v, &out); err != nil {
			return fmt.Errorf("decode coin record: %w", err)
		}
		ok = true
		return nil
	})
	return out, ok, err
}

// GetCoinSpend returns the puzzle reveal and solution that spent a coin.
func (d *DB) GetCoinSpend(id consensus.Hash) (*consensus.CoinSpend, bool, error) {
	var out *consensus.CoinSpend
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSpends).Get(id[:])
		if v == nil {
			return nil
		}
		var cs consensus.CoinSpend
		if err := consensus.Unmarshal(v, &cs); err != nil {
			return fmt.Errorf("decode coin spend: %w", err)
		}
		out = &cs
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// LoadCoinRecords returns every record at or below the manifest tip.
func (d *DB) LoadCoinRecords() ([]consensus.CoinRecord, error) {
	var tip uint64
	if d.manifest != nil {
		tip = d.manifest.TipHeight
	}
	var out []consensus.CoinRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCoins).ForEach(func(_, v []byte) error {
			var r consensus.CoinRecord
			if err := consensus.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode coin record: %w", err)
			}
			if r.ConfirmedHeight > tip {
				return nil
			}
			if r.Spent && r.SpentHeight > tip {
				r.Spent = false
				r.SpentHeight = 0
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func heightKey(h uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], h)
	return k[:]
}
