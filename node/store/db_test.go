package store

import (
	"testing"

	"smartcoin.dev/node/consensus"
)

func testCoin(b byte, amount uint64) consensus.Coin {
	var parent, ph consensus.Hash
	parent[0] = b
	ph[0] = b + 1
	return consensus.Coin{ParentCoinID: parent, PuzzleHash: ph, Amount: amount}
}

func TestDB_CommitBlockAndReload(t *testing.T) {
	datadir := t.TempDir()

	db, err := Open(datadir, "simnet")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if db.Manifest() != nil {
		t.Fatalf("fresh db must have no manifest")
	}

	spent := testCoin(1, 10)
	kept := testCoin(2, 20)
	spend := consensus.CoinSpend{Coin: spent, PuzzleReveal: []byte{0xa0}, Solution: []byte{0x80}}
	commit := BlockCommit{
		Block: BlockRecord{Height: 1, Timestamp: 1_000, Additions: []consensus.Coin{kept}, Removals: []consensus.Hash{spent.ID()}},
		Records: []consensus.CoinRecord{
			{Coin: spent, ConfirmedHeight: 0, Spent: true, SpentHeight: 1},
			{Coin: kept, ConfirmedHeight: 1, Timestamp: 1_000},
		},
		Spends: []consensus.CoinSpend{spend},
	}
	if err := db.CommitBlock(commit, &Manifest{Network: "simnet", TipHeight: 1, TipTimestamp: 1_000, SnapshotVersion: 3}); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(datadir, "simnet")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	m := db.Manifest()
	if m == nil || m.TipHeight != 1 || m.SnapshotVersion != 3 || m.SchemaVersion != SchemaVersionV1 {
		t.Fatalf("manifest=%+v", m)
	}

	records, err := db.LoadCoinRecords()
	if err != nil {
		t.Fatalf("LoadCoinRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}

	r, ok, err := db.GetCoinRecord(spent.ID())
	if err != nil || !ok {
		t.Fatalf("GetCoinRecord: ok=%v err=%v", ok, err)
	}
	if !r.Spent || r.SpentHeight != 1 {
		t.Fatalf("record=%+v", r)
	}

	b, ok, err := db.GetBlock(1)
	if err != nil || !ok {
		t.Fatalf("GetBlock: ok=%v err=%v", ok, err)
	}
	if len(b.Additions) != 1 || b.Additions[0] != kept {
		t.Fatalf("block additions=%v", b.Additions)
	}

	cs, ok, err := db.GetCoinSpend(spent.ID())
	if err != nil || !ok {
		t.Fatalf("GetCoinSpend: ok=%v err=%v", ok, err)
	}
	if string(cs.PuzzleReveal) != string(spend.PuzzleReveal) {
		t.Fatalf("puzzle reveal mismatch")
	}
	if _, ok, _ := db.GetCoinSpend(kept.ID()); ok {
		t.Fatalf("unspent coin must have no spend")
	}
}

func TestDB_LoadIgnoresRecordsAboveTip(t *testing.T) {
	db, err := Open(t.TempDir(), "simnet")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	a := testCoin(1, 1)
	b := testCoin(2, 2)
	if err := db.CommitBlock(BlockCommit{
		Block:   BlockRecord{Height: 1},
		Records: []consensus.CoinRecord{{Coin: a, ConfirmedHeight: 1}},
	}, &Manifest{Network: "simnet", TipHeight: 1}); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}
	// Simulate a crash after the bbolt write but before the manifest moved.
	m := *db.Manifest()
	if err := db.CommitBlock(BlockCommit{
		Block: BlockRecord{Height: 2},
		Records: []consensus.CoinRecord{
			{Coin: a, ConfirmedHeight: 1, Spent: true, SpentHeight: 2},
			{Coin: b, ConfirmedHeight: 2},
		},
	}, &m); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}

	records, err := db.LoadCoinRecords()
	if err != nil {
		t.Fatalf("LoadCoinRecords: %v", err)
	}
	if len(records) != 1 || records[0].Coin != a || records[0].Spent {
		t.Fatalf("records=%+v", records)
	}
}

func TestDB_OpenRejectsNetworkMismatch(t *testing.T) {
	datadir := t.TempDir()
	db, err := Open(datadir, "simnet")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.CommitBlock(BlockCommit{Block: BlockRecord{Height: 0}}, &Manifest{Network: "other"}); err != nil {
		t.Fatalf("CommitBlock: %v", err)
	}
	_ = db.Close()

	if _, err := Open(datadir, "simnet"); err == nil {
		t.Fatalf("expected network mismatch error")
	}
}

func TestDB_OpenRequiresArgs(t *testing.T) {
	if _, err := Open("", "simnet"); err == nil {
		t.Fatalf("expected datadir error")
	}
	if _, err := Open(t.TempDir(), ""); err == nil {
		t.Fatalf("expected network error")
	}
}
