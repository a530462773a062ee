package consensus

import (
	"context"
	"testing"

	"smartcoin.dev/node/crypto"
)

func TestValidateBundle_ConservesValue(t *testing.T) {
	p := acs("v")
	in := coinAt(1, p, 1000)
	snap := fundedSet(t, in)

	b := NewBundle([]CoinSpend{acsSpend(t, in, p, CreateCoin(acs("dst").TreeHash(), 900))}, AuthToken{})
	vb, err := validate(t, snap, b)
	if err != nil {
		t.Fatalf("ValidateBundle: %v", err)
	}
	if vb.Fee != 100 {
		t.Fatalf("fee=%d, want 100", vb.Fee)
	}
	if len(vb.Removals) != 1 || len(vb.Additions) != 1 || vb.Additions[0].Amount != 900 {
		t.Fatalf("removals=%v additions=%v", vb.Removals, vb.Additions)
	}
	if vb.SnapshotVersion != snap.Version() {
		t.Fatalf("snapshot version=%d, want %d", vb.SnapshotVersion, snap.Version())
	}
	if vb.Cost != testExecCost+CostCreateCoin {
		t.Fatalf("cost=%d", vb.Cost)
	}
}

func TestValidateBundle_Structural(t *testing.T) {
	p := acs("s")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)

	if _, err := validate(t, snap, &SpendBundle{}); mustTxErrCode(t, err) != ERR_EMPTY_BUNDLE {
		t.Fatalf("code=%s, want %s", mustTxErrCode(t, err), ERR_EMPTY_BUNDLE)
	}

	wrong := acsSpend(t, in, acs("other"))
	_, err := validate(t, snap, NewBundle([]CoinSpend{wrong}, AuthToken{}))
	if got := mustTxErrCode(t, err); got != ERR_WRONG_PUZZLE_HASH {
		t.Fatalf("code=%s, want %s", got, ERR_WRONG_PUZZLE_HASH)
	}

	garbage := CoinSpend{Coin: in, PuzzleReveal: []byte{0xff, 0x00}}
	_, err = validate(t, snap, NewBundle([]CoinSpend{garbage}, AuthToken{}))
	if got := mustTxErrCode(t, err); got != ERR_INVALID_PUZZLE {
		t.Fatalf("code=%s, want %s", got, ERR_INVALID_PUZZLE)
	}

	missing := coinAt(9, p, 10)
	_, err = validate(t, snap, NewBundle([]CoinSpend{acsSpend(t, missing, p)}, AuthToken{}))
	if got := mustTxErrCode(t, err); got != ERR_UNKNOWN_UNSPENT {
		t.Fatalf("code=%s, want %s", got, ERR_UNKNOWN_UNSPENT)
	}
	if KindOf(err) != KindStructural {
		t.Fatalf("kind=%s, want %s", KindOf(err), KindStructural)
	}
}

func TestValidateBundle_Minting(t *testing.T) {
	p := acs("m")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)
	b := NewBundle([]CoinSpend{acsSpend(t, in, p, CreateCoin(p.TreeHash(), 11))}, AuthToken{})
	_, err := validate(t, snap, b)
	if got := mustTxErrCode(t, err); got != ERR_MINTING_COIN {
		t.Fatalf("code=%s, want %s", got, ERR_MINTING_COIN)
	}
}

func TestValidateBundle_ReserveFee(t *testing.T) {
	p := acs("f")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)

	ok := NewBundle([]CoinSpend{acsSpend(t, in, p, CreateCoin(p.TreeHash(), 5), ReserveFee(5))}, AuthToken{})
	if _, err := validate(t, snap, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := NewBundle([]CoinSpend{acsSpend(t, in, p, CreateCoin(p.TreeHash(), 6), ReserveFee(5))}, AuthToken{})
	_, err := validate(t, snap, bad)
	if got := mustTxErrCode(t, err); got != ERR_RESERVE_FEE_CONDITION_FAILED {
		t.Fatalf("code=%s, want %s", got, ERR_RESERVE_FEE_CONDITION_FAILED)
	}
}

func TestValidateBundle_DoubleSpend(t *testing.T) {
	p := acs("d")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)
	cs := acsSpend(t, in, p)

	_, err := validate(t, snap, NewBundle([]CoinSpend{cs, cs}, AuthToken{}))
	if got := mustTxErrCode(t, err); got != ERR_DUPLICATE_SPEND {
		t.Fatalf("code=%s, want %s", got, ERR_DUPLICATE_SPEND)
	}
	var dup *TxError
	if !asTxError(err, &dup) || dup.Retryable() || dup.Kind() != KindStructural {
		t.Fatalf("a coin listed twice is a permanent structural failure: %v", err)
	}

	vb, err := validate(t, snap, NewBundle([]CoinSpend{cs}, AuthToken{}))
	if err != nil {
		t.Fatalf("ValidateBundle: %v", err)
	}
	next, err := snap.Apply(vb, 11, 1_100)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	_, err = validate(t, next, NewBundle([]CoinSpend{cs}, AuthToken{}))
	if got := mustTxErrCode(t, err); got != ERR_DOUBLE_SPEND {
		t.Fatalf("code=%s, want %s", got, ERR_DOUBLE_SPEND)
	}
	var te *TxError
	if !asTxError(err, &te) || !te.Retryable() {
		t.Fatalf("double spend should be a retryable conflict: %v", err)
	}
}

func TestValidateBundle_EphemeralCoin(t *testing.T) {
	p := acs("e")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)

	child := Coin{ParentCoinID: in.ID(), PuzzleHash: p.TreeHash(), Amount: 7}
	b := NewBundle([]CoinSpend{
		acsSpend(t, child, p, CreateCoin(acs("final").TreeHash(), 7), AssertHeightRelative(0)),
		acsSpend(t, in, p, CreateCoin(p.TreeHash(), 7)),
	}, AuthToken{})
	vb, err := validate(t, snap, b)
	if err != nil {
		t.Fatalf("ValidateBundle: %v", err)
	}
	if vb.Fee != 3 {
		t.Fatalf("fee=%d, want 3", vb.Fee)
	}

	next, err := snap.Apply(vb, 11, 1_100)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	rec, ok := next.Get(child.ID())
	if !ok || !rec.Spent || rec.ConfirmedHeight != 11 || rec.SpentHeight != 11 {
		t.Fatalf("ephemeral record=%+v ok=%v", rec, ok)
	}
}

func TestValidateBundle_WideUnknownOpcodeSurvivesDecoding(t *testing.T) {
	p := acs("w")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)

	wide := Condition{Opcode: 300, Args: [][]byte{[]byte("x")}}
	sol, err := EncodeConditions([]Condition{wide, CreateCoin(p.TreeHash(), 10)})
	if err != nil {
		t.Fatalf("EncodeConditions: %v", err)
	}
	back, err := DecodeConditions(sol)
	if err != nil || len(back) != 2 || back[0].Opcode != 300 {
		t.Fatalf("decoded=%v err=%v", back, err)
	}
	cs, err := MakeSpend(in, p, sol)
	if err != nil {
		t.Fatalf("MakeSpend: %v", err)
	}
	vb, err := validate(t, snap, NewBundle([]CoinSpend{cs}, AuthToken{}))
	if err != nil {
		t.Fatalf("ValidateBundle: %v", err)
	}
	if len(vb.Additions) != 1 || vb.Fee != 0 {
		t.Fatalf("additions=%v fee=%d", vb.Additions, vb.Fee)
	}
}

func TestValidateBundle_FailedCreatorReportsItsOwnError(t *testing.T) {
	p := acs("f")
	in := coinAt(1, p, 100)
	snap := fundedSet(t, in)

	child := Coin{ParentCoinID: in.ID(), PuzzleHash: p.TreeHash(), Amount: 50}
	creator := acsSpend(t, in, p, CreateCoin(p.TreeHash(), 50), AssertMyAmount(99))
	spendChild := acsSpend(t, child, p)

	for _, order := range [][]CoinSpend{{creator, spendChild}, {spendChild, creator}} {
		_, err := validate(t, snap, NewBundle(order, AuthToken{}))
		if got := mustTxErrCode(t, err); got != ERR_ASSERT_MY_AMOUNT_FAILED {
			t.Fatalf("code=%s, want %s", got, ERR_ASSERT_MY_AMOUNT_FAILED)
		}
		var te *TxError
		if !asTxError(err, &te) || te.CoinID == nil || *te.CoinID != in.ID() || te.Opcode != ASSERT_MY_AMOUNT {
			t.Fatalf("error lost its coin context: %+v", te)
		}
	}
}

func TestValidateBundle_AnnouncementsOrderIndependent(t *testing.T) {
	pa, pb := acs("a"), acs("b")
	a, b := coinAt(1, pa, 10), coinAt(2, pb, 20)
	snap := fundedSet(t, a, b)

	annID := CoinAnnouncementID(b.ID(), []byte("paid"))
	puzID := PuzzleAnnouncementID(pa.TreeHash(), []byte("hello"))
	sa := acsSpend(t, a, pa, AssertCoinAnnouncement(annID), CreatePuzzleAnnouncement([]byte("hello")))
	sb := acsSpend(t, b, pb, CreateCoinAnnouncement([]byte("paid")), AssertPuzzleAnnouncement(puzID))

	for _, order := range [][]CoinSpend{{sa, sb}, {sb, sa}} {
		if _, err := validate(t, snap, NewBundle(order, AuthToken{})); err != nil {
			t.Fatalf("ValidateBundle: %v", err)
		}
	}

	// without the "paid" announcement the bundle fails in every order
	lonely := acsSpend(t, b, pb, AssertPuzzleAnnouncement(puzID))
	for _, order := range [][]CoinSpend{{sa, lonely}, {lonely, sa}} {
		_, err := validate(t, snap, NewBundle(order, AuthToken{}))
		if got := mustTxErrCode(t, err); got != ERR_ASSERT_ANNOUNCE_CONSUMED {
			t.Fatalf("code=%s, want %s", got, ERR_ASSERT_ANNOUNCE_CONSUMED)
		}
	}
}

func TestValidateBundle_LowestIndexErrorWins(t *testing.T) {
	p := acs("l")
	raise := NewProgram("raise")
	unknown := NewProgram("nope")
	c0, c1, c2 := coinAt(1, p, 1), coinAt(2, raise, 1), coinAt(3, unknown, 1)
	snap := fundedSet(t, c0, c1, c2)

	s1, _ := MakeSpend(c1, raise, []byte{})
	s2, _ := MakeSpend(c2, unknown, []byte{})
	b := NewBundle([]CoinSpend{acsSpend(t, c0, p), s1, s2}, AuthToken{})
	for i := 0; i < 20; i++ {
		_, err := validate(t, snap, b)
		if got := mustTxErrCode(t, err); got != ERR_PROGRAM_RAISED {
			t.Fatalf("run %d: code=%s, want %s", i, got, ERR_PROGRAM_RAISED)
		}
	}
}

func TestValidateBundle_CostLimit(t *testing.T) {
	p := acs("c")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)
	params := testParams(t)
	params.MaxBlockCost = testExecCost + CostCreateCoin - 1

	b := NewBundle([]CoinSpend{acsSpend(t, in, p, CreateCoin(p.TreeHash(), 10))}, AuthToken{})
	_, err := ValidateBundle(context.Background(), params, crypto.StdProvider{}, testExecutor{}, snap, b)
	if got := mustTxErrCode(t, err); got != ERR_COST_EXCEEDED {
		t.Fatalf("code=%s, want %s", got, ERR_COST_EXCEEDED)
	}
}

func TestValidateBundle_Timeout(t *testing.T) {
	p := acs("t")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ValidateBundle(ctx, testParams(t), crypto.StdProvider{}, testExecutor{}, snap, NewBundle([]CoinSpend{acsSpend(t, in, p)}, AuthToken{}))
	if got := mustTxErrCode(t, err); got != ERR_EXECUTION_TIMEOUT {
		t.Fatalf("code=%s, want %s", got, ERR_EXECUTION_TIMEOUT)
	}
}

func TestValidateBundle_Signatures(t *testing.T) {
	key := crypto.DeriveKey([]byte("alice"), 0)
	p := acs("sig")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)
	params := testParams(t)

	cs := acsSpend(t, in, p, AggSigMe(key.PublicKey(), []byte("msg")))
	sig := key.Sign(AggSigMeMessage([]byte("msg"), in.ID(), params.AggSigMeAdditionalData))

	if _, err := validate(t, snap, NewBundle([]CoinSpend{cs}, NewAuthToken(Signature(key.PublicKey(), sig)))); err != nil {
		t.Fatalf("ValidateBundle: %v", err)
	}

	_, err := validate(t, snap, NewBundle([]CoinSpend{cs}, AuthToken{}))
	if got := mustTxErrCode(t, err); got != ERR_BAD_AGGREGATE_SIGNATURE {
		t.Fatalf("missing sig: code=%s, want %s", got, ERR_BAD_AGGREGATE_SIGNATURE)
	}

	wrongMsg := key.Sign([]byte("msg"))
	_, err = validate(t, snap, NewBundle([]CoinSpend{cs}, NewAuthToken(Signature(key.PublicKey(), wrongMsg))))
	if got := mustTxErrCode(t, err); got != ERR_BAD_AGGREGATE_SIGNATURE {
		t.Fatalf("unbound sig: code=%s, want %s", got, ERR_BAD_AGGREGATE_SIGNATURE)
	}

	extra := crypto.DeriveKey([]byte("bob"), 0)
	token := NewAuthToken(Signature(key.PublicKey(), sig), Signature(extra.PublicKey(), extra.Sign([]byte("x"))))
	_, err = validate(t, snap, NewBundle([]CoinSpend{cs}, token))
	if got := mustTxErrCode(t, err); got != ERR_BAD_AGGREGATE_SIGNATURE {
		t.Fatalf("extra sig: code=%s, want %s", got, ERR_BAD_AGGREGATE_SIGNATURE)
	}
}

func TestValidateBundle_RejectionIsIdempotent(t *testing.T) {
	p := acs("i")
	in := coinAt(1, p, 10)
	snap := fundedSet(t, in)
	before := snap.Records()

	b := NewBundle([]CoinSpend{acsSpend(t, in, p, CreateCoin(p.TreeHash(), 11))}, AuthToken{})
	_, err1 := validate(t, snap, b)
	_, err2 := validate(t, snap, b)
	if mustTxErrCode(t, err1) != mustTxErrCode(t, err2) {
		t.Fatalf("codes differ: %v vs %v", err1, err2)
	}
	after := snap.Records()
	if len(before) != len(after) || before[0] != after[0] {
		t.Fatalf("snapshot changed by a rejected bundle")
	}
}
