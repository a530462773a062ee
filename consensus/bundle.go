package consensus

import (
	"fmt"

	"github.com/zeebo/blake3"
)

// CoinSpend reveals the locking program of a coin and the solution to run it with.
type CoinSpend struct {
	Coin         Coin   `json:"coin" cbor:"1,keyasint"`
	PuzzleReveal []byte `json:"puzzle_reveal" cbor:"2,keyasint"`
	Solution     []byte `json:"solution" cbor:"3,keyasint"`
}

// MakeSpend encodes program and solution into a CoinSpend. A []byte solution is
// used as-is; anything else is CBOR encoded.
func MakeSpend(coin Coin, program *Program, solution any) (CoinSpend, error) {
	reveal, err := program.Bytes()
	if err != nil {
		return CoinSpend{}, fmt.Errorf("encode puzzle reveal: %w", err)
	}
	var sol []byte
	switch s := solution.(type) {
	case []byte:
		sol = s
	default:
		if sol, err = Marshal(s); err != nil {
			return CoinSpend{}, fmt.Errorf("encode solution: %w", err)
		}
	}
	return CoinSpend{Coin: coin, PuzzleReveal: reveal, Solution: sol}, nil
}

// SpendBundle is the unit of validation and application.
type SpendBundle struct {
	CoinSpends          []CoinSpend `json:"coin_spends" cbor:"1,keyasint"`
	AggregatedSignature AuthToken   `json:"aggregated_signature" cbor:"2,keyasint"`
}

func NewBundle(spends []CoinSpend, auth AuthToken) *SpendBundle {
	return &SpendBundle{CoinSpends: append([]CoinSpend(nil), spends...), AggregatedSignature: auth}
}

// Aggregate merges bundles without validating them.
func Aggregate(bundles ...*SpendBundle) *SpendBundle {
	out := &SpendBundle{}
	tokens := make([]AuthToken, 0, len(bundles))
	for _, b := range bundles {
		if b == nil {
			continue
		}
		out.CoinSpends = append(out.CoinSpends, b.CoinSpends...)
		tokens = append(tokens, b.AggregatedSignature)
	}
	out.AggregatedSignature = AggregateAuth(tokens...)
	return out
}

func (b *SpendBundle) Bytes() ([]byte, error) {
	return Marshal(b)
}

func DecodeBundle(raw []byte) (*SpendBundle, error) {
	var b SpendBundle
	if err := Unmarshal(raw, &b); err != nil {
		return nil, txerr(ERR_INVALID_BUNDLE, err.Error())
	}
	return &b, nil
}

// BundleID fingerprints the canonical encoding; the mempool is keyed by it.
func (b *SpendBundle) BundleID() (Hash, error) {
	raw, err := b.Bytes()
	if err != nil {
		return Hash{}, err
	}
	h := blake3.New()
	_, _ = h.Write(raw)
	var out Hash
	h.Sum(out[:0])
	return out, nil
}

// Removals lists the coins the bundle spends, in spend order.
func (b *SpendBundle) Removals() []Coin {
	out := make([]Coin, len(b.CoinSpends))
	for i := range b.CoinSpends {
		out[i] = b.CoinSpends[i].Coin
	}
	return out
}
