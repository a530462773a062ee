package consensus

import (
	"bytes"
	"sort"

	"smartcoin.dev/node/crypto"
)

const aggSigMeDST = "smartcoin/agg_sig_me/"

// SigItem is one signature contributed to a bundle.
type SigItem struct {
	_         struct{} `cbor:",toarray"`
	PubKey    []byte
	Signature []byte
}

// AuthToken is the aggregated authorization of a bundle: a sorted multiset of
// signatures. Aggregation is multiset union and therefore associative and commutative.
type AuthToken struct {
	Items []SigItem `cbor:"1,keyasint,omitempty"`
}

func NewAuthToken(items ...SigItem) AuthToken {
	out := AuthToken{Items: append([]SigItem(nil), items...)}
	out.sort()
	return out
}

func Signature(pubkey, sig []byte) SigItem {
	return SigItem{PubKey: append([]byte(nil), pubkey...), Signature: append([]byte(nil), sig...)}
}

func (a AuthToken) Len() int { return len(a.Items) }

func (a *AuthToken) sort() {
	sort.Slice(a.Items, func(i, j int) bool {
		if c := bytes.Compare(a.Items[i].PubKey, a.Items[j].PubKey); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Items[i].Signature, a.Items[j].Signature) < 0
	})
}

// AggregateAuth combines tokens into one.
func AggregateAuth(tokens ...AuthToken) AuthToken {
	n := 0
	for _, t := range tokens {
		n += len(t.Items)
	}
	items := make([]SigItem, 0, n)
	for _, t := range tokens {
		items = append(items, t.Items...)
	}
	return NewAuthToken(items...)
}

// SigObligation is a (pubkey, message) pair some spend requires to be signed.
type SigObligation struct {
	PubKey []byte
	Msg    []byte
	CoinID Hash
	Opcode Opcode
}

// AggSigMeAdditionalData binds AGG_SIG_ME signatures to one network.
func AggSigMeAdditionalData(p crypto.CryptoProvider, network string) (Hash, error) {
	sum, err := p.SHA3_256([]byte(aggSigMeDST + network))
	if err != nil {
		return Hash{}, err
	}
	return Hash(sum), nil
}

// AggSigMeMessage is the byte string a key signs for AGG_SIG_ME.
func AggSigMeMessage(msg []byte, coinID Hash, additionalData Hash) []byte {
	out := make([]byte, 0, len(msg)+64)
	out = append(out, msg...)
	out = append(out, coinID[:]...)
	out = append(out, additionalData[:]...)
	return out
}

type sigKey struct {
	pubkey string
	msg    string
}

// verifyAuth checks the token against every obligation of the bundle in one pass.
// Both sides are treated as sets: every distinct obligation needs one item that
// verifies it, and every distinct item must be used.
func verifyAuth(p crypto.CryptoProvider, token AuthToken, obligations []SigObligation) error {
	pending := make(map[sigKey]SigObligation, len(obligations))
	order := make([]sigKey, 0, len(obligations))
	for _, ob := range obligations {
		k := sigKey{pubkey: string(ob.PubKey), msg: string(ob.Msg)}
		if _, ok := pending[k]; ok {
			continue
		}
		pending[k] = ob
		order = append(order, k)
	}

	sorted := NewAuthToken(token.Items...).Items
	items := make([]SigItem, 0, len(sorted))
	for i, it := range sorted {
		if i > 0 && bytes.Equal(it.PubKey, sorted[i-1].PubKey) && bytes.Equal(it.Signature, sorted[i-1].Signature) {
			continue
		}
		items = append(items, it)
	}
	used := make([]bool, len(items))

	for _, k := range order {
		ob := pending[k]
		matched := false
		for i, it := range items {
			if used[i] || !bytes.Equal(it.PubKey, ob.PubKey) {
				continue
			}
			if p.VerifyEd25519(it.PubKey, ob.Msg, it.Signature) {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			return conderr(ERR_BAD_AGGREGATE_SIGNATURE, ob.CoinID, ob.Opcode, "missing or invalid signature")
		}
	}
	for i := range items {
		if !used[i] {
			return txerr(ERR_BAD_AGGREGATE_SIGNATURE, "signature not bound to any obligation")
		}
	}
	return nil
}
