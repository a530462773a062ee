package consensus

import (
	"bytes"
	"encoding/binary"
	"sort"

	"smartcoin.dev/node/crypto"
)

const coinSetHashDST = "SMARTCOINv1-coin-set-hash/"

// CoinSetHash is a canonical digest of every coin record in the snapshot, used to
// compare chain state across restarts and nodes.
func CoinSetHash(p crypto.CryptoProvider, s *CoinSet) (Hash, error) {
	all := s.collect()
	ids := make([]Hash, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	buf := make([]byte, 0, 64+len(ids)*128)
	buf = append(buf, []byte(coinSetHashDST)...)
	var u64b [8]byte
	binary.BigEndian.PutUint64(u64b[:], uint64(len(ids)))
	buf = append(buf, u64b[:]...)

	for _, id := range ids {
		r := all[id]
		buf = append(buf, id[:]...)
		buf = append(buf, r.Coin.ParentCoinID[:]...)
		buf = append(buf, r.Coin.PuzzleHash[:]...)
		binary.BigEndian.PutUint64(u64b[:], r.Coin.Amount)
		buf = append(buf, u64b[:]...)
		binary.BigEndian.PutUint64(u64b[:], r.ConfirmedHeight)
		buf = append(buf, u64b[:]...)
		binary.BigEndian.PutUint64(u64b[:], r.SpentHeight)
		buf = append(buf, u64b[:]...)
		var flags byte
		if r.Spent {
			flags |= 0x01
		}
		if r.Coinbase {
			flags |= 0x02
		}
		buf = append(buf, flags)
	}

	sum, err := p.SHA3_256(buf)
	if err != nil {
		return Hash{}, err
	}
	return Hash(sum), nil
}
