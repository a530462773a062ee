package consensus

import (
	"encoding/binary"
	"fmt"
)

// Coin is an immutable value fact. Spending is ledger membership, never coin state.
type Coin struct {
	ParentCoinID Hash   `json:"parent_coin_info" cbor:"1,keyasint"`
	PuzzleHash   Hash   `json:"puzzle_hash" cbor:"2,keyasint"`
	Amount       uint64 `json:"amount" cbor:"3,keyasint"`
}

// ID is SHA-256(parent_coin_id || puzzle_hash || amount as 8 bytes big-endian).
func (c Coin) ID() Hash {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], c.Amount)
	return stdHash(c.ParentCoinID[:], c.PuzzleHash[:], amt[:])
}

func (c Coin) String() string {
	return fmt.Sprintf("Coin{parent=%s ph=%s amount=%d}", c.ParentCoinID, c.PuzzleHash, c.Amount)
}

func SameCoin(a, b Coin) bool {
	return a == b
}
