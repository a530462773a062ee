package consensus

import "errors"

var errUint64Overflow = errors.New("uint64 overflow")

// addUint64 returns the sum of a and b or an error if the addition would overflow uint64.
func addUint64(a, b uint64) (uint64, error) {
	if b > (^uint64(0) - a) {
		return 0, errUint64Overflow
	}
	return a + b, nil
}

// sumAmounts adds coin amounts, failing on overflow.
func sumAmounts(coins []Coin) (uint64, error) {
	var total uint64
	for _, c := range coins {
		var err error
		if total, err = addUint64(total, c.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}
