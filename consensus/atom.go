package consensus

import (
	"encoding/binary"
	"errors"
)

var (
	errAtomNegative = errors.New("atom: negative integer")
	errAtomOverflow = errors.New("atom: integer overflows uint64")
)

// Uint64Atom encodes v as a minimal big-endian two's-complement atom (0 is the empty atom).
func Uint64Atom(v uint64) []byte {
	if v == 0 {
		return []byte{}
	}
	var tmp [9]byte
	binary.BigEndian.PutUint64(tmp[1:], v)
	i := 1
	for i < 8 && tmp[i] == 0 {
		i++
	}
	if tmp[i]&0x80 != 0 {
		i--
	}
	return append([]byte(nil), tmp[i:]...)
}

// Int64Atom encodes a signed integer the same way; used by drivers that need to
// express negative values a program must reject.
func Int64Atom(v int64) []byte {
	if v >= 0 {
		return Uint64Atom(uint64(v))
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v)) // #nosec G115 -- two's complement reinterpretation.
	i := 0
	for i < 7 && tmp[i] == 0xff && tmp[i+1]&0x80 != 0 {
		i++
	}
	return append([]byte(nil), tmp[i:]...)
}

// AtomIsNegative reports whether the atom encodes a negative integer.
func AtomIsNegative(b []byte) bool {
	return len(b) > 0 && b[0]&0x80 != 0
}

// AtomUint64 decodes a non-negative integer atom.
func AtomUint64(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if AtomIsNegative(b) {
		return 0, errAtomNegative
	}
	for len(b) > 0 && b[0] == 0 {
		b = b[1:]
	}
	if len(b) > 8 {
		return 0, errAtomOverflow
	}
	var tmp [8]byte
	copy(tmp[8-len(b):], b)
	return binary.BigEndian.Uint64(tmp[:]), nil
}

// AtomInt64 decodes a signed integer atom of at most 8 bytes.
func AtomInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > 8 {
		return 0, errAtomOverflow
	}
	var tmp [8]byte
	if AtomIsNegative(b) {
		for i := range tmp {
			tmp[i] = 0xff
		}
	}
	copy(tmp[8-len(b):], b)
	return int64(binary.BigEndian.Uint64(tmp[:])), nil // #nosec G115 -- two's complement reinterpretation.
}
