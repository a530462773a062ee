package consensus

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// All consensus-visible bytes (programs, solutions, bundles) use deterministic CBOR
// so that equal values always hash equally.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	dm, err := cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 64,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
	encMode = em
	decMode = dm
}

// Marshal encodes v in canonical form.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(b []byte, v any) error {
	return decMode.Unmarshal(b, v)
}

// EncodeConditions is the solution form of anyone-can-spend style programs.
func EncodeConditions(conds []Condition) ([]byte, error) {
	if conds == nil {
		conds = []Condition{}
	}
	return Marshal(conds)
}

func DecodeConditions(b []byte) ([]Condition, error) {
	var out []Condition
	if err := Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode conditions: %w", err)
	}
	return out, nil
}
