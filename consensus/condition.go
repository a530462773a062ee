package consensus

import "fmt"

// Opcode numbering follows the chia condition table. The type is wider than any
// known opcode so that programs may emit arbitrary unknown ones.
type Opcode uint64

const (
	REMARK                     Opcode = 1
	AGG_SIG_UNSAFE             Opcode = 49
	AGG_SIG_ME                 Opcode = 50
	CREATE_COIN                Opcode = 51
	RESERVE_FEE                Opcode = 52
	CREATE_COIN_ANNOUNCEMENT   Opcode = 60
	ASSERT_COIN_ANNOUNCEMENT   Opcode = 61
	CREATE_PUZZLE_ANNOUNCEMENT Opcode = 62
	ASSERT_PUZZLE_ANNOUNCEMENT Opcode = 63
	ASSERT_MY_COIN_ID          Opcode = 70
	ASSERT_MY_PARENT_ID        Opcode = 71
	ASSERT_MY_PUZZLEHASH       Opcode = 72
	ASSERT_MY_AMOUNT           Opcode = 73
	ASSERT_SECONDS_RELATIVE    Opcode = 80
	ASSERT_SECONDS_ABSOLUTE    Opcode = 81
	ASSERT_HEIGHT_RELATIVE     Opcode = 82
	ASSERT_HEIGHT_ABSOLUTE     Opcode = 83
)

var opcodeNames = map[Opcode]string{
	REMARK:                     "REMARK",
	AGG_SIG_UNSAFE:             "AGG_SIG_UNSAFE",
	AGG_SIG_ME:                 "AGG_SIG_ME",
	CREATE_COIN:                "CREATE_COIN",
	RESERVE_FEE:                "RESERVE_FEE",
	CREATE_COIN_ANNOUNCEMENT:   "CREATE_COIN_ANNOUNCEMENT",
	ASSERT_COIN_ANNOUNCEMENT:   "ASSERT_COIN_ANNOUNCEMENT",
	CREATE_PUZZLE_ANNOUNCEMENT: "CREATE_PUZZLE_ANNOUNCEMENT",
	ASSERT_PUZZLE_ANNOUNCEMENT: "ASSERT_PUZZLE_ANNOUNCEMENT",
	ASSERT_MY_COIN_ID:          "ASSERT_MY_COIN_ID",
	ASSERT_MY_PARENT_ID:        "ASSERT_MY_PARENT_ID",
	ASSERT_MY_PUZZLEHASH:       "ASSERT_MY_PUZZLEHASH",
	ASSERT_MY_AMOUNT:           "ASSERT_MY_AMOUNT",
	ASSERT_SECONDS_RELATIVE:    "ASSERT_SECONDS_RELATIVE",
	ASSERT_SECONDS_ABSOLUTE:    "ASSERT_SECONDS_ABSOLUTE",
	ASSERT_HEIGHT_RELATIVE:     "ASSERT_HEIGHT_RELATIVE",
	ASSERT_HEIGHT_ABSOLUTE:     "ASSERT_HEIGHT_ABSOLUTE",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE_%d", uint64(o))
}

// Known reports whether the processor interprets the opcode; unknown ones are ignored.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// Condition is one output of a program run. Args are raw atoms.
type Condition struct {
	_      struct{} `cbor:",toarray"`
	Opcode Opcode
	Args   [][]byte
}

func (c Condition) String() string {
	return fmt.Sprintf("(%s %x)", c.Opcode, c.Args)
}

func (c Condition) arg(i int) ([]byte, bool) {
	if i >= len(c.Args) {
		return nil, false
	}
	return c.Args[i], true
}

func CreateCoin(puzzleHash Hash, amount uint64, memos ...[]byte) Condition {
	args := [][]byte{puzzleHash.Bytes(), Uint64Atom(amount)}
	args = append(args, memos...)
	return Condition{Opcode: CREATE_COIN, Args: args}
}

func ReserveFee(amount uint64) Condition {
	return Condition{Opcode: RESERVE_FEE, Args: [][]byte{Uint64Atom(amount)}}
}

func CreateCoinAnnouncement(msg []byte) Condition {
	return Condition{Opcode: CREATE_COIN_ANNOUNCEMENT, Args: [][]byte{msg}}
}

func AssertCoinAnnouncement(id Hash) Condition {
	return Condition{Opcode: ASSERT_COIN_ANNOUNCEMENT, Args: [][]byte{id.Bytes()}}
}

func CreatePuzzleAnnouncement(msg []byte) Condition {
	return Condition{Opcode: CREATE_PUZZLE_ANNOUNCEMENT, Args: [][]byte{msg}}
}

func AssertPuzzleAnnouncement(id Hash) Condition {
	return Condition{Opcode: ASSERT_PUZZLE_ANNOUNCEMENT, Args: [][]byte{id.Bytes()}}
}

func AssertMyCoinID(id Hash) Condition {
	return Condition{Opcode: ASSERT_MY_COIN_ID, Args: [][]byte{id.Bytes()}}
}

func AssertMyParentID(id Hash) Condition {
	return Condition{Opcode: ASSERT_MY_PARENT_ID, Args: [][]byte{id.Bytes()}}
}

func AssertMyPuzzleHash(ph Hash) Condition {
	return Condition{Opcode: ASSERT_MY_PUZZLEHASH, Args: [][]byte{ph.Bytes()}}
}

func AssertMyAmount(amount uint64) Condition {
	return Condition{Opcode: ASSERT_MY_AMOUNT, Args: [][]byte{Uint64Atom(amount)}}
}

func AssertHeightRelative(blocks uint64) Condition {
	return Condition{Opcode: ASSERT_HEIGHT_RELATIVE, Args: [][]byte{Uint64Atom(blocks)}}
}

func AssertHeightAbsolute(height uint64) Condition {
	return Condition{Opcode: ASSERT_HEIGHT_ABSOLUTE, Args: [][]byte{Uint64Atom(height)}}
}

func AssertSecondsRelative(seconds uint64) Condition {
	return Condition{Opcode: ASSERT_SECONDS_RELATIVE, Args: [][]byte{Uint64Atom(seconds)}}
}

func AssertSecondsAbsolute(ts uint64) Condition {
	return Condition{Opcode: ASSERT_SECONDS_ABSOLUTE, Args: [][]byte{Uint64Atom(ts)}}
}

func AggSigMe(pubkey, msg []byte) Condition {
	return Condition{Opcode: AGG_SIG_ME, Args: [][]byte{pubkey, msg}}
}

func AggSigUnsafe(pubkey, msg []byte) Condition {
	return Condition{Opcode: AGG_SIG_UNSAFE, Args: [][]byte{pubkey, msg}}
}

func Remark(data ...[]byte) Condition {
	return Condition{Opcode: REMARK, Args: data}
}
