package consensus

import "fmt"

const (
	CostCreateCoin = 1_800_000
	CostAggSig     = 1_200_000
)

// SpendContext is everything the condition processor may look at for one spend.
type SpendContext struct {
	Coin   Coin
	CoinID Hash
	// ConfirmedHeight/ConfirmedTimestamp describe when the coin was created. For a
	// coin created inside the same bundle they equal the snapshot's height/time.
	ConfirmedHeight    uint64
	ConfirmedTimestamp uint64
	Height             uint64
	Timestamp          uint64
	AggSigMeData       Hash
}

// SpendOutcome is the per-spend result the bundle level aggregates.
type SpendOutcome struct {
	CoinID    Hash
	Coin      Coin
	Additions []Coin

	CoinAnnouncements           []Hash
	PuzzleAnnouncements         []Hash
	AssertedCoinAnnouncements   []Hash
	AssertedPuzzleAnnouncements []Hash

	Obligations []SigObligation
	ReserveFee  uint64
	Cost        uint64
}

type outputKey struct {
	ph     Hash
	amount uint64
}

// ProcessConditions evaluates conds for one spend. It is pure: bundle-wide checks
// (announcements, conservation, signatures) happen later on the collected outcomes.
func ProcessConditions(sc SpendContext, conds []Condition) (*SpendOutcome, error) {
	out := &SpendOutcome{CoinID: sc.CoinID, Coin: sc.Coin}
	outputs := make(map[outputKey]struct{})

	for _, c := range conds {
		switch c.Opcode {
		case CREATE_COIN:
			ph, err := hashArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			amount, err := uintArg(sc, c, 1)
			if err != nil {
				return nil, err
			}
			k := outputKey{ph: ph, amount: amount}
			if _, dup := outputs[k]; dup {
				return nil, conderr(ERR_DUPLICATE_OUTPUT, sc.CoinID, c.Opcode, fmt.Sprintf("%s amount %d", ph, amount))
			}
			outputs[k] = struct{}{}
			out.Additions = append(out.Additions, Coin{ParentCoinID: sc.CoinID, PuzzleHash: ph, Amount: amount})
			out.Cost += CostCreateCoin

		case RESERVE_FEE:
			fee, err := uintArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			if out.ReserveFee, err = addUint64(out.ReserveFee, fee); err != nil {
				return nil, conderr(ERR_INVALID_CONDITION, sc.CoinID, c.Opcode, "reserve fee overflow")
			}

		case CREATE_COIN_ANNOUNCEMENT:
			msg, err := rawArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			out.CoinAnnouncements = append(out.CoinAnnouncements, CoinAnnouncementID(sc.CoinID, msg))

		case CREATE_PUZZLE_ANNOUNCEMENT:
			msg, err := rawArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			out.PuzzleAnnouncements = append(out.PuzzleAnnouncements, PuzzleAnnouncementID(sc.Coin.PuzzleHash, msg))

		case ASSERT_COIN_ANNOUNCEMENT:
			id, err := hashArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			out.AssertedCoinAnnouncements = append(out.AssertedCoinAnnouncements, id)

		case ASSERT_PUZZLE_ANNOUNCEMENT:
			id, err := hashArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			out.AssertedPuzzleAnnouncements = append(out.AssertedPuzzleAnnouncements, id)

		case ASSERT_MY_COIN_ID:
			id, err := hashArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			if id != sc.CoinID {
				return nil, conderr(ERR_ASSERT_MY_COIN_ID_FAILED, sc.CoinID, c.Opcode, "got "+id.String())
			}

		case ASSERT_MY_PARENT_ID:
			id, err := hashArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			if id != sc.Coin.ParentCoinID {
				return nil, conderr(ERR_ASSERT_MY_PARENT_ID_FAILED, sc.CoinID, c.Opcode, "got "+id.String())
			}

		case ASSERT_MY_PUZZLEHASH:
			ph, err := hashArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			if ph != sc.Coin.PuzzleHash {
				return nil, conderr(ERR_ASSERT_MY_PUZZLEHASH_FAILED, sc.CoinID, c.Opcode, "got "+ph.String())
			}

		case ASSERT_MY_AMOUNT:
			amount, err := uintArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			if amount != sc.Coin.Amount {
				return nil, conderr(ERR_ASSERT_MY_AMOUNT_FAILED, sc.CoinID, c.Opcode, fmt.Sprintf("asserted %d, coin has %d", amount, sc.Coin.Amount))
			}

		case ASSERT_HEIGHT_RELATIVE:
			n, err := uintArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			need, err := addUint64(sc.ConfirmedHeight, n)
			if err != nil || sc.Height < need {
				return nil, conderr(ERR_ASSERT_HEIGHT_RELATIVE_FAILED, sc.CoinID, c.Opcode, fmt.Sprintf("height %d < %d+%d", sc.Height, sc.ConfirmedHeight, n))
			}

		case ASSERT_HEIGHT_ABSOLUTE:
			n, err := uintArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			if sc.Height < n {
				return nil, conderr(ERR_ASSERT_HEIGHT_ABSOLUTE_FAILED, sc.CoinID, c.Opcode, fmt.Sprintf("height %d < %d", sc.Height, n))
			}

		case ASSERT_SECONDS_RELATIVE:
			n, err := uintArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			need, err := addUint64(sc.ConfirmedTimestamp, n)
			if err != nil || sc.Timestamp < need {
				return nil, conderr(ERR_ASSERT_SECONDS_RELATIVE_FAILED, sc.CoinID, c.Opcode, fmt.Sprintf("time %d < %d+%d", sc.Timestamp, sc.ConfirmedTimestamp, n))
			}

		case ASSERT_SECONDS_ABSOLUTE:
			n, err := uintArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			if sc.Timestamp < n {
				return nil, conderr(ERR_ASSERT_SECONDS_ABSOLUTE_FAILED, sc.CoinID, c.Opcode, fmt.Sprintf("time %d < %d", sc.Timestamp, n))
			}

		case AGG_SIG_ME, AGG_SIG_UNSAFE:
			pk, err := rawArg(sc, c, 0)
			if err != nil {
				return nil, err
			}
			msg, err := rawArg(sc, c, 1)
			if err != nil {
				return nil, err
			}
			if c.Opcode == AGG_SIG_ME {
				msg = AggSigMeMessage(msg, sc.CoinID, sc.AggSigMeData)
			}
			out.Obligations = append(out.Obligations, SigObligation{
				PubKey: append([]byte(nil), pk...),
				Msg:    append([]byte(nil), msg...),
				CoinID: sc.CoinID,
				Opcode: c.Opcode,
			})
			out.Cost += CostAggSig

		default:
			// REMARK and unknown opcodes are accepted and ignored.
		}
	}
	return out, nil
}

func rawArg(sc SpendContext, c Condition, i int) ([]byte, error) {
	b, ok := c.arg(i)
	if !ok {
		return nil, conderr(ERR_INVALID_CONDITION, sc.CoinID, c.Opcode, fmt.Sprintf("missing argument %d", i))
	}
	return b, nil
}

func hashArg(sc SpendContext, c Condition, i int) (Hash, error) {
	b, err := rawArg(sc, c, i)
	if err != nil {
		return Hash{}, err
	}
	h, err := HashFromBytes(b)
	if err != nil {
		return Hash{}, conderr(ERR_INVALID_CONDITION, sc.CoinID, c.Opcode, err.Error())
	}
	return h, nil
}

func uintArg(sc SpendContext, c Condition, i int) (uint64, error) {
	b, err := rawArg(sc, c, i)
	if err != nil {
		return 0, err
	}
	v, err := AtomUint64(b)
	if err != nil {
		return 0, conderr(ERR_INVALID_CONDITION, sc.CoinID, c.Opcode, err.Error())
	}
	return v, nil
}
