package consensus

import (
	"context"
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// structural
	ERR_EMPTY_BUNDLE      ErrorCode = "EMPTY_BUNDLE"
	ERR_UNKNOWN_UNSPENT   ErrorCode = "UNKNOWN_UNSPENT"
	ERR_WRONG_PUZZLE_HASH ErrorCode = "WRONG_PUZZLE_HASH"
	ERR_INVALID_PUZZLE    ErrorCode = "INVALID_PUZZLE"
	ERR_INVALID_BUNDLE    ErrorCode = "INVALID_BUNDLE"
	ERR_DUPLICATE_SPEND   ErrorCode = "DUPLICATE_SPEND"

	// execution
	ERR_PROGRAM_RAISED    ErrorCode = "PROGRAM_RAISED"
	ERR_COST_EXCEEDED     ErrorCode = "COST_EXCEEDED"
	ERR_EXECUTION_TIMEOUT ErrorCode = "EXECUTION_TIMEOUT"
	ERR_INVALID_SOLUTION  ErrorCode = "INVALID_SOLUTION"
	ERR_UNKNOWN_PROGRAM   ErrorCode = "UNKNOWN_PROGRAM"

	// condition violations
	ERR_INVALID_CONDITION              ErrorCode = "INVALID_CONDITION"
	ERR_DUPLICATE_OUTPUT               ErrorCode = "DUPLICATE_OUTPUT"
	ERR_MINTING_COIN                   ErrorCode = "MINTING_COIN"
	ERR_RESERVE_FEE_CONDITION_FAILED   ErrorCode = "RESERVE_FEE_CONDITION_FAILED"
	ERR_ASSERT_ANNOUNCE_CONSUMED       ErrorCode = "ASSERT_ANNOUNCE_CONSUMED_FAILED"
	ERR_ASSERT_HEIGHT_RELATIVE_FAILED  ErrorCode = "ASSERT_HEIGHT_RELATIVE_FAILED"
	ERR_ASSERT_HEIGHT_ABSOLUTE_FAILED  ErrorCode = "ASSERT_HEIGHT_ABSOLUTE_FAILED"
	ERR_ASSERT_SECONDS_RELATIVE_FAILED ErrorCode = "ASSERT_SECONDS_RELATIVE_FAILED"
	ERR_ASSERT_SECONDS_ABSOLUTE_FAILED ErrorCode = "ASSERT_SECONDS_ABSOLUTE_FAILED"
	ERR_ASSERT_MY_AMOUNT_FAILED        ErrorCode = "ASSERT_MY_AMOUNT_FAILED"
	ERR_ASSERT_MY_COIN_ID_FAILED       ErrorCode = "ASSERT_MY_COIN_ID_FAILED"
	ERR_ASSERT_MY_PARENT_ID_FAILED     ErrorCode = "ASSERT_MY_PARENT_ID_FAILED"
	ERR_ASSERT_MY_PUZZLEHASH_FAILED    ErrorCode = "ASSERT_MY_PUZZLEHASH_FAILED"
	ERR_BAD_AGGREGATE_SIGNATURE        ErrorCode = "BAD_AGGREGATE_SIGNATURE"

	// lineage
	ERR_SINGLETON_LINEAGE_INVALID ErrorCode = "SINGLETON_LINEAGE_INVALID"
	ERR_SINGLETON_AMOUNT_NOT_ODD  ErrorCode = "SINGLETON_AMOUNT_NOT_ODD"
	ERR_SINGLETON_MALFORMED       ErrorCode = "SINGLETON_MALFORMED"

	// conflicts
	ERR_DOUBLE_SPEND      ErrorCode = "DOUBLE_SPEND"
	ERR_SNAPSHOT_CONFLICT ErrorCode = "SNAPSHOT_CONFLICT"
	ERR_MEMPOOL_CONFLICT  ErrorCode = "MEMPOOL_CONFLICT"
)

// ErrorKind groups codes into the taxonomy callers act on: only Conflict is retryable.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindStructural
	KindExecution
	KindConditionViolation
	KindLineageViolation
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindStructural:
		return "StructuralError"
	case KindExecution:
		return "ExecutionFailure"
	case KindConditionViolation:
		return "ConditionViolation"
	case KindLineageViolation:
		return "LineageViolation"
	case KindConflict:
		return "ConflictError"
	default:
		return "UnknownError"
	}
}

var errorKinds = map[ErrorCode]ErrorKind{
	ERR_EMPTY_BUNDLE:      KindStructural,
	ERR_UNKNOWN_UNSPENT:   KindStructural,
	ERR_WRONG_PUZZLE_HASH: KindStructural,
	ERR_INVALID_PUZZLE:    KindStructural,
	ERR_INVALID_BUNDLE:    KindStructural,
	ERR_DUPLICATE_SPEND:   KindStructural,

	ERR_PROGRAM_RAISED:    KindExecution,
	ERR_COST_EXCEEDED:     KindExecution,
	ERR_EXECUTION_TIMEOUT: KindExecution,
	ERR_INVALID_SOLUTION:  KindExecution,
	ERR_UNKNOWN_PROGRAM:   KindExecution,

	ERR_INVALID_CONDITION:              KindConditionViolation,
	ERR_DUPLICATE_OUTPUT:               KindConditionViolation,
	ERR_MINTING_COIN:                   KindConditionViolation,
	ERR_RESERVE_FEE_CONDITION_FAILED:   KindConditionViolation,
	ERR_ASSERT_ANNOUNCE_CONSUMED:       KindConditionViolation,
	ERR_ASSERT_HEIGHT_RELATIVE_FAILED:  KindConditionViolation,
	ERR_ASSERT_HEIGHT_ABSOLUTE_FAILED:  KindConditionViolation,
	ERR_ASSERT_SECONDS_RELATIVE_FAILED: KindConditionViolation,
	ERR_ASSERT_SECONDS_ABSOLUTE_FAILED: KindConditionViolation,
	ERR_ASSERT_MY_AMOUNT_FAILED:        KindConditionViolation,
	ERR_ASSERT_MY_COIN_ID_FAILED:       KindConditionViolation,
	ERR_ASSERT_MY_PARENT_ID_FAILED:     KindConditionViolation,
	ERR_ASSERT_MY_PUZZLEHASH_FAILED:    KindConditionViolation,
	ERR_BAD_AGGREGATE_SIGNATURE:        KindConditionViolation,

	ERR_SINGLETON_LINEAGE_INVALID: KindLineageViolation,
	ERR_SINGLETON_AMOUNT_NOT_ODD:  KindLineageViolation,
	ERR_SINGLETON_MALFORMED:       KindLineageViolation,

	ERR_DOUBLE_SPEND:      KindConflict,
	ERR_SNAPSHOT_CONFLICT: KindConflict,
	ERR_MEMPOOL_CONFLICT:  KindConflict,
}

func (c ErrorCode) Kind() ErrorKind {
	return errorKinds[c]
}

type TxError struct {
	Code   ErrorCode
	Msg    string
	CoinID *Hash
	Opcode Opcode
}

func (e *TxError) Error() string {
	if e == nil {
		return "<nil>"
	}
	out := string(e.Code)
	if e.Msg != "" {
		out = fmt.Sprintf("%s: %s", out, e.Msg)
	}
	if e.CoinID != nil {
		out = fmt.Sprintf("%s (coin %s)", out, e.CoinID)
	}
	return out
}

func (e *TxError) Kind() ErrorKind {
	if e == nil {
		return KindUnknown
	}
	return e.Code.Kind()
}

// Retryable reports whether re-validating against a newer snapshot may succeed.
func (e *TxError) Retryable() bool {
	return e.Kind() == KindConflict
}

func txerr(code ErrorCode, msg string) error {
	return &TxError{Code: code, Msg: msg}
}

func coinerr(code ErrorCode, coinID Hash, msg string) error {
	id := coinID
	return &TxError{Code: code, Msg: msg, CoinID: &id}
}

func conderr(code ErrorCode, coinID Hash, op Opcode, msg string) error {
	id := coinID
	return &TxError{Code: code, Msg: msg, CoinID: &id, Opcode: op}
}

// CoinError builds a coin-scoped error for callers outside validation.
func CoinError(code ErrorCode, coinID Hash, msg string) error {
	return coinerr(code, coinID, msg)
}

// Raise is the failure a program returns for an explicit (x) instruction.
func Raise(format string, args ...any) error {
	return &TxError{Code: ERR_PROGRAM_RAISED, Msg: fmt.Sprintf(format, args...)}
}

// ExecFailure builds an execution-kind error for executors.
func ExecFailure(code ErrorCode, msg string) error {
	return &TxError{Code: code, Msg: msg}
}

// CodeOf extracts the code of a *TxError anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var te *TxError
	if errors.As(err, &te) && te != nil {
		return te.Code, true
	}
	return "", false
}

// KindOf is CodeOf(err).Kind(), KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	code, ok := CodeOf(err)
	if !ok {
		return KindUnknown
	}
	return code.Kind()
}

// withCoin attaches the spending coin to an error that does not carry one yet.
// Foreign errors from an executor are surfaced as PROGRAM_RAISED.
func withCoin(err error, coinID Hash) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return coinerr(ERR_EXECUTION_TIMEOUT, coinID, err.Error())
	}
	var te *TxError
	if !errors.As(err, &te) || te == nil {
		return coinerr(ERR_PROGRAM_RAISED, coinID, err.Error())
	}
	if te.CoinID != nil {
		return te
	}
	out := *te
	id := coinID
	out.CoinID = &id
	return &out
}
