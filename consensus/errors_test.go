package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cases := map[ErrorCode]ErrorKind{
		ERR_UNKNOWN_UNSPENT:               KindStructural,
		ERR_PROGRAM_RAISED:                KindExecution,
		ERR_ASSERT_HEIGHT_RELATIVE_FAILED: KindConditionViolation,
		ERR_ASSERT_ANNOUNCE_CONSUMED:      KindConditionViolation,
		ERR_SINGLETON_AMOUNT_NOT_ODD:      KindLineageViolation,
		ERR_SNAPSHOT_CONFLICT:             KindConflict,
	}
	for code, want := range cases {
		if got := code.Kind(); got != want {
			t.Fatalf("%s kind=%s, want %s", code, got, want)
		}
	}
	if ErrorCode("NOPE").Kind() != KindUnknown {
		t.Fatalf("unknown code has a kind")
	}
}

func TestTxErrorFormattingAndWrapping(t *testing.T) {
	id := Hash{1}
	err := conderr(ERR_ASSERT_MY_AMOUNT_FAILED, id, ASSERT_MY_AMOUNT, "asserted 1")
	if !strings.Contains(err.Error(), "ASSERT_MY_AMOUNT_FAILED: asserted 1") || !strings.Contains(err.Error(), id.String()) {
		t.Fatalf("unexpected message %q", err.Error())
	}
	wrapped := fmt.Errorf("submit: %w", err)
	if code, ok := CodeOf(wrapped); !ok || code != ERR_ASSERT_MY_AMOUNT_FAILED {
		t.Fatalf("CodeOf(wrapped)=%s,%v", code, ok)
	}
	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Fatalf("CodeOf matched a foreign error")
	}
}

func TestWithCoin(t *testing.T) {
	id := Hash{2}
	if got := mustTxErrCode(t, withCoin(errors.New("boom"), id)); got != ERR_PROGRAM_RAISED {
		t.Fatalf("code=%s", got)
	}
	if got := mustTxErrCode(t, withCoin(context.DeadlineExceeded, id)); got != ERR_EXECUTION_TIMEOUT {
		t.Fatalf("code=%s", got)
	}
	var te *TxError
	if !errors.As(withCoin(ExecFailure(ERR_COST_EXCEEDED, "x"), id), &te) || te.CoinID == nil || *te.CoinID != id {
		t.Fatalf("coin id not attached")
	}
}
