package types

import (
	"errors"
	"fmt"
)

// ValidationError rejects an operation before any channel call is made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ChannelError wraps a failed or timed-out channel call. The operation is
// aborted for the current cycle and retried on the next where applicable.
type ChannelError struct {
	Channel string
	Op      string
	Timeout bool
	Err     error
}

func (e *ChannelError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("channel %s: %s timed out", e.Channel, e.Op)
	}
	return fmt.Sprintf("channel %s: %s: %v", e.Channel, e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// PartialExecutionError reports a pair operation where one leg succeeded and
// the other failed. The filled leg is left untouched for the operator; there
// is no automatic unwind, so this must be surfaced prominently.
type PartialExecutionError struct {
	TradeID string
	Op      string // "open" or "close"
	Leg1Err error
	Leg2Err error
	Leg1Pos int64
	Leg2Pos int64
}

func (e *PartialExecutionError) Error() string {
	report := func(err error, pos int64) string {
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("filled (position %d)", pos)
	}
	return fmt.Sprintf("partial %s on %s: leg1 %s; leg2 %s",
		e.Op, e.TradeID, report(e.Leg1Err, e.Leg1Pos), report(e.Leg2Err, e.Leg2Pos))
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPartialExecution reports whether err carries a partial pair execution.
func IsPartialExecution(err error) bool {
	var pe *PartialExecutionError
	return errors.As(err, &pe)
}
