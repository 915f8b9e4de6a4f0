package ledger

import (
	"errors"
	"fmt"
)

// Rejections. An operation that returns one of these left no trace: no
// record, counter, config field, or custody balance changed.
var (
	ErrInvalidPayroll  = errors.New("invalid payroll")
	ErrInvalidStake    = errors.New("invalid stake")
	ErrInvalidWithdraw = errors.New("invalid withdraw")
	ErrZeroAddress     = errors.New("zero address")

	ErrNotPermitted = errors.New("not permitted")
	ErrNotMember    = errors.New("not a member")

	ErrDuplicatePayroll = errors.New("duplicate payroll")

	ErrNotWhitelisted = errors.New("asset not whitelisted")
	ErrInvalidToken   = errors.New("invalid token")

	ErrDirectTransfer = errors.New("direct native transfers are not accepted")
)

var kinds = map[error]string{
	ErrInvalidPayroll:   "InvalidPayroll",
	ErrInvalidStake:     "InvalidStake",
	ErrInvalidWithdraw:  "InvalidWithdraw",
	ErrZeroAddress:      "ZeroAddress",
	ErrNotPermitted:     "NotPermitted",
	ErrNotMember:        "NotMember",
	ErrDuplicatePayroll: "DuplicatePayroll",
	ErrNotWhitelisted:   "NotWhitelisted",
	ErrInvalidToken:     "InvalidToken",
	ErrDirectTransfer:   "DirectTransfer",
}

// Kind returns the stable name of the rejection wrapped by err
// ("InvalidPayroll", "NotPermitted", ...) or "" when err is not one.
func Kind(err error) string {
	for sentinel, name := range kinds {
		if errors.Is(err, sentinel) {
			return name
		}
	}
	return ""
}

// EntryError pins a batch rejection to the offending entry.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string { return fmt.Sprintf("entry %d: %v", e.Index, e.Err) }

func (e *EntryError) Unwrap() error { return e.Err }
