package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names an audit event.
type EventKind string

const (
	EventSetupComplete      EventKind = "SetupComplete"
	EventPaid               EventKind = "Paid"
	EventStaked             EventKind = "Staked"
	EventOpsPayrollWithdraw EventKind = "OpsPayrollWithdraw"
	EventOpsStakeWithdraw   EventKind = "OpsStakeWithdraw"
	EventNewDestination     EventKind = "NewDestination"
	EventNewAdmin           EventKind = "NewAdmin"
	EventNewHelper          EventKind = "NewHelper"
	EventNewTokens          EventKind = "NewTokens"
	EventBalanceCleared     EventKind = "BalanceCleared"
)

// Event is an append-only audit record. Only the fields relevant to Kind are set:
//
//	SetupComplete       Destination, Admin, Helper, Assets
//	Paid                Caller, Asset, PayrollID, Amount
//	Staked              Caller, Asset, Amount, MemberID, Sequence
//	OpsPayrollWithdraw  Asset, PayrollID, Amount
//	OpsStakeWithdraw    Asset, MemberID, Sequence, Amount
//	NewDestination/NewAdmin/NewHelper  Old, New
//	NewTokens           Assets
//	BalanceCleared      Asset, Amount
type Event struct {
	Kind        EventKind        `json:"kind"`
	Caller      common.Address   `json:"caller"`
	Asset       common.Address   `json:"asset"`
	PayrollID   uint64           `json:"payroll_id,omitempty"`
	MemberID    uint64           `json:"member_id,omitempty"`
	Sequence    uint64           `json:"sequence,omitempty"`
	Amount      *uint256.Int     `json:"amount,omitempty"`
	Old         common.Address   `json:"old"`
	New         common.Address   `json:"new"`
	Destination common.Address   `json:"destination"`
	Admin       common.Address   `json:"admin"`
	Helper      common.Address   `json:"helper"`
	Assets      []common.Address `json:"assets,omitempty"`
}

// EventSink receives every event after the operation that produced it has
// committed. Sink failures never undo the operation.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev Event) error

// Publish implements EventSink.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
