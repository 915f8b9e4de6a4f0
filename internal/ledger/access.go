package ledger

import "github.com/ethereum/go-ethereum/common"

// AccessController holds the three privileged identities. Only admin is
// consulted by any gate; helper is tracked for operators and indexers.
type AccessController struct {
	admin       common.Address
	helper      common.Address
	destination common.Address
}

// RequireAdmin returns ErrNotPermitted unless caller is the admin.
func (a *AccessController) RequireAdmin(caller common.Address) error {
	if caller != a.admin {
		return ErrNotPermitted
	}
	return nil
}

// Admin returns the current admin.
func (a *AccessController) Admin() common.Address { return a.admin }

// Helper returns the current helper.
func (a *AccessController) Helper() common.Address { return a.helper }

// Destination returns the address every withdrawal is forwarded to.
func (a *AccessController) Destination() common.Address { return a.destination }

func requireNonZero(addrs ...common.Address) error {
	for _, addr := range addrs {
		if addr == (common.Address{}) {
			return ErrZeroAddress
		}
	}
	return nil
}

// roleField maps an update event to the field it replaces.
func (a *AccessController) roleField(kind EventKind) *common.Address {
	switch kind {
	case EventNewAdmin:
		return &a.admin
	case EventNewHelper:
		return &a.helper
	case EventNewDestination:
		return &a.destination
	}
	return nil
}
