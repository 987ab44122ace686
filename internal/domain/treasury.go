package domain

import "context"

// Treasury is the external custody collaborator. The ledger never holds
// value itself; it tracks entitlements and delegates every movement of funds
// to a Treasury. Implementations must treat both calls as fallible and may
// be arbitrarily slow; a failed TransferIn must leave the participant's
// balance untouched.
type Treasury interface {
	// TransferIn pulls amount from the participant's account into custody.
	TransferIn(ctx context.Context, from string, amount int64) error

	// TransferOut pays amount from custody to the participant's account.
	TransferOut(ctx context.Context, to string, amount int64) error
}

// AuthorityRegistry answers whether an account may declare or void market
// outcomes. The ledger's own authority set satisfies this, but an external
// permission system can be plugged in instead.
type AuthorityRegistry interface {
	IsResultAuthority(account string) bool
}
