// Package custody implements the domain.Treasury interface: an in-memory
// bank for demo mode and tests, and an ERC-20 adapter for on-chain custody.
package custody

import (
	"context"
	"fmt"
	"sync"

	"github.com/outcomebet/paribet/internal/domain"
)

// Bank is an in-memory treasury. Accounts are created on first touch with a
// configurable opening balance, which makes it convenient for demo
// deployments where participants should be able to stake immediately.
type Bank struct {
	mu             sync.Mutex
	openingBalance int64
	balances       map[string]int64
	custody        int64
}

// NewBank creates a Bank whose accounts start with openingBalance.
func NewBank(openingBalance int64) *Bank {
	return &Bank{
		openingBalance: openingBalance,
		balances:       make(map[string]int64),
	}
}

// TransferIn debits the participant and credits custody. It fails without
// side effects when the participant's balance is insufficient.
func (b *Bank) TransferIn(_ context.Context, from string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("custody: negative amount %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal := b.balance(from)
	if bal < amount {
		return fmt.Errorf("custody: %s has %d, needs %d: %w", from, bal, amount, domain.ErrTransferFailed)
	}
	b.balances[from] = bal - amount
	b.custody += amount
	return nil
}

// TransferOut debits custody and credits the participant.
func (b *Bank) TransferOut(_ context.Context, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("custody: negative amount %d", amount)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.custody < amount {
		return fmt.Errorf("custody: holds %d, owes %d: %w", b.custody, amount, domain.ErrTransferFailed)
	}
	b.custody -= amount
	b.balances[to] = b.balance(to) + amount
	return nil
}

// Balance returns the account's current balance, materialising the account
// if it has never been touched.
func (b *Bank) Balance(account string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance(account)
}

// Custody returns the total value currently held on behalf of the ledger.
func (b *Bank) Custody() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.custody
}

// Deposit credits an account directly, outside the ledger's bookkeeping.
func (b *Bank) Deposit(account string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = b.balance(account) + amount
}

// balance must be called with the bank mutex held.
func (b *Bank) balance(account string) int64 {
	if bal, ok := b.balances[account]; ok {
		return bal
	}
	b.balances[account] = b.openingBalance
	return b.openingBalance
}

var _ domain.Treasury = (*Bank)(nil)
