package ledger

import (
	"fmt"
	"log/slog"

	"github.com/outcomebet/paribet/internal/domain"
)

// Administrative operations. All are restricted to the admin account and are
// simple bounded setters; none touch the betting hot path beyond the bound
// checks they enforce.

// SetPlatformFeeBps updates the global platform fee rate. Already resolved
// markets keep the rate snapshotted at their resolution.
func (l *Ledger) SetPlatformFeeBps(caller string, bps int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.ErrUnauthorized
	}
	if bps < 0 || bps > MaxPlatformFeeBps {
		return fmt.Errorf("platform fee %d bps out of range [0, %d]: %w", bps, MaxPlatformFeeBps, domain.ErrFeeTooHigh)
	}
	l.platformFeeBps = bps
	l.logger.Info("platform fee updated", slog.Int64("bps", bps))
	return nil
}

// SetMinStake updates the minimum bet amount.
func (l *Ledger) SetMinStake(caller string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.ErrUnauthorized
	}
	if amount < 0 {
		return fmt.Errorf("minimum stake must not be negative: %w", domain.ErrBetBelowMinimum)
	}
	l.minStake = amount
	l.logger.Info("minimum stake updated", slog.Int64("amount", amount))
	return nil
}

// SetFeeRecipient updates the account that receives swept platform fees.
func (l *Ledger) SetFeeRecipient(caller, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.ErrUnauthorized
	}
	l.feeRecipient = account
	l.logger.Info("fee recipient updated", slog.String("account", account))
	return nil
}

// AddAuthority grants result-declaring authority to an account.
func (l *Ledger) AddAuthority(caller, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.ErrUnauthorized
	}
	l.authorities[account] = true
	l.logger.Info("authority added", slog.String("account", account))
	return nil
}

// RemoveAuthority revokes result-declaring authority from an account. The
// admin's implicit authority cannot be revoked.
func (l *Ledger) RemoveAuthority(caller, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.admin {
		return domain.ErrUnauthorized
	}
	delete(l.authorities, account)
	l.logger.Info("authority removed", slog.String("account", account))
	return nil
}

// IsResultAuthority reports whether the account may resolve or cancel
// markets. Implements domain.AuthorityRegistry.
func (l *Ledger) IsResultAuthority(account string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isResultAuthority(account)
}

var _ domain.AuthorityRegistry = (*Ledger)(nil)
