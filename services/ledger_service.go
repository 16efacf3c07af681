package services

import (
	"errors"
	"fmt"

	"pairly-chat-system/models"

	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient sunflower balance")
	ErrUnknownSource       = errors.New("unknown ledger source")
)

// LedgerService is the append-only sunflower economy. Balances are derived
// per source from the entry sums, floored at zero when reported.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// WithTx returns a ledger bound to an open transaction, so other services can
// fold ledger writes into their own atomic protocols.
func (s *LedgerService) WithTx(tx *gorm.DB) *LedgerService {
	return &LedgerService{DB: tx}
}

func validSource(source string) bool {
	for _, known := range models.LedgerSources {
		if source == known {
			return true
		}
	}
	return false
}

// Credit appends a positive entry. Zero or negative amounts are a no-op.
func (s *LedgerService) Credit(userID int64, source string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if !validSource(source) {
		return ErrUnknownSource
	}
	entry := models.LedgerEntry{UserID: userID, Source: source, Amount: amount}
	if err := s.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("credit %s: %w", source, err)
	}
	return nil
}

// Debit appends a negative entry against one source. The running sum may dip
// below zero; the reported balance floors it.
func (s *LedgerService) Debit(userID int64, source string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if !validSource(source) {
		return ErrUnknownSource
	}
	entry := models.LedgerEntry{UserID: userID, Source: source, Amount: -amount}
	if err := s.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("debit %s: %w", source, err)
	}
	return nil
}

// Balance reports the per-source balances (floored at zero) and their total.
func (s *LedgerService) Balance(userID int64) (*models.Balance, error) {
	sums, total, err := s.balances(userID)
	if err != nil {
		return nil, err
	}
	return &models.Balance{
		Streak: sums[models.SourceStreak],
		Game:   sums[models.SourceGame],
		Gift:   sums[models.SourceGift],
		Rating: sums[models.SourceRating],
		Total:  total,
	}, nil
}

func (s *LedgerService) balances(userID int64) (map[string]int64, int64, error) {
	type row struct {
		Source string
		Sum    int64
	}
	var rows []row
	err := s.DB.Model(&models.LedgerEntry{}).
		Select("source, SUM(amount) AS sum").
		Where("user_id = ?", userID).
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("sum ledger: %w", err)
	}

	sums := make(map[string]int64, len(models.LedgerSources))
	for _, source := range models.LedgerSources {
		sums[source] = 0
	}
	var total int64
	for _, r := range rows {
		if r.Sum < 0 {
			r.Sum = 0
		}
		sums[r.Source] = r.Sum
		total += r.Sum
	}
	return sums, total, nil
}

// SmartDebit deducts amount across sources in models.DebitPriority order,
// draining each before moving on. It fails without writing anything when the
// total balance is short; on success the per-source reductions sum to amount
// exactly and no source is driven below zero.
func (s *LedgerService) SmartDebit(userID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		return s.WithTx(tx).smartDebitLocked(userID, amount)
	})
	if errors.Is(err, ErrInsufficientBalance) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// smartDebitLocked runs the prioritized deduction against s.DB, which must be
// an open transaction.
func (s *LedgerService) smartDebitLocked(userID int64, amount int64) error {
	sums, total, err := s.balances(userID)
	if err != nil {
		return err
	}
	if total < amount {
		return ErrInsufficientBalance
	}

	remaining := amount
	for _, source := range models.DebitPriority {
		if remaining == 0 {
			break
		}
		available := sums[source]
		if available <= 0 {
			continue
		}
		take := available
		if take > remaining {
			take = remaining
		}
		if err := s.Debit(userID, source, take); err != nil {
			return err
		}
		remaining -= take
	}
	if remaining != 0 {
		// Balance moved between the sum and the writes; abort the whole debit.
		return ErrInsufficientBalance
	}
	return nil
}

// ResetSource debits a source down to zero. Used when a broken streak wipes
// the streak-earned balance.
func (s *LedgerService) ResetSource(userID int64, source string) error {
	if !validSource(source) {
		return ErrUnknownSource
	}
	sums, _, err := s.balances(userID)
	if err != nil {
		return err
	}
	if sums[source] <= 0 {
		return nil
	}
	return s.Debit(userID, source, sums[source])
}
