// services/ledger_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"gameplay-rewards-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidAmount       = errors.New("ledger: amount must be non-zero")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrLedgerUserNotFound  = errors.New("ledger: user not found")
)

// LedgerService owns every balance change. All other components request a
// ledger entry; nothing else mutates balances. The ledger enforces
// conservation only — it never decides why an award happens.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// lockForUpdate applies row locking on dialects that support it. SQLite
// (tests) serializes writers itself and has no FOR UPDATE syntax.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// Award appends a signed ledger entry for the user and updates the cached
// balance, all in one transaction with the user's ledger chain locked.
// Idempotent per (user, sourceType, sourceID, reason): a second call with the
// same key returns the original transaction unchanged.
func (s *LedgerService) Award(userID string, amount int64, reason, sourceType, sourceID, description string) (*models.PointTransaction, error) {
	var out *models.PointTransaction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		entry, err := s.awardTx(tx, userID, amount, reason, sourceType, sourceID, description)
		if err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AwardTx is Award running inside an existing transaction, for callers that
// need the entry atomically with their own writes (achievement insert,
// queue resolution).
func (s *LedgerService) AwardTx(tx *gorm.DB, userID string, amount int64, reason, sourceType, sourceID, description string) (*models.PointTransaction, error) {
	return s.awardTx(tx, userID, amount, reason, sourceType, sourceID, description)
}

func (s *LedgerService) awardTx(tx *gorm.DB, userID string, amount int64, reason, sourceType, sourceID, description string) (*models.PointTransaction, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	// Serialize all ledger writes for this user on the user row.
	var user models.User
	if err := lockForUpdate(tx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerUserNotFound
		}
		return nil, fmt.Errorf("ledger: lock user: %w", err)
	}

	// Idempotency: same logical event already paid out.
	var existing models.PointTransaction
	err := tx.Where("user_id = ? AND source_type = ? AND source_id = ? AND reason = ?",
		userID, sourceType, sourceID, reason).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger: idempotency lookup: %w", err)
	}

	// Current balance is the BalanceAfter of the most recent entry, or 0.
	// id breaks created_at ties so the chain head is deterministic.
	var last models.PointTransaction
	current := int64(0)
	err = tx.Where("user_id = ?", userID).Order("created_at DESC, id DESC").First(&last).Error
	if err == nil {
		current = last.BalanceAfter
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("ledger: read chain head: %w", err)
	}

	newBalance := current + amount
	if newBalance < 0 {
		return nil, ErrInsufficientBalance
	}

	entry := &models.PointTransaction{
		UserID:       userID,
		Amount:       amount,
		Reason:       reason,
		SourceType:   sourceType,
		SourceID:     sourceID,
		Description:  description,
		BalanceAfter: newBalance,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("ledger: insert entry: %w", err)
	}

	// Keep the cached balance in lockstep with the chain head.
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Update("points_balance", newBalance).Error; err != nil {
		return nil, fmt.Errorf("ledger: update cached balance: %w", err)
	}

	return entry, nil
}

// BalanceOf returns the chain-head balance for a user (0 with no entries).
func (s *LedgerService) BalanceOf(userID string) (int64, error) {
	var last models.PointTransaction
	err := s.DB.Where("user_id = ?", userID).Order("created_at DESC, id DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.BalanceAfter, nil
}

// Transactions returns the user's ledger history, newest first.
func (s *LedgerService) Transactions(userID string, page, size int) ([]models.PointTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.DB.Model(&models.PointTransaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.PointTransaction
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&entries).Error
	return entries, total, err
}

// PointsAwardedSince sums positive awards for a user after the cutoff —
// input to the rapid-progression detector and daily/weekly limit checks.
func (s *LedgerService) PointsAwardedSince(userID string, since time.Time) (int64, error) {
	var total int64
	err := s.DB.Model(&models.PointTransaction{}).
		Where("user_id = ? AND amount > 0 AND created_at >= ?", userID, since).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
