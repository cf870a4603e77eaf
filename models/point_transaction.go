// models/point_transaction.go
package models

import "time"

// Ledger reason codes
const (
	ReasonMatchReward      = "match_reward"
	ReasonAchievement      = "achievement"
	ReasonManualAdjustment = "manual_adjustment"
	ReasonReversal         = "reversal"
)

// PointTransaction is one append-only ledger row. The current balance for a
// user is the BalanceAfter of their most recent row and must always equal the
// signed sum of all their rows — the system's central invariant.
//
// The unique index over (user, source, reason) makes the ledger idempotent
// per logical event even if Award is called twice.
type PointTransaction struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"index;not null;uniqueIndex:ux_ledger_source,priority:1" json:"user_id"`

	Amount       int64  `gorm:"not null" json:"amount"` // signed: positive award, negative reversal
	Reason       string `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_source,priority:4" json:"reason"`
	SourceType   string `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_source,priority:2" json:"source_type"`
	SourceID     string `gorm:"not null;uniqueIndex:ux_ledger_source,priority:3" json:"source_id"`
	Description  string `json:"description,omitempty"`
	BalanceAfter int64  `gorm:"not null" json:"balance_after"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
