// models/user.go
package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
	SubscriptionPastDue  = "past_due"
)

// User is a local snapshot of user data needed for reward processing.
// Identity is owned by the auth/profile service and mirrored via sync worker;
// PointsBalance is owned exclusively by the ledger service.
type User struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // profile service's UUID
	Username       string `gorm:"index;not null" json:"username"`
	Email          string `json:"email,omitempty"`

	SubscriptionStatus string `gorm:"type:varchar(16);default:'inactive'" json:"subscription_status"`

	// Cached ledger balance — must always equal the BalanceAfter of the
	// user's most recent PointTransaction. Updated only inside ledger txs.
	PointsBalance int64 `gorm:"default:0" json:"points_balance"`

	// Account creation in the identity service, not our mirror row.
	// Account-age risk and trust signals are computed from this.
	AccountCreatedAt time.Time `gorm:"not null" json:"account_created_at"`

	IsBanned bool `gorm:"default:false" json:"is_banned"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// AccountAge returns how long the account has existed in the identity service.
func (u *User) AccountAge(now time.Time) time.Duration {
	return now.Sub(u.AccountCreatedAt)
}
