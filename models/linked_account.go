// models/linked_account.go
package models

import "time"

// Linked-account providers recognized as strong identity signals.
const (
	ProviderGameData = "game_data" // external gameplay-data API account
	ProviderDesktop  = "desktop"   // verified desktop companion session
)

// LinkedAccount mirrors a user's verified external identity links from the
// identity service. A verified link is the largest single positive trust
// component.
type LinkedAccount struct {
	ID                string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID            string     `gorm:"not null;uniqueIndex:ux_user_provider,priority:1" json:"user_id"`
	Provider          string     `gorm:"type:varchar(32);not null;uniqueIndex:ux_user_provider,priority:2" json:"provider"`
	ProviderAccountID string     `gorm:"not null" json:"provider_account_id"`
	Verified          bool       `gorm:"default:false;index" json:"verified"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty"`

	Timestamps
}
