// models/partner.go
package models

// Partner is a first-party integration allowed to report gameplay events.
// APIKey identifies the partner on inbound webhooks; SecretKey signs them.
type Partner struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	APIKey    string `gorm:"uniqueIndex;not null" json:"api_key"`
	SecretKey string `gorm:"not null" json:"-"` // HMAC secret — never serialized
	Active    bool   `gorm:"default:true;index" json:"active"`

	Timestamps
}
