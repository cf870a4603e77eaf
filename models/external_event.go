// models/external_event.go
package models

// ExternalEvent statuses
const (
	EventStatusReceived  = "received"
	EventStatusProcessed = "processed"
	EventStatusFailed    = "failed"
)

// Event types a partner may report
const (
	EventTypeMatch       = "match"
	EventTypeAchievement = "achievement"
	EventTypeTournament  = "tournament"
)

// ExternalEvent is the idempotency record for inbound webhooks.
// (PartnerID, ExternalEventID) is the at-most-once key: a redelivery with the
// same key short-circuits to the stored result and never reprocesses.
type ExternalEvent struct {
	ID              string `gorm:"primaryKey;type:uuid" json:"id"`
	PartnerID       string `gorm:"uniqueIndex:ux_partner_event,priority:1;not null" json:"partner_id"`
	ExternalEventID string `gorm:"uniqueIndex:ux_partner_event,priority:2;not null" json:"external_event_id"`
	UserID          string `gorm:"index;not null" json:"user_id"`
	EventType       string `gorm:"type:varchar(32);not null" json:"event_type"`

	Status string `gorm:"type:varchar(16);default:'received';index" json:"status"`

	// Stored outcome, replayed verbatim on redelivery.
	PointsAwarded int64   `gorm:"default:0" json:"points_awarded"`
	NewBalance    int64   `gorm:"default:0" json:"new_balance"`
	TransactionID *string `gorm:"type:uuid" json:"transaction_id,omitempty"`
	SubmissionID  *string `gorm:"type:uuid" json:"submission_id,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
	RetryCount    int    `gorm:"default:0" json:"retry_count"`

	Timestamps
}
