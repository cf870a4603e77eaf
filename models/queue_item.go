// models/queue_item.go
package models

import "time"

// Queue item statuses
const (
	QueuePending   = "pending"
	QueueInReview  = "in_review"
	QueueCompleted = "completed"
	QueueSkipped   = "skipped"
)

// Review priorities (higher = more urgent)
const (
	PriorityLow      = 1
	PriorityMedium   = 2
	PriorityHigh     = 3
	PriorityCritical = 4
)

// Resolution actions accepted by the admin review API.
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionFlag     = "flag"
	ActionEscalate = "escalate"
	ActionSkip     = "skip"
)

// VerificationQueueItem is a unit of human-review work referencing exactly one
// MatchSubmission, FraudDetectionLog, or VerificationProof.
//
// DedupeKey holds "<item_type>:<item_id>" while the item is open and is
// cleared on completion; the unique index on it enforces at most one open
// item per (itemType, itemID) even under concurrent enqueuers.
type VerificationQueueItem struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	ItemType string `gorm:"type:varchar(32);not null;index" json:"item_type"`
	ItemID   string `gorm:"type:uuid;not null;index" json:"item_id"`
	UserID   string `gorm:"index;not null" json:"user_id"`

	DedupeKey *string `gorm:"uniqueIndex" json:"-"`

	Priority int       `gorm:"not null;index" json:"priority"` // 1..4
	SLADueAt time.Time `gorm:"not null;index" json:"sla_due_at"`
	Reason   string    `json:"reason,omitempty"`

	Status          string     `gorm:"type:varchar(16);default:'pending';index" json:"status"`
	AssignedTo      *string    `json:"assigned_to,omitempty"`
	ResolutionAction string    `json:"resolution_action,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// Open reports whether the item still awaits a reviewer decision.
func (q *VerificationQueueItem) Open() bool {
	return q.Status == QueuePending || q.Status == QueueInReview
}

// QueueDedupeKey builds the open-item uniqueness key.
func QueueDedupeKey(itemType, itemID string) string {
	return itemType + ":" + itemID
}
