// models/match_submission.go
package models

import "time"

// Submission lifecycle
const (
	SubmissionPending  = "pending"
	SubmissionApproved = "approved"
	SubmissionRejected = "rejected"
)

// Verification methods
const (
	VerificationAuto    = "auto"
	VerificationManual  = "manual"
	VerificationHybrid  = "hybrid"
	VerificationPending = "pending"
)

// MatchSubmission records a single claimed gameplay event (user-submitted or
// partner-reported). Immutable once approved/rejected except audit metadata.
type MatchSubmission struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string  `gorm:"index;not null" json:"user_id"`
	PartnerID      *string `gorm:"type:uuid;index" json:"partner_id,omitempty"` // nil = user-submitted
	GameType       string  `gorm:"index;not null" json:"game_type"`
	ExternalMatchID string `gorm:"index" json:"external_match_id"`

	// Claimed outcome
	Result       string         `gorm:"type:varchar(16);check:result IN ('win','loss','draw','incomplete')" json:"result"`
	Placement    int            `gorm:"default:0" json:"placement"` // 0 = n/a
	Score        int64          `json:"score"`
	PointsClaimed int64         `json:"points_claimed"`
	MatchData    map[string]any `gorm:"serializer:json" json:"match_data,omitempty"`
	MatchEndedAt time.Time      `json:"match_ended_at"`

	// Verification outcome
	CrossVerified      bool     `gorm:"default:false" json:"cross_verified"`
	VerificationScore  int      `gorm:"default:0" json:"verification_score"`
	VerificationMethod string   `gorm:"type:varchar(16);default:'pending'" json:"verification_method"`
	FraudFlags         []string `gorm:"serializer:json" json:"fraud_flags,omitempty"`

	// Shadow-mode record: what auto-approval would have decided had it been
	// allowed to act. Persisted so live policy can be evaluated offline.
	WouldAutoApprove *bool `json:"would_auto_approve,omitempty"`

	Status      string  `gorm:"type:varchar(16);default:'pending';index" json:"status"`
	ReviewedBy  *string `json:"reviewed_by,omitempty"`
	ReviewNotes string  `json:"review_notes,omitempty"`

	Timestamps
}

// Closed reports whether the submission reached a terminal state.
func (m *MatchSubmission) Closed() bool {
	return m.Status == SubmissionApproved || m.Status == SubmissionRejected
}
