// models/fraud_log.go
package models

import "time"

// Severity bands. Band boundaries are the configured risk thresholds, shared
// with auto-approval gating so the two engines agree on what "safe" means.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Fraud log resolutions
const (
	ResolutionPending   = "pending"
	ResolutionDismissed = "dismissed"
	ResolutionConfirmed = "confirmed"
	ResolutionReviewed  = "reviewed"
)

// Detection types contributed by the risk evaluator's signals.
const (
	DetectDuplicateSubmission = "duplicate_submission"
	DetectImpossibleTiming    = "impossible_timing"
	DetectIPMismatch          = "ip_mismatch"
	DetectPatternAnomaly      = "pattern_anomaly"
	DetectNewAccountRisk      = "new_account_risk"
	DetectRapidProgression    = "rapid_progression"
)

// FraudDetectionLog is one row per fraud evaluation that crossed the flag
// threshold. Append-mostly: only the resolution fields are mutated, once,
// by a human reviewer.
type FraudDetectionLog struct {
	ID                string   `gorm:"primaryKey;type:uuid" json:"id"`
	UserID            string   `gorm:"index;not null" json:"user_id"`
	MatchSubmissionID *string  `gorm:"type:uuid;index" json:"match_submission_id,omitempty"`
	DetectionTypes    []string `gorm:"serializer:json" json:"detection_types"`
	Severity          string   `gorm:"type:varchar(16);index" json:"severity"`
	RiskScore         int      `gorm:"not null" json:"risk_score"`
	Details           map[string]any `gorm:"serializer:json" json:"details,omitempty"`

	Resolution  string     `gorm:"type:varchar(16);default:'pending';index" json:"resolution"`
	ResolvedBy  *string    `json:"resolved_by,omitempty"`
	ActionTaken string     `json:"action_taken,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`

	Timestamps
}

// Unresolved reports whether the log still counts against the user's trust.
func (f *FraudDetectionLog) Unresolved() bool {
	return f.Resolution == ResolutionPending || f.Resolution == ResolutionConfirmed
}
