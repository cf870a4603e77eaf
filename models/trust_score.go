// models/trust_score.go
package models

import "time"

// Trust tiers, derived from the recomputed score. Boundaries are exact:
// score 70 is trusted, 69 is developing.
const (
	TierUnverified = "unverified"
	TierDeveloping = "developing"
	TierTrusted    = "trusted"
	TierElite      = "elite"
)

// Tier thresholds (minimum score for tier)
const (
	TierDevelopingMin = 40
	TierTrustedMin    = 70
	TierEliteMin      = 90
)

// TierForScore maps a clamped 0-100 score onto its tier.
func TierForScore(score int) string {
	switch {
	case score >= TierEliteMin:
		return TierElite
	case score >= TierTrustedMin:
		return TierTrusted
	case score >= TierDevelopingMin:
		return TierDeveloping
	default:
		return TierUnverified
	}
}

// TrustScore is the one-per-user materialized trust snapshot. It is always
// fully recomputed from history, never incrementally patched, so it cannot
// drift from its defining events.
type TrustScore struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	Score      int            `gorm:"not null" json:"score"` // 0..100
	Tier       string         `gorm:"type:varchar(16);not null;index" json:"tier"`
	Components map[string]int `gorm:"serializer:json" json:"components"`
	Reasons    []string       `gorm:"serializer:json" json:"reasons,omitempty"`

	LastComputedAt time.Time `gorm:"not null" json:"last_computed_at"`

	Timestamps
}

// Trust event types
const (
	TrustEventVerifiedMatch  = "verified_match"
	TrustEventManualApproval = "manual_approval"
	TrustEventFraudConfirmed = "fraud_confirmed"
	TrustEventFraudDismissed = "fraud_dismissed"
	TrustEventIdentityLinked = "identity_linked"
)

// TrustScoreEvent is the append-only audit trail of score-affecting
// occurrences. Delta is advisory narration — the snapshot above is always
// recomputed from full history, so the two can never disagree on final state.
type TrustScoreEvent struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"index;not null" json:"user_id"`
	EventType  string    `gorm:"type:varchar(32);not null" json:"event_type"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason,omitempty"`
	SourceType string    `gorm:"type:varchar(32)" json:"source_type,omitempty"`
	SourceID   string    `json:"source_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
