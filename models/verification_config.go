// models/verification_config.go
package models

import "time"

// VerificationConfig is the persisted, hot-readable policy row. Loaded and
// cached by the config service; edits take effect without a redeploy. A single
// row (the most recently updated) is authoritative.
type VerificationConfig struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	// Risk severity thresholds — shared by the fraud evaluator's bands and
	// the auto-approval gate so the two engines cannot disagree.
	RiskMediumThreshold   int `gorm:"default:30" json:"risk_medium_threshold"`
	RiskHighThreshold     int `gorm:"default:70" json:"risk_high_threshold"`
	RiskCriticalThreshold int `gorm:"default:90" json:"risk_critical_threshold"`

	// Detection windows and caps
	DuplicateWindowMinutes int     `gorm:"default:10" json:"duplicate_window_minutes"`
	DuplicateWindowCap     int     `gorm:"default:3" json:"duplicate_window_cap"`
	MaxSubmissionsPerHour  int     `gorm:"default:5" json:"max_submissions_per_hour"`
	MaxIPsPerDay           int     `gorm:"default:3" json:"max_ips_per_day"`
	PatternMinHistory      int     `gorm:"default:10" json:"pattern_min_history"`
	PatternStdDevLimit     float64 `gorm:"default:3" json:"pattern_std_dev_limit"`

	// Detector base weights
	DuplicateWeight        int `gorm:"default:25" json:"duplicate_weight"`
	TimingWeight           int `gorm:"default:25" json:"timing_weight"`
	IPMismatchWeight       int `gorm:"default:20" json:"ip_mismatch_weight"`
	PatternWeight          int `gorm:"default:20" json:"pattern_weight"`
	NewAccountWeight       int `gorm:"default:15" json:"new_account_weight"`
	RapidProgressionWeight int `gorm:"default:20" json:"rapid_progression_weight"`

	// Auto-approval policy
	AutoApprovalEnabled  bool `gorm:"default:true" json:"auto_approval_enabled"`
	ShadowMode           bool `gorm:"default:false" json:"shadow_mode"`
	AutoApproveMinScore  int  `gorm:"default:75" json:"auto_approve_min_score"`
	RequireCrossCheck    bool `gorm:"default:true" json:"require_cross_check"`
	MinSubmissionHistory int  `gorm:"default:5" json:"min_submission_history"`

	// SLA hours per priority
	SLAHoursCritical int `gorm:"default:4" json:"sla_hours_critical"`
	SLAHoursHigh     int `gorm:"default:24" json:"sla_hours_high"`
	SLAHoursMedium   int `gorm:"default:48" json:"sla_hours_medium"`
	SLAHoursLow      int `gorm:"default:72" json:"sla_hours_low"`

	// Point limits
	MaxPointsPerMatch int64 `gorm:"default:100" json:"max_points_per_match"`
	DailyPointLimit   int64 `gorm:"default:500" json:"daily_point_limit"`
	WeeklyPointLimit  int64 `gorm:"default:2000" json:"weekly_point_limit"`

	// Uploads
	MaxProofFileSizeBytes int64 `gorm:"default:10485760" json:"max_proof_file_size_bytes"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SLAHours returns the review deadline window for a priority.
func (c *VerificationConfig) SLAHours(priority int) int {
	switch priority {
	case PriorityCritical:
		return c.SLAHoursCritical
	case PriorityHigh:
		return c.SLAHoursHigh
	case PriorityMedium:
		return c.SLAHoursMedium
	default:
		return c.SLAHoursLow
	}
}

// SeverityForScore maps a clamped risk score onto its severity band.
func (c *VerificationConfig) SeverityForScore(score int) string {
	switch {
	case score >= c.RiskCriticalThreshold:
		return SeverityCritical
	case score >= c.RiskHighThreshold:
		return SeverityHigh
	case score >= c.RiskMediumThreshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
