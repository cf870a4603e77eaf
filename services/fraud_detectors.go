// services/fraud_detectors.go
package services

import (
	"fmt"
	"math"
	"time"

	"gameplay-rewards-system/models"
)

// Each detector contributes at most subCapMultiplier × its base weight,
// so no single signal can dominate the summed score.
const subCapMultiplier = 1.5

// DetectionContext carries everything a detector may inspect, precomputed by
// the fraud service so detectors stay pure functions.
type DetectionContext struct {
	Config     *models.VerificationConfig
	User       *models.User
	Submission *models.MatchSubmission
	Now        time.Time

	SubmissionsInWindow int     // user submissions inside the duplicate window, incl. this one
	SubmissionsLastHour int     // user submissions in the trailing hour, incl. this one
	DistinctIPsLast24h  int     // distinct IPs seen for the user in 24h, incl. current
	HistoryScores       []int64 // scores of the user's prior submissions
	PointsLast24h       int64   // points awarded in the trailing 24h
}

// Signal is one tripped fraud indicator and its score contribution.
type Signal struct {
	Type   string
	Score  float64
	Detail string
}

// Detector inspects the context and returns nil when its condition does not
// trip. Detectors are registered in a fixed order and their contributions
// summed then clamped — adding a rule never touches the aggregation logic.
type Detector func(*DetectionContext) *Signal

// FraudDetectors is the ordered registry run by the fraud service.
var FraudDetectors = []Detector{
	detectDuplicateSubmission,
	detectImpossibleTiming,
	detectIPMismatch,
	detectPatternAnomaly,
	detectNewAccountRisk,
	detectRapidProgression,
}

// excessRatioScore implements the shared "baseWeight × (count / cap)" formula
// with the per-detector sub-maximum.
func excessRatioScore(count, cap int, weight int) float64 {
	score := float64(weight) * float64(count) / float64(cap)
	return math.Min(score, float64(weight)*subCapMultiplier)
}

func detectDuplicateSubmission(ctx *DetectionContext) *Signal {
	cfg := ctx.Config
	if ctx.SubmissionsInWindow <= cfg.DuplicateWindowCap {
		return nil
	}
	return &Signal{
		Type:  models.DetectDuplicateSubmission,
		Score: excessRatioScore(ctx.SubmissionsInWindow, cfg.DuplicateWindowCap, cfg.DuplicateWeight),
		Detail: fmt.Sprintf("%d submissions in %dm (cap %d)",
			ctx.SubmissionsInWindow, cfg.DuplicateWindowMinutes, cfg.DuplicateWindowCap),
	}
}

func detectImpossibleTiming(ctx *DetectionContext) *Signal {
	cfg := ctx.Config
	if ctx.SubmissionsLastHour <= cfg.MaxSubmissionsPerHour {
		return nil
	}
	return &Signal{
		Type:  models.DetectImpossibleTiming,
		Score: excessRatioScore(ctx.SubmissionsLastHour, cfg.MaxSubmissionsPerHour, cfg.TimingWeight),
		Detail: fmt.Sprintf("%d submissions in the last hour (max %d)",
			ctx.SubmissionsLastHour, cfg.MaxSubmissionsPerHour),
	}
}

func detectIPMismatch(ctx *DetectionContext) *Signal {
	cfg := ctx.Config
	if ctx.DistinctIPsLast24h <= cfg.MaxIPsPerDay {
		return nil
	}
	return &Signal{
		Type:  models.DetectIPMismatch,
		Score: excessRatioScore(ctx.DistinctIPsLast24h, cfg.MaxIPsPerDay, cfg.IPMismatchWeight),
		Detail: fmt.Sprintf("%d distinct IPs in 24h (max %d)",
			ctx.DistinctIPsLast24h, cfg.MaxIPsPerDay),
	}
}

// detectPatternAnomaly flags when the claimed score deviates from the user's
// historical mean by more than the configured number of standard deviations.
// Needs a minimum history before it says anything.
func detectPatternAnomaly(ctx *DetectionContext) *Signal {
	cfg := ctx.Config
	if len(ctx.HistoryScores) < cfg.PatternMinHistory {
		return nil
	}

	mean, stddev := meanStdDev(ctx.HistoryScores)
	if stddev == 0 {
		return nil
	}

	deviation := math.Abs(float64(ctx.Submission.Score)-mean) / stddev
	if deviation <= cfg.PatternStdDevLimit {
		return nil
	}
	return &Signal{
		Type:  models.DetectPatternAnomaly,
		Score: float64(cfg.PatternWeight),
		Detail: fmt.Sprintf("score %d deviates %.1fσ from mean %.0f (limit %.1fσ)",
			ctx.Submission.Score, deviation, mean, cfg.PatternStdDevLimit),
	}
}

func detectNewAccountRisk(ctx *DetectionContext) *Signal {
	age := ctx.User.AccountAge(ctx.Now)
	switch {
	case age < 24*time.Hour:
		return &Signal{
			Type:   models.DetectNewAccountRisk,
			Score:  float64(ctx.Config.NewAccountWeight),
			Detail: "account under 1 day old",
		}
	case age < 7*24*time.Hour:
		return &Signal{
			Type:   models.DetectNewAccountRisk,
			Score:  float64(ctx.Config.NewAccountWeight) / 2,
			Detail: "account under 7 days old",
		}
	default:
		return nil
	}
}

// detectRapidProgression flags a trailing-24h point total above 150% of the
// configured daily cap.
func detectRapidProgression(ctx *DetectionContext) *Signal {
	limit := float64(ctx.Config.DailyPointLimit) * 1.5
	if float64(ctx.PointsLast24h) <= limit {
		return nil
	}
	return &Signal{
		Type:  models.DetectRapidProgression,
		Score: float64(ctx.Config.RapidProgressionWeight),
		Detail: fmt.Sprintf("%d points in 24h exceeds 150%% of daily cap %d",
			ctx.PointsLast24h, ctx.Config.DailyPointLimit),
	}
}

func meanStdDev(values []int64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
