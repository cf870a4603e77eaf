// services/fraud_service.go
package services

import (
	"context"
	"log"
	"math"
	"time"

	"gameplay-rewards-system/models"
	"gameplay-rewards-system/utils"

	"gorm.io/gorm"
)

// FraudEvaluation is the typed outcome of a risk evaluation. A high score is
// a successful evaluation that routes to review — never an error.
type FraudEvaluation struct {
	RiskScore      int      `json:"risk_score"` // 0..100
	DetectionTypes []string `json:"detection_types"`
	Severity       string   `json:"severity"`
	ShouldFlag     bool     `json:"should_flag"`
	LogID          string   `json:"log_id,omitempty"`
}

// FraudService converts independent behavioral signals into one bounded risk
// score. Detectors run off a precomputed context; window counts come from
// redis when available and fall back to DB queries.
type FraudService struct {
	DB      *gorm.DB
	Config  *ConfigService
	Ledger  *LedgerService
	Queue   *QueueService
	Trust   *TrustService
	Windows *utils.WindowCounters // optional
}

func NewFraudService(db *gorm.DB, config *ConfigService, ledger *LedgerService, queue *QueueService, trust *TrustService, windows *utils.WindowCounters) *FraudService {
	return &FraudService{DB: db, Config: config, Ledger: ledger, Queue: queue, Trust: trust, Windows: windows}
}

// Evaluate runs every registered detector for a submission, clamps the summed
// score to 0..100, writes a FraudDetectionLog once the flag threshold is
// crossed, and synchronously enqueues review work for high/critical results.
// The synchronous enqueue is the emergency brake — never deferred to a batch.
func (s *FraudService) Evaluate(ctx context.Context, sub *models.MatchSubmission, user *models.User, ipAddress, deviceFingerprint string) (*FraudEvaluation, error) {
	cfg := s.Config.Get()
	now := time.Now()

	dctx, err := s.buildContext(ctx, cfg, sub, user, ipAddress, now)
	if err != nil {
		return nil, err
	}

	var total float64
	var types []string
	details := map[string]any{}
	for _, detect := range FraudDetectors {
		sig := detect(dctx)
		if sig == nil {
			continue
		}
		total += sig.Score
		types = append(types, sig.Type)
		details[sig.Type] = sig.Detail
	}
	if deviceFingerprint != "" {
		details["device_fingerprint"] = deviceFingerprint
	}
	if ipAddress != "" {
		details["ip_address"] = ipAddress
	}

	score := int(math.Min(math.Max(total, 0), 100))
	severity := cfg.SeverityForScore(score)

	eval := &FraudEvaluation{
		RiskScore:      score,
		DetectionTypes: types,
		Severity:       severity,
		ShouldFlag:     score >= cfg.RiskMediumThreshold,
	}

	if !eval.ShouldFlag {
		return eval, nil
	}

	flog := &models.FraudDetectionLog{
		UserID:            user.ID,
		MatchSubmissionID: &sub.ID,
		DetectionTypes:    types,
		Severity:          severity,
		RiskScore:         score,
		Details:           details,
		Resolution:        models.ResolutionPending,
	}
	if err := s.DB.Create(flog).Error; err != nil {
		return nil, err
	}
	eval.LogID = flog.ID
	log.Printf("🚩 Fraud flagged: user=%s submission=%s score=%d severity=%s types=%v",
		user.ID, sub.ID, score, severity, types)

	// High and critical evaluations go straight onto the review queue.
	if severity == models.SeverityHigh || severity == models.SeverityCritical {
		priority := models.PriorityHigh
		if severity == models.SeverityCritical {
			priority = models.PriorityCritical
		}
		if _, err := s.Queue.Enqueue(models.SourceFraudLog, flog.ID, user.ID, priority, "risk score "+severity); err != nil {
			return nil, err
		}
	}

	// A pending flag weighs on the trust score immediately, not at the
	// next unrelated recompute.
	if _, err := s.Trust.Recompute(user.ID); err != nil {
		log.Printf("⚠️ Trust recompute after fraud flag failed for %s: %v", user.ID, err)
	}

	return eval, nil
}

// buildContext precomputes every input the detectors read. Counters prefer
// the shared redis windows (correct across processes); a redis failure
// degrades to per-request DB counts rather than blocking evaluation.
func (s *FraudService) buildContext(ctx context.Context, cfg *models.VerificationConfig, sub *models.MatchSubmission, user *models.User, ipAddress string, now time.Time) (*DetectionContext, error) {
	dctx := &DetectionContext{
		Config:     cfg,
		User:       user,
		Submission: sub,
		Now:        now,
	}

	window := time.Duration(cfg.DuplicateWindowMinutes) * time.Minute

	usedRedis := false
	if s.Windows != nil {
		if n, err := s.Windows.IncrSubmissions(ctx, user.ID, "dup", window); err == nil {
			dctx.SubmissionsInWindow = int(n)
			usedRedis = true
		}
		if n, err := s.Windows.IncrSubmissions(ctx, user.ID, "hourly", time.Hour); err == nil {
			dctx.SubmissionsLastHour = int(n)
		}
		if ipAddress != "" {
			if n, err := s.Windows.TouchIP(ctx, user.ID, ipAddress); err == nil {
				dctx.DistinctIPsLast24h = int(n)
			}
		}
	}

	if !usedRedis {
		var inWindow, inHour int64
		if err := s.DB.Model(&models.MatchSubmission{}).
			Where("user_id = ? AND created_at >= ?", user.ID, now.Add(-window)).
			Count(&inWindow).Error; err != nil {
			return nil, err
		}
		if err := s.DB.Model(&models.MatchSubmission{}).
			Where("user_id = ? AND created_at >= ?", user.ID, now.Add(-time.Hour)).
			Count(&inHour).Error; err != nil {
			return nil, err
		}
		dctx.SubmissionsInWindow = int(inWindow)
		dctx.SubmissionsLastHour = int(inHour)
		if ipAddress != "" {
			dctx.DistinctIPsLast24h = 1 // only the current request is visible without the shared cache
		}
	}

	if err := s.DB.Model(&models.MatchSubmission{}).
		Where("user_id = ? AND id <> ?", user.ID, sub.ID).
		Order("created_at DESC").
		Limit(200).
		Pluck("score", &dctx.HistoryScores).Error; err != nil {
		return nil, err
	}

	points, err := s.Ledger.PointsAwardedSince(user.ID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	dctx.PointsLast24h = points

	return dctx, nil
}
