// services/verification_service.go
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"gameplay-rewards-system/models"

	"gorm.io/gorm"
)

var ErrSubmissionNotFound = errors.New("verification: submission not found")
var ErrSubmissionClosed = errors.New("verification: submission already closed")

// Score contributions. The clamp keeps the final score in 0..100.
const (
	scoreCrossCheckBonus    = 45 // authoritative third-party record matched
	scoreUnverifiedBaseline = 15 // claim accepted without cross-check
	scoreProofWithMetadata  = 20
	scoreProofNoMetadata    = -10
	scoreNewAccountPenalty  = -10 // under 7 days
	scoreMatureAccountBonus = 10  // over 90 days
	scoreHighAccuracyBonus  = 15  // historical accuracy above 95%
	scoreLowAccuracyPenalty = -15 // historical accuracy below 80%
)

// Verification fraud flags (evidence-quality reasons, distinct from the risk
// evaluator's detection types).
const (
	FlagNoCrossCheck         = "no_cross_check"
	FlagProofMissingMetadata = "proof_missing_metadata"
	FlagNewAccount           = "new_account"
	FlagLowAccuracy          = "low_historical_accuracy"
)

// VerificationResult is the typed outcome of evidence scoring.
type VerificationResult struct {
	Score             int      `json:"verification_score"` // 0..100
	Method            string   `json:"verification_method"`
	ShouldAutoApprove bool     `json:"should_auto_approve"`
	WouldAutoApprove  bool     `json:"would_auto_approve"` // ignores the enabled/shadow gates
	FraudFlags        []string `json:"fraud_flags,omitempty"`
}

// VerificationService converts evidence quality and historical reliability
// into a bounded confidence score and the auto-approval decision. In shadow
// mode the would-have decision is still computed and persisted so policy can
// be evaluated against real traffic before being trusted with money.
type VerificationService struct {
	DB         *gorm.DB
	Config     *ConfigService
	CrossCheck *CrossCheckClient // optional
}

func NewVerificationService(db *gorm.DB, config *ConfigService, crossCheck *CrossCheckClient) *VerificationService {
	return &VerificationService{DB: db, Config: config, CrossCheck: crossCheck}
}

// Verify scores a pending submission and persists score, method, flags and
// the shadow decision back onto it before any branch acts on the result.
func (s *VerificationService) Verify(ctx context.Context, submissionID string) (*VerificationResult, error) {
	var sub models.MatchSubmission
	if err := s.DB.Where("id = ?", submissionID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if sub.Closed() {
		return nil, ErrSubmissionClosed
	}

	var user models.User
	if err := s.DB.Where("id = ?", sub.UserID).First(&user).Error; err != nil {
		return nil, err
	}

	cfg := s.Config.Get()
	now := time.Now()

	s.runCrossCheck(ctx, &sub, &user)

	score := 0
	var flags []string

	if sub.CrossVerified {
		score += scoreCrossCheckBonus
	} else {
		score += scoreUnverifiedBaseline
		flags = append(flags, FlagNoCrossCheck)
	}

	// Proof presence and richness. A proof with no metadata is worse than no
	// proof at all — it usually means a stripped or fabricated artifact.
	var proofs []models.VerificationProof
	if err := s.DB.Where("source_type = ? AND source_id = ?", models.SourceMatchSubmission, sub.ID).
		Find(&proofs).Error; err != nil {
		return nil, err
	}
	if len(proofs) > 0 {
		rich := false
		for _, p := range proofs {
			if p.HasMetadata() {
				rich = true
				break
			}
		}
		if rich {
			score += scoreProofWithMetadata
		} else {
			score += scoreProofNoMetadata
			flags = append(flags, FlagProofMissingMetadata)
		}
	}

	age := user.AccountAge(now)
	if age < 7*24*time.Hour {
		score += scoreNewAccountPenalty
		flags = append(flags, FlagNewAccount)
	} else if age > 90*24*time.Hour {
		score += scoreMatureAccountBonus
	}

	// Historical accuracy only speaks once the user has enough history.
	var total, crossVerified int64
	if err := s.DB.Model(&models.MatchSubmission{}).
		Where("user_id = ? AND id <> ?", user.ID, sub.ID).
		Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.DB.Model(&models.MatchSubmission{}).
		Where("user_id = ? AND id <> ? AND cross_verified = ?", user.ID, sub.ID, true).
		Count(&crossVerified).Error; err != nil {
		return nil, err
	}
	if total >= int64(cfg.MinSubmissionHistory) {
		accuracy := float64(crossVerified) / float64(total)
		if accuracy > 0.95 {
			score += scoreHighAccuracyBonus
		} else if accuracy < 0.80 {
			score += scoreLowAccuracyPenalty
			flags = append(flags, FlagLowAccuracy)
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	criteriaMet := score >= cfg.AutoApproveMinScore &&
		(sub.CrossVerified || !cfg.RequireCrossCheck) &&
		total >= int64(cfg.MinSubmissionHistory)

	result := &VerificationResult{
		Score:            score,
		WouldAutoApprove: criteriaMet,
		ShouldAutoApprove: criteriaMet &&
			cfg.AutoApprovalEnabled &&
			!cfg.ShadowMode,
		FraudFlags: flags,
	}

	switch {
	case result.ShouldAutoApprove:
		result.Method = models.VerificationAuto
	case sub.CrossVerified:
		result.Method = models.VerificationHybrid
	default:
		result.Method = models.VerificationManual
	}

	if cfg.ShadowMode && criteriaMet {
		log.Printf("👻 Shadow mode: submission %s would have auto-approved (score %d)", sub.ID, score)
	}

	// Persist the decision before either branch acts on it.
	would := result.WouldAutoApprove
	sub.VerificationScore = score
	sub.VerificationMethod = result.Method
	sub.FraudFlags = append(sub.FraudFlags, flags...)
	sub.WouldAutoApprove = &would
	if err := s.DB.Save(&sub).Error; err != nil {
		return nil, err
	}

	return result, nil
}

// runCrossCheck consults the authoritative API when the submission has not
// been cross-verified yet. Timeouts and errors degrade to "unverified".
func (s *VerificationService) runCrossCheck(ctx context.Context, sub *models.MatchSubmission, user *models.User) {
	if sub.CrossVerified || s.CrossCheck == nil || sub.ExternalMatchID == "" {
		return
	}

	record, err := s.CrossCheck.LookupMatch(ctx, sub.GameType, sub.ExternalMatchID, user.ExternalUserID)
	if err != nil {
		log.Printf("⚠️ Cross-check unavailable for submission %s, treating as unverified: %v", sub.ID, err)
		return
	}
	if !record.Found {
		return
	}
	// The claim must agree with the authoritative record to count.
	if record.Result == sub.Result {
		sub.CrossVerified = true
	}
}
