// services/trust_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gameplay-rewards-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrTrustUserNotFound = errors.New("trust: user not found")

// Trust component weights. Positives sum to 100 at their caps; the fraud
// penalty pass subtracts after all positives.
const (
	trustBaseScore          = 15 // having an account at all
	trustIdentityLinkBonus  = 30 // verified strong-identity link — largest single positive
	trustPerVerifiedMatch   = 3
	trustVerifiedMatchCap   = 30
	trustPerWeekOfAge       = 1
	trustAccountAgeCap      = 25
	trustPenaltyCritical    = 30
	trustPenaltyHigh        = 20
	trustPenaltyMedium      = 10
)

// TrustService derives the persistent per-user trust score and tier. Every
// recompute fully replays the user's relevant history — compute traded for
// the invariant that the stored score can never drift from what defines it.
type TrustService struct {
	DB *gorm.DB
}

func NewTrustService(db *gorm.DB) *TrustService {
	return &TrustService{DB: db}
}

// Recompute replays the user's history into a fresh 0..100 score and tier
// and upserts the snapshot.
func (s *TrustService) Recompute(userID string) (*models.TrustScore, error) {
	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrustUserNotFound
		}
		return nil, err
	}

	now := time.Now()
	components := map[string]int{}
	var reasons []string

	components["base"] = trustBaseScore

	var verifiedLinks int64
	if err := s.DB.Model(&models.LinkedAccount{}).
		Where("user_id = ? AND verified = ?", userID, true).
		Count(&verifiedLinks).Error; err != nil {
		return nil, err
	}
	if verifiedLinks > 0 {
		components["identity_link"] = trustIdentityLinkBonus
		reasons = append(reasons, "verified identity link")
	}

	var verifiedMatches int64
	if err := s.DB.Model(&models.MatchSubmission{}).
		Where("user_id = ? AND status = ? AND cross_verified = ?", userID, models.SubmissionApproved, true).
		Count(&verifiedMatches).Error; err != nil {
		return nil, err
	}
	matchBonus := int(verifiedMatches) * trustPerVerifiedMatch
	if matchBonus > trustVerifiedMatchCap {
		matchBonus = trustVerifiedMatchCap
	}
	if matchBonus > 0 {
		components["verified_matches"] = matchBonus
		reasons = append(reasons, fmt.Sprintf("%d verified matches", verifiedMatches))
	}

	weeks := int(user.AccountAge(now) / (7 * 24 * time.Hour))
	ageBonus := weeks * trustPerWeekOfAge
	if ageBonus > trustAccountAgeCap {
		ageBonus = trustAccountAgeCap
	}
	if ageBonus > 0 {
		components["account_age"] = ageBonus
	}

	score := 0
	for _, v := range components {
		score += v
	}

	// Penalty pass: unresolved and confirmed fraud logs, weighted by
	// severity, subtracted after all positives.
	var fraudLogs []models.FraudDetectionLog
	if err := s.DB.Where("user_id = ? AND resolution IN ?",
		userID, []string{models.ResolutionPending, models.ResolutionConfirmed}).
		Find(&fraudLogs).Error; err != nil {
		return nil, err
	}
	penalty := 0
	for _, flog := range fraudLogs {
		switch flog.Severity {
		case models.SeverityCritical:
			penalty += trustPenaltyCritical
		case models.SeverityHigh:
			penalty += trustPenaltyHigh
		case models.SeverityMedium:
			penalty += trustPenaltyMedium
		}
	}
	if penalty > 0 {
		components["fraud_penalty"] = -penalty
		reasons = append(reasons, fmt.Sprintf("%d open/confirmed fraud logs", len(fraudLogs)))
		score -= penalty
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	snapshot := &models.TrustScore{
		UserID:         userID,
		Score:          score,
		Tier:           models.TierForScore(score),
		Components:     components,
		Reasons:        reasons,
		LastComputedAt: now,
	}

	err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"score", "tier", "components", "reasons", "last_computed_at", "updated_at",
		}),
	}).Create(snapshot).Error
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// LogEvent appends a score-affecting audit row and then recomputes, so the
// audit trail and the materialized score can never disagree on final state.
func (s *TrustService) LogEvent(userID, eventType string, delta int, reason, sourceType, sourceID string) (*models.TrustScore, error) {
	event := &models.TrustScoreEvent{
		UserID:     userID,
		EventType:  eventType,
		Delta:      delta,
		Reason:     reason,
		SourceType: sourceType,
		SourceID:   sourceID,
	}
	if err := s.DB.Create(event).Error; err != nil {
		return nil, err
	}
	return s.Recompute(userID)
}

// AppendEventTx writes the audit row inside a caller's transaction. The
// recompute is the caller's responsibility once the tx commits (the replay
// must see committed history).
func (s *TrustService) AppendEventTx(tx *gorm.DB, userID, eventType string, delta int, reason, sourceType, sourceID string) error {
	return tx.Create(&models.TrustScoreEvent{
		UserID:     userID,
		EventType:  eventType,
		Delta:      delta,
		Reason:     reason,
		SourceType: sourceType,
		SourceID:   sourceID,
	}).Error
}

// GetTrustScore returns the snapshot, computing it on first read.
func (s *TrustService) GetTrustScore(userID string) (*models.TrustScore, error) {
	var snapshot models.TrustScore
	err := s.DB.Where("user_id = ?", userID).First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("ℹ️ No trust snapshot for %s yet — computing", userID)
		return s.Recompute(userID)
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetTrustHistory returns the newest score-affecting events for a user.
func (s *TrustService) GetTrustHistory(userID string, limit int) ([]models.TrustScoreEvent, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var events []models.TrustScoreEvent
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
