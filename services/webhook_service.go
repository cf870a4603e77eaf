// services/webhook_service.go
package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"gameplay-rewards-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound         = errors.New("webhook: user not found")
	ErrInactiveSubscription = errors.New("webhook: subscription not active")
	ErrRetriesExhausted     = errors.New("webhook: delivery retries exhausted")
)

// Partners are expected to redeliver failed events; after this many the
// event stays failed for good.
const maxEventRetries = 5

// ValidationError carries field-level detail back to the partner (400).
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "webhook: invalid payload (" + strings.Join(parts, "; ") + ")"
}

// WebhookEnvelope is the signed partner payload. APIKey is consumed by the
// auth middleware; the rest drives processing.
type WebhookEnvelope struct {
	APIKey          string            `json:"apiKey"`
	UserID          string            `json:"userId"` // external user id
	ExternalEventID string            `json:"externalEventId"`
	Timestamp       int64             `json:"timestamp"`
	MatchData       *MatchPayload     `json:"matchData,omitempty"`
	AchievementData *AchievementCheck `json:"achievementData,omitempty"`
	TournamentData  *TournamentPayload `json:"tournamentData,omitempty"`
}

// MatchPayload is one claimed match outcome.
type MatchPayload struct {
	GameType          string         `json:"gameType"`
	MatchID           string         `json:"matchId"`
	Result            string         `json:"result"`
	Score             int64          `json:"score"`
	Points            int64          `json:"points"`
	EndedAt           time.Time      `json:"endedAt"`
	IPAddress         string         `json:"ipAddress,omitempty"`
	DeviceFingerprint string         `json:"deviceFingerprint,omitempty"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// TournamentPayload is a tournament result claim — a match with a placement.
type TournamentPayload struct {
	MatchPayload
	Placement int `json:"placement"`
}

// AchievementCheck asks for a condition re-evaluation for a game; it carries
// no point claim of its own.
type AchievementCheck struct {
	GameType string `json:"gameType"`
}

// WebhookOutcome is what the partner sees, and what a redelivery replays.
type WebhookOutcome struct {
	Success       bool   `json:"success"`
	EventID       string `json:"eventId"`
	PointsAwarded int64  `json:"pointsAwarded"`
	NewBalance    int64  `json:"newBalance"`
	Status        string `json:"status"`
}

// WebhookService orchestrates ingestion end to end: idempotency, entitlement,
// parallel fraud + verification scoring, then the auto-approve or manual
// branch, with the outcome recorded back on the ExternalEvent row.
type WebhookService struct {
	DB           *gorm.DB
	Config       *ConfigService
	Fraud        *FraudService
	Verifier     *VerificationService
	Ledger       *LedgerService
	Trust        *TrustService
	Achievements *AchievementService
	Queue        *QueueService
}

func NewWebhookService(db *gorm.DB, config *ConfigService, fraud *FraudService, verifier *VerificationService,
	ledger *LedgerService, trust *TrustService, achievements *AchievementService, queue *QueueService) *WebhookService {
	return &WebhookService{
		DB: db, Config: config, Fraud: fraud, Verifier: verifier,
		Ledger: ledger, Trust: trust, Achievements: achievements, Queue: queue,
	}
}

// ProcessEvent handles one authenticated delivery. Safe to call any number of
// times with the same (partner, externalEventId) — replays return the stored
// outcome without re-awarding.
func (s *WebhookService) ProcessEvent(ctx context.Context, partner *models.Partner, envelope *WebhookEnvelope) (*WebhookOutcome, error) {
	if err := validateEnvelope(envelope); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.DB.Where("external_user_id = ?", envelope.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.SubscriptionStatus != models.SubscriptionActive {
		return nil, ErrInactiveSubscription
	}

	event, replay, err := s.claimEvent(partner, envelope, &user)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		log.Printf("🔁 Replayed delivery %s/%s — returning stored outcome", partner.ID, envelope.ExternalEventID)
		return replay, nil
	}

	outcome, procErr := s.process(ctx, partner, envelope, &user, event)
	if procErr != nil {
		s.recordFailure(event, procErr)
		return nil, procErr
	}

	s.recordSuccess(event, outcome)
	return outcome, nil
}

// claimEvent creates the idempotency row or, if the delivery is a repeat,
// returns the stored outcome. The unique (partner, externalEventId) index
// settles concurrent duplicate deliveries.
func (s *WebhookService) claimEvent(partner *models.Partner, envelope *WebhookEnvelope, user *models.User) (*models.ExternalEvent, *WebhookOutcome, error) {
	event := &models.ExternalEvent{
		PartnerID:       partner.ID,
		ExternalEventID: envelope.ExternalEventID,
		UserID:          user.ID,
		EventType:       envelope.eventType(),
		Status:          models.EventStatusReceived,
	}

	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "partner_id"}, {Name: "external_event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return nil, nil, res.Error
	}
	if res.RowsAffected > 0 {
		return event, nil, nil
	}

	// Repeat delivery: fetch the existing row and decide from its status.
	var existing models.ExternalEvent
	if err := s.DB.Where("partner_id = ? AND external_event_id = ?",
		partner.ID, envelope.ExternalEventID).First(&existing).Error; err != nil {
		return nil, nil, err
	}

	switch existing.Status {
	case models.EventStatusProcessed:
		return nil, &WebhookOutcome{
			Success:       true,
			EventID:       existing.ID,
			PointsAwarded: existing.PointsAwarded,
			NewBalance:    existing.NewBalance,
			Status:        existing.Status,
		}, nil

	case models.EventStatusFailed:
		if existing.RetryCount >= maxEventRetries {
			return nil, nil, ErrRetriesExhausted
		}
		// Partner redelivery of a failed event: take another run at it.
		if err := s.DB.Model(&existing).
			Updates(map[string]any{
				"status":      models.EventStatusReceived,
				"retry_count": existing.RetryCount + 1,
			}).Error; err != nil {
			return nil, nil, err
		}
		existing.RetryCount++
		existing.Status = models.EventStatusReceived
		return &existing, nil, nil

	default:
		// Still "received": a concurrent delivery of the same event is in
		// flight. Report acceptance without double-processing.
		return nil, &WebhookOutcome{
			Success: true,
			EventID: existing.ID,
			Status:  existing.Status,
		}, nil
	}
}

func (s *WebhookService) process(ctx context.Context, partner *models.Partner, envelope *WebhookEnvelope, user *models.User, event *models.ExternalEvent) (*WebhookOutcome, error) {
	// A bare achievement check carries no claim — evaluate and return.
	if envelope.AchievementData != nil && envelope.MatchData == nil && envelope.TournamentData == nil {
		if _, err := s.Achievements.CheckAndAward(user.ID, envelope.AchievementData.GameType); err != nil {
			return nil, err
		}
		balance, err := s.Ledger.BalanceOf(user.ID)
		if err != nil {
			return nil, err
		}
		return &WebhookOutcome{Success: true, EventID: event.ID, NewBalance: balance, Status: models.EventStatusProcessed}, nil
	}

	sub, payload, err := s.createSubmission(partner, envelope, user, event)
	if err != nil {
		return nil, err
	}
	event.SubmissionID = &sub.ID

	// Fraud and verification scoring are independent — run them in parallel.
	var (
		wg      sync.WaitGroup
		eval    *FraudEvaluation
		verdict *VerificationResult
		evalErr error
		verErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		eval, evalErr = s.Fraud.Evaluate(ctx, sub, user, payload.IPAddress, payload.DeviceFingerprint)
	}()
	go func() {
		defer wg.Done()
		verdict, verErr = s.Verifier.Verify(ctx, sub.ID)
	}()
	wg.Wait()
	if evalErr != nil {
		return nil, evalErr
	}
	if verErr != nil {
		return nil, verErr
	}

	autoApprove := verdict.ShouldAutoApprove && !eval.ShouldFlag

	if !autoApprove {
		// Manual branch. High/critical fraud already enqueued its log; the
		// submission itself is queued so a reviewer sees the claim.
		if _, err := s.Queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "not auto-approved"); err != nil {
			return nil, err
		}
		balance, err := s.Ledger.BalanceOf(user.ID)
		if err != nil {
			return nil, err
		}
		return &WebhookOutcome{Success: true, EventID: event.ID, NewBalance: balance, Status: models.EventStatusProcessed}, nil
	}

	// Auto-approve branch: approve, pay, evaluate achievements, feed trust.
	var entry *models.PointTransaction
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MatchSubmission{}).
			Where("id = ? AND status = ?", sub.ID, models.SubmissionPending).
			Update("status", models.SubmissionApproved).Error; err != nil {
			return err
		}
		var aerr error
		entry, aerr = s.Ledger.AwardTx(tx, user.ID, sub.PointsClaimed,
			models.ReasonMatchReward, models.SourceMatchSubmission, sub.ID, "auto-approved match")
		if aerr != nil {
			return aerr
		}
		if _, aerr = s.Achievements.CheckAndAwardTx(tx, user.ID, sub.GameType); aerr != nil {
			return aerr
		}
		return s.Trust.AppendEventTx(tx, user.ID, models.TrustEventVerifiedMatch,
			trustDeltaVerifiedMatch, "auto-approved verified match",
			models.SourceMatchSubmission, sub.ID)
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.Trust.Recompute(user.ID); err != nil {
		log.Printf("⚠️ Trust recompute after auto-approval failed for %s: %v", user.ID, err)
	}

	balance, err := s.Ledger.BalanceOf(user.ID)
	if err != nil {
		return nil, err
	}
	event.TransactionID = &entry.ID
	return &WebhookOutcome{
		Success:       true,
		EventID:       event.ID,
		PointsAwarded: entry.Amount,
		NewBalance:    balance,
		Status:        models.EventStatusProcessed,
	}, nil
}

func (s *WebhookService) createSubmission(partner *models.Partner, envelope *WebhookEnvelope, user *models.User, event *models.ExternalEvent) (*models.MatchSubmission, *MatchPayload, error) {
	cfg := s.Config.Get()

	payload := envelope.MatchData
	placement := 0
	if envelope.TournamentData != nil {
		payload = &envelope.TournamentData.MatchPayload
		placement = envelope.TournamentData.Placement
	}

	claimed := payload.Points
	if claimed > cfg.MaxPointsPerMatch {
		claimed = cfg.MaxPointsPerMatch
	}

	sub := &models.MatchSubmission{
		UserID:          user.ID,
		PartnerID:       &partner.ID,
		GameType:        payload.GameType,
		ExternalMatchID: payload.MatchID,
		Result:          payload.Result,
		Placement:       placement,
		Score:           payload.Score,
		PointsClaimed:   claimed,
		MatchData:       payload.Extra,
		MatchEndedAt:    payload.EndedAt,
		Status:          models.SubmissionPending,
		VerificationMethod: models.VerificationPending,
	}
	if err := s.DB.Create(sub).Error; err != nil {
		return nil, nil, err
	}
	return sub, payload, nil
}

func (s *WebhookService) recordSuccess(event *models.ExternalEvent, outcome *WebhookOutcome) {
	updates := map[string]any{
		"status":         models.EventStatusProcessed,
		"points_awarded": outcome.PointsAwarded,
		"new_balance":    outcome.NewBalance,
		"failure_reason": "",
	}
	if event.TransactionID != nil {
		updates["transaction_id"] = *event.TransactionID
	}
	if event.SubmissionID != nil {
		updates["submission_id"] = *event.SubmissionID
	}
	if err := s.DB.Model(event).Updates(updates).Error; err != nil {
		log.Printf("⚠️ Failed to record event outcome %s: %v", event.ID, err)
	}
	outcome.EventID = event.ID
}

func (s *WebhookService) recordFailure(event *models.ExternalEvent, cause error) {
	if err := s.DB.Model(event).Updates(map[string]any{
		"status":         models.EventStatusFailed,
		"failure_reason": cause.Error(),
	}).Error; err != nil {
		log.Printf("⚠️ Failed to record event failure %s: %v", event.ID, err)
	}
}

// FailStaleEvents marks "received" rows that never finished (crashed worker,
// dropped connection) as failed so the partner's redelivery reprocesses them.
func (s *WebhookService) FailStaleEvents(olderThan time.Duration) (int64, error) {
	res := s.DB.Model(&models.ExternalEvent{}).
		Where("status = ? AND updated_at < ?", models.EventStatusReceived, time.Now().Add(-olderThan)).
		Updates(map[string]any{
			"status":         models.EventStatusFailed,
			"failure_reason": "processing did not complete",
		})
	return res.RowsAffected, res.Error
}

func (e *WebhookEnvelope) eventType() string {
	switch {
	case e.TournamentData != nil:
		return models.EventTypeTournament
	case e.AchievementData != nil && e.MatchData == nil:
		return models.EventTypeAchievement
	default:
		return models.EventTypeMatch
	}
}

func validateEnvelope(e *WebhookEnvelope) error {
	fields := map[string]string{}
	if e.UserID == "" {
		fields["userId"] = "required"
	}
	if e.ExternalEventID == "" {
		fields["externalEventId"] = "required"
	}
	if e.MatchData == nil && e.AchievementData == nil && e.TournamentData == nil {
		fields["payload"] = "one of matchData, achievementData, tournamentData is required"
	}
	if e.MatchData != nil {
		validateMatchPayload("matchData", e.MatchData, fields)
	}
	if e.TournamentData != nil {
		validateMatchPayload("tournamentData", &e.TournamentData.MatchPayload, fields)
	}
	if e.AchievementData != nil && e.AchievementData.GameType == "" {
		fields["achievementData.gameType"] = "required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validateMatchPayload(prefix string, p *MatchPayload, fields map[string]string) {
	if p.GameType == "" {
		fields[prefix+".gameType"] = "required"
	}
	if p.MatchID == "" {
		fields[prefix+".matchId"] = "required"
	}
	switch p.Result {
	case "win", "loss", "draw", "incomplete":
	default:
		fields[prefix+".result"] = "must be one of win, loss, draw, incomplete"
	}
	if p.Points < 0 {
		fields[prefix+".points"] = "must not be negative"
	}
	if p.EndedAt.IsZero() {
		fields[prefix+".endedAt"] = "required"
	}
}
