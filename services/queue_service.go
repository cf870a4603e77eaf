// services/queue_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gameplay-rewards-system/models"
	"gameplay-rewards-system/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrQueueItemNotFound = errors.New("queue: item not found")
	ErrQueueItemClosed   = errors.New("queue: item already completed")
	ErrUnknownAction     = errors.New("queue: unknown resolution action")
)

// Trust event deltas narrated on review outcomes. Advisory — the trust score
// is always recomputed from full history.
const (
	trustDeltaVerifiedMatch  = 3
	trustDeltaManualApproval = 5
	trustDeltaFraudConfirmed = -30
	trustDeltaFraudDismissed = 5
)

// QueueService owns the human-review backlog. Enqueue is idempotent per open
// (itemType, itemID); Resolve feeds the decision back into the submission,
// the ledger, the trust aggregator and (on flag) the fraud log.
type QueueService struct {
	DB           *gorm.DB
	Config       *ConfigService
	Ledger       *LedgerService
	Trust        *TrustService
	Achievements *AchievementService
}

func NewQueueService(db *gorm.DB, config *ConfigService, ledger *LedgerService, trust *TrustService, achievements *AchievementService) *QueueService {
	return &QueueService{DB: db, Config: config, Ledger: ledger, Trust: trust, Achievements: achievements}
}

// Enqueue adds review work for an item, deduplicating against any open item
// for the same (itemType, itemID) via the unique DedupeKey — never with a
// read-then-write check. priority <= 0 means "resolve from context".
func (s *QueueService) Enqueue(itemType, itemID, userID string, priority int, reason string) (string, error) {
	cfg := s.Config.Get()

	if priority <= 0 {
		priority = s.resolvePriority(itemType, itemID, userID, cfg)
	}
	if priority > models.PriorityCritical {
		priority = models.PriorityCritical
	}

	key := models.QueueDedupeKey(itemType, itemID)
	item := &models.VerificationQueueItem{
		ItemType:  itemType,
		ItemID:    itemID,
		UserID:    userID,
		DedupeKey: &key,
		Priority:  priority,
		SLADueAt:  time.Now().Add(time.Duration(cfg.SLAHours(priority)) * time.Hour),
		Reason:    reason,
		Status:    models.QueuePending,
	}

	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return "", res.Error
	}

	if res.RowsAffected == 0 {
		// Lost the race (or the item was already queued) — return the open one.
		var existing models.VerificationQueueItem
		if err := s.DB.Where("dedupe_key = ?", key).First(&existing).Error; err != nil {
			return "", fmt.Errorf("queue: conflict lookup: %w", err)
		}
		return existing.ID, nil
	}

	log.Printf("📋 Enqueued %s %s for review (priority %d, due %s)",
		itemType, itemID, priority, item.SLADueAt.Format(time.RFC3339))
	return item.ID, nil
}

// resolvePriority implements the default priority ladder: critical fraud
// severity → 4, high fraud or large point value → 3, new account → 2, else 1.
func (s *QueueService) resolvePriority(itemType, itemID, userID string, cfg *models.VerificationConfig) int {
	if itemType == models.SourceFraudLog {
		var flog models.FraudDetectionLog
		if err := s.DB.Where("id = ?", itemID).First(&flog).Error; err == nil {
			switch flog.Severity {
			case models.SeverityCritical:
				return models.PriorityCritical
			case models.SeverityHigh:
				return models.PriorityHigh
			}
		}
	}

	if itemType == models.SourceMatchSubmission {
		var sub models.MatchSubmission
		if err := s.DB.Where("id = ?", itemID).First(&sub).Error; err == nil {
			if sub.PointsClaimed >= cfg.MaxPointsPerMatch {
				return models.PriorityHigh
			}
		}
	}

	var user models.User
	if err := s.DB.Where("id = ?", userID).First(&user).Error; err == nil {
		if user.AccountAge(time.Now()) < 7*24*time.Hour {
			return models.PriorityMedium
		}
	}

	return models.PriorityLow
}

// Pending returns open items ordered by priority then SLA deadline.
func (s *QueueService) Pending(limit int) ([]models.VerificationQueueItem, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	var items []models.VerificationQueueItem
	err := s.DB.Where("status IN ?", []string{models.QueuePending, models.QueueInReview}).
		Order("priority DESC, sla_due_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// Resolve records a human decision on a queue item. The item becomes
// completed (immutable afterwards) and the underlying record, ledger and
// trust aggregator are updated in the same transaction.
func (s *QueueService) Resolve(ctx context.Context, queueID, adminID, action, notes string, fraudFlags []string) error {
	if action == models.ActionEscalate {
		return s.escalate(queueID)
	}

	var trustUserID string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var item models.VerificationQueueItem
		if err := lockForUpdate(tx).Where("id = ?", queueID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueItemNotFound
			}
			return err
		}
		if !item.Open() {
			return ErrQueueItemClosed
		}

		switch action {
		case models.ActionApprove, models.ActionReject, models.ActionFlag:
			if err := s.applyDecision(tx, &item, adminID, action, notes, fraudFlags); err != nil {
				return err
			}
			item.Status = models.QueueCompleted
		case models.ActionSkip:
			item.Status = models.QueueSkipped
		default:
			return ErrUnknownAction
		}

		now := time.Now()
		item.ResolutionAction = action
		item.ResolutionNotes = notes
		item.ResolvedBy = &adminID
		item.CompletedAt = &now
		item.DedupeKey = nil // frees the open-item slot
		if err := tx.Save(&item).Error; err != nil {
			return err
		}

		trustUserID = item.UserID
		log.Printf("✅ Queue item %s resolved: action=%s by=%s", item.ID, action, adminID)
		return nil
	})
	if err != nil {
		return err
	}

	// Trust recompute reads committed history, so it runs after the tx.
	// Every decisive action refreshes the snapshot; skip only defers.
	if trustUserID != "" && action != models.ActionSkip && action != models.ActionEscalate {
		if _, rerr := s.Trust.Recompute(trustUserID); rerr != nil {
			log.Printf("⚠️ Trust recompute after review failed for %s: %v", trustUserID, rerr)
		}
	}
	return nil
}

// applyDecision routes an approve/reject/flag onto the reviewed record.
func (s *QueueService) applyDecision(tx *gorm.DB, item *models.VerificationQueueItem, adminID, action, notes string, fraudFlags []string) error {
	switch item.ItemType {
	case models.SourceMatchSubmission:
		return s.decideSubmission(tx, item, adminID, action, notes, fraudFlags)
	case models.SourceFraudLog:
		return s.decideFraudLog(tx, item, adminID, action, notes)
	case models.SourceProof:
		return s.decideProof(tx, item, adminID, action, notes, fraudFlags)
	default:
		return fmt.Errorf("queue: unknown item type %q", item.ItemType)
	}
}

func (s *QueueService) decideSubmission(tx *gorm.DB, item *models.VerificationQueueItem, adminID, action, notes string, fraudFlags []string) error {
	var sub models.MatchSubmission
	if err := tx.Where("id = ?", item.ItemID).First(&sub).Error; err != nil {
		return err
	}
	if sub.Closed() {
		return nil // decision already landed via another path
	}

	sub.ReviewedBy = &adminID
	sub.ReviewNotes = notes
	sub.VerificationMethod = models.VerificationManual

	switch action {
	case models.ActionApprove:
		sub.Status = models.SubmissionApproved
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}
		if _, err := s.Ledger.AwardTx(tx, sub.UserID, sub.PointsClaimed,
			models.ReasonMatchReward, models.SourceMatchSubmission, sub.ID,
			"manual approval"); err != nil {
			return err
		}
		if err := s.Trust.AppendEventTx(tx, sub.UserID, models.TrustEventManualApproval,
			trustDeltaManualApproval, "submission approved in review",
			models.SourceMatchSubmission, sub.ID); err != nil {
			return err
		}
		if _, err := s.Achievements.CheckAndAwardTx(tx, sub.UserID, sub.GameType); err != nil {
			return err
		}
		return nil

	case models.ActionReject:
		sub.Status = models.SubmissionRejected
		return tx.Save(&sub).Error

	case models.ActionFlag:
		sub.Status = models.SubmissionRejected
		sub.FraudFlags = append(sub.FraudFlags, fraudFlags...)
		if err := tx.Save(&sub).Error; err != nil {
			return err
		}
		flog := &models.FraudDetectionLog{
			UserID:            sub.UserID,
			MatchSubmissionID: &sub.ID,
			DetectionTypes:    fraudFlags,
			Severity:          models.SeverityHigh,
			RiskScore:         0, // reviewer-originated, no computed score
			Resolution:        models.ResolutionConfirmed,
			ResolvedBy:        &adminID,
			ActionTaken:       "submission rejected as fraud",
		}
		if err := tx.Create(flog).Error; err != nil {
			return err
		}
		return s.Trust.AppendEventTx(tx, sub.UserID, models.TrustEventFraudConfirmed,
			trustDeltaFraudConfirmed, "fraud confirmed in review",
			models.SourceMatchSubmission, sub.ID)
	}
	return ErrUnknownAction
}

func (s *QueueService) decideFraudLog(tx *gorm.DB, item *models.VerificationQueueItem, adminID, action, notes string) error {
	var flog models.FraudDetectionLog
	if err := tx.Where("id = ?", item.ItemID).First(&flog).Error; err != nil {
		return err
	}
	if flog.Resolution != models.ResolutionPending {
		return nil
	}

	now := time.Now()
	flog.ResolvedBy = &adminID
	flog.ResolvedAt = &now
	flog.ActionTaken = notes

	switch action {
	case models.ActionApprove: // the activity was legitimate
		flog.Resolution = models.ResolutionDismissed
		if err := tx.Save(&flog).Error; err != nil {
			return err
		}
		return s.Trust.AppendEventTx(tx, flog.UserID, models.TrustEventFraudDismissed,
			trustDeltaFraudDismissed, "fraud flag dismissed",
			models.SourceFraudLog, flog.ID)

	case models.ActionReject, models.ActionFlag:
		flog.Resolution = models.ResolutionConfirmed
		if err := tx.Save(&flog).Error; err != nil {
			return err
		}
		// Confirmed fraud also closes the attached submission.
		if flog.MatchSubmissionID != nil {
			if err := tx.Model(&models.MatchSubmission{}).
				Where("id = ? AND status = ?", *flog.MatchSubmissionID, models.SubmissionPending).
				Updates(map[string]any{"status": models.SubmissionRejected, "reviewed_by": adminID}).Error; err != nil {
				return err
			}
		}
		return s.Trust.AppendEventTx(tx, flog.UserID, models.TrustEventFraudConfirmed,
			trustDeltaFraudConfirmed, "fraud confirmed in review",
			models.SourceFraudLog, flog.ID)
	}
	return ErrUnknownAction
}

func (s *QueueService) decideProof(tx *gorm.DB, item *models.VerificationQueueItem, adminID, action, notes string, fraudFlags []string) error {
	var proof models.VerificationProof
	if err := tx.Where("id = ?", item.ItemID).First(&proof).Error; err != nil {
		return err
	}

	switch action {
	case models.ActionApprove:
		proof.Status = models.ProofVerified
		return tx.Save(&proof).Error

	case models.ActionReject:
		proof.Status = models.ProofRejected
		return tx.Save(&proof).Error

	case models.ActionFlag:
		proof.Status = models.ProofFlagged
		if err := tx.Save(&proof).Error; err != nil {
			return err
		}
		flog := &models.FraudDetectionLog{
			UserID:         proof.UserID,
			DetectionTypes: fraudFlags,
			Severity:       models.SeverityHigh,
			Resolution:     models.ResolutionConfirmed,
			ResolvedBy:     &adminID,
			ActionTaken:    "proof flagged: " + notes,
		}
		if err := tx.Create(flog).Error; err != nil {
			return err
		}
		if err := s.Trust.AppendEventTx(tx, proof.UserID, models.TrustEventFraudConfirmed,
			trustDeltaFraudConfirmed, "proof flagged as fraudulent",
			models.SourceProof, proof.ID); err != nil {
			return err
		}
		// Preserve the artifact before the external host drops it.
		go s.archiveProof(proof)
		return nil
	}
	return ErrUnknownAction
}

// archiveProof copies the flagged artifact to R2. Best effort — archival
// failure never fails the review.
func (s *QueueService) archiveProof(proof models.VerificationProof) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	key := fmt.Sprintf("evidence/proofs/%s", proof.ID)
	url, err := utils.ArchiveEvidence(ctx, proof.FileURL, key)
	if err != nil {
		log.Printf("⚠️ Failed to archive flagged proof %s: %v", proof.ID, err)
		return
	}
	if err := s.DB.Model(&models.VerificationProof{}).
		Where("id = ?", proof.ID).Update("archive_url", url).Error; err != nil {
		log.Printf("⚠️ Failed to record archive URL for proof %s: %v", proof.ID, err)
	}
}

// escalate bumps an open item's priority one step and tightens its SLA.
func (s *QueueService) escalate(queueID string) error {
	cfg := s.Config.Get()
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var item models.VerificationQueueItem
		if err := lockForUpdate(tx).Where("id = ?", queueID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueItemNotFound
			}
			return err
		}
		if !item.Open() {
			return ErrQueueItemClosed
		}
		if item.Priority < models.PriorityCritical {
			item.Priority++
		}
		item.SLADueAt = time.Now().Add(time.Duration(cfg.SLAHours(item.Priority)) * time.Hour)
		return tx.Save(&item).Error
	})
}

// EscalateOverdue bumps every open item past its SLA deadline. Run by the
// scheduler; returns how many items were escalated.
func (s *QueueService) EscalateOverdue() (int, error) {
	var overdue []models.VerificationQueueItem
	if err := s.DB.Where("status = ? AND sla_due_at < ?", models.QueuePending, time.Now()).
		Find(&overdue).Error; err != nil {
		return 0, err
	}

	count := 0
	for _, item := range overdue {
		if err := s.escalate(item.ID); err != nil {
			if errors.Is(err, ErrQueueItemClosed) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}
