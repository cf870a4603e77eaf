// services/queue_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"gameplay-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueFixture(t *testing.T) (*QueueService, *LedgerService, *TrustService) {
	db := newTestDB(t)
	config := newTestConfig(t, db)
	ledger := NewLedgerService(db)
	trust := NewTrustService(db)
	achievements := NewAchievementService(db, ledger)
	queue := NewQueueService(db, config, ledger, trust, achievements)
	return queue, ledger, trust
}

func TestEnqueueDeduplicatesOpenItems(t *testing.T) {
	queue, _, _ := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-1", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	first, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "review")
	require.NoError(t, err)

	second, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "review again")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, db.Model(&models.VerificationQueueItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnqueuePriorityLadder(t *testing.T) {
	queue, _, _ := newQueueFixture(t)
	db := queue.DB

	// New account → medium.
	fresh := createTestUser(t, db, "ext-queue-2", 2*time.Hour)
	freshSub := createTestSubmission(t, db, fresh.ID, 0, nil)
	id, err := queue.Enqueue(models.SourceMatchSubmission, freshSub.ID, fresh.ID, 0, "")
	require.NoError(t, err)
	var item models.VerificationQueueItem
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	assert.Equal(t, models.PriorityMedium, item.Priority)

	// Max-value claim → high, even for an established account.
	veteran := createTestUser(t, db, "ext-queue-3", 365*24*time.Hour)
	bigSub := createTestSubmission(t, db, veteran.ID, 0, func(s *models.MatchSubmission) {
		s.PointsClaimed = 100
	})
	id, err = queue.Enqueue(models.SourceMatchSubmission, bigSub.ID, veteran.ID, 0, "")
	require.NoError(t, err)
	item = models.VerificationQueueItem{}
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	assert.Equal(t, models.PriorityHigh, item.Priority)

	// Critical fraud log → critical, with the tightest SLA.
	flog := &models.FraudDetectionLog{
		UserID:     veteran.ID,
		Severity:   models.SeverityCritical,
		RiskScore:  95,
		Resolution: models.ResolutionPending,
	}
	require.NoError(t, db.Create(flog).Error)
	id, err = queue.Enqueue(models.SourceFraudLog, flog.ID, veteran.ID, 0, "")
	require.NoError(t, err)
	item = models.VerificationQueueItem{}
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	assert.Equal(t, models.PriorityCritical, item.Priority)
	assert.LessOrEqual(t, time.Until(item.SLADueAt), 4*time.Hour)

	// Established account, ordinary claim → low.
	plainSub := createTestSubmission(t, db, veteran.ID, 0, nil)
	id, err = queue.Enqueue(models.SourceMatchSubmission, plainSub.ID, veteran.ID, 0, "")
	require.NoError(t, err)
	item = models.VerificationQueueItem{}
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	assert.Equal(t, models.PriorityLow, item.Priority)
}

func TestResolveApprovePaysAndCompletes(t *testing.T) {
	queue, ledger, _ := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-4", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, func(s *models.MatchSubmission) {
		s.PointsClaimed = 75
	})

	id, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "")
	require.NoError(t, err)

	require.NoError(t, queue.Resolve(context.Background(), id, "admin-1", models.ActionApprove, "looks legit", nil))

	var reloaded models.MatchSubmission
	require.NoError(t, db.Where("id = ?", sub.ID).First(&reloaded).Error)
	assert.Equal(t, models.SubmissionApproved, reloaded.Status)
	require.NotNil(t, reloaded.ReviewedBy)
	assert.Equal(t, "admin-1", *reloaded.ReviewedBy)

	balance, err := ledger.BalanceOf(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(75), balance)

	var item models.VerificationQueueItem
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	assert.Equal(t, models.QueueCompleted, item.Status)
	assert.Nil(t, item.DedupeKey)
	require.NotNil(t, item.CompletedAt)

	// Approval narrates a trust event.
	var events []models.TrustScoreEvent
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, models.TrustEventManualApproval, events[0].EventType)
}

func TestResolveIsImmutableOnceCompleted(t *testing.T) {
	queue, ledger, _ := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-5", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	id, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "")
	require.NoError(t, err)
	require.NoError(t, queue.Resolve(context.Background(), id, "admin-1", models.ActionReject, "", nil))

	err = queue.Resolve(context.Background(), id, "admin-2", models.ActionApprove, "", nil)
	assert.ErrorIs(t, err, ErrQueueItemClosed)

	// The second decision never touched the submission or the ledger.
	var reloaded models.MatchSubmission
	require.NoError(t, db.Where("id = ?", sub.ID).First(&reloaded).Error)
	assert.Equal(t, models.SubmissionRejected, reloaded.Status)
	balance, err := ledger.BalanceOf(user.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)

	// A closed item frees the dedupe slot: re-enqueueing opens a new one.
	next, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "second look")
	require.NoError(t, err)
	assert.NotEqual(t, id, next)
}

func TestResolveUnknownActionAndMissingItem(t *testing.T) {
	queue, _, _ := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-6", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	id, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "")
	require.NoError(t, err)

	err = queue.Resolve(context.Background(), id, "admin-1", "obliterate", "", nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	err = queue.Resolve(context.Background(), "no-such-item", "admin-1", models.ActionApprove, "", nil)
	assert.ErrorIs(t, err, ErrQueueItemNotFound)
}

func TestResolveFlagConfirmsFraudAndDropsTrust(t *testing.T) {
	queue, ledger, trust := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-7", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	before, err := trust.Recompute(user.ID)
	require.NoError(t, err)

	id, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "")
	require.NoError(t, err)
	require.NoError(t, queue.Resolve(context.Background(), id, "admin-1", models.ActionFlag,
		"scripted play", []string{"impossible_timing"}))

	var reloaded models.MatchSubmission
	require.NoError(t, db.Where("id = ?", sub.ID).First(&reloaded).Error)
	assert.Equal(t, models.SubmissionRejected, reloaded.Status)
	assert.Contains(t, reloaded.FraudFlags, "impossible_timing")

	var flog models.FraudDetectionLog
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&flog).Error)
	assert.Equal(t, models.ResolutionConfirmed, flog.Resolution)
	assert.Equal(t, models.SeverityHigh, flog.Severity)

	after, err := trust.GetTrustScore(user.ID)
	require.NoError(t, err)
	assert.Less(t, after.Score, before.Score)

	balance, err := ledger.BalanceOf(user.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestResolveDismissFraudLogRestoresTrust(t *testing.T) {
	queue, _, trust := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-8", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	flog := &models.FraudDetectionLog{
		UserID:            user.ID,
		MatchSubmissionID: &sub.ID,
		Severity:          models.SeverityHigh,
		RiskScore:         80,
		Resolution:        models.ResolutionPending,
	}
	require.NoError(t, db.Create(flog).Error)

	pending, err := trust.Recompute(user.ID)
	require.NoError(t, err)

	id, err := queue.Enqueue(models.SourceFraudLog, flog.ID, user.ID, 0, "")
	require.NoError(t, err)
	// Approve on a fraud-log item means "the activity was legitimate".
	require.NoError(t, queue.Resolve(context.Background(), id, "admin-1", models.ActionApprove, "false positive", nil))

	var reloaded models.FraudDetectionLog
	require.NoError(t, db.Where("id = ?", flog.ID).First(&reloaded).Error)
	assert.Equal(t, models.ResolutionDismissed, reloaded.Resolution)

	after, err := trust.GetTrustScore(user.ID)
	require.NoError(t, err)
	assert.Greater(t, after.Score, pending.Score)
}

func TestResolveRejectFraudLogRefreshesTrustSnapshot(t *testing.T) {
	queue, _, trust := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-12", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	// Stored snapshot from before the flag existed.
	clean, err := trust.Recompute(user.ID)
	require.NoError(t, err)

	flog := &models.FraudDetectionLog{
		UserID:            user.ID,
		MatchSubmissionID: &sub.ID,
		Severity:          models.SeverityHigh,
		RiskScore:         80,
		Resolution:        models.ResolutionPending,
	}
	require.NoError(t, db.Create(flog).Error)

	id, err := queue.Enqueue(models.SourceFraudLog, flog.ID, user.ID, 0, "")
	require.NoError(t, err)
	require.NoError(t, queue.Resolve(context.Background(), id, "admin-1", models.ActionReject, "confirmed", nil))

	// The stored row already reflects the confirmed penalty.
	var stored models.TrustScore
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	assert.Less(t, stored.Score, clean.Score)

	recomputed, err := trust.Recompute(user.ID)
	require.NoError(t, err)
	assert.Equal(t, recomputed.Score, stored.Score)
}

func TestEscalateBumpsPriorityAndKeepsItemOpen(t *testing.T) {
	queue, _, _ := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-9", 365*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	id, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "")
	require.NoError(t, err)

	require.NoError(t, queue.Resolve(context.Background(), id, "admin-1", models.ActionEscalate, "", nil))

	var item models.VerificationQueueItem
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	assert.Equal(t, models.PriorityMedium, item.Priority)
	assert.True(t, item.Open())
	require.NotNil(t, item.DedupeKey)
}

func TestEscalateOverdueSweep(t *testing.T) {
	queue, _, _ := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-10", 365*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	id, err := queue.Enqueue(models.SourceMatchSubmission, sub.ID, user.ID, 0, "")
	require.NoError(t, err)
	// Force the deadline into the past.
	require.NoError(t, db.Model(&models.VerificationQueueItem{}).Where("id = ?", id).
		Update("sla_due_at", time.Now().Add(-time.Hour)).Error)

	count, err := queue.EscalateOverdue()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var item models.VerificationQueueItem
	require.NoError(t, db.Where("id = ?", id).First(&item).Error)
	assert.Equal(t, models.PriorityMedium, item.Priority)
	assert.True(t, item.SLADueAt.After(time.Now()))
}

func TestPendingOrdersByPriorityThenDeadline(t *testing.T) {
	queue, _, _ := newQueueFixture(t)
	db := queue.DB
	user := createTestUser(t, db, "ext-queue-11", 365*24*time.Hour)

	low := createTestSubmission(t, db, user.ID, 0, nil)
	lowID, err := queue.Enqueue(models.SourceMatchSubmission, low.ID, user.ID, models.PriorityLow, "")
	require.NoError(t, err)

	urgent := createTestSubmission(t, db, user.ID, 0, nil)
	urgentID, err := queue.Enqueue(models.SourceMatchSubmission, urgent.ID, user.ID, models.PriorityCritical, "")
	require.NoError(t, err)

	items, err := queue.Pending(10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, urgentID, items[0].ID)
	assert.Equal(t, lowID, items[1].ID)
}
