// services/fraud_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"gameplay-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFraudFixture(t *testing.T) (*FraudService, *ConfigService, *LedgerService, *QueueService, *TrustService) {
	db := newTestDB(t)
	config := newTestConfig(t, db)
	ledger := NewLedgerService(db)
	trust := NewTrustService(db)
	achievements := NewAchievementService(db, ledger)
	queue := NewQueueService(db, config, ledger, trust, achievements)
	fraud := NewFraudService(db, config, ledger, queue, trust, nil)
	return fraud, config, ledger, queue, trust
}

func TestEvaluateCleanSubmission(t *testing.T) {
	fraud, _, _, _, _ := newFraudFixture(t)
	db := fraud.DB
	user := createTestUser(t, db, "ext-fraud-1", 60*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	eval, err := fraud.Evaluate(context.Background(), sub, user, "10.0.0.1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, eval.RiskScore)
	assert.Equal(t, models.SeverityLow, eval.Severity)
	assert.False(t, eval.ShouldFlag)
	assert.Empty(t, eval.LogID)

	// Low severity leaves no fraud log and no review work.
	var logs int64
	require.NoError(t, db.Model(&models.FraudDetectionLog{}).Count(&logs).Error)
	assert.Zero(t, logs)
}

func TestEvaluateNewAccountBurst(t *testing.T) {
	fraud, config, _, _, _ := newFraudFixture(t)
	db := fraud.DB
	// Account created two hours ago, hammering in seven submissions.
	user := createTestUser(t, db, "ext-fraud-2", 2*time.Hour)

	var last *models.MatchSubmission
	for i := 0; i < 7; i++ {
		last = createTestSubmission(t, db, user.ID, 0, func(sub *models.MatchSubmission) {
			sub.ExternalMatchID = "burst-" + string(rune('a'+i))
		})
	}

	eval, err := fraud.Evaluate(context.Background(), last, user, "10.0.0.1", "fp-2")
	require.NoError(t, err)

	// duplicate 37.5 (capped) + timing 35 + new account 15 = 87 → high.
	assert.Equal(t, 87, eval.RiskScore)
	assert.Equal(t, models.SeverityHigh, eval.Severity)
	assert.True(t, eval.ShouldFlag)
	assert.Contains(t, eval.DetectionTypes, models.DetectDuplicateSubmission)
	assert.Contains(t, eval.DetectionTypes, models.DetectImpossibleTiming)
	assert.Contains(t, eval.DetectionTypes, models.DetectNewAccountRisk)
	require.NotEmpty(t, eval.LogID)

	var flog models.FraudDetectionLog
	require.NoError(t, db.Where("id = ?", eval.LogID).First(&flog).Error)
	assert.Equal(t, models.ResolutionPending, flog.Resolution)
	assert.Equal(t, &last.ID, flog.MatchSubmissionID)

	// High severity enqueues review work synchronously with a 24h SLA.
	var item models.VerificationQueueItem
	require.NoError(t, db.Where("item_type = ? AND item_id = ?", models.SourceFraudLog, flog.ID).First(&item).Error)
	assert.Equal(t, models.PriorityHigh, item.Priority)
	assert.Equal(t, models.QueuePending, item.Status)
	due := time.Until(item.SLADueAt)
	slaHigh := time.Duration(config.Get().SLAHoursHigh) * time.Hour
	assert.Greater(t, due, slaHigh-time.Minute)
	assert.LessOrEqual(t, due, slaHigh)

	// The submission stays pending for the reviewer.
	var reloaded models.MatchSubmission
	require.NoError(t, db.Where("id = ?", last.ID).First(&reloaded).Error)
	assert.Equal(t, models.SubmissionPending, reloaded.Status)
}

func TestEvaluateFlagRefreshesTrustSnapshot(t *testing.T) {
	fraud, _, _, _, trust := newFraudFixture(t)
	db := fraud.DB
	user := createTestUser(t, db, "ext-fraud-5", 2*time.Hour)

	// Clean baseline snapshot for a fresh account.
	before, err := trust.GetTrustScore(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, before.Score)

	var last *models.MatchSubmission
	for i := 0; i < 7; i++ {
		last = createTestSubmission(t, db, user.ID, 0, nil)
	}

	eval, err := fraud.Evaluate(context.Background(), last, user, "", "")
	require.NoError(t, err)
	require.Equal(t, models.SeverityHigh, eval.Severity)

	// The pending high flag (-20) lands on the stored snapshot right away:
	// 15 - 20 clamps to 0.
	var stored models.TrustScore
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	assert.Equal(t, 0, stored.Score)

	recomputed, err := trust.Recompute(user.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Score, recomputed.Score)
}

func TestEvaluateMediumFlagsWithoutQueueing(t *testing.T) {
	fraud, _, _, _, _ := newFraudFixture(t)
	db := fraud.DB
	// New account with a mild burst: duplicate trips, timing doesn't.
	user := createTestUser(t, db, "ext-fraud-3", 2*time.Hour)

	var last *models.MatchSubmission
	for i := 0; i < 4; i++ {
		last = createTestSubmission(t, db, user.ID, 0, nil)
	}

	eval, err := fraud.Evaluate(context.Background(), last, user, "", "")
	require.NoError(t, err)

	// duplicate 25×4/3 ≈ 33.3 + new account 15 = 48 → medium.
	assert.Equal(t, 48, eval.RiskScore)
	assert.Equal(t, models.SeverityMedium, eval.Severity)
	assert.True(t, eval.ShouldFlag)
	require.NotEmpty(t, eval.LogID)

	// Medium logs wait for the submission's own review path — no direct
	// queue item for the log.
	var items int64
	require.NoError(t, db.Model(&models.VerificationQueueItem{}).
		Where("item_type = ?", models.SourceFraudLog).Count(&items).Error)
	assert.Zero(t, items)
}

func TestEvaluateRapidProgression(t *testing.T) {
	fraud, _, ledger, _, _ := newFraudFixture(t)
	db := fraud.DB
	user := createTestUser(t, db, "ext-fraud-4", 60*24*time.Hour)

	// 800 points inside 24h is past 150% of the 500 daily cap.
	_, err := ledger.Award(user.ID, 800, models.ReasonMatchReward, models.SourceMatchSubmission, "old-sub", "")
	require.NoError(t, err)

	sub := createTestSubmission(t, db, user.ID, 0, nil)
	eval, err := fraud.Evaluate(context.Background(), sub, user, "", "")
	require.NoError(t, err)

	assert.Contains(t, eval.DetectionTypes, models.DetectRapidProgression)
	assert.Equal(t, 20, eval.RiskScore)
	assert.False(t, eval.ShouldFlag) // 20 is below the medium threshold
}
