// services/trust_service_test.go
package services

import (
	"testing"
	"time"

	"gameplay-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierBoundariesAreExact(t *testing.T) {
	assert.Equal(t, models.TierUnverified, models.TierForScore(0))
	assert.Equal(t, models.TierUnverified, models.TierForScore(39))
	assert.Equal(t, models.TierDeveloping, models.TierForScore(40))
	assert.Equal(t, models.TierDeveloping, models.TierForScore(69))
	assert.Equal(t, models.TierTrusted, models.TierForScore(70))
	assert.Equal(t, models.TierTrusted, models.TierForScore(89))
	assert.Equal(t, models.TierElite, models.TierForScore(90))
	assert.Equal(t, models.TierElite, models.TierForScore(100))
}

func TestRecomputeFreshAccount(t *testing.T) {
	db := newTestDB(t)
	trust := NewTrustService(db)
	user := createTestUser(t, db, "ext-trust-1", time.Hour)

	snapshot, err := trust.Recompute(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, snapshot.Score) // base only
	assert.Equal(t, models.TierUnverified, snapshot.Tier)
	assert.Equal(t, 15, snapshot.Components["base"])
}

func TestRecomputeFullPositives(t *testing.T) {
	db := newTestDB(t)
	trust := NewTrustService(db)
	// Old enough to max the age bonus (25 weeks+).
	user := createTestUser(t, db, "ext-trust-2", 200*24*time.Hour)

	require.NoError(t, db.Create(&models.LinkedAccount{
		UserID:            user.ID,
		Provider:          models.ProviderGameData,
		ProviderAccountID: "acct-1",
		Verified:          true,
	}).Error)

	// 12 approved cross-verified matches cap the match bonus at 30.
	for i := 0; i < 12; i++ {
		createTestSubmission(t, db, user.ID, time.Duration(i+1)*time.Hour, func(sub *models.MatchSubmission) {
			sub.Status = models.SubmissionApproved
			sub.CrossVerified = true
		})
	}

	snapshot, err := trust.Recompute(user.ID)
	require.NoError(t, err)
	// base 15 + identity 30 + matches 30 (capped) + age 25 (capped)
	assert.Equal(t, 100, snapshot.Score)
	assert.Equal(t, models.TierElite, snapshot.Tier)
	assert.Equal(t, 30, snapshot.Components["identity_link"])
	assert.Equal(t, 30, snapshot.Components["verified_matches"])
	assert.Equal(t, 25, snapshot.Components["account_age"])
}

func TestRecomputePenaltySitsOnTierBoundary(t *testing.T) {
	db := newTestDB(t)
	trust := NewTrustService(db)
	user := createTestUser(t, db, "ext-trust-3", 200*24*time.Hour)

	require.NoError(t, db.Create(&models.LinkedAccount{
		UserID:            user.ID,
		Provider:          models.ProviderDesktop,
		ProviderAccountID: "acct-2",
		Verified:          true,
	}).Error)
	for i := 0; i < 12; i++ {
		createTestSubmission(t, db, user.ID, time.Duration(i+1)*time.Hour, func(sub *models.MatchSubmission) {
			sub.Status = models.SubmissionApproved
			sub.CrossVerified = true
		})
	}

	// One unresolved critical log: 100 - 30 = 70 — exactly trusted.
	require.NoError(t, db.Create(&models.FraudDetectionLog{
		UserID:     user.ID,
		Severity:   models.SeverityCritical,
		RiskScore:  95,
		Resolution: models.ResolutionPending,
	}).Error)

	snapshot, err := trust.Recompute(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, snapshot.Score)
	assert.Equal(t, models.TierTrusted, snapshot.Tier)

	// A medium on top of it: 60 — back to developing.
	require.NoError(t, db.Create(&models.FraudDetectionLog{
		UserID:     user.ID,
		Severity:   models.SeverityMedium,
		RiskScore:  40,
		Resolution: models.ResolutionConfirmed,
	}).Error)

	snapshot, err = trust.Recompute(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, snapshot.Score)
	assert.Equal(t, models.TierDeveloping, snapshot.Tier)
}

func TestRecomputeClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	trust := NewTrustService(db)
	user := createTestUser(t, db, "ext-trust-4", time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.FraudDetectionLog{
			UserID:     user.ID,
			Severity:   models.SeverityCritical,
			RiskScore:  95,
			Resolution: models.ResolutionConfirmed,
		}).Error)
	}

	snapshot, err := trust.Recompute(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, snapshot.Score)
	assert.Equal(t, models.TierUnverified, snapshot.Tier)
}

func TestRecomputeIgnoresDismissedLogs(t *testing.T) {
	db := newTestDB(t)
	trust := NewTrustService(db)
	user := createTestUser(t, db, "ext-trust-5", time.Hour)

	require.NoError(t, db.Create(&models.FraudDetectionLog{
		UserID:     user.ID,
		Severity:   models.SeverityCritical,
		RiskScore:  95,
		Resolution: models.ResolutionDismissed,
	}).Error)

	snapshot, err := trust.Recompute(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, snapshot.Score)
}

func TestLogEventAppendsAndRecomputes(t *testing.T) {
	db := newTestDB(t)
	trust := NewTrustService(db)
	user := createTestUser(t, db, "ext-trust-6", time.Hour)

	snapshot, err := trust.LogEvent(user.ID, models.TrustEventIdentityLinked, 30,
		"verified desktop link", "linked_account", "desktop:acct-9")
	require.NoError(t, err)
	// The delta is narration only — no verified link row exists, so the
	// replayed score stays at base.
	assert.Equal(t, 15, snapshot.Score)

	history, err := trust.GetTrustHistory(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.TrustEventIdentityLinked, history[0].EventType)
	assert.Equal(t, 30, history[0].Delta)
}

func TestGetTrustScoreComputesOnFirstRead(t *testing.T) {
	db := newTestDB(t)
	trust := NewTrustService(db)
	user := createTestUser(t, db, "ext-trust-7", time.Hour)

	snapshot, err := trust.GetTrustScore(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, snapshot.Score)

	var count int64
	require.NoError(t, db.Model(&models.TrustScore{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
