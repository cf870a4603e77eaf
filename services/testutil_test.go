// services/testutil_test.go
package services

import (
	"testing"
	"time"

	"gameplay-rewards-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a fresh in-memory database with the full schema. A single
// connection keeps concurrent goroutines from fighting over sqlite locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Partner{},
		&models.ExternalEvent{},
		&models.MatchSubmission{},
		&models.VerificationProof{},
		&models.FraudDetectionLog{},
		&models.VerificationQueueItem{},
		&models.PointTransaction{},
		&models.TrustScore{},
		&models.TrustScoreEvent{},
		&models.AchievementDefinition{},
		&models.Achievement{},
		&models.LinkedAccount{},
		&models.VerificationConfig{},
	))

	return db
}

// newTestConfig seeds the default policy row and returns a ready service.
func newTestConfig(t *testing.T, db *gorm.DB) *ConfigService {
	t.Helper()
	cfg := NewConfigService(db)
	require.NoError(t, cfg.EnsureSeeded())
	return cfg
}

// createTestUser inserts an active user whose account was created age ago.
func createTestUser(t *testing.T, db *gorm.DB, externalID string, age time.Duration) *models.User {
	t.Helper()
	user := &models.User{
		ExternalUserID:     externalID,
		Username:           "player-" + externalID,
		SubscriptionStatus: models.SubscriptionActive,
		AccountCreatedAt:   time.Now().Add(-age),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// createTestSubmission inserts a pending submission backdated by age.
func createTestSubmission(t *testing.T, db *gorm.DB, userID string, age time.Duration, mutate func(*models.MatchSubmission)) *models.MatchSubmission {
	t.Helper()
	sub := &models.MatchSubmission{
		UserID:             userID,
		GameType:           "arena",
		ExternalMatchID:    "match-" + time.Now().Add(-age).Format("20060102150405.000000000"),
		Result:             "win",
		Score:              1000,
		PointsClaimed:      50,
		MatchEndedAt:       time.Now().Add(-age),
		Status:             models.SubmissionPending,
		VerificationMethod: models.VerificationPending,
	}
	if mutate != nil {
		mutate(sub)
	}
	require.NoError(t, db.Create(sub).Error)
	if age > 0 {
		// Shift created_at past the hooks so window counters see real history.
		require.NoError(t, db.Model(sub).Update("created_at", time.Now().Add(-age)).Error)
		sub.CreatedAt = time.Now().Add(-age)
	}
	return sub
}
