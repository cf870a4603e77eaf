// services/config_service_test.go
package services

import (
	"testing"

	"gameplay-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSeededIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	config := NewConfigService(db)

	require.NoError(t, config.EnsureSeeded())
	require.NoError(t, config.EnsureSeeded())

	var count int64
	require.NoError(t, db.Model(&models.VerificationConfig{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	cfg := config.Get()
	assert.Equal(t, 75, cfg.AutoApproveMinScore)
	assert.Equal(t, int64(100), cfg.MaxPointsPerMatch)
}

func TestGetFallsBackToDefaultsOnEmptyTable(t *testing.T) {
	db := newTestDB(t)
	config := NewConfigService(db)

	// No seed. Get must still hand back a usable policy.
	cfg := config.Get()
	require.NotNil(t, cfg)
	assert.Equal(t, 70, cfg.RiskHighThreshold)
	assert.True(t, cfg.RequireCrossCheck)
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	db := newTestDB(t)
	config := newTestConfig(t, db)

	first := config.Get()
	first.AutoApproveMinScore = 1
	first.ShadowMode = true

	// Scribbling on one caller's copy never leaks into another reader.
	second := config.Get()
	assert.NotSame(t, first, second)
	assert.Equal(t, 75, second.AutoApproveMinScore)
	assert.False(t, second.ShadowMode)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	db := newTestDB(t)
	config := newTestConfig(t, db)

	cfg := config.Get()
	assert.False(t, cfg.ShadowMode)

	updated := *cfg
	updated.ShadowMode = true
	updated.AutoApproveMinScore = 60
	require.NoError(t, config.Update(&updated))

	// Cached copy refreshed immediately, no TTL wait.
	fresh := config.Get()
	assert.True(t, fresh.ShadowMode)
	assert.Equal(t, 60, fresh.AutoApproveMinScore)
}
