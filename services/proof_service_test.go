// services/proof_service_test.go
package services

import (
	"testing"
	"time"

	"gameplay-rewards-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProofFixture(t *testing.T) *ProofService {
	db := newTestDB(t)
	config := newTestConfig(t, db)
	ledger := NewLedgerService(db)
	trust := NewTrustService(db)
	achievements := NewAchievementService(db, ledger)
	queue := NewQueueService(db, config, ledger, trust, achievements)
	return NewProofService(db, config, queue)
}

func TestSubmitProofWithMetadataSkipsReview(t *testing.T) {
	proofs := newProofFixture(t)
	db := proofs.DB
	user := createTestUser(t, db, "ext-proof-1", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	proof, enqueued, err := proofs.SubmitProof(&ProofUploadRequest{
		UserID:        user.ID,
		SourceType:    models.SourceMatchSubmission,
		SourceID:      sub.ID,
		FileURL:       "https://files.example.com/clip.mp4",
		FileType:      "video/mp4",
		FileSizeBytes: 1 << 20,
		FileMetadata:  map[string]any{"duration": 42},
	})
	require.NoError(t, err)
	assert.False(t, enqueued)
	assert.Equal(t, models.ProofPending, proof.Status)

	var items int64
	require.NoError(t, db.Model(&models.VerificationQueueItem{}).Count(&items).Error)
	assert.Zero(t, items)
}

func TestSubmitProofWithoutMetadataGetsReviewed(t *testing.T) {
	proofs := newProofFixture(t)
	db := proofs.DB
	user := createTestUser(t, db, "ext-proof-2", 30*24*time.Hour)
	sub := createTestSubmission(t, db, user.ID, 0, nil)

	proof, enqueued, err := proofs.SubmitProof(&ProofUploadRequest{
		UserID:     user.ID,
		SourceType: models.SourceMatchSubmission,
		SourceID:   sub.ID,
		FileURL:    "https://files.example.com/stripped.png",
	})
	require.NoError(t, err)
	assert.True(t, enqueued)

	var item models.VerificationQueueItem
	require.NoError(t, db.Where("item_type = ? AND item_id = ?", models.SourceProof, proof.ID).
		First(&item).Error)
	assert.Equal(t, models.PriorityMedium, item.Priority)
}

func TestSubmitProofValidation(t *testing.T) {
	proofs := newProofFixture(t)

	_, _, err := proofs.SubmitProof(&ProofUploadRequest{UserID: "u-1"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, _, err = proofs.SubmitProof(&ProofUploadRequest{
		UserID:        "u-1",
		SourceType:    models.SourceMatchSubmission,
		SourceID:      "sub-1",
		FileURL:       "https://files.example.com/huge.bin",
		FileSizeBytes: 11 * 1024 * 1024, // over the 10MB default cap
	})
	assert.ErrorIs(t, err, ErrProofTooLarge)
}
