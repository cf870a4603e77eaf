// services/proof_service.go
package services

import (
	"errors"
	"fmt"
	"log"

	"gameplay-rewards-system/models"

	"gorm.io/gorm"
)

var ErrProofTooLarge = errors.New("proof: file exceeds size limit")

// ProofUploadRequest mirrors what the file-storage collaborator sends after
// it has stored the artifact.
type ProofUploadRequest struct {
	UserID        string         `json:"userId"`
	SourceType    string         `json:"sourceType"`
	SourceID      string         `json:"sourceId"`
	FileURL       string         `json:"fileUrl"`
	FileType      string         `json:"fileType"`
	FileSizeBytes int64          `json:"fileSizeBytes"`
	FileMetadata  map[string]any `json:"fileMetadata,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

// ProofService registers evidentiary uploads against their source record and
// decides whether the proof itself needs a reviewer's eyes.
type ProofService struct {
	DB     *gorm.DB
	Config *ConfigService
	Queue  *QueueService
}

func NewProofService(db *gorm.DB, config *ConfigService, queue *QueueService) *ProofService {
	return &ProofService{DB: db, Config: config, Queue: queue}
}

// SubmitProof validates and records an uploaded artifact. Returns the proof
// and whether a review queue item was created for it.
func (s *ProofService) SubmitProof(req *ProofUploadRequest) (*models.VerificationProof, bool, error) {
	cfg := s.Config.Get()

	if req.UserID == "" || req.SourceType == "" || req.SourceID == "" || req.FileURL == "" {
		return nil, false, &ValidationError{Fields: map[string]string{
			"proof": "userId, sourceType, sourceId and fileUrl are required",
		}}
	}
	if req.FileSizeBytes > cfg.MaxProofFileSizeBytes {
		return nil, false, fmt.Errorf("%w: %d bytes (max %d)", ErrProofTooLarge, req.FileSizeBytes, cfg.MaxProofFileSizeBytes)
	}

	proof := &models.VerificationProof{
		UserID:        req.UserID,
		SourceType:    req.SourceType,
		SourceID:      req.SourceID,
		FileURL:       req.FileURL,
		FileType:      req.FileType,
		FileSizeBytes: req.FileSizeBytes,
		FileMetadata:  req.FileMetadata,
		Notes:         req.Notes,
		Status:        models.ProofPending,
	}
	if err := s.DB.Create(proof).Error; err != nil {
		return nil, false, err
	}

	// A proof stripped of metadata usually means a doctored artifact,
	// so route it to a reviewer instead of letting it quietly boost a score.
	enqueued := false
	if !proof.HasMetadata() {
		if _, err := s.Queue.Enqueue(models.SourceProof, proof.ID, proof.UserID,
			models.PriorityMedium, "proof uploaded without metadata"); err != nil {
			log.Printf("⚠️ Failed to enqueue metadata-less proof %s: %v", proof.ID, err)
		} else {
			enqueued = true
		}
	}

	return proof, enqueued, nil
}

// ProofsFor lists proofs attached to a source record.
func (s *ProofService) ProofsFor(sourceType, sourceID string) ([]models.VerificationProof, error) {
	var proofs []models.VerificationProof
	err := s.DB.Where("source_type = ? AND source_id = ?", sourceType, sourceID).
		Order("created_at DESC").
		Find(&proofs).Error
	return proofs, err
}
