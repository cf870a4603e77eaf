// models/verification_proof.go
package models

// Proof statuses
const (
	ProofPending  = "pending"
	ProofVerified = "verified"
	ProofFlagged  = "flagged"
	ProofRejected = "rejected"
)

// Proof source types
const (
	SourceMatchSubmission = "match_submission"
	SourceFraudLog        = "fraud_log"
	SourceProof           = "verification_proof"
)

// VerificationProof is an uploaded evidentiary artifact tied to a submission
// (or other reviewable source). File storage is owned by an external service;
// we keep the URL plus metadata. Metadata presence/absence is itself a signal.
type VerificationProof struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string `gorm:"index;not null" json:"user_id"`
	SourceType string `gorm:"index:ix_proof_source;not null" json:"source_type"`
	SourceID   string `gorm:"index:ix_proof_source;not null" json:"source_id"`

	FileURL       string         `gorm:"type:text;not null" json:"file_url"`
	FileType      string         `gorm:"type:varchar(32)" json:"file_type"`
	FileSizeBytes int64          `json:"file_size_bytes"`
	FileMetadata  map[string]any `gorm:"serializer:json" json:"file_metadata,omitempty"`
	Notes         string         `json:"notes,omitempty"`

	Status string `gorm:"type:varchar(16);default:'pending';index" json:"status"`

	// R2 copy of the artifact, taken when the proof is flagged so evidence
	// survives external deletion. Empty until archived.
	ArchiveURL string `gorm:"type:text" json:"archive_url,omitempty"`

	Timestamps
}

// HasMetadata reports whether the upload carried any useful file metadata.
func (p *VerificationProof) HasMetadata() bool {
	return len(p.FileMetadata) > 0
}
