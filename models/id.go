// models/id.go
package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Primary keys are generated app-side so inserts behave identically on
// postgres and the sqlite test harness.
func newID() string { return uuid.NewString() }

func (m *User) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *Partner) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *ExternalEvent) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *MatchSubmission) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *VerificationProof) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *FraudDetectionLog) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *VerificationQueueItem) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *PointTransaction) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *TrustScore) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *TrustScoreEvent) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *AchievementDefinition) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *Achievement) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *LinkedAccount) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}

func (m *VerificationConfig) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return nil
}
