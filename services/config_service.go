// services/config_service.go
package services

import (
	"log"
	"sync"
	"time"

	"gameplay-rewards-system/models"

	"gorm.io/gorm"
)

// ConfigService serves the persisted verification policy with a short cache
// so risk thresholds, auto-approval criteria, SLA tables and point limits are
// hot-readable without a redeploy.
type ConfigService struct {
	DB *gorm.DB

	mu       sync.RWMutex
	cached   *models.VerificationConfig
	loadedAt time.Time
	ttl      time.Duration
}

func NewConfigService(db *gorm.DB) *ConfigService {
	return &ConfigService{DB: db, ttl: 30 * time.Second}
}

// DefaultConfig returns the boot-time policy used to seed an empty table.
func DefaultConfig() *models.VerificationConfig {
	return &models.VerificationConfig{
		RiskMediumThreshold:   30,
		RiskHighThreshold:     70,
		RiskCriticalThreshold: 90,

		DuplicateWindowMinutes: 10,
		DuplicateWindowCap:     3,
		MaxSubmissionsPerHour:  5,
		MaxIPsPerDay:           3,
		PatternMinHistory:      10,
		PatternStdDevLimit:     3,

		DuplicateWeight:        25,
		TimingWeight:           25,
		IPMismatchWeight:       20,
		PatternWeight:          20,
		NewAccountWeight:       15,
		RapidProgressionWeight: 20,

		AutoApprovalEnabled:  true,
		ShadowMode:           false,
		AutoApproveMinScore:  75,
		RequireCrossCheck:    true,
		MinSubmissionHistory: 5,

		SLAHoursCritical: 4,
		SLAHoursHigh:     24,
		SLAHoursMedium:   48,
		SLAHoursLow:      72,

		MaxPointsPerMatch: 100,
		DailyPointLimit:   500,
		WeeklyPointLimit:  2000,

		MaxProofFileSizeBytes: 10 * 1024 * 1024,
	}
}

// EnsureSeeded creates the default policy row on first boot (idempotent).
func (s *ConfigService) EnsureSeeded() error {
	var count int64
	if err := s.DB.Model(&models.VerificationConfig{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	cfg := DefaultConfig()
	if err := s.DB.Create(cfg).Error; err != nil {
		return err
	}
	log.Println("✅ Seeded default verification config")
	return nil
}

// Get returns the current policy as a detached copy — callers may mutate it
// freely without racing concurrent readers. Cached; re-read from DB when the
// cache expires. Falls back to defaults if the table is unreadable so
// evaluation never stalls on config.
func (s *ConfigService) Get() *models.VerificationConfig {
	s.mu.RLock()
	if s.cached != nil && time.Since(s.loadedAt) < s.ttl {
		cfg := *s.cached
		s.mu.RUnlock()
		return &cfg
	}
	s.mu.RUnlock()

	cfg, err := s.Reload()
	if err != nil {
		log.Printf("⚠️ Config reload failed, using defaults: %v", err)
		return DefaultConfig()
	}
	return cfg
}

// Reload fetches the most recently updated policy row and refreshes the cache.
func (s *ConfigService) Reload() (*models.VerificationConfig, error) {
	var cfg models.VerificationConfig
	if err := s.DB.Order("updated_at DESC").First(&cfg).Error; err != nil {
		return nil, err
	}

	cached := cfg
	s.mu.Lock()
	s.cached = &cached
	s.loadedAt = time.Now()
	s.mu.Unlock()

	return &cfg, nil
}

// Update persists policy changes and invalidates the cache immediately.
// The cache keeps its own copy so the caller's struct stays private.
func (s *ConfigService) Update(cfg *models.VerificationConfig) error {
	if err := s.DB.Save(cfg).Error; err != nil {
		return err
	}
	cached := *cfg
	s.mu.Lock()
	s.cached = &cached
	s.loadedAt = time.Now()
	s.mu.Unlock()
	return nil
}
