// services/achievement_service.go
package services

import (
	"fmt"
	"log"

	"gameplay-rewards-system/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AchievementService evaluates the declarative condition catalog against a
// user's verified match history and requests ledger entries for newly met
// conditions. The unique (user, definition) index is the only double-award
// guard — never a read-then-write existence check.
type AchievementService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewAchievementService(db *gorm.DB, ledger *LedgerService) *AchievementService {
	return &AchievementService{DB: db, Ledger: ledger}
}

// SeedDefinitions loads the default catalog, skipping codes already present.
func (s *AchievementService) SeedDefinitions() error {
	for _, def := range models.DefaultAchievements {
		def.Code = slug.Make(def.Name)
		if err := s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&def).Error; err != nil {
			return fmt.Errorf("seed achievement %q: %w", def.Code, err)
		}
	}
	return nil
}

// CheckAndAward evaluates every active definition for the game against the
// user's approved submissions and awards each newly met one. Safe to call
// repeatedly and concurrently.
func (s *AchievementService) CheckAndAward(userID, gameType string) ([]models.Achievement, error) {
	var awarded []models.Achievement
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		got, err := s.CheckAndAwardTx(tx, userID, gameType)
		if err != nil {
			return err
		}
		awarded = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return awarded, nil
}

// CheckAndAwardTx is CheckAndAward inside an existing transaction, so a
// review approval can land the submission, the award and the achievement
// atomically.
func (s *AchievementService) CheckAndAwardTx(tx *gorm.DB, userID, gameType string) ([]models.Achievement, error) {
	var defs []models.AchievementDefinition
	if err := tx.Where("game_type = ? AND active = ?", gameType, true).Find(&defs).Error; err != nil {
		return nil, err
	}

	var awarded []models.Achievement
	for _, def := range defs {
		met, err := s.conditionMet(tx, userID, &def)
		if err != nil {
			return nil, err
		}
		if !met {
			continue
		}

		achievement := models.Achievement{
			UserID:       userID,
			DefinitionID: def.ID,
		}
		// The insert either claims the (user, definition) slot or loses to a
		// concurrent evaluation — RowsAffected tells us which.
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "definition_id"}},
			DoNothing: true,
		}).Create(&achievement)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue // already awarded
		}

		if _, err := s.Ledger.AwardTx(tx, userID, def.Points,
			models.ReasonAchievement, "achievement", def.ID, def.Name); err != nil {
			return nil, err
		}
		log.Printf("🏆 Achievement awarded: user=%s %q (+%d points)", userID, def.Name, def.Points)
		awarded = append(awarded, achievement)
	}
	return awarded, nil
}

// conditionMet evaluates one definition against verified match history.
func (s *AchievementService) conditionMet(tx *gorm.DB, userID string, def *models.AchievementDefinition) (bool, error) {
	base := tx.Model(&models.MatchSubmission{}).
		Where("user_id = ? AND game_type = ? AND status = ?", userID, def.GameType, models.SubmissionApproved)

	switch def.ConditionType {
	case models.ConditionWinCount:
		var wins int64
		if err := base.Where("result = ?", "win").Count(&wins).Error; err != nil {
			return false, err
		}
		return wins >= def.Threshold, nil

	case models.ConditionTotalMatches:
		var total int64
		if err := base.Count(&total).Error; err != nil {
			return false, err
		}
		return total >= def.Threshold, nil

	case models.ConditionWinStreak:
		// The most recent N matches by end time, all wins.
		var results []string
		if err := tx.Model(&models.MatchSubmission{}).
			Where("user_id = ? AND game_type = ? AND status = ?", userID, def.GameType, models.SubmissionApproved).
			Order("match_ended_at DESC").
			Limit(int(def.Threshold)).
			Pluck("result", &results).Error; err != nil {
			return false, err
		}
		if int64(len(results)) < def.Threshold {
			return false, nil
		}
		for _, r := range results {
			if r != "win" {
				return false, nil
			}
		}
		return true, nil

	case models.ConditionPlacement:
		var qualifying int64
		if err := base.Where("placement > 0 AND placement <= ?", def.MaxPlacement).
			Count(&qualifying).Error; err != nil {
			return false, err
		}
		return qualifying >= def.Threshold, nil

	default:
		return false, fmt.Errorf("achievement: unknown condition type %q", def.ConditionType)
	}
}
