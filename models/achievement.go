// models/achievement.go
package models

import (
	"time"
)

// Condition types evaluated by the achievement engine.
const (
	ConditionWinCount     = "win_count"
	ConditionWinStreak    = "win_streak"
	ConditionTotalMatches = "total_matches"
	ConditionPlacement    = "placement"
)

// AchievementDefinition: static catalog of declarative award conditions
// (seeded below, editable in DB).
type AchievementDefinition struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string `gorm:"uniqueIndex;not null" json:"code"` // slug, e.g. "first-victory"
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description,omitempty"`
	GameType    string `gorm:"index;not null" json:"game_type"`

	ConditionType string `gorm:"type:varchar(32);not null" json:"condition_type"`
	Threshold     int64  `gorm:"default:1" json:"threshold"`
	// For placement conditions: a result counts when placement <= MaxPlacement.
	MaxPlacement int `gorm:"default:0" json:"max_placement,omitempty"`

	Points int64     `gorm:"not null" json:"points"`
	Active bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Achievement: awarded instance. The unique index on (user, definition) is
// the de-duplication guarantee — a definition can never fire twice per user.
type Achievement struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string    `gorm:"not null;uniqueIndex:ux_user_definition,priority:1" json:"user_id"`
	DefinitionID string    `gorm:"type:uuid;not null;uniqueIndex:ux_user_definition,priority:2" json:"definition_id"`
	AwardedAt    time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}

// DefaultAchievements seed the catalog on first boot.
var DefaultAchievements = []AchievementDefinition{
	{
		Name:          "First Victory",
		Description:   "Win your first verified match",
		GameType:      "arena",
		ConditionType: ConditionWinCount,
		Threshold:     1,
		Points:        50,
		Active:        true,
	},
	{
		Name:          "On a Roll",
		Description:   "Win 5 verified matches in a row",
		GameType:      "arena",
		ConditionType: ConditionWinStreak,
		Threshold:     5,
		Points:        200,
		Active:        true,
	},
	{
		Name:          "Veteran",
		Description:   "Complete 100 verified matches",
		GameType:      "arena",
		ConditionType: ConditionTotalMatches,
		Threshold:     100,
		Points:        500,
		Active:        true,
	},
	{
		Name:          "Podium Finish",
		Description:   "Place top 3 in a verified tournament match",
		GameType:      "battle_royale",
		ConditionType: ConditionPlacement,
		Threshold:     1,
		MaxPlacement:  3,
		Points:        150,
		Active:        true,
	},
}
