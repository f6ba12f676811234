package services

import (
	"errors"
	"time"

	"lingobattle/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuestionSupply hands the orchestrator an already-selected, deduplicated
// question list for one battle.
type QuestionSupply interface {
	PickForBattle(language string, count int) ([]BattleQuestion, error)
}

// RatingStore reads and writes per-season player ratings. Absent players
// read as models.DefaultRating.
type RatingStore interface {
	Get(userID uint, season string) (int, error)
	Put(userID uint, season string, rating int) error
}

// OutcomeStore persists match results: placeholder rows at match start, the
// completed pair exactly once at finalize. FinalizedRows reports only rows
// whose result is already non-empty, which is the finalize idempotency probe.
type OutcomeStore interface {
	CreatePlaceholders(rows []models.MatchResult) error
	FinalizedRows(matchID string) ([]models.MatchResult, error)
	SaveOutcome(rows []models.MatchResult) error
}

// Notifier relays battle events to whatever transport carries them to
// clients. The core knows nothing about delivery.
type Notifier interface {
	BroadcastToMatch(matchID string, event string, payload interface{})
}

// GormRatingStore is the production RatingStore on top of the season_ratings
// table.
type GormRatingStore struct {
	db *gorm.DB
}

func NewGormRatingStore(db *gorm.DB) *GormRatingStore {
	return &GormRatingStore{db: db}
}

func (s *GormRatingStore) Get(userID uint, season string) (int, error) {
	var row models.SeasonRating
	err := s.db.Where("user_id = ? AND season = ?", userID, season).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DefaultRating, nil
	}
	if err != nil {
		return 0, err
	}
	return row.Rating, nil
}

func (s *GormRatingStore) Put(userID uint, season string, rating int) error {
	row := models.SeasonRating{UserID: userID, Season: season, Rating: rating}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "season"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "updated_at"}),
	}).Create(&row).Error
}

// GormOutcomeStore is the production OutcomeStore on top of match_results.
type GormOutcomeStore struct {
	db *gorm.DB
}

func NewGormOutcomeStore(db *gorm.DB) *GormOutcomeStore {
	return &GormOutcomeStore{db: db}
}

func (s *GormOutcomeStore) CreatePlaceholders(rows []models.MatchResult) error {
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (s *GormOutcomeStore) FinalizedRows(matchID string) ([]models.MatchResult, error) {
	var rows []models.MatchResult
	err := s.db.Where("match_id = ? AND result <> ''", matchID).
		Order("user_id ASC").Find(&rows).Error
	return rows, err
}

func (s *GormOutcomeStore) SaveOutcome(rows []models.MatchResult) error {
	now := time.Now()
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			row := rows[i]
			updates := map[string]interface{}{
				"result":        row.Result,
				"rating_delta":  row.RatingDelta,
				"rating_after":  row.RatingAfter,
				"round_history": row.RoundHistory,
				"reason":        row.Reason,
				"ended_at":      row.EndedAt,
				"updated_at":    now,
			}
			res := tx.Model(&models.MatchResult{}).
				Where("match_id = ? AND user_id = ?", row.MatchID, row.UserID).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				if err := tx.Create(&rows[i]).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// HistoryForUser lists a user's finalized results, newest first.
func (s *GormOutcomeStore) HistoryForUser(userID uint, limit int) ([]models.MatchResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []models.MatchResult
	err := s.db.Where("user_id = ? AND result <> ''", userID).
		Order("ended_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
