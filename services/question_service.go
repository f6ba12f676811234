package services

import (
	"errors"
	"fmt"

	"lingobattle/models"

	"gorm.io/gorm"
)

type QuestionService struct {
	db *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{db: db}
}

type CreateQuestionRequest struct {
	Language       string `json:"language" binding:"required"`
	Text           string `json:"text" binding:"required"`
	ExpectedAnswer string `json:"expected_answer" binding:"required"`
	Format         string `json:"format" binding:"omitempty,oneof=translate fill_blank multiple_choice"`
}

type UpdateQuestionRequest struct {
	Text           string `json:"text"`
	ExpectedAnswer string `json:"expected_answer"`
	Format         string `json:"format" binding:"omitempty,oneof=translate fill_blank multiple_choice"`
}

func (s *QuestionService) CreateQuestion(req *CreateQuestionRequest) (*models.Question, error) {
	question := models.Question{
		Language:       req.Language,
		Text:           req.Text,
		ExpectedAnswer: req.ExpectedAnswer,
		Format:         req.Format,
	}
	if question.Format == "" {
		question.Format = "translate"
	}

	if err := s.db.Create(&question).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (s *QuestionService) GetQuestionsByLanguage(language string) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.Where("language = ?", language).Order("created_at DESC").Find(&questions).Error
	return questions, err
}

func (s *QuestionService) GetQuestionByID(id uint) (*models.Question, error) {
	var question models.Question
	err := s.db.First(&question, id).Error
	return &question, err
}

func (s *QuestionService) UpdateQuestion(id uint, req *UpdateQuestionRequest) (*models.Question, error) {
	question, err := s.GetQuestionByID(id)
	if err != nil {
		return nil, errors.New("question not found")
	}

	if req.Text != "" {
		question.Text = req.Text
	}
	if req.ExpectedAnswer != "" {
		question.ExpectedAnswer = req.ExpectedAnswer
	}
	if req.Format != "" {
		question.Format = req.Format
	}

	if err := s.db.Save(question).Error; err != nil {
		return nil, err
	}
	return question, nil
}

func (s *QuestionService) DeleteQuestion(id uint) error {
	res := s.db.Delete(&models.Question{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("question not found")
	}
	return nil
}

// PickForBattle selects count distinct random questions for a language. The
// random ordering deduplicates by construction; falling short of count is
// the caller's insufficient-content error.
func (s *QuestionService) PickForBattle(language string, count int) ([]BattleQuestion, error) {
	var rows []models.Question
	err := s.db.Where("language = ?", language).
		Order("RANDOM()").
		Limit(count).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to pick questions: %w", err)
	}

	questions := make([]BattleQuestion, len(rows))
	for i, row := range rows {
		questions[i] = BattleQuestion{
			ID:             row.ID,
			Text:           row.Text,
			ExpectedAnswer: row.ExpectedAnswer,
			Format:         row.Format,
		}
	}
	return questions, nil
}
