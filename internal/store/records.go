package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/models"
)

var payoutMultiplier = decimal.NewFromFloat(models.DefaultOdds)

// PotentialWin is floor(wager * 1.5)
func PotentialWin(wager int64) int64 {
	return decimal.NewFromInt(wager).Mul(payoutMultiplier).Floor().IntPart()
}

type profileRecord struct {
	ID        string    `mapstructure:"id"`
	Name      string    `mapstructure:"name"`
	AvatarURL string    `mapstructure:"avatar_url"`
	CreatedAt time.Time `mapstructure:"created_at"`
}

type pointsRecord struct {
	UserID        string `mapstructure:"user_id"`
	CurrentPoints int64  `mapstructure:"current_points"`
}

type topicRecord struct {
	ID               string    `mapstructure:"id"`
	Title            string    `mapstructure:"title"`
	Description      string    `mapstructure:"description"`
	Category         string    `mapstructure:"category"`
	EndTime          time.Time `mapstructure:"end_time"`
	PoolSize         int64     `mapstructure:"pool_size"`
	ParticipantCount int64     `mapstructure:"participant_count"`
	ImageURL         string    `mapstructure:"image_url"`
	Status           string    `mapstructure:"status"`
	CreatedBy        string    `mapstructure:"created_by"`
	CreatedAt        time.Time `mapstructure:"created_at"`
}

type predictionRecord struct {
	ID              string    `mapstructure:"id"`
	UserID          string    `mapstructure:"user_id"`
	TopicID         string    `mapstructure:"topic_id"`
	PredictionValue string    `mapstructure:"prediction_value"`
	Wager           int64     `mapstructure:"wager"`
	CreatedAt       time.Time `mapstructure:"created_at"`
	IsCorrect       *bool     `mapstructure:"is_correct"`
}

// decodeRow maps a backend row onto a record struct
func decodeRow(row gateway.Row, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(row))
}

func toTopic(row gateway.Row) (models.Topic, error) {
	var r topicRecord
	if err := decodeRow(row, &r); err != nil {
		return models.Topic{}, fmt.Errorf("failed to decode topic: %w", err)
	}
	if r.ID == "" {
		return models.Topic{}, fmt.Errorf("topic row without id")
	}

	category, ok := models.ParseCategory(r.Category)
	if !ok {
		logger.Debug("", "topic_unknown_category", fmt.Sprintf("topic_id=%s category=%s", r.ID, r.Category))
		category = models.CategoryCustom
	}
	status := models.TopicStatus(r.Status)
	if !status.Valid() {
		status = models.TopicStatusActive
	}
	image := r.ImageURL
	if image == "" {
		image = models.DefaultTopicImage
	}

	return models.Topic{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		Category:     category,
		Participants: r.ParticipantCount,
		EndTime:      r.EndTime,
		PoolSize:     r.PoolSize,
		Image:        image,
		Status:       status,
		Odds:         models.DefaultOdds,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
	}, nil
}

func toTopics(rows []gateway.Row) []models.Topic {
	topics := make([]models.Topic, 0, len(rows))
	for _, row := range rows {
		t, err := toTopic(row)
		if err != nil {
			logger.Debug("", "topic_skipped", err.Error())
			continue
		}
		topics = append(topics, t)
	}
	return topics
}

func toPredictions(rows []gateway.Row) []models.Prediction {
	preds := make([]models.Prediction, 0, len(rows))
	for _, row := range rows {
		var r predictionRecord
		if err := decodeRow(row, &r); err != nil {
			logger.Debug("", "prediction_skipped", err.Error())
			continue
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		preds = append(preds, models.Prediction{
			ID:           r.ID,
			UserID:       r.UserID,
			TopicID:      r.TopicID,
			Value:        r.PredictionValue,
			Wager:        r.Wager,
			PotentialWin: PotentialWin(r.Wager),
			Status:       models.PredictionStatusFromResult(r.IsCorrect),
			CreatedAt:    r.CreatedAt,
		})
	}
	return preds
}
