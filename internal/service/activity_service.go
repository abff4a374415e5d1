package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/models"
)

// ActivityRepository описывает взаимодействие сервиса с хранилищем ленты активности.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Activity, error)
}

// ActivityPublisher рассылает события ленты после фиксации операции.
// Ошибки публикации не влияют на результат операции.
type ActivityPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

// ActivityService сохраняет ленту активности пользователей.
type ActivityService struct {
	repo ActivityRepository
}

// NewActivityService создаёт сервис ленты активности.
func NewActivityService(repo ActivityRepository) *ActivityService {
	return &ActivityService{repo: repo}
}

// Record сохраняет событие в ленте пользователя.
func (s *ActivityService) Record(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Activity, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("activity service: marshal payload %w", err)
	}

	activity := &models.Activity{
		UserID:  userID,
		Event:   event,
		Payload: payload,
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, err
	}
	return activity, nil
}

// SaveActivity реализует ws.ActivitySaver.
func (s *ActivityService) SaveActivity(ctx context.Context, userID uuid.UUID, event string, data interface{}) error {
	_, err := s.Record(ctx, userID, event, data)
	return err
}

// Publish сохраняет событие без рассылки. Используется там, где хаб не запущен (CLI).
func (s *ActivityService) Publish(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	if err := s.SaveActivity(context.WithoutCancel(ctx), userID, event, data); err != nil {
		logger.WithComponent("activity").WithError(err).WithField("event", event).Warn("не удалось сохранить активность")
	}
}

// List возвращает ленту пользователя.
func (s *ActivityService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Activity, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, userID, limit, offset)
}

// noopPublisher используется, когда публикация не настроена.
type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, uuid.UUID, string, interface{}) {}
