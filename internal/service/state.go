package service

import (
	"context"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/rs/zerolog"
)

// StateService keeps the storefront bot's per-chat dialog step.
type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

func (s *StateService) GetChatState(ctx context.Context, chatID int64) (*models.ChatState, error) {
	state, err := s.stateRepo.GetState(ctx, chatID)
	if err != nil {
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to get chat state")
		return nil, err
	}

	return state, nil
}

func (s *StateService) SetStep(ctx context.Context, chatID int64, step string, data map[string]interface{}) error {
	state := &models.ChatState{
		ChatID:      chatID,
		CurrentStep: step,
		TempData:    data,
	}
	return s.stateRepo.SetState(ctx, state)
}

func (s *StateService) ClearChatState(ctx context.Context, chatID int64) error {
	return s.stateRepo.ClearState(ctx, chatID)
}

// UpdateData sets one key of the chat's scratch data, creating the state if needed.
func (s *StateService) UpdateData(ctx context.Context, chatID int64, key string, value interface{}) error {
	state, err := s.stateRepo.GetState(ctx, chatID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.ChatState{ChatID: chatID}
	}
	state.Set(key, value)

	return s.stateRepo.SetState(ctx, state)
}

func (s *StateService) Allow(ctx context.Context, chatID int64, limit int) bool {
	ok, err := s.stateRepo.CheckRateLimit(ctx, chatID, limit, time.Minute)
	if err != nil {
		s.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("rate limit check failed")
		return true
	}
	return ok
}
