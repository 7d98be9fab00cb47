package chat

import (
	"context"
	"log/slog"

	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/stringutils"
	"gorm.io/gorm"
)

const HistoryLimit = 50

type (
	SendMessageRequest struct {
		Message string  `json:"message" jsonschema:"required,minLength=1"`
		Context *string `json:"context,omitempty"`
	}

	Service interface {
		SendMessage(ctx context.Context, caller string, req SendMessageRequest) (*entity.ChatMessage, error)
		// GetChatHistory returns the caller's newest messages, newest first.
		GetChatHistory(ctx context.Context, caller string) ([]entity.ChatMessage, error)
	}

	service struct {
		logger *slog.Logger
		db     *gorm.DB
		clock  clock.Clock
	}
)

var (
	_ Service = (*service)(nil)
)

func NewService(gormDB *gorm.DB, logger *slog.Logger, clk clock.Clock) Service {
	return &service{
		logger: logger,
		db:     gormDB,
		clock:  clk,
	}
}

func (s *service) SendMessage(ctx context.Context, caller string, req SendMessageRequest) (*entity.ChatMessage, error) {
	if caller == "" {
		return nil, errors.Wrapf(errors.ErrNotAuthenticated, "failed to send message")
	}
	message := stringutils.CleanText(req.Message)
	if message == "" {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "message is required")
	}

	_, tx := db.OpenSession(ctx, s.db)

	msg := entity.ChatMessage{
		UserID:    caller,
		Message:   message,
		IsBot:     false,
		Context:   req.Context,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to save chat message")
	}

	return &msg, nil
}

func (s *service) GetChatHistory(ctx context.Context, caller string) ([]entity.ChatMessage, error) {
	messages := []entity.ChatMessage{}
	if caller == "" {
		return messages, nil
	}

	_, tx := db.OpenSession(ctx, s.db)
	if err := tx.Where("user_id = ?", caller).
		Order("timestamp DESC, id DESC").
		Limit(HistoryLimit).
		Find(&messages).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find chat history")
	}

	return messages, nil
}
