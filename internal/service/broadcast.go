package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/repository"
)

const broadcastHeader = "⚠️ NOTIFICATION FOR ALL USERS!⚠️\n\n"

type BroadcastResult struct {
	Sent   int
	Failed int
}

type BroadcastService interface {
	IsAdmin(telegramID int64) bool
	Broadcast(ctx context.Context, senderID int64, text string) (BroadcastResult, error)
}

type broadcastService struct {
	repo    repository.UserRepository
	sender  Sender
	adminID int64
	logger  *zap.Logger
}

// NewBroadcastService: adminID == 0 отключает рассылку
func NewBroadcastService(repo repository.UserRepository, sender Sender, adminID int64, logger *zap.Logger) BroadcastService {
	return &broadcastService{
		repo:    repo,
		sender:  sender,
		adminID: adminID,
		logger:  logger,
	}
}

func (s *broadcastService) IsAdmin(telegramID int64) bool {
	return s.adminID != 0 && telegramID == s.adminID
}

func (s *broadcastService) Broadcast(ctx context.Context, senderID int64, text string) (BroadcastResult, error) {
	if !s.IsAdmin(senderID) {
		return BroadcastResult{}, domain.ErrNotAdmin
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return BroadcastResult{}, domain.ErrEmptyBroadcast
	}

	users, err := s.repo.ListAuthorized(ctx)
	if err != nil {
		return BroadcastResult{}, err
	}

	var result BroadcastResult
	for _, u := range users {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		// ошибка одного чата не останавливает рассылку
		if err := s.sender.SendPlain(u.TelegramID, broadcastHeader+text); err != nil {
			s.logger.Warn("broadcast delivery failed",
				zap.Int64("telegram_id", u.TelegramID),
				zap.Error(err),
			)
			result.Failed++
			continue
		}
		result.Sent++
	}

	s.logger.Info("broadcast finished",
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}
