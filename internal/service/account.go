package service

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/repository"
	"github.com/kitbuilder587/bank-notify-bot/internal/txformat"
)

type AccountService interface {
	Balance(ctx context.Context, telegramID int64) (domain.Balance, error)
	// Transactions отдает сообщения в хронологическом порядке, последнее - самое новое.
	// Самое новое запоминается как last_tx.
	Transactions(ctx context.Context, telegramID int64) ([]string, error)
	// LatestTransaction - отформатированная самая новая транзакция счета
	LatestTransaction(ctx context.Context, accountID string) (string, error)
}

type accountService struct {
	repo      repository.UserRepository
	bank      BankAccounts
	formatter *txformat.Formatter
	limit     int
	logger    *zap.Logger
}

func NewAccountService(repo repository.UserRepository, bank BankAccounts, formatter *txformat.Formatter, limit int, logger *zap.Logger) AccountService {
	if limit <= 0 {
		limit = txformat.DefaultLimit
	}
	return &accountService{
		repo:      repo,
		bank:      bank,
		formatter: formatter,
		limit:     limit,
		logger:    logger,
	}
}

func (s *accountService) Balance(ctx context.Context, telegramID int64) (domain.Balance, error) {
	user, err := s.linkedUser(ctx, telegramID)
	if err != nil {
		return domain.Balance{}, err
	}

	return s.bank.Balance(ctx, user.BankAccountID)
}

func (s *accountService) Transactions(ctx context.Context, telegramID int64) ([]string, error) {
	user, err := s.linkedUser(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	page, err := s.bank.Transactions(ctx, user.BankAccountID)
	if err != nil {
		return nil, err
	}

	messages := s.formatter.Format(page, s.limit)
	if len(messages) == 0 {
		return nil, domain.ErrNoTransactions
	}

	if err := s.repo.SetLastTx(ctx, telegramID, messages[0]); err != nil {
		// сообщения уже есть, last_tx обновит поллер
		s.logger.Warn("failed to store last transaction",
			zap.Int64("telegram_id", telegramID),
			zap.Error(err),
		)
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *accountService) LatestTransaction(ctx context.Context, accountID string) (string, error) {
	page, err := s.bank.Transactions(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("fetch transactions: %w", err)
	}

	latest := s.formatter.Latest(page, s.limit)
	if latest == "" {
		return "", domain.ErrNoTransactions
	}
	return latest, nil
}

func (s *accountService) linkedUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	user, err := s.repo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if !user.HasAccount() {
		return nil, domain.ErrNotLinked
	}
	return user, nil
}
