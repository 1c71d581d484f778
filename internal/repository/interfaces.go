package repository

import (
	"context"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

// UserRepository - таблица bank_users. Каждый метод - отдельный запрос без
// транзакции; гонки между хендлером и поллером за last_tx допустимы.
type UserRepository interface {
	GetOrCreate(ctx context.Context, telegramID int64) (user *domain.User, created bool, err error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)

	// привязка счета
	SetAuthSession(ctx context.Context, telegramID int64, authLink, requisitionID string) error
	SetAccount(ctx context.Context, telegramID int64, accountID string) error

	// уведомления
	SetTxNotify(ctx context.Context, telegramID int64, enabled bool) error
	SetLastTx(ctx context.Context, telegramID int64, lastTx string) error

	ListNotifiable(ctx context.Context) ([]domain.User, error)
	ListAuthorized(ctx context.Context) ([]domain.User, error)
}
