package service

import (
	"context"

	"github.com/kitbuilder587/bank-notify-bot/internal/bankdata"
	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

// BankAccounts - чтение данных счета у агрегатора. Реализуется *bankdata.Client.
type BankAccounts interface {
	Balance(ctx context.Context, accountID string) (domain.Balance, error)
	Transactions(ctx context.Context, accountID string) (*domain.TransactionPage, error)
	AccountDetails(ctx context.Context, accountID string) (domain.AccountDetails, error)
}

// Consent - сессия привязки счета. Реализуется *bankdata.Client.
type Consent interface {
	InstitutionID(ctx context.Context, country, name string) (string, error)
	CreateRequisition(ctx context.Context, institutionID, redirect string) (*bankdata.Requisition, error)
	Requisition(ctx context.Context, requisitionID string) (*bankdata.Requisition, error)
}

// Sender отправляет обычный текст в чат. Реализуется telegram.Bot.
type Sender interface {
	SendPlain(chatID int64, text string) error
}
