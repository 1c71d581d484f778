package service

import (
	"context"
	"sync"

	"github.com/kitbuilder587/bank-notify-bot/internal/bankdata"
	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

type MockBank struct {
	BalanceFunc        func(ctx context.Context, accountID string) (domain.Balance, error)
	TransactionsFunc   func(ctx context.Context, accountID string) (*domain.TransactionPage, error)
	AccountDetailsFunc func(ctx context.Context, accountID string) (domain.AccountDetails, error)
}

func (m *MockBank) Balance(ctx context.Context, accountID string) (domain.Balance, error) {
	if m.BalanceFunc != nil {
		return m.BalanceFunc(ctx, accountID)
	}
	return domain.Balance{}, nil
}

func (m *MockBank) Transactions(ctx context.Context, accountID string) (*domain.TransactionPage, error) {
	if m.TransactionsFunc != nil {
		return m.TransactionsFunc(ctx, accountID)
	}
	return &domain.TransactionPage{}, nil
}

func (m *MockBank) AccountDetails(ctx context.Context, accountID string) (domain.AccountDetails, error) {
	if m.AccountDetailsFunc != nil {
		return m.AccountDetailsFunc(ctx, accountID)
	}
	return domain.AccountDetails{OwnerName: "Test Owner", Product: "Personkonto"}, nil
}

type MockConsent struct {
	InstitutionIDFunc     func(ctx context.Context, country, name string) (string, error)
	CreateRequisitionFunc func(ctx context.Context, institutionID, redirect string) (*bankdata.Requisition, error)
	RequisitionFunc       func(ctx context.Context, requisitionID string) (*bankdata.Requisition, error)
}

func (m *MockConsent) InstitutionID(ctx context.Context, country, name string) (string, error) {
	if m.InstitutionIDFunc != nil {
		return m.InstitutionIDFunc(ctx, country, name)
	}
	return "NORDEA_NDEASESS", nil
}

func (m *MockConsent) CreateRequisition(ctx context.Context, institutionID, redirect string) (*bankdata.Requisition, error) {
	if m.CreateRequisitionFunc != nil {
		return m.CreateRequisitionFunc(ctx, institutionID, redirect)
	}
	return &bankdata.Requisition{ID: "req-1", Link: "https://ob.example/start/req-1"}, nil
}

func (m *MockConsent) Requisition(ctx context.Context, requisitionID string) (*bankdata.Requisition, error) {
	if m.RequisitionFunc != nil {
		return m.RequisitionFunc(ctx, requisitionID)
	}
	return &bankdata.Requisition{ID: requisitionID, Accounts: []string{"acc-1"}}, nil
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type MockSender struct {
	mu   sync.Mutex
	Sent []sentMessage
	// FailFor - чаты, для которых отправка падает
	FailFor map[int64]error
}

func (m *MockSender) SendPlain(chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailFor[chatID]; ok {
		return err
	}
	m.Sent = append(m.Sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}
