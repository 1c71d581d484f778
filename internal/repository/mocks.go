package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

// MockUserRepository - in-memory реализация для тестов. Хранит копии,
// наружу тоже отдает копии.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[int64]domain.User // key: TelegramID

	// Err - если задан, возвращается из всех методов
	Err error
	// LastTxWrites - сколько раз вызывали SetLastTx
	LastTxWrites int
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users: make(map[int64]domain.User),
	}
}

// Put кладет пользователя как есть, для подготовки тестов
func (m *MockUserRepository) Put(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	m.users[user.TelegramID] = user
}

func (m *MockUserRepository) GetOrCreate(ctx context.Context, telegramID int64) (*domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, false, m.Err
	}
	if user, exists := m.users[telegramID]; exists {
		return &user, false, nil
	}

	user := domain.User{
		TelegramID: telegramID,
		CreatedAt:  time.Now(),
	}
	m.users[telegramID] = user
	return &user, true, nil
}

func (m *MockUserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if user, exists := m.users[telegramID]; exists {
		return &user, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *MockUserRepository) SetAuthSession(ctx context.Context, telegramID int64, authLink, requisitionID string) error {
	return m.update(telegramID, func(u *domain.User) {
		u.AuthLink = authLink
		u.RequisitionID = requisitionID
	})
}

func (m *MockUserRepository) SetAccount(ctx context.Context, telegramID int64, accountID string) error {
	return m.update(telegramID, func(u *domain.User) {
		u.BankAccountID = accountID
		u.IsAuthorized = true
	})
}

func (m *MockUserRepository) SetTxNotify(ctx context.Context, telegramID int64, enabled bool) error {
	return m.update(telegramID, func(u *domain.User) {
		u.TxNotify = enabled
	})
}

func (m *MockUserRepository) SetLastTx(ctx context.Context, telegramID int64, lastTx string) error {
	return m.update(telegramID, func(u *domain.User) {
		u.LastTx = lastTx
		m.LastTxWrites++
	})
}

func (m *MockUserRepository) ListNotifiable(ctx context.Context) ([]domain.User, error) {
	return m.list(func(u domain.User) bool { return u.IsAuthorized && u.TxNotify })
}

func (m *MockUserRepository) ListAuthorized(ctx context.Context) ([]domain.User, error) {
	return m.list(func(u domain.User) bool { return u.IsAuthorized })
}

func (m *MockUserRepository) update(telegramID int64, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	user, exists := m.users[telegramID]
	if !exists {
		return domain.ErrUserNotFound
	}
	fn(&user)
	m.users[telegramID] = user
	return nil
}

func (m *MockUserRepository) list(keep func(domain.User) bool) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	var result []domain.User
	for _, u := range m.users {
		if keep(u) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TelegramID < result[j].TelegramID })
	return result, nil
}
