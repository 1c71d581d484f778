package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/repository"
)

func TestBroadcastService_IsAdmin(t *testing.T) {
	svc := NewBroadcastService(repository.NewMockUserRepository(), &MockSender{}, 42, zap.NewNop())
	if !svc.IsAdmin(42) {
		t.Error("IsAdmin(42) = false")
	}
	if svc.IsAdmin(43) {
		t.Error("IsAdmin(43) = true")
	}

	disabled := NewBroadcastService(repository.NewMockUserRepository(), &MockSender{}, 0, zap.NewNop())
	if disabled.IsAdmin(0) {
		t.Error("zero admin id must disable broadcast")
	}
}

func TestBroadcastService_Broadcast(t *testing.T) {
	repo := repository.NewMockUserRepository()
	repo.Put(domain.User{TelegramID: 1, IsAuthorized: true})
	repo.Put(domain.User{TelegramID: 2, IsAuthorized: true})
	repo.Put(domain.User{TelegramID: 3, IsAuthorized: true})
	repo.Put(domain.User{TelegramID: 4})

	sender := &MockSender{FailFor: map[int64]error{2: errors.New("bot blocked")}}
	svc := NewBroadcastService(repo, sender, 1, zap.NewNop())

	result, err := svc.Broadcast(context.Background(), 1, "  maintenance tonight  ")
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if result.Sent != 2 || result.Failed != 1 {
		t.Errorf("Broadcast() = %+v, want 2 sent 1 failed", result)
	}

	for _, m := range sender.Sent {
		if m.ChatID == 4 {
			t.Error("unauthorized user must not receive broadcast")
		}
		if !strings.HasPrefix(m.Text, broadcastHeader) || !strings.HasSuffix(m.Text, "maintenance tonight") {
			t.Errorf("broadcast text = %q", m.Text)
		}
	}
}

func TestBroadcastService_Broadcast_Rejects(t *testing.T) {
	svc := NewBroadcastService(repository.NewMockUserRepository(), &MockSender{}, 1, zap.NewNop())

	if _, err := svc.Broadcast(context.Background(), 2, "hi"); !errors.Is(err, domain.ErrNotAdmin) {
		t.Errorf("Broadcast() non-admin error = %v", err)
	}
	if _, err := svc.Broadcast(context.Background(), 1, "   "); !errors.Is(err, domain.ErrEmptyBroadcast) {
		t.Errorf("Broadcast() empty error = %v", err)
	}
}
