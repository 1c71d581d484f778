package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/repository"
)

type UserService interface {
	GetOrCreate(ctx context.Context, telegramID int64) (user *domain.User, created bool, err error)
	Get(ctx context.Context, telegramID int64) (*domain.User, error)
	// BeginLink открывает сессию привязки и возвращает ссылку на согласие
	BeginLink(ctx context.Context, telegramID int64) (string, error)
	// CompleteLink забирает счет из согласия и помечает пользователя авторизованным
	CompleteLink(ctx context.Context, telegramID int64) (*domain.User, domain.AccountDetails, error)
}

type LinkConfig struct {
	Country         string
	InstitutionName string
	RedirectURL     string
}

type userService struct {
	repo    repository.UserRepository
	consent Consent
	bank    BankAccounts
	cfg     LinkConfig
	logger  *zap.Logger
}

func NewUserService(repo repository.UserRepository, consent Consent, bank BankAccounts, cfg LinkConfig, logger *zap.Logger) UserService {
	return &userService{
		repo:    repo,
		consent: consent,
		bank:    bank,
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *userService) GetOrCreate(ctx context.Context, telegramID int64) (*domain.User, bool, error) {
	user, created, err := s.repo.GetOrCreate(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.Info("new user created",
			zap.Int64("telegram_id", telegramID),
		)
	}

	return user, created, nil
}

func (s *userService) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	return s.repo.GetByTelegramID(ctx, telegramID)
}

func (s *userService) BeginLink(ctx context.Context, telegramID int64) (string, error) {
	institutionID, err := s.consent.InstitutionID(ctx, s.cfg.Country, s.cfg.InstitutionName)
	if err != nil {
		return "", fmt.Errorf("resolve institution: %w", err)
	}

	req, err := s.consent.CreateRequisition(ctx, institutionID, s.cfg.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("create requisition: %w", err)
	}

	if err := s.repo.SetAuthSession(ctx, telegramID, req.Link, req.ID); err != nil {
		return "", err
	}

	s.logger.Info("bank session created",
		zap.Int64("telegram_id", telegramID),
		zap.String("requisition_id", req.ID),
	)

	return req.Link, nil
}

func (s *userService) CompleteLink(ctx context.Context, telegramID int64) (*domain.User, domain.AccountDetails, error) {
	user, err := s.repo.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, domain.AccountDetails{}, err
	}
	if user.RequisitionID == "" {
		return nil, domain.AccountDetails{}, domain.ErrNoRequisition
	}

	req, err := s.consent.Requisition(ctx, user.RequisitionID)
	if err != nil {
		return nil, domain.AccountDetails{}, fmt.Errorf("get requisition: %w", err)
	}
	if len(req.Accounts) == 0 {
		return nil, domain.AccountDetails{}, domain.ErrNoAccounts
	}

	// берем первый счет, как и при первичной привязке
	accountID := req.Accounts[0]
	if err := s.repo.SetAccount(ctx, telegramID, accountID); err != nil {
		return nil, domain.AccountDetails{}, err
	}
	user.BankAccountID = accountID
	user.IsAuthorized = true

	details, err := s.bank.AccountDetails(ctx, accountID)
	if err != nil {
		return nil, domain.AccountDetails{}, fmt.Errorf("get account details: %w", err)
	}

	s.logger.Info("bank account linked",
		zap.Int64("telegram_id", telegramID),
		zap.String("account_id", accountID),
	)

	return user, details, nil
}
