package bankdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/metrics"
)

type TokenConfig struct {
	SecretID  string
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

// TokenManager держит одну пару токенов на процесс. Все запросы к агрегатору
// берут токен отсюда, поэтому обновление сразу видно всем пользователям.
type TokenManager struct {
	secretID  string
	secretKey string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu   sync.RWMutex
	pair domain.TokenPair

	// одновременные 401 от разных пользователей схлопываются в один обмен
	group singleflight.Group
}

func NewTokenManager(cfg TokenConfig, logger *zap.Logger, m *metrics.Metrics) *TokenManager {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &TokenManager{
		secretID:  cfg.SecretID,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

type newTokenRequest struct {
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
}

type refreshTokenRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access         string `json:"access"`
	AccessExpires  int64  `json:"access_expires"`
	Refresh        string `json:"refresh"`
	RefreshExpires int64  `json:"refresh_expires"`
}

// Token отдает текущую пару, при первом вызове получает новую.
func (m *TokenManager) Token(ctx context.Context) (domain.TokenPair, error) {
	m.mu.RLock()
	pair := m.pair
	m.mu.RUnlock()

	if !pair.IsZero() {
		return pair, nil
	}

	v, err, _ := m.group.Do("new", func() (interface{}, error) {
		// double-check: пока ждали, пару мог получить другой запрос
		m.mu.RLock()
		cur := m.pair
		m.mu.RUnlock()
		if !cur.IsZero() {
			return cur, nil
		}
		return m.obtainNew(ctx)
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return v.(domain.TokenPair), nil
}

// Refresh меняет refresh токен на новый access. Если refresh токен истек или
// отвергнут, получает пару заново по secret id/key.
func (m *TokenManager) Refresh(ctx context.Context) (domain.TokenPair, error) {
	m.logger.Warn("access token expired, refreshing")

	v, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		m.mu.RLock()
		cur := m.pair
		m.mu.RUnlock()

		if cur.RefreshUsable(m.now()) {
			pair, err := m.exchangeRefresh(ctx, cur)
			if err == nil {
				return pair, nil
			}
			m.logger.Warn("refresh token rejected, requesting new token pair", zap.Error(err))
		}
		return m.obtainNew(ctx)
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return v.(domain.TokenPair), nil
}

// Current - пара без обращения к сети, для тестов и логов
func (m *TokenManager) Current() domain.TokenPair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pair
}

func (m *TokenManager) obtainNew(ctx context.Context) (domain.TokenPair, error) {
	var resp tokenResponse
	err := m.post(ctx, "/token/new/", newTokenRequest{SecretID: m.secretID, SecretKey: m.secretKey}, &resp)
	m.record("new", err)
	if err != nil {
		return domain.TokenPair{}, err
	}

	now := m.now()
	pair := domain.TokenPair{
		Access:         resp.Access,
		Refresh:        resp.Refresh,
		AccessExpires:  expiresAt(now, resp.AccessExpires),
		RefreshExpires: expiresAt(now, resp.RefreshExpires),
	}
	m.store(pair)

	m.logger.Info("bank data token pair issued",
		zap.Time("access_expires", pair.AccessExpires),
		zap.Time("refresh_expires", pair.RefreshExpires),
	)
	return pair, nil
}

func (m *TokenManager) exchangeRefresh(ctx context.Context, cur domain.TokenPair) (domain.TokenPair, error) {
	var resp tokenResponse
	err := m.post(ctx, "/token/refresh/", refreshTokenRequest{Refresh: cur.Refresh}, &resp)
	m.record("refresh", err)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair := cur
	pair.Access = resp.Access
	pair.AccessExpires = expiresAt(m.now(), resp.AccessExpires)
	m.store(pair)

	m.logger.Debug("bank data access token refreshed",
		zap.Time("access_expires", pair.AccessExpires),
	)
	return pair, nil
}

func (m *TokenManager) store(pair domain.TokenPair) {
	m.mu.Lock()
	m.pair = pair
	m.mu.Unlock()
}

func (m *TokenManager) post(ctx context.Context, path string, payload interface{}, out *tokenResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	respBody, status, err := doRequest(m.client, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if status != http.StatusOK {
		m.logger.Error("bank data token exchange failed",
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("body", truncate(string(respBody), 512)),
		)
		return fmt.Errorf("%w: status %d", ErrAuthFailed, status)
	}

	if err := decodeJSON(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if out.Access == "" {
		return fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}
	return nil
}

func (m *TokenManager) record(kind string, err error) {
	if m.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordTokenRefresh(kind, status)
}

func expiresAt(now time.Time, seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}
