package bankdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kitbuilder587/bank-notify-bot/internal/cache/memory"
	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
	"github.com/kitbuilder587/bank-notify-bot/internal/metrics"
)

const DefaultBaseURL = "https://bankaccountdata.gocardless.com/api/v2"

const interimAvailable = "interimAvailable"

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Tokens - источник токенов для Client. Реализуется TokenManager.
type Tokens interface {
	Token(ctx context.Context) (domain.TokenPair, error)
	Refresh(ctx context.Context) (domain.TokenPair, error)
}

type Client struct {
	baseURL string
	client  *http.Client
	tokens  Tokens
	logger  *zap.Logger
	metrics *metrics.Metrics

	details      *memory.Cache[domain.AccountDetails]
	institutions *memory.Cache[string]
}

func New(ctx context.Context, cfg Config, tokens Tokens, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 6 * time.Hour
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		client:       &http.Client{Timeout: cfg.Timeout},
		tokens:       tokens,
		logger:       logger,
		metrics:      m,
		details:      memory.New[domain.AccountDetails](ctx, cfg.CacheTTL),
		institutions: memory.New[string](ctx, cfg.CacheTTL),
	}
}

func (c *Client) Close() {
	c.details.Stop()
	c.institutions.Stop()
}

type amountJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type balancesResponse struct {
	Balances []struct {
		BalanceType   string     `json:"balanceType"`
		BalanceAmount amountJSON `json:"balanceAmount"`
	} `json:"balances"`
}

type transactionJSON struct {
	TransactionID     string     `json:"transactionId"`
	BookingDate       string     `json:"bookingDate"`
	TransactionAmount amountJSON `json:"transactionAmount"`
	Remittance        string     `json:"remittanceInformationUnstructured"`
}

type transactionsResponse struct {
	Transactions struct {
		Booked  []transactionJSON `json:"booked"`
		Pending []transactionJSON `json:"pending"`
	} `json:"transactions"`
}

type detailsResponse struct {
	Account struct {
		OwnerName string `json:"ownerName"`
		Product   string `json:"product"`
		Name      string `json:"name"`
	} `json:"account"`
}

func (c *Client) Balance(ctx context.Context, accountID string) (domain.Balance, error) {
	var resp balancesResponse
	if err := c.get(ctx, "balances", "/accounts/"+url.PathEscape(accountID)+"/balances/", &resp); err != nil {
		return domain.Balance{}, err
	}

	for _, b := range resp.Balances {
		if b.BalanceType != interimAvailable {
			continue
		}
		amount, err := decimal.NewFromString(b.BalanceAmount.Amount)
		if err != nil {
			return domain.Balance{}, fmt.Errorf("%w: balance amount %q: %v", ErrBadResponse, b.BalanceAmount.Amount, err)
		}
		return domain.Balance{Amount: amount, Currency: b.BalanceAmount.Currency}, nil
	}

	return domain.Balance{}, domain.ErrNoBalance
}

func (c *Client) Transactions(ctx context.Context, accountID string) (*domain.TransactionPage, error) {
	var resp transactionsResponse
	if err := c.get(ctx, "transactions", "/accounts/"+url.PathEscape(accountID)+"/transactions/", &resp); err != nil {
		return nil, err
	}

	booked, err := convertTransactions(resp.Transactions.Booked, domain.StatusBooked)
	if err != nil {
		return nil, err
	}
	pending, err := convertTransactions(resp.Transactions.Pending, domain.StatusPending)
	if err != nil {
		return nil, err
	}

	return &domain.TransactionPage{Booked: booked, Pending: pending}, nil
}

func (c *Client) AccountDetails(ctx context.Context, accountID string) (domain.AccountDetails, error) {
	details, hit, err := c.details.GetOrLoad(accountID, func() (domain.AccountDetails, error) {
		var resp detailsResponse
		if err := c.get(ctx, "details", "/accounts/"+url.PathEscape(accountID)+"/details/", &resp); err != nil {
			return domain.AccountDetails{}, err
		}
		product := resp.Account.Product
		if product == "" {
			product = resp.Account.Name
		}
		return domain.AccountDetails{OwnerName: resp.Account.OwnerName, Product: product}, nil
	})
	c.recordCache(hit, err)
	return details, err
}

func convertTransactions(raw []transactionJSON, status domain.TransactionStatus) ([]domain.Transaction, error) {
	out := make([]domain.Transaction, 0, len(raw))
	for _, r := range raw {
		amount, err := decimal.NewFromString(r.TransactionAmount.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: transaction %s amount %q: %v", ErrBadResponse, r.TransactionID, r.TransactionAmount.Amount, err)
		}
		out = append(out, domain.Transaction{
			ID:          r.TransactionID,
			Amount:      amount,
			Currency:    r.TransactionAmount.Currency,
			Description: r.Remittance,
			BookingDate: r.BookingDate,
			Status:      status,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, path, nil, out)
}

func (c *Client) post(ctx context.Context, endpoint, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, endpoint, path, body, out)
}

// do выполняет запрос с текущим токеном. На 401 токен обновляется ровно один
// раз и запрос повторяется ровно один раз; второй 401 уходит наверх как ErrUpstream.
func (c *Client) do(ctx context.Context, method, endpoint, path string, body []byte, out interface{}) error {
	respBody, status, err := c.send(ctx, method, endpoint, path, body)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		c.logger.Warn("bank data returned 401, refreshing token",
			zap.String("endpoint", endpoint),
		)
		if _, err := c.tokens.Refresh(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		respBody, status, err = c.send(ctx, method, endpoint, path, body)
		if err != nil {
			return err
		}
	}

	if err := handleHTTPError(status, respBody, c.logger, endpoint); err != nil {
		return err
	}

	return decodeJSON(respBody, out)
}

func (c *Client) send(ctx context.Context, method, endpoint, path string, body []byte) ([]byte, int, error) {
	pair, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	respBody, status, err := doRequest(c.client, req)
	if c.metrics != nil {
		label := strconv.Itoa(status)
		if err != nil {
			label = "error"
		}
		c.metrics.RecordBankRequest(endpoint, label, time.Since(start))
	}
	if err != nil {
		c.logger.Error("bank data request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return nil, 0, err
	}

	return respBody, status, nil
}

func (c *Client) recordCache(hit bool, err error) {
	if c.metrics == nil || err != nil {
		return
	}
	if hit {
		c.metrics.RecordCacheHit()
	} else {
		c.metrics.RecordCacheMiss()
	}
}

// IsAuthError - запрос не прошел даже с обновленным токеном
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrAuthFailed)
}
