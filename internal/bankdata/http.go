package bankdata

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

func doRequest(client *http.Client, req *http.Request) ([]byte, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// handleHTTPError переводит код ответа в ошибку. 401 сюда попадает только
// после неудачного повтора с обновленным токеном.
func handleHTTPError(statusCode int, body []byte, logger *zap.Logger, endpoint string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", ErrUpstream, ErrUnauthorized)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrUpstream, ErrRateLimited)
	default:
		logger.Error("bank data request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", statusCode),
			zap.String("body", truncate(string(body), 512)),
		)
		return fmt.Errorf("%w: status %d", ErrUpstream, statusCode)
	}
}

func decodeJSON(body []byte, out interface{}) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
