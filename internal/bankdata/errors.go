package bankdata

import "errors"

var (
	// ErrUpstream - агрегатор ответил ошибкой (любой не-2xx кроме обработанного 401)
	ErrUpstream     = errors.New("bank data request failed")
	ErrUnauthorized = errors.New("access token rejected")
	ErrAuthFailed   = errors.New("token exchange failed")
	ErrRateLimited  = errors.New("bank data rate limit exceeded")
	ErrBadResponse  = errors.New("malformed bank data response")

	ErrInstitutionNotFound = errors.New("institution not found")
)
