package domain

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrNotLinked      = errors.New("bank account not linked")
	ErrNoRequisition  = errors.New("no requisition for user")
	ErrNoAccounts     = errors.New("requisition has no accounts")
	ErrNoTransactions = errors.New("no transactions")
	ErrNoBalance      = errors.New("interim available balance not found")
)

var (
	ErrEmptyBroadcast = errors.New("empty broadcast message")
	ErrNotAdmin       = errors.New("admin only")
)
