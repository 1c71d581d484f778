package domain

import "time"

// User - строка bank_users: привязка телеграм-чата к счету в банке.
type User struct {
	TelegramID    int64
	AuthLink      string
	RequisitionID string
	BankAccountID string
	IsAuthorized  bool
	TxNotify      bool
	// LastTx - отформатированный текст последней увиденной транзакции,
	// единственный признак "есть ли что-то новое"
	LastTx    string
	CreatedAt time.Time
}

func (u *User) HasAccount() bool {
	return u.IsAuthorized && u.BankAccountID != ""
}
