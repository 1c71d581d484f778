package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS bank_users (
    telegram_id     BIGINT PRIMARY KEY,
    auth_link       TEXT NOT NULL DEFAULT '',
    requisition_id  TEXT NOT NULL DEFAULT '',
    bank_account_id TEXT NOT NULL DEFAULT '',
    is_authorized   BOOLEAN NOT NULL DEFAULT false,
    tx_notify       BOOLEAN NOT NULL DEFAULT false,
    last_tx         TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS bank_users_notify_idx
    ON bank_users (telegram_id) WHERE is_authorized AND tx_notify;
`

// EnsureSchema создает таблицу, если ее нет. Повторный вызов ничего не меняет.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
