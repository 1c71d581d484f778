package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kitbuilder587/bank-notify-bot/internal/domain"
)

const userColumns = `telegram_id, auth_link, requisition_id, bank_account_id,
        is_authorized, tx_notify, last_tx, created_at`

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetOrCreate(ctx context.Context, telegramID int64) (*domain.User, bool, error) {
	// xmax = 0 только у строки, вставленной этим запросом
	query := `
        INSERT INTO bank_users (telegram_id)
        VALUES ($1)
        ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
        RETURNING ` + userColumns + `, (xmax = 0) AS inserted
    `

	var user domain.User
	var created bool
	err := r.db.Pool.QueryRow(ctx, query, telegramID).Scan(
		&user.TelegramID,
		&user.AuthLink,
		&user.RequisitionID,
		&user.BankAccountID,
		&user.IsAuthorized,
		&user.TxNotify,
		&user.LastTx,
		&user.CreatedAt,
		&created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("get or create user: %w", err)
	}

	return &user, created, nil
}

func (r *UserRepo) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank_users WHERE telegram_id = $1`

	user, err := scanUser(r.db.Pool.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	return user, nil
}

func (r *UserRepo) SetAuthSession(ctx context.Context, telegramID int64, authLink, requisitionID string) error {
	query := `UPDATE bank_users SET auth_link = $2, requisition_id = $3 WHERE telegram_id = $1`
	return r.exec(ctx, "set auth session", query, telegramID, authLink, requisitionID)
}

func (r *UserRepo) SetAccount(ctx context.Context, telegramID int64, accountID string) error {
	query := `UPDATE bank_users SET bank_account_id = $2, is_authorized = true WHERE telegram_id = $1`
	return r.exec(ctx, "set account", query, telegramID, accountID)
}

func (r *UserRepo) SetTxNotify(ctx context.Context, telegramID int64, enabled bool) error {
	query := `UPDATE bank_users SET tx_notify = $2 WHERE telegram_id = $1`
	return r.exec(ctx, "set tx notify", query, telegramID, enabled)
}

func (r *UserRepo) SetLastTx(ctx context.Context, telegramID int64, lastTx string) error {
	query := `UPDATE bank_users SET last_tx = $2 WHERE telegram_id = $1`
	return r.exec(ctx, "set last tx", query, telegramID, lastTx)
}

func (r *UserRepo) ListNotifiable(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank_users
        WHERE is_authorized AND tx_notify ORDER BY telegram_id`
	return r.list(ctx, "list notifiable users", query)
}

func (r *UserRepo) ListAuthorized(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank_users
        WHERE is_authorized ORDER BY telegram_id`
	return r.list(ctx, "list authorized users", query)
}

func (r *UserRepo) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

func (r *UserRepo) list(ctx context.Context, op, query string) ([]domain.User, error) {
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.TelegramID,
		&user.AuthLink,
		&user.RequisitionID,
		&user.BankAccountID,
		&user.IsAuthorized,
		&user.TxNotify,
		&user.LastTx,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
