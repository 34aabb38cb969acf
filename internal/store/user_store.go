package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/jackc/pgx/v5"
)

// UserUpdate holds the columns to change. Nil fields are left alone.
type UserUpdate struct {
	Name           *string
	PasswordHash   *string
	TelegramChatID *string
}

const userColumns = `id, name, telegram_chat_id, password_hash, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.TelegramChatID, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, name, passwordHash string, telegramChatID *string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (name, password_hash, telegram_chat_id)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		name, passwordHash, telegramChatID,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

// ListUsers returns every user. All users are recipients of every project's
// notifications.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (*domain.User, error) {
	setClause, args := buildUserUpdate(upd)
	if setClause == "" {
		return s.GetUser(ctx, id)
	}

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`, setClause, len(args)+1, userColumns)
	args = append(args, id)

	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}
	return u, nil
}

// buildUserUpdate renders the SET clause for the non-nil fields. An empty
// telegram chat id clears the column.
func buildUserUpdate(upd UserUpdate) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.TelegramChatID != nil {
		if *upd.TelegramChatID == "" {
			add("telegram_chat_id", nil)
		} else {
			add("telegram_chat_id", *upd.TelegramChatID)
		}
	}
	return strings.Join(clauses, ", "), args
}
