package notification

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepository persists notifications in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const itemColumns = `id, user_id, title, message, type, is_read, created_at, read_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (Item, error) {
	var it Item
	err := s.Scan(&it.ID, &it.UserID, &it.Title, &it.Message, &it.Type, &it.IsRead, &it.CreatedAt, &it.ReadAt)
	return it, err
}

func (r *PostgresRepository) Create(ctx context.Context, it Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, it.ID, it.UserID, it.Title, it.Message, it.Type, it.IsRead, it.CreatedAt)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM notifications WHERE id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (r *PostgresRepository) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error) {
	var (
		res sql.Result
		err error
	)
	if len(ids) == 0 {
		res, err = r.db.ExecContext(ctx, `
			UPDATE notifications SET is_read = TRUE, read_at = $2
			WHERE user_id = $1 AND NOT is_read
		`, userID, at)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE notifications SET is_read = TRUE, read_at = $2
			WHERE user_id = $1 AND NOT is_read AND id = ANY($3)
		`, userID, at, ids)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresRepository) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r *PostgresRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	return n, err
}

func (r *PostgresRepository) PurgeRead(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE is_read AND created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
