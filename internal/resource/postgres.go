package resource

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepository persists resources in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, title, type, file_url, storage_id, is_public, class_id, version, uploaded_by, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	err := s.Scan(&rec.ID, &rec.Title, &rec.Type, &rec.FileURL, &rec.StorageID, &rec.IsPublic,
		&rec.ClassID, &rec.Version, &rec.UploadedBy, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (r *PostgresRepository) Create(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resources (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.ID, rec.Title, rec.Type, rec.FileURL, rec.StorageID, rec.IsPublic,
		rec.ClassID, rec.Version, rec.UploadedBy, rec.CreatedAt, rec.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM resources WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (r *PostgresRepository) Update(ctx context.Context, rec Record, prev int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE resources SET title = $2, is_public = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $6
	`, rec.ID, rec.Title, rec.IsPublic, rec.Version, rec.UpdatedAt, prev)
	if err != nil {
		return err
	}
	return r.checkOne(ctx, res, rec.ID)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string, prev int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1 AND version = $2`, id, prev)
	if err != nil {
		return err
	}
	return r.checkOne(ctx, res, id)
}

// checkOne tells a missing row from a version mismatch when nothing changed.
func (r *PostgresRepository) checkOne(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil || n == 1 {
		return err
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrVersionConflict
}

func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM resources
		WHERE ($1 = '' OR class_id = $1) AND ($2 = FALSE OR is_public)
		ORDER BY created_at, id
	`, f.ClassID, f.PublicOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
