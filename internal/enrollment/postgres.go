package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresRepository persists enrollments in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const candidateColumns = `student_id, class_id, enrollment_type, status, requested_by, decided_by, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(s scanner) (Candidate, error) {
	var c Candidate
	err := s.Scan(&c.StudentID, &c.ClassID, &c.Type, &c.Status, &c.RequestedBy, &c.DecidedBy, &c.UpdatedAt)
	return c, err
}

// Enroll inserts the candidates in one transaction. Closed enrollments are
// reopened; open ones are left as they are.
func (r *PostgresRepository) Enroll(ctx context.Context, cands []Candidate) ([]Candidate, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range cands {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO enrollments (student_id, class_id, enrollment_type, status, requested_by, decided_by, updated_at)
			VALUES ($1, $2, $3, $4, $5, '', $6)
			ON CONFLICT (student_id, class_id) DO UPDATE SET
				enrollment_type = EXCLUDED.enrollment_type,
				status = EXCLUDED.status,
				requested_by = EXCLUDED.requested_by,
				decided_by = '',
				updated_at = EXCLUDED.updated_at
			WHERE enrollments.status IN ('REJECTED', 'WITHDRAWN')
		`, c.StudentID, c.ClassID, c.Type, c.Status, c.RequestedBy, c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("enroll %s in %s: %w", c.StudentID, c.ClassID, err)
		}
	}

	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		row := tx.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM enrollments WHERE student_id = $1 AND class_id = $2`, c.StudentID, c.ClassID)
		stored, err := scanCandidate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, key Key) (Candidate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM enrollments WHERE student_id = $1 AND class_id = $2`, key.StudentID, key.ClassID)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Candidate{}, ErrNotFound
	}
	return c, err
}

// SetStatus updates only while the row is still in status from.
func (r *PostgresRepository) SetStatus(ctx context.Context, key Key, from, to Status, by string, at time.Time) (Candidate, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE enrollments SET status = $3, decided_by = $4, updated_at = $5
		WHERE student_id = $1 AND class_id = $2 AND status = $6
		RETURNING `+candidateColumns,
		key.StudentID, key.ClassID, to, by, at, from)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := r.Get(ctx, key); gerr != nil {
			return Candidate{}, gerr
		}
		return Candidate{}, ErrTransition
	}
	return c, err
}

func (r *PostgresRepository) ListByClass(ctx context.Context, classID string) ([]Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM enrollments
		WHERE class_id = $1
		ORDER BY created_at, student_id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
