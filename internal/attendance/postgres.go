package attendance

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepository persists attendance in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert writes every record in one transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, recs []Record) ([]Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_records (student_id, schedule_id, status, arrival_time, marked_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, schedule_id) DO UPDATE SET
			status = EXCLUDED.status,
			arrival_time = EXCLUDED.arrival_time,
			marked_by = EXCLUDED.marked_by,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.StudentID, rec.ScheduleID, rec.Status, rec.ArrivalTime, rec.MarkedBy, rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("upsert %s/%s: %w", rec.StudentID, rec.ScheduleID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ListBySchedule returns a schedule's records in first-marked order.
func (r *PostgresRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, schedule_id, status, arrival_time, marked_by, updated_at
		FROM attendance_records
		WHERE schedule_id = $1
		ORDER BY created_at, student_id
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.StudentID, &rec.ScheduleID, &rec.Status, &rec.ArrivalTime, &rec.MarkedBy, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
