package store

import "context"

// schema creates the portal tables. Every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS attendance_records (
	student_id   TEXT NOT NULL,
	schedule_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	arrival_time TIMESTAMPTZ,
	marked_by    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (student_id, schedule_id)
);
CREATE INDEX IF NOT EXISTS attendance_records_schedule_idx ON attendance_records (schedule_id);

CREATE TABLE IF NOT EXISTS enrollments (
	student_id      TEXT NOT NULL,
	class_id        TEXT NOT NULL,
	enrollment_type TEXT NOT NULL,
	status          TEXT NOT NULL,
	requested_by    TEXT NOT NULL DEFAULT '',
	decided_by      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (student_id, class_id)
);
CREATE INDEX IF NOT EXISTS enrollments_class_idx ON enrollments (class_id);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	type       TEXT NOT NULL,
	is_read    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	read_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS notifications_user_idx ON notifications (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS resources (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	type        TEXT NOT NULL,
	file_url    TEXT NOT NULL,
	storage_id  TEXT NOT NULL DEFAULT '',
	is_public   BOOLEAN NOT NULL DEFAULT FALSE,
	class_id    TEXT NOT NULL DEFAULT '',
	version     INTEGER NOT NULL DEFAULT 1,
	uploaded_by TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS resources_class_idx ON resources (class_id);
`

// Migrate creates any missing table.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
