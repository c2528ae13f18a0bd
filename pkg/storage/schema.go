package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		name TEXT,
		password_hash TEXT,
		role TEXT,
		is_admin BOOLEAN,
		is_active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS projects (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		client TEXT,
		client_id BIGINT REFERENCES users(id) ON DELETE SET NULL,
		description TEXT,
		start_date DATE,
		end_date DATE,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS projects_client_id_idx ON projects (client_id)`,
	`CREATE TABLE IF NOT EXISTS project_members (
		project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (project_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS project_members_user_idx ON project_members (user_id)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		start_date DATE,
		end_date DATE,
		duration TEXT,
		percent_done DOUBLE PRECISION NOT NULL DEFAULT 0,
		resource TEXT,
		is_critical_path BOOLEAN NOT NULL DEFAULT FALSE,
		start_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		color TEXT NOT NULL DEFAULT '#3b82f6',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_project_idx ON tasks (project_id)`,
	`CREATE TABLE IF NOT EXISTS updates (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		date DATE NOT NULL DEFAULT CURRENT_DATE,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS updates_project_idx ON updates (project_id)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		filename TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'other',
		blob_key TEXT NOT NULL UNIQUE,
		content_type TEXT,
		size BIGINT NOT NULL DEFAULT 0,
		checksum TEXT,
		uploaded_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS documents_project_idx ON documents (project_id)`,
	`CREATE TABLE IF NOT EXISTS models3d (
		id BIGSERIAL PRIMARY KEY,
		project_id BIGINT REFERENCES projects(id) ON DELETE SET NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'other',
		description TEXT,
		blob_key TEXT NOT NULL UNIQUE,
		format TEXT,
		content_type TEXT,
		size BIGINT NOT NULL DEFAULT 0,
		checksum TEXT,
		uploaded_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS models3d_project_idx ON models3d (project_id)`,
}

// Migrate creates any missing tables and indexes in a single transaction.
// Existing tables are left untouched, including legacy role/is_admin shapes.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
