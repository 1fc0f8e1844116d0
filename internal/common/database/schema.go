package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements are idempotent and applied in order by Migrate.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id              TEXT PRIMARY KEY,
		email                TEXT NOT NULL DEFAULT '',
		phone                TEXT NOT NULL DEFAULT '',
		full_name            TEXT NOT NULL DEFAULT '',
		skills               TEXT[] NOT NULL DEFAULT '{}',
		experience_level     TEXT NOT NULL DEFAULT '',
		location             TEXT NOT NULL DEFAULT '',
		desired_roles        TEXT[] NOT NULL DEFAULT '{}',
		preferred_locations  TEXT[] NOT NULL DEFAULT '{}',
		preferred_job_types  TEXT[] NOT NULL DEFAULT '{}',
		preferred_work_types TEXT[] NOT NULL DEFAULT '{}',
		salary_min           INTEGER NOT NULL DEFAULT 0,
		salary_max           INTEGER NOT NULL DEFAULT 0,
		salary_currency      TEXT NOT NULL DEFAULT '',
		onboarding_completed BOOLEAN NOT NULL DEFAULT FALSE,
		package_tier         TEXT NOT NULL DEFAULT 'free',
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id                  UUID PRIMARY KEY,
		target_user_id      TEXT NOT NULL,
		title               TEXT NOT NULL,
		company             TEXT NOT NULL,
		location            TEXT NOT NULL DEFAULT '',
		work_type           TEXT NOT NULL DEFAULT '',
		job_type            TEXT NOT NULL DEFAULT '',
		salary_min          INTEGER NOT NULL DEFAULT 0,
		salary_max          INTEGER NOT NULL DEFAULT 0,
		salary_currency     TEXT NOT NULL DEFAULT '',
		salary_period       TEXT NOT NULL DEFAULT '',
		skills              TEXT[] NOT NULL DEFAULT '{}',
		description         TEXT NOT NULL DEFAULT '',
		apply_url           TEXT NOT NULL DEFAULT '',
		platform            TEXT NOT NULL DEFAULT '',
		original_id         TEXT NOT NULL DEFAULT '',
		scraped_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		session_id          TEXT NOT NULL DEFAULT '',
		match_score         INTEGER NOT NULL DEFAULT 0 CHECK (match_score BETWEEN 0 AND 100),
		status              TEXT NOT NULL DEFAULT 'active',
		admin_review_status TEXT NOT NULL DEFAULT 'pending',
		admin_notes         TEXT NOT NULL DEFAULT '',
		reviewed_by         TEXT NOT NULL DEFAULT '',
		reviewed_at         TIMESTAMPTZ,
		application_status  TEXT NOT NULL DEFAULT 'not_applied',
		posted_date         TIMESTAMPTZ,
		expiry_date         TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT jobs_dedup_key UNIQUE (target_user_id, title, company, location)
	)`,

	`CREATE INDEX IF NOT EXISTS jobs_visible_idx
		ON jobs (target_user_id, status, admin_review_status, match_score DESC)`,

	`CREATE TABLE IF NOT EXISTS applications (
		id                 UUID PRIMARY KEY,
		user_id            TEXT NOT NULL,
		job_id             UUID NOT NULL REFERENCES jobs (id),
		status             TEXT NOT NULL,
		match_score        INTEGER NOT NULL DEFAULT 0,
		application_method TEXT NOT NULL DEFAULT 'manual',
		cover_letter       TEXT NOT NULL DEFAULT '',
		admin_notes        TEXT NOT NULL DEFAULT '',
		user_notes         TEXT NOT NULL DEFAULT '',
		reviewed_by        TEXT NOT NULL DEFAULT '',
		reviewed_at        TIMESTAMPTZ,
		applied_by         TEXT NOT NULL DEFAULT '',
		applied_at         TIMESTAMPTZ,
		interview          JSONB,
		offer              JSONB,
		timeline           JSONB NOT NULL DEFAULT '[]'::jsonb,
		priority           TEXT NOT NULL DEFAULT 'medium',
		is_starred         BOOLEAN NOT NULL DEFAULT FALSE,
		is_archived        BOOLEAN NOT NULL DEFAULT FALSE,
		version            INTEGER NOT NULL DEFAULT 1,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT applications_user_job_key UNIQUE (user_id, job_id)
	)`,

	`CREATE TABLE IF NOT EXISTS scraping_sessions (
		session_id         TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		status             TEXT NOT NULL,
		search_criteria    JSONB NOT NULL DEFAULT '{}'::jsonb,
		total_jobs_found   INTEGER NOT NULL DEFAULT 0,
		jobs_saved         INTEGER NOT NULL DEFAULT 0,
		duplicates_skipped INTEGER NOT NULL DEFAULT 0,
		error_count        INTEGER NOT NULL DEFAULT 0,
		platform_results   JSONB NOT NULL DEFAULT '[]'::jsonb,
		error_details      JSONB NOT NULL DEFAULT '[]'::jsonb,
		jobs_created       TEXT[] NOT NULL DEFAULT '{}',
		started_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		completed_at       TIMESTAMPTZ,
		duration_ms        BIGINT NOT NULL DEFAULT 0,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS scraping_sessions_user_started_idx
		ON scraping_sessions (user_id, started_at DESC)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}
