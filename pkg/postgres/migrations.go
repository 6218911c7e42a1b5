package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns all database migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				identities TEXT[] NOT NULL,
				groups TEXT[] NOT NULL DEFAULT '{}',
				status VARCHAR(50) NOT NULL DEFAULT 'active',
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     2,
			Description: "Create user_groups table",
			SQL: `CREATE TABLE IF NOT EXISTS user_groups (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE
			)`,
		},
		{
			Version:     3,
			Description: "Create requests table",
			SQL: `CREATE TABLE IF NOT EXISTS requests (
				id UUID PRIMARY KEY,
				operation_type VARCHAR(100) NOT NULL,
				operation JSONB NOT NULL,
				title VARCHAR(512) NOT NULL,
				summary TEXT,
				requested_by UUID NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT 'created',
				status_reason TEXT,
				approvals JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				last_modified_at TIMESTAMP NOT NULL DEFAULT NOW(),
				expiration_at TIMESTAMP NOT NULL,
				scheduled_at TIMESTAMP
			)`,
		},
		{
			Version:     4,
			Description: "Create request_policies table",
			SQL: `CREATE TABLE IF NOT EXISTS request_policies (
				id UUID PRIMARY KEY,
				specifier JSONB NOT NULL,
				rule JSONB NOT NULL
			)`,
		},
		{
			Version:     5,
			Description: "Create named_rules table",
			SQL: `CREATE TABLE IF NOT EXISTS named_rules (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				description TEXT,
				rule JSONB NOT NULL
			)`,
		},
		{
			Version:     6,
			Description: "Create permissions table",
			SQL: `CREATE TABLE IF NOT EXISTS permissions (
				resource_key VARCHAR(512) PRIMARY KEY,
				auth_scope VARCHAR(50) NOT NULL,
				users TEXT[] NOT NULL DEFAULT '{}',
				groups TEXT[] NOT NULL DEFAULT '{}'
			)`,
		},
		{
			Version:     7,
			Description: "Create audit_events table",
			SQL: `CREATE TABLE IF NOT EXISTS audit_events (
				id UUID PRIMARY KEY,
				timestamp TIMESTAMP NOT NULL,
				request_id UUID,
				event_type VARCHAR(100) NOT NULL,
				actor VARCHAR(255) NOT NULL,
				result VARCHAR(50) NOT NULL,
				data_hash VARCHAR(64),
				metadata JSONB
			)`,
		},
		{
			Version:     8,
			Description: "Create request secondary indexes",
			SQL: `CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
				  CREATE INDEX IF NOT EXISTS idx_requests_expiration ON requests(expiration_at) WHERE status = 'created';
				  CREATE INDEX IF NOT EXISTS idx_requests_scheduled ON requests(scheduled_at) WHERE status = 'scheduled';
				  CREATE INDEX IF NOT EXISTS idx_requests_proposer ON requests(requested_by);
				  CREATE INDEX IF NOT EXISTS idx_audit_events_request ON audit_events(request_id);
				  CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp)`,
		},
	}
}

// RunMigrations executes all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range Migrations() {
		var exists bool
		err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if exists {
			continue
		}

		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Migrate runs all pending migrations on the wrapped pool.
func Migrate(ctx context.Context, db *DB) error {
	return RunMigrations(ctx, db.DB)
}

// CurrentVersion returns the current schema version.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}
