package persistence

import (
	"context"
	"fmt"
	"strings"

	"mailmind_server/infra/database"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS skills (
    id               VARCHAR(64) PRIMARY KEY,
    name             TEXT NOT NULL,
    name_en          VARCHAR(200) NOT NULL UNIQUE,
    category         VARCHAR(64) NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    trigger_keywords TEXT NOT NULL DEFAULT '[]',
    rules            TEXT NOT NULL DEFAULT '[]',
    usage_count      INTEGER NOT NULL DEFAULT 0,
    success_count    INTEGER NOT NULL DEFAULT 0,
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    version          INTEGER NOT NULL DEFAULT 1,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_skills_category ON skills(category);

CREATE TABLE IF NOT EXISTS emails (
    id                  VARCHAR(64) PRIMARY KEY,
    external_id         VARCHAR(255) UNIQUE,
    from_address        TEXT NOT NULL,
    from_name           TEXT NOT NULL DEFAULT '',
    to_address          TEXT NOT NULL DEFAULT '',
    subject             TEXT NOT NULL DEFAULT '',
    body                TEXT NOT NULL DEFAULT '',
    received_at         TIMESTAMPTZ NOT NULL,
    is_customer_service BOOLEAN NOT NULL DEFAULT FALSE,
    category            VARCHAR(64),
    processed           BOOLEAN NOT NULL DEFAULT FALSE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at DESC);

CREATE TABLE IF NOT EXISTS replies (
    id           VARCHAR(64) PRIMARY KEY,
    email_id     VARCHAR(64) NOT NULL REFERENCES emails(id),
    ai_draft     TEXT NOT NULL,
    human_edited TEXT,
    sent         BOOLEAN NOT NULL DEFAULT FALSE,
    sent_at      TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_replies_email ON replies(email_id);

CREATE TABLE IF NOT EXISTS skill_change_logs (
    id                    VARCHAR(64) PRIMARY KEY,
    skill_id              VARCHAR(64) NOT NULL REFERENCES skills(id),
    change_type           VARCHAR(32) NOT NULL,
    change_detail         TEXT NOT NULL DEFAULT '{}',
    triggered_by_reply_id VARCHAR(64),
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_change_logs_skill ON skill_change_logs(skill_id, created_at DESC);

CREATE TABLE IF NOT EXISTS skill_source_emails (
    id                  VARCHAR(64) PRIMARY KEY,
    skill_id            VARCHAR(64) NOT NULL REFERENCES skills(id),
    email_id            VARCHAR(64) NOT NULL,
    contribution_type   VARCHAR(32) NOT NULL,
    contribution_detail TEXT NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (skill_id, email_id, contribution_type)
);

CREATE TABLE IF NOT EXISTS jobs (
    id               VARCHAR(64) PRIMARY KEY,
    type             VARCHAR(32) NOT NULL,
    status           VARCHAR(16) NOT NULL,
    payload          TEXT,
    progress         TEXT NOT NULL DEFAULT '{}',
    result           TEXT,
    error            TEXT NOT NULL DEFAULT '',
    cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL,
    started_at       TIMESTAMPTZ,
    finished_at      TIMESTAMPTZ,
    updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);
`

// sqliteSchema mirrors postgresSchema. DATETIME columns let the driver
// scan times back into time.Time.
var sqliteSchema = strings.NewReplacer(
	"TIMESTAMPTZ", "DATETIME",
	"NOW()", "CURRENT_TIMESTAMP",
	"DEFAULT TRUE", "DEFAULT 1",
	"DEFAULT FALSE", "DEFAULT 0",
).Replace(postgresSchema)

// Migrate creates missing tables.
func Migrate(ctx context.Context, store *database.SQL) error {
	if store.Driver == database.DriverPostgres && store.Pool != nil {
		if _, err := store.Pool.Exec(ctx, postgresSchema); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		return nil
	}

	schema := sqliteSchema
	if store.Driver == database.DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := store.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", store.Driver, err)
		}
	}
	return nil
}
