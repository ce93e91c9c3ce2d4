package storage

// migration is a single versioned schema change.
type migration struct {
	version int
	sql     string
}

// migrations are applied in order by runMigrations. Never edit an
// applied migration; append a new one.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE action_logs (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL
);

CREATE INDEX idx_action_logs_entity ON action_logs(entity_type, entity_id);

CREATE TABLE notifications (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	recipient_id TEXT NOT NULL,
	body TEXT NOT NULL,
	type TEXT NOT NULL,
	origin_id TEXT NOT NULL DEFAULT '',
	channel_override TEXT NOT NULL DEFAULT '',
	channel TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt_at TIMESTAMP,
	last_error TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	read INTEGER NOT NULL DEFAULT 0,
	escalated_at TIMESTAMP
);

CREATE INDEX idx_notifications_status_updated ON notifications(status, updated_at);
CREATE INDEX idx_notifications_status_channel ON notifications(status, channel);
CREATE INDEX idx_notifications_recipient ON notifications(recipient_id);

CREATE TABLE dead_letters (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	reason TEXT NOT NULL,
	payload TEXT NOT NULL
);
`,
	},
}
