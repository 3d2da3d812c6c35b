package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_init",
		Up: `
-- Activity log
CREATE TABLE activity_log (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    username TEXT NOT NULL DEFAULT '',
    activity_type TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    metadata TEXT,
    success BOOLEAN NOT NULL DEFAULT 1,
    error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_activity_log_timestamp ON activity_log(timestamp);
CREATE INDEX idx_activity_log_type ON activity_log(activity_type);

-- Last known lifecycle state (single row)
CREATE TABLE server_status (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    status TEXT NOT NULL,
    pid INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL
);
`,
		Down: `
DROP TABLE server_status;
DROP TABLE activity_log;
`,
	},
	{
		Version: "002_schedule_runs",
		Up: `
-- Outcome of the last run of every scheduled command
CREATE TABLE schedule_runs (
    name TEXT PRIMARY KEY,
    command TEXT NOT NULL,
    last_run DATETIME,
    next_run DATETIME,
    last_status TEXT NOT NULL DEFAULT '',
    last_error TEXT NOT NULL DEFAULT ''
);
`,
		Down: `
DROP TABLE schedule_runs;
`,
	},
	{
		Version: "003_backups",
		Up: `
-- World backups
CREATE TABLE backups (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL DEFAULT '',
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    destination_type TEXT NOT NULL,
    destination_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'creating',
    error_message TEXT NOT NULL DEFAULT '',
    metadata TEXT,
    created_by TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_backups_created_at ON backups(created_at);
CREATE INDEX idx_backups_status ON backups(status);
`,
		Down: `
DROP TABLE backups;
`,
	},
}
