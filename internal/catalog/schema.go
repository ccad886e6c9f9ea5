package catalog

// schemaSQL is the authoritative catalog schema. Tests load it through
// SchemaSQL so they never drift from production.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS titles (
	file_name       TEXT PRIMARY KEY,
	display_name    TEXT NOT NULL,
	last_played     DATETIME,
	auto_save_index INTEGER,
	created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS savestates (
	title_file_name TEXT NOT NULL REFERENCES titles(file_name) ON DELETE CASCADE,
	slot            INTEGER NOT NULL CHECK (slot BETWEEN 0 AND 9),
	file_name       TEXT NOT NULL,
	save_time       DATETIME,
	PRIMARY KEY (title_file_name, slot)
);

CREATE INDEX IF NOT EXISTS idx_savestates_file_name ON savestates(file_name);

CREATE TABLE IF NOT EXISTS backup_state (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	last_auto_backup DATETIME
);
`

// SchemaSQL returns the catalog schema.
func SchemaSQL() string {
	return schemaSQL
}
