package history

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS last_answer (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	cycle_id   TEXT NOT NULL,
	question   TEXT NOT NULL,
	query      TEXT NOT NULL DEFAULT '',
	result     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
