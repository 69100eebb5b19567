package store

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS wallpapers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			origin TEXT NOT NULL,
			name TEXT NOT NULL,
			media_type TEXT,
			sha256 TEXT NOT NULL,
			size INTEGER NOT NULL,
			data BLOB,
			accepted_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_wallpapers_accepted_at ON wallpapers(accepted_at);
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
	return err
}
