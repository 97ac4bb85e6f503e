// Package db embeds the SQL schemas for the Postgres and SQLite stores.
package db

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed postgres/migrations/*.up.sql
var postgresMigrations embed.FS

//go:embed sqlite/schema.sql
var sqliteSchema string

// Migration is one ordered schema step.
type Migration struct {
	Name string
	SQL  string
}

// PostgresMigrations returns the up migrations sorted by file name.
func PostgresMigrations() ([]Migration, error) {
	names, err := fs.Glob(postgresMigrations, "postgres/migrations/*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		contents, err := postgresMigrations.ReadFile(name)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, Migration{Name: name, SQL: string(contents)})
	}
	return migrations, nil
}

// SQLiteSchema returns the idempotent SQLite schema.
func SQLiteSchema() string {
	return sqliteSchema
}
