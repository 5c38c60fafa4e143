package sqlstore

import (
	"context"
	"fmt"
)

func (d Dialect) schema() []string {
	seq := "BIGSERIAL PRIMARY KEY"
	ts := "TIMESTAMP WITH TIME ZONE"
	if d == DialectSQLite {
		seq = "INTEGER PRIMARY KEY AUTOINCREMENT"
		ts = "TIMESTAMP"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS collab_files (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS collab_file_versions (
			file_id TEXT NOT NULL REFERENCES collab_files(id),
			md5hash TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			PRIMARY KEY (file_id, md5hash)
		)`,
		`CREATE TABLE IF NOT EXISTS collab_dependencies (
			seq ` + seq + `,
			dependency TEXT NOT NULL,
			dependent TEXT NOT NULL,
			UNIQUE (dependency, dependent)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_collab_dependencies_dependent ON collab_dependencies(dependent, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_collab_dependencies_dependency ON collab_dependencies(dependency, seq)`,
	}
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.conns.Primary().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}
