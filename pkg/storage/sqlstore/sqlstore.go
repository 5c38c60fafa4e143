// Package sqlstore implements storage.Repository on database/sql for
// PostgreSQL (lib/pq) and SQLite (mattn/go-sqlite3).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/collab/pkg/collab"
	"github.com/platinummonkey/collab/pkg/observability"
	"github.com/platinummonkey/collab/pkg/storage"
)

// Store implements storage.Repository over SQL
type Store struct {
	conns   *ConnectionManager
	dialect Dialect
	now     func() time.Time
}

var _ storage.Repository = (*Store)(nil)

// New wraps an existing connection manager. Call Migrate before first use.
func New(conns *ConnectionManager, dialect Dialect) *Store {
	return &Store{
		conns:   conns,
		dialect: dialect,
		now:     time.Now,
	}
}

// Open connects to the backend named by cfg.Type and migrates the schema
func Open(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*Store, error) {
	var connCfg ConnectionConfig
	switch cfg.Type {
	case "postgres":
		connCfg = ConnectionConfig{
			Dialect:     DialectPostgres,
			PrimaryURL:  cfg.PostgresURL,
			ReplicaURLs: ParseReplicaURLs(cfg.PostgresReplicaURLs),
			MaxConns:    cfg.PostgresMaxConns,
			MinConns:    cfg.PostgresMinConns,
			Timeout:     cfg.PostgresTimeout,
			MaxLifetime: 1 * time.Hour,
			MaxIdleTime: 10 * time.Minute,
		}
	case "sqlite":
		connCfg = ConnectionConfig{
			Dialect:    DialectSQLite,
			PrimaryURL: SQLiteDSN(cfg.SQLitePath),
			Timeout:    cfg.PostgresTimeout,
		}
	default:
		return nil, fmt.Errorf("unsupported sql storage type: %s", cfg.Type)
	}

	conns, err := NewConnectionManager(connCfg, logger)
	if err != nil {
		return nil, err
	}

	s := New(conns, connCfg.Dialect)
	if err := s.Migrate(ctx); err != nil {
		conns.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSN builds a DSN with foreign keys enabled
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
}

// Conns exposes the connection manager for health checks and gauges
func (s *Store) Conns() *ConnectionManager {
	return s.conns
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

func (s *Store) EdgesFrom(ctx context.Context, id collab.EntityID, dir storage.Direction) ([]collab.DependencyEdge, error) {
	var (
		query string
		args  []interface{}
	)
	switch dir {
	case storage.DirectionDependencies:
		query = `SELECT dependency, dependent FROM collab_dependencies WHERE dependent = ? ORDER BY seq`
		args = []interface{}{string(id)}
	case storage.DirectionDependents:
		query = `SELECT dependency, dependent FROM collab_dependencies WHERE dependency = ? ORDER BY seq`
		args = []interface{}{string(id)}
	default:
		query = `SELECT dependency, dependent FROM collab_dependencies
			WHERE dependent = ? OR dependency = ?
			ORDER BY CASE WHEN dependent = ? THEN 0 ELSE 1 END, seq`
		args = []interface{}{string(id), string(id), string(id)}
	}

	rows, err := s.conns.Replica().QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, collab.Wrap(collab.KindInternal, "sqlstore.EdgesFrom", err)
	}
	defer rows.Close()

	edges := make([]collab.DependencyEdge, 0)
	for rows.Next() {
		var dependency, dependent string
		if err := rows.Scan(&dependency, &dependent); err != nil {
			return nil, collab.Wrap(collab.KindInternal, "sqlstore.EdgesFrom", err)
		}
		edges = append(edges, collab.DependencyEdge{
			Dependency: collab.EntityID(dependency),
			Dependent:  collab.EntityID(dependent),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, collab.Wrap(collab.KindInternal, "sqlstore.EdgesFrom", err)
	}
	return edges, nil
}

func (s *Store) InsertEdgeIfAbsent(ctx context.Context, edge collab.DependencyEdge) (bool, error) {
	res, err := s.conns.Primary().ExecContext(ctx, s.q(`
		INSERT INTO collab_dependencies (dependency, dependent)
		VALUES (?, ?)
		ON CONFLICT (dependency, dependent) DO NOTHING
	`), string(edge.Dependency), string(edge.Dependent))
	if err != nil {
		return false, collab.Wrap(collab.KindInternal, "sqlstore.InsertEdgeIfAbsent", err)
	}
	return affected(res, "sqlstore.InsertEdgeIfAbsent")
}

func (s *Store) CreateFile(ctx context.Context, f *collab.File) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = s.timestamp()
	}

	_, err := s.conns.Primary().ExecContext(ctx, s.q(`
		INSERT INTO collab_files (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), string(f.ID), f.Name, f.CreatedAt)
	if err != nil {
		return collab.Wrap(collab.KindInternal, "sqlstore.CreateFile", err)
	}

	err = s.conns.Primary().QueryRowContext(ctx, s.q(`
		SELECT name, created_at FROM collab_files WHERE id = ?
	`), string(f.ID)).Scan(&f.Name, &f.CreatedAt)
	if err != nil {
		return collab.Wrap(collab.KindInternal, "sqlstore.CreateFile", err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return nil
}

func (s *Store) FileExists(ctx context.Context, id collab.FileID) (bool, error) {
	var one int
	err := s.conns.Primary().QueryRowContext(ctx, s.q(`
		SELECT 1 FROM collab_files WHERE id = ?
	`), string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, collab.Wrap(collab.KindInternal, "sqlstore.FileExists", err)
	}
	return true, nil
}

// FindVersion reads from the primary so a lost conditional insert can see
// the winner's row immediately.
func (s *Store) FindVersion(ctx context.Context, file collab.FileID, hash collab.ContentHash) (*collab.FileVersion, error) {
	v := &collab.FileVersion{File: file, Hash: hash}
	err := s.conns.Primary().QueryRowContext(ctx, s.q(`
		SELECT created_at FROM collab_file_versions WHERE file_id = ? AND md5hash = ?
	`), string(file), string(hash)).Scan(&v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, collab.E(collab.KindNotFound, "sqlstore.FindVersion",
			"version "+collab.VersionRef{File: file, Hash: hash}.String()+" not found")
	}
	if err != nil {
		return nil, collab.Wrap(collab.KindInternal, "sqlstore.FindVersion", err)
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

// InsertVersionIfAbsent relies on the (file_id, md5hash) primary key. When
// the row already exists v is overwritten with the stored record. A missing
// file surfaces as NotFound through the foreign key.
func (s *Store) InsertVersionIfAbsent(ctx context.Context, v *collab.FileVersion) (bool, error) {
	const op = "sqlstore.InsertVersionIfAbsent"

	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.timestamp()
	}

	res, err := s.conns.Primary().ExecContext(ctx, s.q(`
		INSERT INTO collab_file_versions (file_id, md5hash, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (file_id, md5hash) DO NOTHING
	`), string(v.File), string(v.Hash), v.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, collab.E(collab.KindNotFound, op, "file "+string(v.File)+" not found")
		}
		return false, collab.Wrap(collab.KindInternal, op, err)
	}

	inserted, err := affected(res, op)
	if err != nil || inserted {
		return inserted, err
	}

	existing, err := s.FindVersion(ctx, v.File, v.Hash)
	if err != nil {
		if collab.KindOf(err) == collab.KindNotFound {
			// the conflicting row is not visible yet
			return false, collab.E(collab.KindConflict, op, "version "+collab.VersionRef{File: v.File, Hash: v.Hash}.String()+" not visible after conflict")
		}
		return false, err
	}
	*v = *existing
	return false, nil
}

func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var st storage.Stats
	err := s.conns.Replica().QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM collab_files),
			(SELECT COUNT(*) FROM collab_file_versions),
			(SELECT COUNT(*) FROM collab_dependencies)
	`).Scan(&st.Files, &st.Versions, &st.Edges)
	if err != nil {
		return storage.Stats{}, collab.Wrap(collab.KindInternal, "sqlstore.Stats", err)
	}
	return st, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.conns.HealthCheck(ctx)
}

func (s *Store) Close() error {
	return s.conns.Close()
}

// timestamp is truncated to the coarsest precision of the supported
// backends so a record reads back exactly as it was written.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, collab.Wrap(collab.KindInternal, op, err)
	}
	return n > 0, nil
}
