// Package sqlite provides a SQLite-backed persistent store that mirrors the
// in-memory semantics. State is snapshotted to a single table as JSON blobs
// after every successful transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"patientcore/internal/infra/persistence/memory"
	"patientcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens a snapshotting SQLite-backed persistent store at the given
// path (defaults to patientcore.db) and hydrates the in-memory state from any
// existing snapshot.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "patientcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	targets := snapshotTargets(&snapshot)
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return fmt.Errorf("decode %s: %w", bucket, err)
			}
			loaded = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if loaded {
		s.ImportState(snapshot)
	}
	return nil
}

func (s *Store) persist(ctx context.Context) error {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range buckets {
		data, err := marshalBucket(snapshot, bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// RunInTransaction applies fn within an in-memory transaction, then snapshots
// the committed state to SQLite. A failed snapshot reverts the in-memory
// state so callers never observe a commit the database did not record.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.ExportState()
	if err := s.Store.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	if err := s.persist(ctx); err != nil {
		s.ImportState(prev)
		return err
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

var buckets = []string{
	"patients",
	"orders",
	"results",
	"samples",
	"documents",
	"identifiers",
	"contacts",
	"relations",
	"audit_trail",
	"merge_audit",
}

func snapshotTargets(snapshot *memory.Snapshot) map[string]any {
	return map[string]any{
		"patients":    &snapshot.Patients,
		"orders":      &snapshot.Orders,
		"results":     &snapshot.Results,
		"samples":     &snapshot.Samples,
		"documents":   &snapshot.Documents,
		"identifiers": &snapshot.Identifiers,
		"contacts":    &snapshot.Contacts,
		"relations":   &snapshot.Relations,
		"audit_trail": &snapshot.AuditTrail,
		"merge_audit": &snapshot.MergeAudit,
	}
}

func marshalBucket(snapshot memory.Snapshot, bucket string) ([]byte, error) {
	var v any
	switch bucket {
	case "patients":
		v = snapshot.Patients
	case "orders":
		v = snapshot.Orders
	case "results":
		v = snapshot.Results
	case "samples":
		v = snapshot.Samples
	case "documents":
		v = snapshot.Documents
	case "identifiers":
		v = snapshot.Identifiers
	case "contacts":
		v = snapshot.Contacts
	case "relations":
		v = snapshot.Relations
	case "audit_trail":
		v = snapshot.AuditTrail
	case "merge_audit":
		v = snapshot.MergeAudit
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}
