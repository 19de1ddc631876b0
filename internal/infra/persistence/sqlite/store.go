// Package sqlite persists the in-memory store as JSON snapshots in a SQLite
// database. It reuses the memory store for all domain semantics and writes
// one row per entity bucket after each committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"comptrack/internal/infra/persistence/memory"
	"comptrack/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store wraps the canonical memory store with SQLite-backed durability.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	mem *memory.Store
}

// Open opens (or creates) the SQLite database at path and loads any
// previously persisted snapshot.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	store := &Store{db: db, mem: memory.NewStore()}
	if err := store.applyDDL(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := store.loadSnapshot(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SetNow overrides the store clock. Intended for tests.
func (s *Store) SetNow(fn func() time.Time) { s.mem.SetNow(fn) }

func (s *Store) applyDDL(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS comptrack_state (
		bucket TEXT PRIMARY KEY,
		payload TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) loadSnapshot(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM comptrack_state`)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()
	var snap memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan snapshot row: %w", err)
		}
		if err := decodeBucket(&snap, bucket, payload); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate snapshot rows: %w", err)
	}
	s.mem.ImportState(snap)
	return nil
}

func decodeBucket(snap *memory.Snapshot, bucket string, payload []byte) error {
	var err error
	switch bucket {
	case "projects":
		err = json.Unmarshal(payload, &snap.Projects)
	case "systems":
		err = json.Unmarshal(payload, &snap.Systems)
	case "subsystems":
		err = json.Unmarshal(payload, &snap.Subsystems)
	case "tags":
		err = json.Unmarshal(payload, &snap.Tags)
	case "itrs":
		err = json.Unmarshal(payload, &snap.ITRs)
	case "punch_items":
		err = json.Unmarshal(payload, &snap.PunchItems)
	case "preservation_tasks":
		err = json.Unmarshal(payload, &snap.Preservation)
	case "insights":
		err = json.Unmarshal(payload, &snap.Insights)
	case "import_logs":
		err = json.Unmarshal(payload, &snap.ImportLogs)
	case "user_profiles":
		err = json.Unmarshal(payload, &snap.Users)
	default:
		// Unknown buckets are skipped so older binaries can read newer files.
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode bucket %s: %w", bucket, err)
	}
	return nil
}

func encodeBuckets(snap memory.Snapshot) (map[string][]byte, error) {
	payloads := map[string]any{
		"projects":           snap.Projects,
		"systems":            snap.Systems,
		"subsystems":         snap.Subsystems,
		"tags":               snap.Tags,
		"itrs":               snap.ITRs,
		"punch_items":        snap.PunchItems,
		"preservation_tasks": snap.Preservation,
		"insights":           snap.Insights,
		"import_logs":        snap.ImportLogs,
		"user_profiles":      snap.Users,
	}
	out := make(map[string][]byte, len(payloads))
	for bucket, v := range payloads {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode bucket %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

func (s *Store) persist(ctx context.Context) error {
	buckets, err := encodeBuckets(s.mem.ExportState())
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	for bucket, payload := range buckets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comptrack_state (bucket, payload) VALUES (?, ?)
			 ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`,
			bucket, payload); err != nil {
			tx.Rollback()
			return fmt.Errorf("persist bucket %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}
	return nil
}

// RunInTransaction applies fn via the memory store and snapshots the result.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.RunInTransaction(ctx, fn); err != nil {
		return err
	}
	return s.persist(ctx)
}

// View delegates to the memory store.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.mem.View(ctx, fn)
}

func (s *Store) GetProject(ctx context.Context, id string) (domain.Project, bool, error) {
	return s.mem.GetProject(ctx, id)
}

func (s *Store) GetSystem(ctx context.Context, id string) (domain.System, bool, error) {
	return s.mem.GetSystem(ctx, id)
}

func (s *Store) GetSubsystem(ctx context.Context, id string) (domain.Subsystem, bool, error) {
	return s.mem.GetSubsystem(ctx, id)
}

func (s *Store) ListSystems(ctx context.Context, projectID string) ([]domain.System, error) {
	return s.mem.ListSystems(ctx, projectID)
}

func (s *Store) ListSubsystems(ctx context.Context, systemID string) ([]domain.Subsystem, error) {
	return s.mem.ListSubsystems(ctx, systemID)
}

func (s *Store) ListInspectionRecords(ctx context.Context, subsystemIDs []string) ([]domain.InspectionRecord, error) {
	return s.mem.ListInspectionRecords(ctx, subsystemIDs)
}

func (s *Store) ListPunchItems(ctx context.Context, subsystemIDs []string) ([]domain.PunchItem, error) {
	return s.mem.ListPunchItems(ctx, subsystemIDs)
}

func (s *Store) ListTags(ctx context.Context, subsystemIDs []string) ([]domain.Tag, error) {
	return s.mem.ListTags(ctx, subsystemIDs)
}

func (s *Store) ListPreservationTasks(ctx context.Context, tagIDs []string) ([]domain.PreservationTask, error) {
	return s.mem.ListPreservationTasks(ctx, tagIDs)
}

func (s *Store) ListInsights(ctx context.Context, projectID string) ([]domain.Insight, error) {
	return s.mem.ListInsights(ctx, projectID)
}

func (s *Store) ListImportLogs(ctx context.Context, projectID string) ([]domain.ImportLog, error) {
	return s.mem.ListImportLogs(ctx, projectID)
}
