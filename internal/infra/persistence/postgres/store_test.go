package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"comptrack/pkg/domain"
)

// The tests swap the opener for a file-backed SQLite handle. The SQL issued
// by this package (positional $N parameters, ON CONFLICT upserts) is accepted
// by both engines, so the persistence path is exercised without a server.
func overrideWithSQLite(t *testing.T, path string) {
	t.Helper()
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	})
	t.Cleanup(restore)
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	overrideWithSQLite(t, path)

	store, err := Open(ctx, "postgres://ignored")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var projectID string
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(domain.Project{Name: "Terminal Este", Code: "TE-01"})
		if err != nil {
			return err
		}
		projectID = project.ID
		_, err = tx.CreateSystem(domain.System{ProjectID: project.ID, Code: "SYS-400", Name: "Almacenamiento"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, "postgres://ignored")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	systems, err := reopened.ListSystems(ctx, projectID)
	if err != nil {
		t.Fatalf("list systems: %v", err)
	}
	if len(systems) != 1 || systems[0].Code != "SYS-400" {
		t.Fatalf("snapshot not restored: %+v", systems)
	}
}

func TestOpenFailsWhenUnreachable(t *testing.T) {
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		return sql.Open("sqlite", "file::memory:?mode=ro&immutable=1")
	})
	t.Cleanup(restore)

	// A read-only handle cannot apply the schema.
	if _, err := Open(context.Background(), "postgres://ignored"); err == nil {
		t.Fatal("expected open failure")
	}
}
