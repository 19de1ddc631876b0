package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"comptrack/pkg/domain"
)

func TestSnapshotSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "comptrack.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var subsystemID string
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(domain.Project{Name: "Refinería Sur", Code: "RS-01"})
		if err != nil {
			return err
		}
		system, err := tx.CreateSystem(domain.System{ProjectID: project.ID, Code: "SYS-300", Name: "Compresión"})
		if err != nil {
			return err
		}
		subsystem, err := tx.CreateSubsystem(domain.Subsystem{SystemID: system.ID, Code: "SS-300-01", Name: "Compresor K-301"})
		if err != nil {
			return err
		}
		subsystemID = subsystem.ID
		_, err = tx.CreateInspectionRecord(domain.InspectionRecord{SubsystemID: subsystem.ID, ITRCode: "ITR-A-100", ITRType: domain.ITRTypeA})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	itrs, err := reopened.ListInspectionRecords(ctx, []string{subsystemID})
	if err != nil {
		t.Fatalf("list itrs: %v", err)
	}
	if len(itrs) != 1 || itrs[0].ITRCode != "ITR-A-100" {
		t.Fatalf("snapshot not restored: %+v", itrs)
	}
}

func TestFailedTransactionNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "comptrack.db")

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateSystem(domain.System{ProjectID: "missing", Code: "X"})
		return err
	})
	if err == nil {
		t.Fatal("expected referential error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	err = reopened.View(ctx, func(v domain.TransactionView) error {
		if got := len(v.ListSystems()); got != 0 {
			t.Fatalf("expected empty store, got %d systems", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
