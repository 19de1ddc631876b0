package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"comptrack/pkg/domain"
)

func seedHierarchy(t *testing.T, store *Store) (project domain.Project, system domain.System, subsystem domain.Subsystem) {
	t.Helper()
	ctx := context.Background()
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		project, err = tx.CreateProject(domain.Project{Name: "Plataforma Norte", Code: "PN-01"})
		if err != nil {
			return err
		}
		system, err = tx.CreateSystem(domain.System{ProjectID: project.ID, Name: "Generación", Code: "SYS-100"})
		if err != nil {
			return err
		}
		subsystem, err = tx.CreateSubsystem(domain.Subsystem{SystemID: system.ID, Name: "Turbina A", Code: "SS-100-01"})
		return err
	})
	if err != nil {
		t.Fatalf("seed hierarchy: %v", err)
	}
	return project, system, subsystem
}

func TestCreateAssignsIdentityAndTimestamps(t *testing.T) {
	store := NewStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time { return fixed })

	project, _, _ := seedHierarchy(t, store)
	if project.ID == "" {
		t.Fatal("expected generated id")
	}
	if !project.CreatedAt.Equal(fixed) || !project.UpdatedAt.Equal(fixed) {
		t.Fatalf("expected timestamps %v, got created=%v updated=%v", fixed, project.CreatedAt, project.UpdatedAt)
	}
}

func TestDuplicateProjectCodeRejected(t *testing.T) {
	store := NewStore()
	seedHierarchy(t, store)

	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProject(domain.Project{Name: "Otro", Code: "PN-01"})
		return err
	})
	var dup domain.ErrDuplicateCode
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
	if dup.Code != "PN-01" {
		t.Fatalf("unexpected code in error: %q", dup.Code)
	}
}

func TestReferentialIntegrity(t *testing.T) {
	store := NewStore()
	_, _, subsystem := seedHierarchy(t, store)
	ctx := context.Background()

	cases := []struct {
		name string
		fn   func(domain.Transaction) error
	}{
		{"system without project", func(tx domain.Transaction) error {
			_, err := tx.CreateSystem(domain.System{ProjectID: "missing", Code: "X"})
			return err
		}},
		{"subsystem without system", func(tx domain.Transaction) error {
			_, err := tx.CreateSubsystem(domain.Subsystem{SystemID: "missing", Code: "X"})
			return err
		}},
		{"tag without subsystem", func(tx domain.Transaction) error {
			_, err := tx.CreateTag(domain.Tag{SubsystemID: "missing", TagCode: "X"})
			return err
		}},
		{"itr without subsystem", func(tx domain.Transaction) error {
			_, err := tx.CreateInspectionRecord(domain.InspectionRecord{SubsystemID: "missing", ITRCode: "X"})
			return err
		}},
		{"punch without subsystem", func(tx domain.Transaction) error {
			_, err := tx.CreatePunchItem(domain.PunchItem{SubsystemID: "missing", Category: domain.PunchCategoryA})
			return err
		}},
		{"preservation without tag", func(tx domain.Transaction) error {
			_, err := tx.CreatePreservationTask(domain.PreservationTask{TagID: "missing"})
			return err
		}},
		{"insight without project", func(tx domain.Transaction) error {
			_, err := tx.CreateInsight(domain.Insight{ProjectID: "missing", Title: "x"})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.RunInTransaction(ctx, tc.fn)
			var ref domain.ErrInvalidReference
			if !errors.As(err, &ref) {
				t.Fatalf("expected ErrInvalidReference, got %v", err)
			}
		})
	}

	// Valid references succeed.
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tag, err := tx.CreateTag(domain.Tag{SubsystemID: subsystem.ID, TagCode: "P-1001"})
		if err != nil {
			return err
		}
		_, err = tx.CreatePreservationTask(domain.PreservationTask{TagID: tag.ID, NextDueDate: time.Now().Add(24 * time.Hour)})
		return err
	})
	if err != nil {
		t.Fatalf("valid references rejected: %v", err)
	}
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	store := NewStore()
	project, _, _ := seedHierarchy(t, store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateSystem(domain.System{ProjectID: project.ID, Code: "SYS-200"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}

	systems, err := store.ListSystems(ctx, project.ID)
	if err != nil {
		t.Fatalf("list systems: %v", err)
	}
	if len(systems) != 1 {
		t.Fatalf("rolled-back write leaked, have %d systems", len(systems))
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	store := NewStore()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time { return created })
	project, _, _ := seedHierarchy(t, store)

	later := created.Add(48 * time.Hour)
	store.SetNow(func() time.Time { return later })

	var updated domain.Project
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		updated, err = tx.UpdateProject(project.ID, func(p *domain.Project) error {
			p.Status = domain.ProjectStatusExecution
			p.ID = "tampered"
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != project.ID {
		t.Fatalf("id rewritten to %q", updated.ID)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed: %v", updated.CreatedAt)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Fatalf("updated_at not advanced: %v", updated.UpdatedAt)
	}
}

func TestUpdateMissingEntityReturnsNotFound(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateProject("missing", func(*domain.Project) error { return nil })
		return err
	})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListScopedCollections(t *testing.T) {
	store := NewStore()
	project, system, subsystem := seedHierarchy(t, store)
	ctx := context.Background()

	var otherSub domain.Subsystem
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		otherSub, err = tx.CreateSubsystem(domain.Subsystem{SystemID: system.ID, Code: "SS-100-02"})
		if err != nil {
			return err
		}
		for _, code := range []string{"ITR-A-002", "ITR-A-001"} {
			if _, err := tx.CreateInspectionRecord(domain.InspectionRecord{SubsystemID: subsystem.ID, ITRCode: code, ITRType: domain.ITRTypeA}); err != nil {
				return err
			}
		}
		_, err = tx.CreateInspectionRecord(domain.InspectionRecord{SubsystemID: otherSub.ID, ITRCode: "ITR-B-001", ITRType: domain.ITRTypeB})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	itrs, err := store.ListInspectionRecords(ctx, []string{subsystem.ID})
	if err != nil {
		t.Fatalf("list itrs: %v", err)
	}
	if len(itrs) != 2 {
		t.Fatalf("expected 2 itrs scoped to subsystem, got %d", len(itrs))
	}
	if itrs[0].ITRCode != "ITR-A-001" {
		t.Fatalf("expected code-ordered results, got %q first", itrs[0].ITRCode)
	}

	subs, err := store.ListSubsystems(ctx, system.ID)
	if err != nil {
		t.Fatalf("list subsystems: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subsystems, got %d", len(subs))
	}

	systems, err := store.ListSystems(ctx, project.ID)
	if err != nil {
		t.Fatalf("list systems: %v", err)
	}
	if len(systems) != 1 || systems[0].ID != system.ID {
		t.Fatalf("unexpected systems result: %+v", systems)
	}
}

func TestInsightsNewestFirst(t *testing.T) {
	store := NewStore()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	current := base
	store.SetNow(func() time.Time { return current })
	project, _, _ := seedHierarchy(t, store)
	ctx := context.Background()

	for i, title := range []string{"primero", "segundo", "tercero"} {
		current = base.Add(time.Duration(i) * time.Minute)
		err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.CreateInsight(domain.Insight{ProjectID: project.ID, Title: title, Content: title})
			return err
		})
		if err != nil {
			t.Fatalf("create insight: %v", err)
		}
	}

	insights, err := store.ListInsights(ctx, project.ID)
	if err != nil {
		t.Fatalf("list insights: %v", err)
	}
	if len(insights) != 3 {
		t.Fatalf("expected 3 insights, got %d", len(insights))
	}
	if insights[0].Title != "tercero" {
		t.Fatalf("expected newest first, got %q", insights[0].Title)
	}
}

func TestImportLogLifecycle(t *testing.T) {
	store := NewStore()
	project, _, _ := seedHierarchy(t, store)
	ctx := context.Background()

	fileName := "itrs.csv"
	var log domain.ImportLog
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		log, err = tx.CreateImportLog(domain.ImportLog{
			ProjectID:  &project.ID,
			FileName:   &fileName,
			ImportType: "itrs",
		})
		return err
	})
	if err != nil {
		t.Fatalf("create log: %v", err)
	}
	if log.Status != domain.ImportStatusProcessing {
		t.Fatalf("expected processing default, got %q", log.Status)
	}

	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateImportLog(log.ID, func(l *domain.ImportLog) error {
			l.Status = domain.ImportStatusFailed
			l.RecordsProcessed = 10
			l.RecordsSuccess = 9
			l.RecordsFailed = 1
			l.ErrorDetails = []domain.ImportRowError{{Row: 4, Error: "invalid reference"}}
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update log: %v", err)
	}

	logs, err := store.ListImportLogs(ctx, project.ID)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	got := logs[0]
	if got.Status != domain.ImportStatusFailed || got.RecordsFailed != 1 || len(got.ErrorDetails) != 1 {
		t.Fatalf("lifecycle not persisted: %+v", got)
	}

	// Returned slices are copies.
	got.ErrorDetails[0].Error = "mutated"
	again, _ := store.ListImportLogs(ctx, project.ID)
	if again[0].ErrorDetails[0].Error != "invalid reference" {
		t.Fatal("error details aliased between reads")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := NewStore()
	_, _, subsystem := seedHierarchy(t, store)
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		tag, err := tx.CreateTag(domain.Tag{SubsystemID: subsystem.ID, TagCode: "V-2001"})
		if err != nil {
			return err
		}
		if _, err := tx.CreatePreservationTask(domain.PreservationTask{TagID: tag.ID, NextDueDate: time.Now().Add(72 * time.Hour)}); err != nil {
			return err
		}
		_, err = tx.CreatePunchItem(domain.PunchItem{SubsystemID: subsystem.ID, Description: "cable sin conectar", Category: domain.PunchCategoryA})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap := store.ExportState()
	restored := NewStore()
	restored.ImportState(snap)

	subs, err := restored.ListSubsystems(ctx, snap.Systems[0].ID)
	if err != nil {
		t.Fatalf("list subsystems: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subsystem after restore, got %d", len(subs))
	}
	tags, err := restored.ListTags(ctx, []string{subsystem.ID})
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 1 || tags[0].TagCode != "V-2001" {
		t.Fatalf("tag not restored: %+v", tags)
	}
	punch, err := restored.ListPunchItems(ctx, []string{subsystem.ID})
	if err != nil {
		t.Fatalf("list punch: %v", err)
	}
	if len(punch) != 1 {
		t.Fatalf("punch not restored: %+v", punch)
	}
}

func TestAuditTrailRecordsCommittedChanges(t *testing.T) {
	store := NewStore()
	seedHierarchy(t, store)

	trail := store.AuditTrail()
	if len(trail) != 3 {
		t.Fatalf("expected 3 recorded changes, got %d", len(trail))
	}
	if trail[0].Entity != domain.EntityProject || trail[0].Action != domain.ActionCreate {
		t.Fatalf("unexpected first change: %+v", trail[0])
	}
}

func TestContextCancellationStopsReads(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.ListSystems(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := store.RunInTransaction(ctx, func(domain.Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
