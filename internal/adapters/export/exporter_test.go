package export

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"comptrack/internal/infra/persistence/memory"
	"comptrack/pkg/domain"
)

type fixture struct {
	store     *memory.Store
	project   domain.Project
	systemA   domain.System
	systemB   domain.System
	subsystem domain.Subsystem
}

func seedExportData(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	var fx fixture
	fx.store = store
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		fx.project, err = tx.CreateProject(domain.Project{Name: "Terminal Oeste", Code: "TO-01"})
		if err != nil {
			return err
		}
		fx.systemA, err = tx.CreateSystem(domain.System{ProjectID: fx.project.ID, Code: "SYS-A"})
		if err != nil {
			return err
		}
		fx.systemB, err = tx.CreateSystem(domain.System{ProjectID: fx.project.ID, Code: "SYS-B"})
		if err != nil {
			return err
		}
		fx.subsystem, err = tx.CreateSubsystem(domain.Subsystem{SystemID: fx.systemA.ID, Code: "SS-A-1"})
		if err != nil {
			return err
		}
		subB, err := tx.CreateSubsystem(domain.Subsystem{SystemID: fx.systemB.ID, Code: "SS-B-1"})
		if err != nil {
			return err
		}

		itrs := []struct {
			sub    string
			status domain.ITRStatus
		}{
			{fx.subsystem.ID, domain.ITRStatusCompleted},
			{fx.subsystem.ID, domain.ITRStatusInProgress},
			{subB.ID, domain.ITRStatusCompleted},
		}
		for i, spec := range itrs {
			_, err := tx.CreateInspectionRecord(domain.InspectionRecord{
				SubsystemID: spec.sub,
				ITRCode:     "ITR-" + string(rune('1'+i)),
				ITRType:     domain.ITRTypeA,
				Status:      spec.status,
			})
			if err != nil {
				return err
			}
		}

		punches := []struct {
			category domain.PunchCategory
			status   domain.PunchStatus
		}{
			{domain.PunchCategoryA, domain.PunchStatusOpen},
			{domain.PunchCategoryA, domain.PunchStatusInProgress},
			{domain.PunchCategoryA, domain.PunchStatusClosed},
			{domain.PunchCategoryB, domain.PunchStatusOpen},
		}
		for _, p := range punches {
			_, err := tx.CreatePunchItem(domain.PunchItem{
				SubsystemID: fx.subsystem.ID,
				Description: "d",
				Category:    p.category,
				Status:      p.status,
			})
			if err != nil {
				return err
			}
		}

		tag, err := tx.CreateTag(domain.Tag{SubsystemID: fx.subsystem.ID, TagCode: "T-1"})
		if err != nil {
			return err
		}
		_, err = tx.CreatePreservationTask(domain.PreservationTask{
			TagID:         tag.ID,
			FrequencyDays: 30,
			NextDueDate:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			Status:        domain.PreservationStatusOverdue,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return fx
}

func TestProjectBundle(t *testing.T) {
	fx := seedExportData(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ex := New(fx.store, nil, nil)
	ex.SetNow(func() time.Time { return now })

	bundle, err := ex.ProjectBundle(context.Background(), fx.project.ID, nil)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}

	if bundle.Metadata.Project.ID != fx.project.ID {
		t.Fatalf("wrong project: %+v", bundle.Metadata.Project)
	}
	if !bundle.Metadata.ExportDate.Equal(now) {
		t.Fatalf("export date = %v", bundle.Metadata.ExportDate)
	}
	if bundle.Metadata.SystemsCount != 2 || bundle.Metadata.SubsystemsCount != 2 {
		t.Fatalf("counts wrong: %+v", bundle.Metadata)
	}
	want := Rollup{
		TotalITRs:           3,
		CompletedITRs:       2,
		TotalPunchA:         3,
		OpenPunchA:          1, // strictly OPEN, not IN_PROGRESS
		OverduePreservation: 1,
	}
	if bundle.KPIs != want {
		t.Fatalf("rollup mismatch\n got %+v\nwant %+v", bundle.KPIs, want)
	}
}

func TestProjectBundleSystemFilter(t *testing.T) {
	fx := seedExportData(t)
	ex := New(fx.store, nil, nil)

	bundle, err := ex.ProjectBundle(context.Background(), fx.project.ID, &fx.systemB.ID)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	if len(bundle.Systems) != 1 || bundle.Systems[0].ID != fx.systemB.ID {
		t.Fatalf("filter not applied: %+v", bundle.Systems)
	}
	if bundle.KPIs.TotalITRs != 1 || bundle.KPIs.TotalPunchA != 0 {
		t.Fatalf("rollup not scoped: %+v", bundle.KPIs)
	}
}

func TestProjectBundleUnknownProject(t *testing.T) {
	fx := seedExportData(t)
	ex := New(fx.store, nil, nil)
	_, err := ex.ProjectBundle(context.Background(), "missing", nil)
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectBundleEmptyCollectionsRenderAsArrays(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	var projectID string
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(domain.Project{Name: "p", Code: "P"})
		projectID = project.ID
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	ex := New(store, nil, nil)
	bundle, err := ex.ProjectBundle(ctx, projectID, nil)
	if err != nil {
		t.Fatalf("bundle: %v", err)
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "null") {
		t.Fatalf("empty collections must serialize as [], got:\n%s", raw)
	}
}
