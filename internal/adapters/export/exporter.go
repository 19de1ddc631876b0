// Package export builds downloadable project bundles: every entity under a
// project plus a small KPI rollup, shaped for BI tooling.
package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"comptrack/pkg/domain"
)

// Metadata heads a bundle with the project row and export bookkeeping.
type Metadata struct {
	Project         domain.Project `json:"project"`
	ExportDate      time.Time      `json:"export_date"`
	SystemsCount    int            `json:"systems_count"`
	SubsystemsCount int            `json:"subsystems_count"`
}

// Rollup is the aggregate block appended to every bundle.
type Rollup struct {
	TotalITRs           int `json:"total_itrs"`
	CompletedITRs       int `json:"completed_itrs"`
	TotalPunchA         int `json:"total_punch_a"`
	OpenPunchA          int `json:"open_punch_a"`
	OverduePreservation int `json:"overdue_preservation"`
}

// ProjectBundle is the full export payload.
type ProjectBundle struct {
	Metadata          Metadata                  `json:"metadata"`
	Systems           []domain.System           `json:"systems"`
	Subsystems        []domain.Subsystem        `json:"subsystems"`
	ITRs              []domain.InspectionRecord `json:"itrs"`
	Tags              []domain.Tag              `json:"tags"`
	PunchItems        []domain.PunchItem        `json:"punch_items"`
	PreservationTasks []domain.PreservationTask `json:"preservation_tasks"`
	KPIs              Rollup                    `json:"kpis"`
}

type metricsRecorder interface {
	ExportGenerated()
}

// Exporter assembles project bundles from the persistent store.
type Exporter struct {
	reader  domain.Reader
	metrics metricsRecorder
	log     *zap.Logger
	nowFn   func() time.Time
}

// New constructs an Exporter. metrics may be nil.
func New(reader domain.Reader, metrics metricsRecorder, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{
		reader:  reader,
		metrics: metrics,
		log:     log,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the exporter clock. Intended for tests.
func (e *Exporter) SetNow(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

func failOpen[T any](log *zap.Logger, entity, scope string, items []T, err error) []T {
	if err != nil {
		log.Warn("export source fetch failed, exporting empty collection",
			zap.String("entity", entity),
			zap.String("scope", scope),
			zap.Error(err))
		return nil
	}
	return items
}

// ProjectBundle gathers everything under projectID. A non-nil systemID
// narrows the bundle to that one system. The project and system scope are
// required; leaf collections degrade to empty on fetch failure.
func (e *Exporter) ProjectBundle(ctx context.Context, projectID string, systemID *string) (ProjectBundle, error) {
	project, ok, err := e.reader.GetProject(ctx, projectID)
	if err != nil {
		return ProjectBundle{}, fmt.Errorf("fetch project %s: %w", projectID, err)
	}
	if !ok {
		return ProjectBundle{}, domain.ErrNotFound{Entity: domain.EntityProject, ID: projectID}
	}

	systems, err := e.reader.ListSystems(ctx, projectID)
	if err != nil {
		return ProjectBundle{}, fmt.Errorf("resolve systems of project %s: %w", projectID, err)
	}
	if systemID != nil {
		filtered := systems[:0]
		for _, sys := range systems {
			if sys.ID == *systemID {
				filtered = append(filtered, sys)
			}
		}
		systems = filtered
	}

	subsystems := make([]domain.Subsystem, 0)
	for _, sys := range systems {
		subs, err := e.reader.ListSubsystems(ctx, sys.ID)
		subs = failOpen(e.log, "subsystems", sys.ID, subs, err)
		subsystems = append(subsystems, subs...)
	}
	subsystemIDs := make([]string, 0, len(subsystems))
	for _, sub := range subsystems {
		subsystemIDs = append(subsystemIDs, sub.ID)
	}

	itrs, err := e.reader.ListInspectionRecords(ctx, subsystemIDs)
	itrs = failOpen(e.log, "itrs", projectID, itrs, err)
	tags, err := e.reader.ListTags(ctx, subsystemIDs)
	tags = failOpen(e.log, "tags", projectID, tags, err)
	punch, err := e.reader.ListPunchItems(ctx, subsystemIDs)
	punch = failOpen(e.log, "punch_items", projectID, punch, err)

	tagIDs := make([]string, 0, len(tags))
	for _, tag := range tags {
		tagIDs = append(tagIDs, tag.ID)
	}
	tasks, err := e.reader.ListPreservationTasks(ctx, tagIDs)
	tasks = failOpen(e.log, "preservation_tasks", projectID, tasks, err)

	var rollup Rollup
	rollup.TotalITRs = len(itrs)
	for _, itr := range itrs {
		if itr.Status == domain.ITRStatusCompleted {
			rollup.CompletedITRs++
		}
	}
	for _, p := range punch {
		if p.Category == domain.PunchCategoryA {
			rollup.TotalPunchA++
			if p.Status == domain.PunchStatusOpen {
				rollup.OpenPunchA++
			}
		}
	}
	for _, task := range tasks {
		if task.Status == domain.PreservationStatusOverdue {
			rollup.OverduePreservation++
		}
	}

	bundle := ProjectBundle{
		Metadata: Metadata{
			Project:         project,
			ExportDate:      e.nowFn(),
			SystemsCount:    len(systems),
			SubsystemsCount: len(subsystems),
		},
		Systems:           emptyIfNil(systems),
		Subsystems:        subsystems,
		ITRs:              emptyIfNil(itrs),
		Tags:              emptyIfNil(tags),
		PunchItems:        emptyIfNil(punch),
		PreservationTasks: emptyIfNil(tasks),
		KPIs:              rollup,
	}
	if e.metrics != nil {
		e.metrics.ExportGenerated()
	}
	return bundle, nil
}

// emptyIfNil keeps empty collections rendering as [] rather than null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
