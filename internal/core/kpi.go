package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"comptrack/pkg/domain"
)

// upcomingWindow is how far ahead a due preservation task counts as upcoming.
const upcomingWindow = 7 * 24 * time.Hour

// PunchOpenByCategory breaks open punch items down by severity category.
type PunchOpenByCategory struct {
	A int `json:"A"`
	B int `json:"B"`
	C int `json:"C"`
}

// SystemKPIs is the completion rollup for one system across all of its
// subsystems.
type SystemKPIs struct {
	TotalITRA                 int                 `json:"totalItrA"`
	CompletedITRA             int                 `json:"completedItrA"`
	PercentITRACompleted      int                 `json:"percentItrACompleted"`
	TotalITRB                 int                 `json:"totalItrB"`
	CompletedITRB             int                 `json:"completedItrB"`
	PercentITRBCompleted      int                 `json:"percentItrBCompleted"`
	PunchOpenByCategory       PunchOpenByCategory `json:"punchOpenByCategory"`
	PunchClosed               int                 `json:"punchClosed"`
	PreservationOverdueCount  int                 `json:"preservationOverdueCount"`
	PreservationUpcomingCount int                 `json:"preservationUpcomingCount"`
	HasCriticalPunch          bool                `json:"hasCriticalPunch"`
	HasIncompletedITRB        bool                `json:"hasIncompletedItrB"`
}

// SubsystemKPIs is the completion rollup for a single subsystem.
type SubsystemKPIs struct {
	TotalITRA                int `json:"totalItrA"`
	CompletedITRA            int `json:"completedItrA"`
	PercentITRACompleted     int `json:"percentItrACompleted"`
	TotalITRB                int `json:"totalItrB"`
	CompletedITRB            int `json:"completedItrB"`
	PercentITRBCompleted     int `json:"percentItrBCompleted"`
	PunchOpen                int `json:"punchOpen"`
	PunchClosed              int `json:"punchClosed"`
	PreservationOverdueCount int `json:"preservationOverdueCount"`
}

// Aggregator computes completion KPIs from the persistent store.
//
// The fetch that resolves the aggregation scope (the subsystem list) is
// fatal on error; every leaf collection fetch degrades to an empty slice so
// a partial storage outage yields zeroed counters instead of a failed
// dashboard.
type Aggregator struct {
	store domain.Reader
	log   *zap.Logger
	nowFn func() time.Time
}

// NewAggregator constructs an Aggregator over store.
func NewAggregator(store domain.Reader, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		store: store,
		log:   log,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the aggregator clock. Intended for tests.
func (a *Aggregator) SetNow(fn func() time.Time) {
	if fn != nil {
		a.nowFn = fn
	}
}

func failOpen[T any](log *zap.Logger, entity, scope string, items []T, err error) []T {
	if err != nil {
		log.Warn("kpi source fetch failed, counting as empty",
			zap.String("entity", entity),
			zap.String("scope", scope),
			zap.Error(err))
		return nil
	}
	return items
}

// percent returns the completion ratio as an integer percentage, rounding
// half away from zero. A zero total yields 0, not a division error.
func percent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func splitITRs(itrs []domain.InspectionRecord) (totalA, completedA, totalB, completedB int) {
	for _, itr := range itrs {
		switch itr.ITRType {
		case domain.ITRTypeA:
			totalA++
			if itr.Status == domain.ITRStatusCompleted {
				completedA++
			}
		case domain.ITRTypeB:
			totalB++
			if itr.Status == domain.ITRStatusCompleted {
				completedB++
			}
		}
	}
	return totalA, completedA, totalB, completedB
}

// ForSystem aggregates KPIs across every subsystem of the given system.
func (a *Aggregator) ForSystem(ctx context.Context, systemID string) (SystemKPIs, error) {
	subsystems, err := a.store.ListSubsystems(ctx, systemID)
	if err != nil {
		return SystemKPIs{}, fmt.Errorf("resolve subsystems of system %s: %w", systemID, err)
	}
	subsystemIDs := make([]string, 0, len(subsystems))
	for _, sub := range subsystems {
		subsystemIDs = append(subsystemIDs, sub.ID)
	}

	itrs, err := a.store.ListInspectionRecords(ctx, subsystemIDs)
	itrs = failOpen(a.log, "itrs", systemID, itrs, err)
	totalA, completedA, totalB, completedB := splitITRs(itrs)

	punch, err := a.store.ListPunchItems(ctx, subsystemIDs)
	punch = failOpen(a.log, "punch_items", systemID, punch, err)
	var byCategory PunchOpenByCategory
	var punchClosed int
	for _, p := range punch {
		switch {
		case p.IsOpen():
			switch p.Category {
			case domain.PunchCategoryA:
				byCategory.A++
			case domain.PunchCategoryB:
				byCategory.B++
			case domain.PunchCategoryC:
				byCategory.C++
			}
		case p.Status == domain.PunchStatusClosed:
			punchClosed++
		}
	}

	tags, err := a.store.ListTags(ctx, subsystemIDs)
	tags = failOpen(a.log, "tags", systemID, tags, err)
	tagIDs := make([]string, 0, len(tags))
	for _, tag := range tags {
		tagIDs = append(tagIDs, tag.ID)
	}

	tasks, err := a.store.ListPreservationTasks(ctx, tagIDs)
	tasks = failOpen(a.log, "preservation_tasks", systemID, tasks, err)
	now := a.nowFn()
	horizon := now.Add(upcomingWindow)
	var overdue, upcoming int
	for _, task := range tasks {
		if task.Status == domain.PreservationStatusOverdue {
			overdue++
		}
		if task.Status == domain.PreservationStatusOK &&
			task.NextDueDate.After(now) && !task.NextDueDate.After(horizon) {
			upcoming++
		}
	}

	return SystemKPIs{
		TotalITRA:                 totalA,
		CompletedITRA:             completedA,
		PercentITRACompleted:      percent(completedA, totalA),
		TotalITRB:                 totalB,
		CompletedITRB:             completedB,
		PercentITRBCompleted:      percent(completedB, totalB),
		PunchOpenByCategory:       byCategory,
		PunchClosed:               punchClosed,
		PreservationOverdueCount:  overdue,
		PreservationUpcomingCount: upcoming,
		HasCriticalPunch:          byCategory.A > 0,
		HasIncompletedITRB:        completedB < totalB,
	}, nil
}

// ForSubsystem aggregates KPIs for a single subsystem.
func (a *Aggregator) ForSubsystem(ctx context.Context, subsystemID string) (SubsystemKPIs, error) {
	if err := ctx.Err(); err != nil {
		return SubsystemKPIs{}, err
	}
	scope := []string{subsystemID}

	itrs, err := a.store.ListInspectionRecords(ctx, scope)
	itrs = failOpen(a.log, "itrs", subsystemID, itrs, err)
	totalA, completedA, totalB, completedB := splitITRs(itrs)

	punch, err := a.store.ListPunchItems(ctx, scope)
	punch = failOpen(a.log, "punch_items", subsystemID, punch, err)
	var punchOpen, punchClosed int
	for _, p := range punch {
		switch {
		case p.IsOpen():
			punchOpen++
		case p.Status == domain.PunchStatusClosed:
			punchClosed++
		}
	}

	tags, err := a.store.ListTags(ctx, scope)
	tags = failOpen(a.log, "tags", subsystemID, tags, err)
	tagIDs := make([]string, 0, len(tags))
	for _, tag := range tags {
		tagIDs = append(tagIDs, tag.ID)
	}

	tasks, err := a.store.ListPreservationTasks(ctx, tagIDs)
	tasks = failOpen(a.log, "preservation_tasks", subsystemID, tasks, err)
	var overdue int
	for _, task := range tasks {
		if task.Status == domain.PreservationStatusOverdue {
			overdue++
		}
	}

	return SubsystemKPIs{
		TotalITRA:                totalA,
		CompletedITRA:            completedA,
		PercentITRACompleted:     percent(completedA, totalA),
		TotalITRB:                totalB,
		CompletedITRB:            completedB,
		PercentITRBCompleted:     percent(completedB, totalB),
		PunchOpen:                punchOpen,
		PunchClosed:              punchClosed,
		PreservationOverdueCount: overdue,
	}, nil
}
