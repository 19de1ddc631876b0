// Package insight answers natural-language questions about a system's
// completion state. Facts are assembled from the store into a Spanish
// context block; a Strategy turns question plus facts into an answer.
package insight

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"comptrack/pkg/domain"
)

const titleMaxRunes = 100

// OverdueTask pairs an overdue preservation task with its tag code for
// rendering.
type OverdueTask struct {
	Task    domain.PreservationTask
	TagCode string
}

// DisciplineCount is one pending-ITR-B line of the context block.
type DisciplineCount struct {
	Discipline domain.Discipline
	Pending    int
}

// Facts is everything the responder knows about one system at answer time.
type Facts struct {
	Project    domain.Project
	System     domain.System
	Subsystems []domain.Subsystem

	ITRATotal     int
	ITRACompleted int
	ITRBTotal     int
	ITRBCompleted int

	// ITRBPendingByDiscipline keeps disciplines in the order they were
	// first seen over the fetched records.
	ITRBPendingByDiscipline []DisciplineCount

	OpenPunchA          []domain.PunchItem
	OverduePreservation []OverdueTask
}

func percent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "sin fecha"
	}
	return t.Format("2006-01-02")
}

// ContextBlock renders the facts as the Spanish project summary handed to
// the responder strategies.
func (f Facts) ContextBlock() string {
	var b strings.Builder

	fmt.Fprintf(&b, "\nProyecto: %s (%s)\n", f.Project.Name, f.Project.Code)
	fmt.Fprintf(&b, "Sistema: %s (%s)\n", f.System.Name, f.System.Code)
	fmt.Fprintf(&b, "Estado del sistema: %s\n\n", f.System.Status)

	b.WriteString("RESUMEN DE ITRs:\n")
	fmt.Fprintf(&b, "- ITR A: %d de %d completados (%d%%)\n", f.ITRACompleted, f.ITRATotal, percent(f.ITRACompleted, f.ITRATotal))
	fmt.Fprintf(&b, "- ITR B: %d de %d completados (%d%%)\n", f.ITRBCompleted, f.ITRBTotal, percent(f.ITRBCompleted, f.ITRBTotal))
	b.WriteString("- ITR B pendientes por disciplina:\n")
	for _, dc := range f.ITRBPendingByDiscipline {
		fmt.Fprintf(&b, "  - %s: %d\n", dc.Discipline, dc.Pending)
	}

	b.WriteString("\nPUNCH ITEMS CRÍTICOS (Categoría A abiertos):\n")
	if len(f.OpenPunchA) == 0 {
		b.WriteString("No hay punch categoría A abiertos\n")
	} else {
		for _, p := range f.OpenPunchA {
			fmt.Fprintf(&b, "- %s (vence: %s)\n", p.Description, formatDate(p.DueDate))
		}
	}

	b.WriteString("\nPRESERVACIONES VENCIDAS:\n")
	if len(f.OverduePreservation) == 0 {
		b.WriteString("No hay preservaciones vencidas\n")
	} else {
		for _, o := range f.OverduePreservation {
			fmt.Fprintf(&b, "- Tag %s: %s (vencida desde %s)\n", o.TagCode, o.Task.Description, o.Task.NextDueDate.Format("2006-01-02"))
		}
	}

	b.WriteString("\nSUBSISTEMAS:\n")
	for _, s := range f.Subsystems {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Code, s.Name, s.Status)
	}

	return b.String()
}

// Recorder persists generated insights.
type Recorder interface {
	RecordInsight(ctx context.Context, ins domain.Insight) (domain.Insight, error)
}

type metricsRecorder interface {
	InsightAnswered(mode string, failed bool)
}

// Query is one question scoped to a system.
type Query struct {
	Question    string
	SystemID    string
	SubsystemID *string
}

// Answer carries the response plus the context block it was produced from.
type Answer struct {
	Response string `json:"response"`
	Context  string `json:"context"`
}

// Responder assembles facts, runs the configured strategy, and records the
// resulting insight.
type Responder struct {
	reader   domain.Reader
	recorder Recorder
	strategy Strategy
	metrics  metricsRecorder
	log      *zap.Logger
}

// NewResponder constructs a Responder. metrics and recorder may be nil;
// without a recorder answers are returned but not persisted.
func NewResponder(reader domain.Reader, recorder Recorder, strategy Strategy, metrics metricsRecorder, log *zap.Logger) *Responder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Responder{
		reader:   reader,
		recorder: recorder,
		strategy: strategy,
		metrics:  metrics,
		log:      log,
	}
}

// Mode reports which strategy is active.
func (r *Responder) Mode() string { return r.strategy.Name() }

func failOpen[T any](log *zap.Logger, entity, scope string, items []T, err error) []T {
	if err != nil {
		log.Warn("insight source fetch failed, counting as empty",
			zap.String("entity", entity),
			zap.String("scope", scope),
			zap.Error(err))
		return nil
	}
	return items
}

// BuildFacts gathers the responder's view of a system. The system, its
// project, and the subsystem scope are required; leaf collections degrade to
// empty on fetch failure.
func (r *Responder) BuildFacts(ctx context.Context, systemID string) (Facts, error) {
	system, ok, err := r.reader.GetSystem(ctx, systemID)
	if err != nil {
		return Facts{}, fmt.Errorf("fetch system %s: %w", systemID, err)
	}
	if !ok {
		return Facts{}, domain.ErrNotFound{Entity: domain.EntitySystem, ID: systemID}
	}
	project, ok, err := r.reader.GetProject(ctx, system.ProjectID)
	if err != nil {
		return Facts{}, fmt.Errorf("fetch project %s: %w", system.ProjectID, err)
	}
	if !ok {
		return Facts{}, domain.ErrNotFound{Entity: domain.EntityProject, ID: system.ProjectID}
	}
	subsystems, err := r.reader.ListSubsystems(ctx, systemID)
	if err != nil {
		return Facts{}, fmt.Errorf("resolve subsystems of system %s: %w", systemID, err)
	}
	subsystemIDs := make([]string, 0, len(subsystems))
	for _, s := range subsystems {
		subsystemIDs = append(subsystemIDs, s.ID)
	}

	facts := Facts{
		Project:    project,
		System:     system,
		Subsystems: subsystems,
	}

	itrs, err := r.reader.ListInspectionRecords(ctx, subsystemIDs)
	itrs = failOpen(r.log, "itrs", systemID, itrs, err)
	for _, itr := range itrs {
		switch itr.ITRType {
		case domain.ITRTypeA:
			facts.ITRATotal++
			if itr.Status == domain.ITRStatusCompleted {
				facts.ITRACompleted++
			}
		case domain.ITRTypeB:
			facts.ITRBTotal++
			if itr.Status == domain.ITRStatusCompleted {
				facts.ITRBCompleted++
			} else {
				facts.addPendingITRB(itr.Discipline)
			}
		}
	}

	punch, err := r.reader.ListPunchItems(ctx, subsystemIDs)
	punch = failOpen(r.log, "punch_items", systemID, punch, err)
	for _, p := range punch {
		if p.Category == domain.PunchCategoryA && p.IsOpen() {
			facts.OpenPunchA = append(facts.OpenPunchA, p)
		}
	}

	tags, err := r.reader.ListTags(ctx, subsystemIDs)
	tags = failOpen(r.log, "tags", systemID, tags, err)
	tagCodes := make(map[string]string, len(tags))
	tagIDs := make([]string, 0, len(tags))
	for _, tag := range tags {
		tagCodes[tag.ID] = tag.TagCode
		tagIDs = append(tagIDs, tag.ID)
	}

	tasks, err := r.reader.ListPreservationTasks(ctx, tagIDs)
	tasks = failOpen(r.log, "preservation_tasks", systemID, tasks, err)
	for _, task := range tasks {
		if task.Status == domain.PreservationStatusOverdue {
			facts.OverduePreservation = append(facts.OverduePreservation, OverdueTask{Task: task, TagCode: tagCodes[task.TagID]})
		}
	}

	return facts, nil
}

// addPendingITRB bumps the discipline's pending count, appending the
// discipline on first sight so the rendered order follows the record order.
func (f *Facts) addPendingITRB(d domain.Discipline) {
	for i := range f.ITRBPendingByDiscipline {
		if f.ITRBPendingByDiscipline[i].Discipline == d {
			f.ITRBPendingByDiscipline[i].Pending++
			return
		}
	}
	f.ITRBPendingByDiscipline = append(f.ITRBPendingByDiscipline, DisciplineCount{Discipline: d, Pending: 1})
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= titleMaxRunes {
		return s
	}
	return string(runes[:titleMaxRunes])
}

// AnswerQuestion runs the full query flow: facts, strategy, persistence.
// A strategy failure is returned to the caller; a persistence failure is
// logged and the answer still returned.
func (r *Responder) AnswerQuestion(ctx context.Context, q Query) (Answer, error) {
	if strings.TrimSpace(q.Question) == "" {
		return Answer{}, fmt.Errorf("question is required")
	}
	if q.SystemID == "" {
		return Answer{}, fmt.Errorf("system_id is required")
	}

	facts, err := r.BuildFacts(ctx, q.SystemID)
	if err != nil {
		return Answer{}, err
	}

	response, err := r.strategy.Answer(ctx, q.Question, facts)
	if err != nil {
		if r.metrics != nil {
			r.metrics.InsightAnswered(r.strategy.Name(), true)
		}
		return Answer{}, fmt.Errorf("answer question: %w", err)
	}

	ins := domain.Insight{
		Title:       truncateTitle(q.Question),
		Content:     response,
		ProjectID:   facts.Project.ID,
		SystemID:    &q.SystemID,
		SubsystemID: q.SubsystemID,
	}
	if r.recorder == nil {
		r.log.Warn("no insight recorder configured, answer not persisted",
			zap.String("system_id", q.SystemID))
	} else if _, err := r.recorder.RecordInsight(ctx, ins); err != nil {
		r.log.Warn("insight persistence failed, returning answer anyway",
			zap.String("system_id", q.SystemID),
			zap.Error(err))
	}

	if r.metrics != nil {
		r.metrics.InsightAnswered(r.strategy.Name(), false)
	}
	return Answer{Response: response, Context: facts.ContextBlock()}, nil
}
