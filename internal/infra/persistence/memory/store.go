// Package memory provides the canonical transactional in-memory store for the
// comptrack domain. Durable backends wrap it and snapshot its state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"comptrack/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

type state struct {
	projects     map[string]domain.Project
	systems      map[string]domain.System
	subsystems   map[string]domain.Subsystem
	tags         map[string]domain.Tag
	itrs         map[string]domain.InspectionRecord
	punchItems   map[string]domain.PunchItem
	preservation map[string]domain.PreservationTask
	insights     map[string]domain.Insight
	importLogs   map[string]domain.ImportLog
	users        map[string]domain.UserProfile
}

func newState() state {
	return state{
		projects:     make(map[string]domain.Project),
		systems:      make(map[string]domain.System),
		subsystems:   make(map[string]domain.Subsystem),
		tags:         make(map[string]domain.Tag),
		itrs:         make(map[string]domain.InspectionRecord),
		punchItems:   make(map[string]domain.PunchItem),
		preservation: make(map[string]domain.PreservationTask),
		insights:     make(map[string]domain.Insight),
		importLogs:   make(map[string]domain.ImportLog),
		users:        make(map[string]domain.UserProfile),
	}
}

func (s state) clone() state {
	cloned := newState()
	for k, v := range s.projects {
		cloned.projects[k] = v
	}
	for k, v := range s.systems {
		cloned.systems[k] = v
	}
	for k, v := range s.subsystems {
		cloned.subsystems[k] = v
	}
	for k, v := range s.tags {
		cloned.tags[k] = v
	}
	for k, v := range s.itrs {
		cloned.itrs[k] = v
	}
	for k, v := range s.punchItems {
		cloned.punchItems[k] = v
	}
	for k, v := range s.preservation {
		cloned.preservation[k] = v
	}
	for k, v := range s.insights {
		cloned.insights[k] = v
	}
	for k, v := range s.importLogs {
		cloned.importLogs[k] = cloneImportLog(v)
	}
	for k, v := range s.users {
		cloned.users[k] = v
	}
	return cloned
}

func cloneImportLog(l domain.ImportLog) domain.ImportLog {
	cp := l
	cp.ErrorDetails = append([]domain.ImportRowError(nil), l.ErrorDetails...)
	return cp
}

// Store provides an in-memory transactional store for the comptrack domain.
type Store struct {
	mu    sync.RWMutex
	state state
	audit []domain.Change
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the store clock. Intended for tests.
func (s *Store) SetNow(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

func newID() string { return uuid.NewString() }

// Tx represents a mutation set applied to the store state.
type Tx struct {
	store   *Store
	state   state
	changes []domain.Change
}

// RunInTransaction applies fn against a cloned state and commits on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	s.audit = append(s.audit, tx.changes...)
	return nil
}

// View runs fn against a read-only snapshot of the current state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snap := s.state.clone()
	s.mu.RUnlock()
	return fn(&view{state: snap})
}

// AuditTrail returns a copy of all committed changes in commit order.
func (s *Store) AuditTrail() []domain.Change {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Change, len(s.audit))
	copy(out, s.audit)
	return out
}

func (t *Tx) record(entity domain.EntityType, action domain.Action, before, after any) {
	t.changes = append(t.changes, domain.Change{Entity: entity, Action: action, Before: before, After: after})
}

func (t *Tx) stampNew(b *domain.Base) {
	now := t.store.nowFn()
	if b.ID == "" {
		b.ID = newID()
	}
	b.CreatedAt = now
	b.UpdatedAt = now
}

// Snapshot returns a read-only view over the transaction's working state.
func (t *Tx) Snapshot() domain.TransactionView {
	return &view{state: t.state}
}

// CreateProject persists a project, enforcing code uniqueness.
func (t *Tx) CreateProject(p domain.Project) (domain.Project, error) {
	for _, existing := range t.state.projects {
		if existing.Code == p.Code {
			return domain.Project{}, domain.ErrDuplicateCode{Entity: domain.EntityProject, Code: p.Code}
		}
	}
	if p.Status == "" {
		p.Status = domain.ProjectStatusPlanning
	}
	t.stampNew(&p.Base)
	t.state.projects[p.ID] = p
	t.record(domain.EntityProject, domain.ActionCreate, nil, p)
	return p, nil
}

// UpdateProject mutates a project through the supplied mutator.
func (t *Tx) UpdateProject(id string, mutator func(*domain.Project) error) (domain.Project, error) {
	current, ok := t.state.projects[id]
	if !ok {
		return domain.Project{}, domain.ErrNotFound{Entity: domain.EntityProject, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Project{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.projects[id] = current
	t.record(domain.EntityProject, domain.ActionUpdate, before, current)
	return current, nil
}

// DeleteProject removes a project record.
func (t *Tx) DeleteProject(id string) error {
	current, ok := t.state.projects[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityProject, ID: id}
	}
	delete(t.state.projects, id)
	t.record(domain.EntityProject, domain.ActionDelete, current, nil)
	return nil
}

// CreateSystem persists a system; the parent project must exist.
func (t *Tx) CreateSystem(sys domain.System) (domain.System, error) {
	if _, ok := t.state.projects[sys.ProjectID]; !ok {
		return domain.System{}, domain.ErrInvalidReference{Entity: domain.EntitySystem, Field: "project_id", RefID: sys.ProjectID, RefType: domain.EntityProject}
	}
	if sys.Status == "" {
		sys.Status = domain.SystemStatusNotStarted
	}
	if sys.Criticality == "" {
		sys.Criticality = domain.CriticalityMedium
	}
	t.stampNew(&sys.Base)
	t.state.systems[sys.ID] = sys
	t.record(domain.EntitySystem, domain.ActionCreate, nil, sys)
	return sys, nil
}

// UpdateSystem mutates a system.
func (t *Tx) UpdateSystem(id string, mutator func(*domain.System) error) (domain.System, error) {
	current, ok := t.state.systems[id]
	if !ok {
		return domain.System{}, domain.ErrNotFound{Entity: domain.EntitySystem, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.System{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.systems[id] = current
	t.record(domain.EntitySystem, domain.ActionUpdate, before, current)
	return current, nil
}

// DeleteSystem removes a system record.
func (t *Tx) DeleteSystem(id string) error {
	current, ok := t.state.systems[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntitySystem, ID: id}
	}
	delete(t.state.systems, id)
	t.record(domain.EntitySystem, domain.ActionDelete, current, nil)
	return nil
}

// CreateSubsystem persists a subsystem; the parent system must exist.
func (t *Tx) CreateSubsystem(sub domain.Subsystem) (domain.Subsystem, error) {
	if _, ok := t.state.systems[sub.SystemID]; !ok {
		return domain.Subsystem{}, domain.ErrInvalidReference{Entity: domain.EntitySubsystem, Field: "system_id", RefID: sub.SystemID, RefType: domain.EntitySystem}
	}
	if sub.Status == "" {
		sub.Status = domain.SystemStatusNotStarted
	}
	t.stampNew(&sub.Base)
	t.state.subsystems[sub.ID] = sub
	t.record(domain.EntitySubsystem, domain.ActionCreate, nil, sub)
	return sub, nil
}

// UpdateSubsystem mutates a subsystem.
func (t *Tx) UpdateSubsystem(id string, mutator func(*domain.Subsystem) error) (domain.Subsystem, error) {
	current, ok := t.state.subsystems[id]
	if !ok {
		return domain.Subsystem{}, domain.ErrNotFound{Entity: domain.EntitySubsystem, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Subsystem{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.subsystems[id] = current
	t.record(domain.EntitySubsystem, domain.ActionUpdate, before, current)
	return current, nil
}

// DeleteSubsystem removes a subsystem record.
func (t *Tx) DeleteSubsystem(id string) error {
	current, ok := t.state.subsystems[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntitySubsystem, ID: id}
	}
	delete(t.state.subsystems, id)
	t.record(domain.EntitySubsystem, domain.ActionDelete, current, nil)
	return nil
}

// CreateTag persists a tag; the parent subsystem must exist.
func (t *Tx) CreateTag(tag domain.Tag) (domain.Tag, error) {
	if _, ok := t.state.subsystems[tag.SubsystemID]; !ok {
		return domain.Tag{}, domain.ErrInvalidReference{Entity: domain.EntityTag, Field: "subsystem_id", RefID: tag.SubsystemID, RefType: domain.EntitySubsystem}
	}
	if tag.Criticality == "" {
		tag.Criticality = domain.CriticalityMedium
	}
	t.stampNew(&tag.Base)
	t.state.tags[tag.ID] = tag
	t.record(domain.EntityTag, domain.ActionCreate, nil, tag)
	return tag, nil
}

// UpdateTag mutates a tag.
func (t *Tx) UpdateTag(id string, mutator func(*domain.Tag) error) (domain.Tag, error) {
	current, ok := t.state.tags[id]
	if !ok {
		return domain.Tag{}, domain.ErrNotFound{Entity: domain.EntityTag, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Tag{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.tags[id] = current
	t.record(domain.EntityTag, domain.ActionUpdate, before, current)
	return current, nil
}

// DeleteTag removes a tag record.
func (t *Tx) DeleteTag(id string) error {
	current, ok := t.state.tags[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityTag, ID: id}
	}
	delete(t.state.tags, id)
	t.record(domain.EntityTag, domain.ActionDelete, current, nil)
	return nil
}

// CreateInspectionRecord persists an ITR; the subsystem (and tag, when set) must exist.
func (t *Tx) CreateInspectionRecord(itr domain.InspectionRecord) (domain.InspectionRecord, error) {
	if _, ok := t.state.subsystems[itr.SubsystemID]; !ok {
		return domain.InspectionRecord{}, domain.ErrInvalidReference{Entity: domain.EntityInspectionRecord, Field: "subsystem_id", RefID: itr.SubsystemID, RefType: domain.EntitySubsystem}
	}
	if itr.TagID != nil {
		if _, ok := t.state.tags[*itr.TagID]; !ok {
			return domain.InspectionRecord{}, domain.ErrInvalidReference{Entity: domain.EntityInspectionRecord, Field: "tag_id", RefID: *itr.TagID, RefType: domain.EntityTag}
		}
	}
	if itr.Status == "" {
		itr.Status = domain.ITRStatusNotStarted
	}
	t.stampNew(&itr.Base)
	t.state.itrs[itr.ID] = itr
	t.record(domain.EntityInspectionRecord, domain.ActionCreate, nil, itr)
	return itr, nil
}

// UpdateInspectionRecord mutates an ITR. Status transitions are externally
// driven and accepted as-is.
func (t *Tx) UpdateInspectionRecord(id string, mutator func(*domain.InspectionRecord) error) (domain.InspectionRecord, error) {
	current, ok := t.state.itrs[id]
	if !ok {
		return domain.InspectionRecord{}, domain.ErrNotFound{Entity: domain.EntityInspectionRecord, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.InspectionRecord{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.itrs[id] = current
	t.record(domain.EntityInspectionRecord, domain.ActionUpdate, before, current)
	return current, nil
}

// DeleteInspectionRecord removes an ITR record.
func (t *Tx) DeleteInspectionRecord(id string) error {
	current, ok := t.state.itrs[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityInspectionRecord, ID: id}
	}
	delete(t.state.itrs, id)
	t.record(domain.EntityInspectionRecord, domain.ActionDelete, current, nil)
	return nil
}

// CreatePunchItem persists a punch item; the subsystem must exist.
func (t *Tx) CreatePunchItem(p domain.PunchItem) (domain.PunchItem, error) {
	if _, ok := t.state.subsystems[p.SubsystemID]; !ok {
		return domain.PunchItem{}, domain.ErrInvalidReference{Entity: domain.EntityPunchItem, Field: "subsystem_id", RefID: p.SubsystemID, RefType: domain.EntitySubsystem}
	}
	if p.TagID != nil {
		if _, ok := t.state.tags[*p.TagID]; !ok {
			return domain.PunchItem{}, domain.ErrInvalidReference{Entity: domain.EntityPunchItem, Field: "tag_id", RefID: *p.TagID, RefType: domain.EntityTag}
		}
	}
	if p.Status == "" {
		p.Status = domain.PunchStatusOpen
	}
	t.stampNew(&p.Base)
	t.state.punchItems[p.ID] = p
	t.record(domain.EntityPunchItem, domain.ActionCreate, nil, p)
	return p, nil
}

// UpdatePunchItem mutates a punch item.
func (t *Tx) UpdatePunchItem(id string, mutator func(*domain.PunchItem) error) (domain.PunchItem, error) {
	current, ok := t.state.punchItems[id]
	if !ok {
		return domain.PunchItem{}, domain.ErrNotFound{Entity: domain.EntityPunchItem, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.PunchItem{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.punchItems[id] = current
	t.record(domain.EntityPunchItem, domain.ActionUpdate, before, current)
	return current, nil
}

// DeletePunchItem removes a punch item record.
func (t *Tx) DeletePunchItem(id string) error {
	current, ok := t.state.punchItems[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPunchItem, ID: id}
	}
	delete(t.state.punchItems, id)
	t.record(domain.EntityPunchItem, domain.ActionDelete, current, nil)
	return nil
}

// CreatePreservationTask persists a preservation task; the parent tag must exist.
func (t *Tx) CreatePreservationTask(p domain.PreservationTask) (domain.PreservationTask, error) {
	if _, ok := t.state.tags[p.TagID]; !ok {
		return domain.PreservationTask{}, domain.ErrInvalidReference{Entity: domain.EntityPreservationTask, Field: "tag_id", RefID: p.TagID, RefType: domain.EntityTag}
	}
	if p.Status == "" {
		p.Status = domain.PreservationStatusOK
	}
	t.stampNew(&p.Base)
	t.state.preservation[p.ID] = p
	t.record(domain.EntityPreservationTask, domain.ActionCreate, nil, p)
	return p, nil
}

// UpdatePreservationTask mutates a preservation task.
func (t *Tx) UpdatePreservationTask(id string, mutator func(*domain.PreservationTask) error) (domain.PreservationTask, error) {
	current, ok := t.state.preservation[id]
	if !ok {
		return domain.PreservationTask{}, domain.ErrNotFound{Entity: domain.EntityPreservationTask, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.PreservationTask{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.preservation[id] = current
	t.record(domain.EntityPreservationTask, domain.ActionUpdate, before, current)
	return current, nil
}

// DeletePreservationTask removes a preservation task record.
func (t *Tx) DeletePreservationTask(id string) error {
	current, ok := t.state.preservation[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityPreservationTask, ID: id}
	}
	delete(t.state.preservation, id)
	t.record(domain.EntityPreservationTask, domain.ActionDelete, current, nil)
	return nil
}

// CreateInsight appends an insight row. Insights are never mutated.
func (t *Tx) CreateInsight(ins domain.Insight) (domain.Insight, error) {
	if _, ok := t.state.projects[ins.ProjectID]; !ok {
		return domain.Insight{}, domain.ErrInvalidReference{Entity: domain.EntityInsight, Field: "project_id", RefID: ins.ProjectID, RefType: domain.EntityProject}
	}
	if ins.SystemID != nil {
		if _, ok := t.state.systems[*ins.SystemID]; !ok {
			return domain.Insight{}, domain.ErrInvalidReference{Entity: domain.EntityInsight, Field: "system_id", RefID: *ins.SystemID, RefType: domain.EntitySystem}
		}
	}
	if ins.SubsystemID != nil {
		if _, ok := t.state.subsystems[*ins.SubsystemID]; !ok {
			return domain.Insight{}, domain.ErrInvalidReference{Entity: domain.EntityInsight, Field: "subsystem_id", RefID: *ins.SubsystemID, RefType: domain.EntitySubsystem}
		}
	}
	t.stampNew(&ins.Base)
	t.state.insights[ins.ID] = ins
	t.record(domain.EntityInsight, domain.ActionCreate, nil, ins)
	return ins, nil
}

// CreateImportLog appends an import log row.
func (t *Tx) CreateImportLog(l domain.ImportLog) (domain.ImportLog, error) {
	if l.ProjectID != nil {
		if _, ok := t.state.projects[*l.ProjectID]; !ok {
			return domain.ImportLog{}, domain.ErrInvalidReference{Entity: domain.EntityImportLog, Field: "project_id", RefID: *l.ProjectID, RefType: domain.EntityProject}
		}
	}
	if l.Status == "" {
		l.Status = domain.ImportStatusProcessing
	}
	t.stampNew(&l.Base)
	t.state.importLogs[l.ID] = cloneImportLog(l)
	t.record(domain.EntityImportLog, domain.ActionCreate, nil, l)
	return l, nil
}

// UpdateImportLog finalizes an import log's status and counters.
func (t *Tx) UpdateImportLog(id string, mutator func(*domain.ImportLog) error) (domain.ImportLog, error) {
	current, ok := t.state.importLogs[id]
	if !ok {
		return domain.ImportLog{}, domain.ErrNotFound{Entity: domain.EntityImportLog, ID: id}
	}
	before := cloneImportLog(current)
	if err := mutator(&current); err != nil {
		return domain.ImportLog{}, err
	}
	current.ID = before.ID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = t.store.nowFn()
	t.state.importLogs[id] = cloneImportLog(current)
	t.record(domain.EntityImportLog, domain.ActionUpdate, before, current)
	return current, nil
}

// FindProject looks up a project within the transaction state.
func (t *Tx) FindProject(id string) (domain.Project, bool) {
	p, ok := t.state.projects[id]
	return p, ok
}

// FindSystem looks up a system within the transaction state.
func (t *Tx) FindSystem(id string) (domain.System, bool) {
	s, ok := t.state.systems[id]
	return s, ok
}

// FindSubsystem looks up a subsystem within the transaction state.
func (t *Tx) FindSubsystem(id string) (domain.Subsystem, bool) {
	s, ok := t.state.subsystems[id]
	return s, ok
}

// FindTag looks up a tag within the transaction state.
func (t *Tx) FindTag(id string) (domain.Tag, bool) {
	tag, ok := t.state.tags[id]
	return tag, ok
}

type view struct {
	state state
}

func (v *view) ListProjects() []domain.Project {
	out := make([]domain.Project, 0, len(v.state.projects))
	for _, p := range v.state.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (v *view) ListSystems() []domain.System {
	out := make([]domain.System, 0, len(v.state.systems))
	for _, s := range v.state.systems {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (v *view) ListSubsystems() []domain.Subsystem {
	out := make([]domain.Subsystem, 0, len(v.state.subsystems))
	for _, s := range v.state.subsystems {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (v *view) FindProject(id string) (domain.Project, bool) {
	p, ok := v.state.projects[id]
	return p, ok
}

func (v *view) FindSystem(id string) (domain.System, bool) {
	s, ok := v.state.systems[id]
	return s, ok
}

func (v *view) FindSubsystem(id string) (domain.Subsystem, bool) {
	s, ok := v.state.subsystems[id]
	return s, ok
}

// GetProject implements domain.Reader.
func (s *Store) GetProject(ctx context.Context, id string) (domain.Project, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Project{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.projects[id]
	return p, ok, nil
}

// GetSystem implements domain.Reader.
func (s *Store) GetSystem(ctx context.Context, id string) (domain.System, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.System{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sys, ok := s.state.systems[id]
	return sys, ok, nil
}

// GetSubsystem implements domain.Reader.
func (s *Store) GetSubsystem(ctx context.Context, id string) (domain.Subsystem, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Subsystem{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.state.subsystems[id]
	return sub, ok, nil
}

// ListSystems returns the systems under a project ordered by code.
func (s *Store) ListSystems(ctx context.Context, projectID string) ([]domain.System, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.System
	for _, sys := range s.state.systems {
		if sys.ProjectID == projectID {
			out = append(out, sys)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ListSubsystems returns the subsystems under a system ordered by code.
func (s *Store) ListSubsystems(ctx context.Context, systemID string) ([]domain.Subsystem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Subsystem
	for _, sub := range s.state.subsystems {
		if sub.SystemID == systemID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ListInspectionRecords returns the ITRs attached to any of the given subsystems.
func (s *Store) ListInspectionRecords(ctx context.Context, subsystemIDs []string) ([]domain.InspectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := idSet(subsystemIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.InspectionRecord
	for _, itr := range s.state.itrs {
		if _, ok := wanted[itr.SubsystemID]; ok {
			out = append(out, itr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ITRCode < out[j].ITRCode })
	return out, nil
}

// ListPunchItems returns the punch items attached to any of the given subsystems.
func (s *Store) ListPunchItems(ctx context.Context, subsystemIDs []string) ([]domain.PunchItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := idSet(subsystemIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PunchItem
	for _, p := range s.state.punchItems {
		if _, ok := wanted[p.SubsystemID]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListTags returns the tags attached to any of the given subsystems.
func (s *Store) ListTags(ctx context.Context, subsystemIDs []string) ([]domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := idSet(subsystemIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Tag
	for _, tag := range s.state.tags {
		if _, ok := wanted[tag.SubsystemID]; ok {
			out = append(out, tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TagCode < out[j].TagCode })
	return out, nil
}

// ListPreservationTasks returns the preservation tasks attached to any of the given tags.
func (s *Store) ListPreservationTasks(ctx context.Context, tagIDs []string) ([]domain.PreservationTask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := idSet(tagIDs)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PreservationTask
	for _, p := range s.state.preservation {
		if _, ok := wanted[p.TagID]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDueDate.Before(out[j].NextDueDate) })
	return out, nil
}

// ListInsights returns a project's insights, newest first.
func (s *Store) ListInsights(ctx context.Context, projectID string) ([]domain.Insight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Insight
	for _, ins := range s.state.insights {
		if ins.ProjectID == projectID {
			out = append(out, ins)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListImportLogs returns a project's import logs, newest first. An empty
// projectID lists all logs.
func (s *Store) ListImportLogs(ctx context.Context, projectID string) ([]domain.ImportLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ImportLog
	for _, l := range s.state.importLogs {
		if projectID == "" || (l.ProjectID != nil && *l.ProjectID == projectID) {
			out = append(out, cloneImportLog(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Snapshot captures the full store state for durable backends.
type Snapshot struct {
	Projects     []domain.Project          `json:"projects"`
	Systems      []domain.System           `json:"systems"`
	Subsystems   []domain.Subsystem        `json:"subsystems"`
	Tags         []domain.Tag              `json:"tags"`
	ITRs         []domain.InspectionRecord `json:"itrs"`
	PunchItems   []domain.PunchItem        `json:"punch_items"`
	Preservation []domain.PreservationTask `json:"preservation_tasks"`
	Insights     []domain.Insight          `json:"insights"`
	ImportLogs   []domain.ImportLog        `json:"import_logs"`
	Users        []domain.UserProfile      `json:"user_profiles"`
}

// ExportState returns a deep snapshot of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snap Snapshot
	for _, v := range s.state.projects {
		snap.Projects = append(snap.Projects, v)
	}
	for _, v := range s.state.systems {
		snap.Systems = append(snap.Systems, v)
	}
	for _, v := range s.state.subsystems {
		snap.Subsystems = append(snap.Subsystems, v)
	}
	for _, v := range s.state.tags {
		snap.Tags = append(snap.Tags, v)
	}
	for _, v := range s.state.itrs {
		snap.ITRs = append(snap.ITRs, v)
	}
	for _, v := range s.state.punchItems {
		snap.PunchItems = append(snap.PunchItems, v)
	}
	for _, v := range s.state.preservation {
		snap.Preservation = append(snap.Preservation, v)
	}
	for _, v := range s.state.insights {
		snap.Insights = append(snap.Insights, v)
	}
	for _, v := range s.state.importLogs {
		snap.ImportLogs = append(snap.ImportLogs, cloneImportLog(v))
	}
	for _, v := range s.state.users {
		snap.Users = append(snap.Users, v)
	}
	sort.Slice(snap.Projects, func(i, j int) bool { return snap.Projects[i].ID < snap.Projects[j].ID })
	sort.Slice(snap.Systems, func(i, j int) bool { return snap.Systems[i].ID < snap.Systems[j].ID })
	sort.Slice(snap.Subsystems, func(i, j int) bool { return snap.Subsystems[i].ID < snap.Subsystems[j].ID })
	sort.Slice(snap.Tags, func(i, j int) bool { return snap.Tags[i].ID < snap.Tags[j].ID })
	sort.Slice(snap.ITRs, func(i, j int) bool { return snap.ITRs[i].ID < snap.ITRs[j].ID })
	sort.Slice(snap.PunchItems, func(i, j int) bool { return snap.PunchItems[i].ID < snap.PunchItems[j].ID })
	sort.Slice(snap.Preservation, func(i, j int) bool { return snap.Preservation[i].ID < snap.Preservation[j].ID })
	sort.Slice(snap.Insights, func(i, j int) bool { return snap.Insights[i].ID < snap.Insights[j].ID })
	sort.Slice(snap.ImportLogs, func(i, j int) bool { return snap.ImportLogs[i].ID < snap.ImportLogs[j].ID })
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	return snap
}

// ImportState replaces the current state with the snapshot contents.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newState()
	for _, v := range snap.Projects {
		next.projects[v.ID] = v
	}
	for _, v := range snap.Systems {
		next.systems[v.ID] = v
	}
	for _, v := range snap.Subsystems {
		next.subsystems[v.ID] = v
	}
	for _, v := range snap.Tags {
		next.tags[v.ID] = v
	}
	for _, v := range snap.ITRs {
		next.itrs[v.ID] = v
	}
	for _, v := range snap.PunchItems {
		next.punchItems[v.ID] = v
	}
	for _, v := range snap.Preservation {
		next.preservation[v.ID] = v
	}
	for _, v := range snap.Insights {
		next.insights[v.ID] = v
	}
	for _, v := range snap.ImportLogs {
		next.importLogs[v.ID] = cloneImportLog(v)
	}
	for _, v := range snap.Users {
		next.users[v.ID] = v
	}
	s.state = next
}
