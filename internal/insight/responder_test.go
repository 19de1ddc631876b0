package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"comptrack/internal/infra/persistence/memory"
	"comptrack/pkg/domain"
)

type captureRecorder struct {
	insights []domain.Insight
	fail     bool
}

func (c *captureRecorder) RecordInsight(_ context.Context, ins domain.Insight) (domain.Insight, error) {
	if c.fail {
		return domain.Insight{}, errors.New("store down")
	}
	c.insights = append(c.insights, ins)
	return ins, nil
}

func seedInsightData(t *testing.T) (*memory.Store, domain.System) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	var system domain.System
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(domain.Project{Name: "Campo Sur", Code: "CS-01"})
		if err != nil {
			return err
		}
		system, err = tx.CreateSystem(domain.System{ProjectID: project.ID, Code: "SYS-700", Name: "Inyección", Status: domain.SystemStatusInProgress})
		if err != nil {
			return err
		}
		sub, err := tx.CreateSubsystem(domain.Subsystem{SystemID: system.ID, Code: "SS-700-01", Name: "Bombas", Status: domain.SystemStatusInProgress})
		if err != nil {
			return err
		}

		itrs := []domain.InspectionRecord{
			{SubsystemID: sub.ID, ITRCode: "ITR-A-1", ITRType: domain.ITRTypeA, Status: domain.ITRStatusCompleted, Discipline: domain.DisciplineMechanical},
			{SubsystemID: sub.ID, ITRCode: "ITR-A-2", ITRType: domain.ITRTypeA, Status: domain.ITRStatusInProgress, Discipline: domain.DisciplineMechanical},
			{SubsystemID: sub.ID, ITRCode: "ITR-B-1", ITRType: domain.ITRTypeB, Status: domain.ITRStatusNotStarted, Discipline: domain.DisciplineElectrical},
			{SubsystemID: sub.ID, ITRCode: "ITR-B-2", ITRType: domain.ITRTypeB, Status: domain.ITRStatusNotStarted, Discipline: domain.DisciplineInstrumentation},
		}
		for _, itr := range itrs {
			if _, err := tx.CreateInspectionRecord(itr); err != nil {
				return err
			}
		}

		due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		_, err = tx.CreatePunchItem(domain.PunchItem{
			SubsystemID: sub.ID,
			Description: "cable sin megar",
			Category:    domain.PunchCategoryA,
			Status:      domain.PunchStatusOpen,
			DueDate:     &due,
		})
		if err != nil {
			return err
		}

		tag, err := tx.CreateTag(domain.Tag{SubsystemID: sub.ID, TagCode: "P-7001"})
		if err != nil {
			return err
		}
		_, err = tx.CreatePreservationTask(domain.PreservationTask{
			TagID:         tag.ID,
			Description:   "rotación de eje",
			FrequencyDays: 30,
			NextDueDate:   time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC),
			Status:        domain.PreservationStatusOverdue,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store, system
}

func TestContextBlockFormat(t *testing.T) {
	store, system := seedInsightData(t)
	r := NewResponder(store, &captureRecorder{}, RuleBased{}, nil, nil)

	facts, err := r.BuildFacts(context.Background(), system.ID)
	if err != nil {
		t.Fatalf("build facts: %v", err)
	}
	got := facts.ContextBlock()

	wantLines := []string{
		"Proyecto: Campo Sur (CS-01)",
		"Sistema: Inyección (SYS-700)",
		"Estado del sistema: IN_PROGRESS",
		"- ITR A: 1 de 2 completados (50%)",
		"- ITR B: 0 de 2 completados (0%)",
		"  - ELEC: 1",
		"  - INST: 1",
		"- cable sin megar (vence: 2026-08-01)",
		"- Tag P-7001: rotación de eje (vencida desde 2026-07-20)",
		"- SS-700-01: Bombas (IN_PROGRESS)",
	}
	for _, line := range wantLines {
		if !strings.Contains(got, line) {
			t.Errorf("context block missing %q\n%s", line, got)
		}
	}
}

func TestContextBlockDisciplineOrderFollowsRecords(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	var system domain.System
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(domain.Project{Name: "p", Code: "P"})
		if err != nil {
			return err
		}
		system, err = tx.CreateSystem(domain.System{ProjectID: project.ID, Code: "S", Name: "s"})
		if err != nil {
			return err
		}
		sub, err := tx.CreateSubsystem(domain.Subsystem{SystemID: system.ID, Code: "S-01", Name: "ss"})
		if err != nil {
			return err
		}
		// PIPE comes first by record order even though ELEC sorts before it.
		itrs := []domain.InspectionRecord{
			{SubsystemID: sub.ID, ITRCode: "B-001", ITRType: domain.ITRTypeB, Status: domain.ITRStatusNotStarted, Discipline: domain.DisciplinePiping},
			{SubsystemID: sub.ID, ITRCode: "B-002", ITRType: domain.ITRTypeB, Status: domain.ITRStatusNotStarted, Discipline: domain.DisciplineElectrical},
			{SubsystemID: sub.ID, ITRCode: "B-003", ITRType: domain.ITRTypeB, Status: domain.ITRStatusNotStarted, Discipline: domain.DisciplinePiping},
		}
		for _, itr := range itrs {
			if _, err := tx.CreateInspectionRecord(itr); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := NewResponder(store, &captureRecorder{}, RuleBased{}, nil, nil)
	facts, err := r.BuildFacts(ctx, system.ID)
	if err != nil {
		t.Fatalf("build facts: %v", err)
	}
	want := []DisciplineCount{
		{Discipline: domain.DisciplinePiping, Pending: 2},
		{Discipline: domain.DisciplineElectrical, Pending: 1},
	}
	if len(facts.ITRBPendingByDiscipline) != len(want) {
		t.Fatalf("pending by discipline = %+v, want %+v", facts.ITRBPendingByDiscipline, want)
	}
	for i, dc := range want {
		if facts.ITRBPendingByDiscipline[i] != dc {
			t.Fatalf("pending[%d] = %+v, want %+v", i, facts.ITRBPendingByDiscipline[i], dc)
		}
	}

	got := facts.ContextBlock()
	pipe := strings.Index(got, "  - PIPE: 2")
	elec := strings.Index(got, "  - ELEC: 1")
	if pipe < 0 || elec < 0 {
		t.Fatalf("missing discipline lines:\n%s", got)
	}
	if pipe > elec {
		t.Errorf("PIPE must render before ELEC (first occurrence order):\n%s", got)
	}
}

func TestContextBlockEmptySections(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	var system domain.System
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		project, err := tx.CreateProject(domain.Project{Name: "p", Code: "P"})
		if err != nil {
			return err
		}
		system, err = tx.CreateSystem(domain.System{ProjectID: project.ID, Code: "S", Name: "s"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := NewResponder(store, &captureRecorder{}, RuleBased{}, nil, nil)
	facts, err := r.BuildFacts(ctx, system.ID)
	if err != nil {
		t.Fatalf("build facts: %v", err)
	}
	got := facts.ContextBlock()
	if !strings.Contains(got, "No hay punch categoría A abiertos") {
		t.Errorf("missing empty punch placeholder\n%s", got)
	}
	if !strings.Contains(got, "No hay preservaciones vencidas") {
		t.Errorf("missing empty preservation placeholder\n%s", got)
	}
	if !strings.Contains(got, "- ITR A: 0 de 0 completados (0%)") {
		t.Errorf("zero totals must render 0%%\n%s", got)
	}
}

func TestRuleBasedRouting(t *testing.T) {
	facts := Facts{
		ITRATotal:     2,
		ITRACompleted: 1,
		ITRBTotal:     2,
		ITRBCompleted: 0,
		OpenPunchA:    []domain.PunchItem{{Description: "x"}},
		OverduePreservation: []OverdueTask{
			{TagCode: "T-1"},
		},
	}

	cases := []struct {
		name     string
		question string
		want     string
	}{
		{"readiness", "¿Qué falta para la energización?", "⚠️ El sistema NO está listo para energización:"},
		{"readiness wins over punch", "¿Está listo? ¿y los punch?", "NO está listo para energización"},
		{"itr status", "¿Cómo van los ITR?", "📊 Estado de ITRs:"},
		{"punch", "Resumen de punch", "📋 Punch items críticos:"},
		{"preservation", "¿Preservaciones pendientes?", "🔧 Preservación:"},
		{"generic", "Dame un resumen", "Resumen general del sistema:"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RuleBased{}.Answer(context.Background(), tc.question, facts)
			if err != nil {
				t.Fatalf("answer: %v", err)
			}
			if !strings.HasPrefix(got, offlineBanner) {
				t.Errorf("missing offline banner:\n%s", got)
			}
			if !strings.Contains(got, tc.want) {
				t.Errorf("expected %q in:\n%s", tc.want, got)
			}
		})
	}
}

func TestRuleBasedReadinessAllClear(t *testing.T) {
	facts := Facts{ITRBTotal: 3, ITRBCompleted: 3}
	got, err := RuleBased{}.Answer(context.Background(), "¿listo para energizar?", facts)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(got, "✅ El sistema cumple requisitos básicos para energización") {
		t.Errorf("expected all-clear message:\n%s", got)
	}
}

func TestDelegatedStrategyCallsProvider(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "respuesta del modelo"}},
			},
		})
	}))
	defer server.Close()

	strategy := NewDelegated(NewChatClient(server.URL, "secret", ""))
	got, err := strategy.Answer(context.Background(), "¿avance?", Facts{})
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if got != "respuesta del modelo" {
		t.Fatalf("unexpected answer %q", got)
	}
	if gotReq.Model != defaultModel {
		t.Errorf("model = %q, want %q", gotReq.Model, defaultModel)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("unexpected message layout: %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "Pregunta del usuario: ¿avance?") {
		t.Errorf("user prompt missing question: %q", gotReq.Messages[1].Content)
	}
}

func TestDelegatedProviderFailureIsHard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	store, system := seedInsightData(t)
	rec := &captureRecorder{}
	strategy := NewDelegated(NewChatClient(server.URL, "secret", ""))
	r := NewResponder(store, rec, strategy, nil, nil)

	_, err := r.AnswerQuestion(context.Background(), Query{Question: "¿listo?", SystemID: system.ID})
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry status: %v", err)
	}
	if len(rec.insights) != 0 {
		t.Error("no insight must be stored on provider failure")
	}
}

func TestAnswerQuestionPersistsInsight(t *testing.T) {
	store, system := seedInsightData(t)
	rec := &captureRecorder{}
	r := NewResponder(store, rec, RuleBased{}, nil, nil)

	long := strings.Repeat("¿", 150)
	answer, err := r.AnswerQuestion(context.Background(), Query{Question: long, SystemID: system.ID})
	if err != nil {
		t.Fatalf("answer question: %v", err)
	}
	if answer.Response == "" || answer.Context == "" {
		t.Fatal("expected populated answer")
	}
	if len(rec.insights) != 1 {
		t.Fatalf("expected 1 stored insight, got %d", len(rec.insights))
	}
	ins := rec.insights[0]
	if got := len([]rune(ins.Title)); got != titleMaxRunes {
		t.Fatalf("title truncated to %d runes, want %d", got, titleMaxRunes)
	}
	if ins.SystemID == nil || *ins.SystemID != system.ID {
		t.Fatalf("insight system id not set: %+v", ins)
	}
	if ins.ProjectID != system.ProjectID {
		t.Fatalf("insight project id = %q, want %q", ins.ProjectID, system.ProjectID)
	}
}

func TestAnswerQuestionSurvivesPersistFailure(t *testing.T) {
	store, system := seedInsightData(t)
	r := NewResponder(store, &captureRecorder{fail: true}, RuleBased{}, nil, nil)

	answer, err := r.AnswerQuestion(context.Background(), Query{Question: "resumen", SystemID: system.ID})
	if err != nil {
		t.Fatalf("answer must survive persist failure: %v", err)
	}
	if answer.Response == "" {
		t.Fatal("expected answer despite persist failure")
	}
}

func TestAnswerQuestionWithoutRecorder(t *testing.T) {
	store, system := seedInsightData(t)
	r := NewResponder(store, nil, RuleBased{}, nil, nil)

	answer, err := r.AnswerQuestion(context.Background(), Query{Question: "resumen", SystemID: system.ID})
	if err != nil {
		t.Fatalf("answer without recorder: %v", err)
	}
	if answer.Response == "" {
		t.Fatal("expected answer despite missing recorder")
	}
}

func TestAnswerQuestionUnknownSystem(t *testing.T) {
	store, _ := seedInsightData(t)
	r := NewResponder(store, &captureRecorder{}, RuleBased{}, nil, nil)

	_, err := r.AnswerQuestion(context.Background(), Query{Question: "resumen", SystemID: "missing"})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectStrategy(t *testing.T) {
	if got := SelectStrategy("http://x", "key", "").Name(); got != "delegated" {
		t.Fatalf("with key: %q", got)
	}
	if got := SelectStrategy("http://x", "", "").Name(); got != "rule_based" {
		t.Fatalf("without key: %q", got)
	}
}
