package insight

import (
	"context"
	"fmt"
	"strings"
)

const systemPrompt = "Eres un asistente experto en gestión de completions para proyectos Oil & Gas. " +
	"Analizas ITRs, punch lists y preservación de equipos. Proporciona respuestas claras, " +
	"concisas y accionables basadas en los datos proporcionados."

// offlineBanner prefixes every rule-based answer so readers know no external
// model was involved.
const offlineBanner = "**[Modo sin IA externa - Respuesta basada en datos estructurados]**\n\n"

// Strategy produces an answer for a question given the assembled facts.
type Strategy interface {
	Name() string
	Answer(ctx context.Context, question string, facts Facts) (string, error)
}

// Delegated forwards the question and context block to a chat-completions
// provider. Provider failures surface to the caller unchanged; there is no
// fallback to the rule-based responder.
type Delegated struct {
	client *ChatClient
}

// NewDelegated wraps client as a Strategy.
func NewDelegated(client *ChatClient) *Delegated {
	return &Delegated{client: client}
}

func (d *Delegated) Name() string { return "delegated" }

func (d *Delegated) Answer(ctx context.Context, question string, facts Facts) (string, error) {
	user := fmt.Sprintf("Contexto del proyecto:\n%s\n\nPregunta del usuario: %s", facts.ContextBlock(), question)
	return d.client.Complete(ctx, systemPrompt, user)
}

// RuleBased answers from the facts alone using keyword routing. Earlier
// branches win: readiness questions take priority over topic keywords that
// may also appear in the question.
type RuleBased struct{}

func (RuleBased) Name() string { return "rule_based" }

func (RuleBased) Answer(_ context.Context, question string, facts Facts) (string, error) {
	var b strings.Builder
	b.WriteString(offlineBanner)

	lower := strings.ToLower(question)
	openA := len(facts.OpenPunchA)
	pendingB := facts.ITRBTotal - facts.ITRBCompleted

	switch {
	case strings.Contains(lower, "energización") || strings.Contains(lower, "listo"):
		if openA > 0 {
			b.WriteString("⚠️ El sistema NO está listo para energización:\n")
			fmt.Fprintf(&b, "- Hay %d punch items categoría A pendientes\n", openA)
		}
		if pendingB > 0 {
			fmt.Fprintf(&b, "- Faltan %d ITR B por completar\n", pendingB)
		}
		if openA == 0 && pendingB == 0 {
			b.WriteString("✅ El sistema cumple requisitos básicos para energización (todos los ITR B completados y sin punch A)\n")
		}
	case strings.Contains(lower, "itr"):
		b.WriteString("📊 Estado de ITRs:\n")
		fmt.Fprintf(&b, "- ITR A: %d/%d completados (%d%%)\n", facts.ITRACompleted, facts.ITRATotal, percent(facts.ITRACompleted, facts.ITRATotal))
		fmt.Fprintf(&b, "- ITR B: %d/%d completados (%d%%)\n", facts.ITRBCompleted, facts.ITRBTotal, percent(facts.ITRBCompleted, facts.ITRBTotal))
	case strings.Contains(lower, "punch"):
		b.WriteString("📋 Punch items críticos:\n")
		if openA > 0 {
			fmt.Fprintf(&b, "- %d punch categoría A abiertos que requieren atención inmediata\n", openA)
		} else {
			b.WriteString("- No hay punch categoría A abiertos\n")
		}
	case strings.Contains(lower, "preserv"):
		b.WriteString("🔧 Preservación:\n")
		if len(facts.OverduePreservation) > 0 {
			fmt.Fprintf(&b, "- %d tareas de preservación vencidas que requieren atención\n", len(facts.OverduePreservation))
		} else {
			b.WriteString("- No hay tareas de preservación vencidas\n")
		}
	default:
		b.WriteString("Resumen general del sistema:\n")
		fmt.Fprintf(&b, "- ITR A: %d%% completado\n", percent(facts.ITRACompleted, facts.ITRATotal))
		fmt.Fprintf(&b, "- ITR B: %d%% completado\n", percent(facts.ITRBCompleted, facts.ITRBTotal))
		fmt.Fprintf(&b, "- Punch A abiertos: %d\n", openA)
		fmt.Fprintf(&b, "- Preservaciones vencidas: %d\n", len(facts.OverduePreservation))
	}

	return b.String(), nil
}

// SelectStrategy picks the delegated responder when an API key is present
// and the rule-based one otherwise. The choice is made once at startup, not
// per request.
func SelectStrategy(baseURL, apiKey, model string) Strategy {
	if apiKey != "" {
		return NewDelegated(NewChatClient(baseURL, apiKey, model))
	}
	return RuleBased{}
}
