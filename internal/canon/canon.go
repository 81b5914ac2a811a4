package canon

import (
	"strconv"
	"strings"
)

// Canonicalize validates payload against kind's schema and renders the
// deterministic canonical text used for embedding and inspection. The
// transform is pure: identical (kind, payload) input always yields
// identical output.
func Canonicalize(kind Kind, payload map[string]any) (string, error) {
	lens, err := ParsePayload(kind, payload)
	if err != nil {
		return "", err
	}
	return Text(lens), nil
}

// Text renders a typed lens to canonical text. Every schema field is
// rendered in a fixed order; missing optional fields render as empty
// values so output shape never depends on payload completeness.
func Text(lens *Lens) string {
	var b strings.Builder
	writeField(&b, "kind", string(lens.Kind))

	switch lens.Kind {
	case KindAction:
		a := lens.Action
		writeField(&b, "tool", a.Tool)
		writeField(&b, "outcome", a.Outcome)
		writeField(&b, "duration_ms", strconv.FormatInt(a.DurationMS, 10))
		writeStringMap(&b, "context", a.Context)

	case KindProtocol:
		p := lens.Protocol
		writeList(&b, "steps", p.Steps)
		writeField(&b, "effectiveness", formatFloat(p.Effectiveness))
		writeField(&b, "improvements", p.Improvements)
		writeList(&b, "adaptations", p.Adaptations)

	case KindWorkflow:
		w := lens.Workflow
		writeField(&b, "pattern", w.Pattern)
		writeField(&b, "coordination", w.Coordination)
		writeStringMap(&b, "outcomes", w.Outcomes)
		writeField(&b, "optimizations", w.Optimizations)

	case KindPerformance:
		p := lens.Performance
		writeFloatMap(&b, "metrics", p.Metrics)
		writeStringMap(&b, "anomalies", p.Anomalies)
		writeStringMap(&b, "optimizations", p.Optimizations)
		writeField(&b, "trend", p.Trend)

	case KindConversation:
		c := lens.Conversation
		writeField(&b, "channel", c.Channel)
		writeField(&b, "thread_id", c.ThreadID)
		writeField(&b, "role", c.Role)
		writeField(&b, "content", c.Content)

	case KindCoordination:
		c := lens.Coordination
		writeField(&b, "type", c.Type)
		writeList(&b, "participants", c.Participants)
		writeStringMap(&b, "payload", c.Payload)
		writeField(&b, "effectiveness", formatFloat(c.Effectiveness))

	case KindTool:
		tl := lens.Tool
		writeField(&b, "pattern", tl.Pattern)
		writeField(&b, "success_rate", formatFloat(tl.SuccessRate))
		writeList(&b, "failure_modes", tl.FailureModes)
		writeField(&b, "optimizations", tl.Optimizations)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Summary renders a one-line human summary of the lens for result display.
func Summary(lens *Lens) string {
	switch lens.Kind {
	case KindAction:
		return "action " + lens.Action.Tool + " -> " + lens.Action.Outcome
	case KindProtocol:
		return "protocol with " + strconv.Itoa(len(lens.Protocol.Steps)) + " steps"
	case KindWorkflow:
		return "workflow " + lens.Workflow.Pattern
	case KindPerformance:
		return "performance snapshot, trend " + valueOrDash(lens.Performance.Trend)
	case KindConversation:
		return "conversation in " + lens.Conversation.Channel
	case KindCoordination:
		return "coordination " + lens.Coordination.Type +
			" (" + strconv.Itoa(len(lens.Coordination.Participants)) + " participants)"
	case KindTool:
		return "tool pattern " + lens.Tool.Pattern
	}
	return string(lens.Kind)
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

func writeList(b *strings.Builder, key string, values []string) {
	writeField(b, key, strings.Join(values, "; "))
}

func writeStringMap(b *strings.Builder, key string, m map[string]string) {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, k+"="+m[k])
	}
	writeField(b, key, strings.Join(parts, " "))
}

func writeFloatMap(b *strings.Builder, key string, m map[string]float64) {
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, k+"="+formatFloat(m[k]))
	}
	writeField(b, key, strings.Join(parts, " "))
}
