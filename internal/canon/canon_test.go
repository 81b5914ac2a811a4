package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dadudekc/swarmmem/internal/errors"
)

func actionPayload() map[string]any {
	return map[string]any{
		"tool":        "git",
		"outcome":     "success",
		"duration_ms": float64(120),
		"context":     map[string]any{"branch": "main", "repo": "core"},
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		parsed, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("journal")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnknownKind, errors.GetCode(err))
}

func TestCanonicalize_Deterministic(t *testing.T) {
	// Two calls on identical input return identical output
	for _, kind := range Kinds {
		payload := payloadFor(kind)
		a, err := Canonicalize(kind, payload)
		require.NoError(t, err, "kind %s", kind)
		b, err := Canonicalize(kind, payload)
		require.NoError(t, err)
		assert.Equal(t, a, b, "kind %s must canonicalize deterministically", kind)
		assert.NotEmpty(t, a)
	}
}

func TestCanonicalize_MapOrderIndependent(t *testing.T) {
	p1 := map[string]any{
		"tool": "pytest", "outcome": "failure",
		"context": map[string]any{"a": "1", "b": "2", "c": "3"},
	}
	p2 := map[string]any{
		"context": map[string]any{"c": "3", "b": "2", "a": "1"},
		"outcome": "failure", "tool": "pytest",
	}

	a, err := Canonicalize(KindAction, p1)
	require.NoError(t, err)
	b, err := Canonicalize(KindAction, p2)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalize_MissingOptionalRenderedStable(t *testing.T) {
	full, err := Canonicalize(KindAction, actionPayload())
	require.NoError(t, err)

	bare, err := Canonicalize(KindAction, map[string]any{"tool": "git", "outcome": "success"})
	require.NoError(t, err)

	// Optional fields render as empty values, never vanish
	assert.Contains(t, bare, "duration_ms: 0")
	assert.Contains(t, bare, "context: ")
	assert.NotEqual(t, full, bare)
}

func TestParsePayload_MissingRequiredField(t *testing.T) {
	tests := []struct {
		kind    Kind
		payload map[string]any
	}{
		{KindAction, map[string]any{"tool": "git"}},
		{KindAction, map[string]any{"outcome": "success"}},
		{KindAction, map[string]any{"tool": "", "outcome": "success"}},
		{KindProtocol, map[string]any{}},
		{KindConversation, map[string]any{"channel": "ops"}},
		{KindCoordination, map[string]any{"type": "handoff"}},
		{KindTool, map[string]any{}},
	}

	for _, tt := range tests {
		_, err := ParsePayload(tt.kind, tt.payload)
		require.Error(t, err, "kind %s payload %v", tt.kind, tt.payload)
		assert.True(t, errors.IsValidation(err))
	}
}

func TestParsePayload_WrongFieldShape(t *testing.T) {
	_, err := ParsePayload(KindProtocol, map[string]any{"steps": "not-a-list"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidField, errors.GetCode(err))

	_, err = ParsePayload(KindPerformance, map[string]any{
		"metrics": map[string]any{"latency": "fast"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidField, errors.GetCode(err))
}

func TestParsePayload_TypedLens(t *testing.T) {
	lens, err := ParsePayload(KindAction, actionPayload())
	require.NoError(t, err)

	require.NotNil(t, lens.Action)
	assert.Equal(t, "git", lens.Action.Tool)
	assert.Equal(t, "success", lens.Action.Outcome)
	assert.Equal(t, int64(120), lens.Action.DurationMS)
	assert.Equal(t, "main", lens.Action.Context["branch"])
	assert.Nil(t, lens.Protocol)
}

func TestSuccessSignal(t *testing.T) {
	tests := []struct {
		name string
		lens *Lens
		want float64
	}{
		{"action success", &Lens{Kind: KindAction, Action: &ActionLens{Outcome: "success"}}, 1.0},
		{"action failure", &Lens{Kind: KindAction, Action: &ActionLens{Outcome: "failure"}}, 0.0},
		{"action unknown outcome", &Lens{Kind: KindAction, Action: &ActionLens{Outcome: "timeout"}}, 0.5},
		{"protocol effectiveness", &Lens{Kind: KindProtocol, Protocol: &ProtocolLens{Effectiveness: 0.8}}, 0.8},
		{"coordination clamped", &Lens{Kind: KindCoordination, Coordination: &CoordinationLens{Effectiveness: 1.7}}, 1.0},
		{"tool success rate", &Lens{Kind: KindTool, Tool: &ToolLens{SuccessRate: 0.9}}, 0.9},
		{"no signal", &Lens{Kind: KindConversation, Conversation: &ConversationLens{}}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.lens.SuccessSignal(), 1e-9)
		})
	}
}

func TestSummary(t *testing.T) {
	lens, err := ParsePayload(KindAction, actionPayload())
	require.NoError(t, err)
	assert.Equal(t, "action git -> success", Summary(lens))
}

// payloadFor returns a minimal valid payload for each kind.
func payloadFor(kind Kind) map[string]any {
	switch kind {
	case KindAction:
		return actionPayload()
	case KindProtocol:
		return map[string]any{
			"steps":         []any{"claim task", "run checks", "report"},
			"effectiveness": 0.75,
		}
	case KindWorkflow:
		return map[string]any{
			"pattern":  "fan-out review",
			"outcomes": map[string]any{"merged": "yes"},
		}
	case KindPerformance:
		return map[string]any{
			"metrics": map[string]any{"latency_ms": 41.5, "throughput": float64(200)},
			"trend":   "improving",
		}
	case KindConversation:
		return map[string]any{
			"channel": "swarm-ops",
			"content": "cycle complete, handing off",
			"role":    "captain",
		}
	case KindCoordination:
		return map[string]any{
			"type":         "handoff",
			"participants": []any{"agent-1", "agent-4"},
		}
	case KindTool:
		return map[string]any{
			"pattern":      "retry with backoff on flaky network calls",
			"success_rate": 0.92,
		}
	}
	return nil
}
