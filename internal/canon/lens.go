package canon

// Lens is the kind-specific payload owned 1:1 by a document. Exactly one
// of the variant pointers is non-nil, matching Kind.
type Lens struct {
	Kind Kind

	Action       *ActionLens
	Protocol     *ProtocolLens
	Workflow     *WorkflowLens
	Performance  *PerformanceLens
	Conversation *ConversationLens
	Coordination *CoordinationLens
	Tool         *ToolLens
}

// ActionLens records a single tool invocation by an agent.
type ActionLens struct {
	Tool       string
	Outcome    string
	Context    map[string]string
	DurationMS int64
}

// ProtocolLens records an agent protocol and its observed effectiveness.
type ProtocolLens struct {
	Steps         []string
	Effectiveness float64
	Improvements  string
	Adaptations   []string
}

// WorkflowLens records a multi-step execution pattern.
type WorkflowLens struct {
	Pattern       string
	Coordination  string
	Outcomes      map[string]string
	Optimizations string
}

// PerformanceLens records a performance-monitor snapshot.
type PerformanceLens struct {
	Metrics       map[string]float64
	Anomalies     map[string]string
	Optimizations map[string]string
	Trend         string
}

// ConversationLens records one chat-platform message.
type ConversationLens struct {
	Channel  string
	ThreadID string
	Role     string
	Content  string
}

// CoordinationLens records a multi-agent coordination event.
type CoordinationLens struct {
	Type          string
	Participants  []string
	Payload       map[string]string
	Effectiveness float64
}

// ToolLens records an observed tool-usage pattern.
type ToolLens struct {
	Pattern       string
	SuccessRate   float64
	FailureModes  []string
	Optimizations string
}

// ParsePayload validates payload against kind's required-field schema and
// builds the typed lens. Returns a validation error before any side effect
// when a required field is missing or a field has the wrong shape.
func ParsePayload(kind Kind, payload map[string]any) (*Lens, error) {
	if err := validateRequired(kind, payload); err != nil {
		return nil, err
	}

	lens := &Lens{Kind: kind}
	var err error

	switch kind {
	case KindAction:
		a := &ActionLens{
			Tool:       getString(payload, "tool"),
			Outcome:    getString(payload, "outcome"),
			DurationMS: getInt(payload, "duration_ms"),
		}
		if a.Context, err = getStringMap(payload, "context"); err != nil {
			return nil, err
		}
		lens.Action = a

	case KindProtocol:
		p := &ProtocolLens{
			Effectiveness: getFloat(payload, "effectiveness"),
			Improvements:  getString(payload, "improvements"),
		}
		if p.Steps, err = getStringSlice(payload, "steps"); err != nil {
			return nil, err
		}
		if p.Adaptations, err = getStringSlice(payload, "adaptations"); err != nil {
			return nil, err
		}
		lens.Protocol = p

	case KindWorkflow:
		w := &WorkflowLens{
			Pattern:       getString(payload, "pattern"),
			Coordination:  getString(payload, "coordination"),
			Optimizations: getString(payload, "optimizations"),
		}
		if w.Outcomes, err = getStringMap(payload, "outcomes"); err != nil {
			return nil, err
		}
		lens.Workflow = w

	case KindPerformance:
		p := &PerformanceLens{
			Trend: getString(payload, "trend"),
		}
		if p.Metrics, err = getFloatMap(payload, "metrics"); err != nil {
			return nil, err
		}
		if p.Anomalies, err = getStringMap(payload, "anomalies"); err != nil {
			return nil, err
		}
		if p.Optimizations, err = getStringMap(payload, "optimizations"); err != nil {
			return nil, err
		}
		lens.Performance = p

	case KindConversation:
		lens.Conversation = &ConversationLens{
			Channel:  getString(payload, "channel"),
			ThreadID: getString(payload, "thread_id"),
			Role:     getString(payload, "role"),
			Content:  getString(payload, "content"),
		}

	case KindCoordination:
		c := &CoordinationLens{
			Type:          getString(payload, "type"),
			Effectiveness: getFloat(payload, "effectiveness"),
		}
		if c.Participants, err = getStringSlice(payload, "participants"); err != nil {
			return nil, err
		}
		if c.Payload, err = getStringMap(payload, "payload"); err != nil {
			return nil, err
		}
		lens.Coordination = c

	case KindTool:
		tl := &ToolLens{
			Pattern:       getString(payload, "pattern"),
			SuccessRate:   getFloat(payload, "success_rate"),
			Optimizations: getString(payload, "optimizations"),
		}
		if tl.FailureModes, err = getStringSlice(payload, "failure_modes"); err != nil {
			return nil, err
		}
		lens.Tool = tl

	default:
		_, err := ParseKind(string(kind))
		return nil, err
	}

	return lens, nil
}

// SuccessSignal extracts a 0..1 success weight from the lens, used by
// expertise and project-pattern ranking. Returns 0.5 when the lens carries
// no outcome information.
func (l *Lens) SuccessSignal() float64 {
	switch l.Kind {
	case KindAction:
		switch l.Action.Outcome {
		case "success", "succeeded", "ok", "passed":
			return 1.0
		case "failure", "failed", "error":
			return 0.0
		}
		return 0.5
	case KindProtocol:
		return clamp01(l.Protocol.Effectiveness)
	case KindCoordination:
		return clamp01(l.Coordination.Effectiveness)
	case KindTool:
		return clamp01(l.Tool.SuccessRate)
	}
	return 0.5
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
