// Package canon defines the document kinds, their kind-specific lens
// payloads, and the deterministic canonicalization used as embedding input.
package canon

import (
	"fmt"
	"sort"

	"github.com/Dadudekc/swarmmem/internal/errors"
)

// Kind discriminates the lens payload attached to a document.
type Kind string

const (
	KindAction       Kind = "action"
	KindProtocol     Kind = "protocol"
	KindWorkflow     Kind = "workflow"
	KindPerformance  Kind = "performance"
	KindConversation Kind = "conversation"
	KindCoordination Kind = "coordination"
	KindTool         Kind = "tool"
)

// Kinds lists all valid kinds in stable order.
var Kinds = []Kind{
	KindAction,
	KindProtocol,
	KindWorkflow,
	KindPerformance,
	KindConversation,
	KindCoordination,
	KindTool,
}

// requiredFields maps each kind to the payload fields that must be present.
var requiredFields = map[Kind][]string{
	KindAction:       {"tool", "outcome"},
	KindProtocol:     {"steps"},
	KindWorkflow:     {"pattern"},
	KindPerformance:  {"metrics"},
	KindConversation: {"channel", "content"},
	KindCoordination: {"type", "participants"},
	KindTool:         {"pattern"},
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	for _, valid := range Kinds {
		if k == valid {
			return k, nil
		}
	}
	return "", errors.New(errors.ErrCodeUnknownKind,
		fmt.Sprintf("unknown document kind %q", s), nil)
}

// RequiredFields returns the required payload fields for a kind.
func RequiredFields(kind Kind) []string {
	return requiredFields[kind]
}

// validateRequired checks that every required field for kind is present
// and non-empty in payload. Runs before anything is persisted.
func validateRequired(kind Kind, payload map[string]any) error {
	for _, field := range requiredFields[kind] {
		v, ok := payload[field]
		if !ok || v == nil {
			return errors.MissingField(string(kind), field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return errors.MissingField(string(kind), field)
		}
	}
	return nil
}

// payload accessors. JSON-decoded payloads carry float64 numbers and
// []any / map[string]any collections; these coerce without losing data.

func getString(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func getInt(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func getStringSlice(payload map[string]any, key string) ([]string, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch vv := v.(type) {
	case []string:
		out := make([]string, len(vv))
		copy(out, vv)
		return out, nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidField,
					fmt.Sprintf("field %q must be a list of strings", key), nil)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidField,
		fmt.Sprintf("field %q must be a list of strings", key), nil)
}

func getStringMap(payload map[string]any, key string) (map[string]string, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch vv := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(vv))
		for k, e := range vv {
			out[k] = e
		}
		return out, nil
	case map[string]any:
		out := make(map[string]string, len(vv))
		for k, e := range vv {
			out[k] = fmt.Sprint(e)
		}
		return out, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidField,
		fmt.Sprintf("field %q must be a string map", key), nil)
}

func getFloatMap(payload map[string]any, key string) (map[string]float64, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch vv := v.(type) {
	case map[string]float64:
		out := make(map[string]float64, len(vv))
		for k, e := range vv {
			out[k] = e
		}
		return out, nil
	case map[string]any:
		out := make(map[string]float64, len(vv))
		for k, e := range vv {
			switch n := e.(type) {
			case float64:
				out[k] = n
			case int:
				out[k] = float64(n)
			case int64:
				out[k] = float64(n)
			default:
				return nil, errors.New(errors.ErrCodeInvalidField,
					fmt.Sprintf("field %q must be a numeric map", key), nil)
			}
		}
		return out, nil
	}
	return nil, errors.New(errors.ErrCodeInvalidField,
		fmt.Sprintf("field %q must be a numeric map", key), nil)
}

// sortedKeys returns the keys of m in lexicographic order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
