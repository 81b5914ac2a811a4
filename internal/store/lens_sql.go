package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Dadudekc/swarmmem/internal/canon"
)

// Per-kind lens DDL. Every lens table is owned 1:1 by its document row and
// cascades on delete. Multi-value fields are stored as JSON text.
var lensSchemas = []string{
	`CREATE TABLE IF NOT EXISTS lens_action (
		doc_id      TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		tool        TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		context     TEXT NOT NULL DEFAULT '{}',
		duration_ms INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS lens_protocol (
		doc_id        TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		steps         TEXT NOT NULL DEFAULT '[]',
		effectiveness REAL NOT NULL DEFAULT 0,
		improvements  TEXT NOT NULL DEFAULT '',
		adaptations   TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS lens_workflow (
		doc_id        TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		pattern       TEXT NOT NULL,
		coordination  TEXT NOT NULL DEFAULT '',
		outcomes      TEXT NOT NULL DEFAULT '{}',
		optimizations TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS lens_performance (
		doc_id        TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		metrics       TEXT NOT NULL DEFAULT '{}',
		anomalies     TEXT NOT NULL DEFAULT '{}',
		optimizations TEXT NOT NULL DEFAULT '{}',
		trend         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS lens_conversation (
		doc_id    TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		channel   TEXT NOT NULL,
		thread_id TEXT NOT NULL DEFAULT '',
		role      TEXT NOT NULL DEFAULT '',
		content   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lens_coordination (
		doc_id        TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		coord_type    TEXT NOT NULL,
		participants  TEXT NOT NULL DEFAULT '[]',
		payload       TEXT NOT NULL DEFAULT '{}',
		effectiveness REAL NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS lens_tool (
		doc_id        TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
		pattern       TEXT NOT NULL,
		success_rate  REAL NOT NULL DEFAULT 0,
		failure_modes TEXT NOT NULL DEFAULT '[]',
		optimizations TEXT NOT NULL DEFAULT ''
	)`,
}

// insertLens writes the kind-specific lens row within the document's
// insert transaction.
func insertLens(ctx context.Context, tx *sql.Tx, docID string, lens *canon.Lens) error {
	switch lens.Kind {
	case canon.KindAction:
		a := lens.Action
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lens_action (doc_id, tool, outcome, context, duration_ms)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, a.Tool, a.Outcome, encodeJSON(a.Context), a.DurationMS)
		return err

	case canon.KindProtocol:
		p := lens.Protocol
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lens_protocol (doc_id, steps, effectiveness, improvements, adaptations)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, encodeJSON(p.Steps), p.Effectiveness, p.Improvements, encodeJSON(p.Adaptations))
		return err

	case canon.KindWorkflow:
		w := lens.Workflow
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lens_workflow (doc_id, pattern, coordination, outcomes, optimizations)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, w.Pattern, w.Coordination, encodeJSON(w.Outcomes), w.Optimizations)
		return err

	case canon.KindPerformance:
		p := lens.Performance
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lens_performance (doc_id, metrics, anomalies, optimizations, trend)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, encodeJSON(p.Metrics), encodeJSON(p.Anomalies), encodeJSON(p.Optimizations), p.Trend)
		return err

	case canon.KindConversation:
		c := lens.Conversation
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lens_conversation (doc_id, channel, thread_id, role, content)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, c.Channel, c.ThreadID, c.Role, c.Content)
		return err

	case canon.KindCoordination:
		c := lens.Coordination
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lens_coordination (doc_id, coord_type, participants, payload, effectiveness)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, c.Type, encodeJSON(c.Participants), encodeJSON(c.Payload), c.Effectiveness)
		return err

	case canon.KindTool:
		t := lens.Tool
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lens_tool (doc_id, pattern, success_rate, failure_modes, optimizations)
			 VALUES (?, ?, ?, ?, ?)`,
			docID, t.Pattern, t.SuccessRate, encodeJSON(t.FailureModes), t.Optimizations)
		return err
	}

	return fmt.Errorf("no lens table for kind %q", lens.Kind)
}

// loadLens reads the kind-specific lens row for a document.
func (s *SQLiteStore) loadLens(ctx context.Context, docID string, kind canon.Kind) (*canon.Lens, error) {
	lens := &canon.Lens{Kind: kind}

	switch kind {
	case canon.KindAction:
		a := &canon.ActionLens{}
		var contextJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT tool, outcome, context, duration_ms FROM lens_action WHERE doc_id = ?`,
			docID).Scan(&a.Tool, &a.Outcome, &contextJSON, &a.DurationMS)
		if err != nil {
			return nil, err
		}
		a.Context = decodeStringMap(contextJSON)
		lens.Action = a

	case canon.KindProtocol:
		p := &canon.ProtocolLens{}
		var stepsJSON, adaptationsJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT steps, effectiveness, improvements, adaptations FROM lens_protocol WHERE doc_id = ?`,
			docID).Scan(&stepsJSON, &p.Effectiveness, &p.Improvements, &adaptationsJSON)
		if err != nil {
			return nil, err
		}
		p.Steps = decodeStringSlice(stepsJSON)
		p.Adaptations = decodeStringSlice(adaptationsJSON)
		lens.Protocol = p

	case canon.KindWorkflow:
		w := &canon.WorkflowLens{}
		var outcomesJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT pattern, coordination, outcomes, optimizations FROM lens_workflow WHERE doc_id = ?`,
			docID).Scan(&w.Pattern, &w.Coordination, &outcomesJSON, &w.Optimizations)
		if err != nil {
			return nil, err
		}
		w.Outcomes = decodeStringMap(outcomesJSON)
		lens.Workflow = w

	case canon.KindPerformance:
		p := &canon.PerformanceLens{}
		var metricsJSON, anomaliesJSON, optimizationsJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT metrics, anomalies, optimizations, trend FROM lens_performance WHERE doc_id = ?`,
			docID).Scan(&metricsJSON, &anomaliesJSON, &optimizationsJSON, &p.Trend)
		if err != nil {
			return nil, err
		}
		p.Metrics = decodeFloatMap(metricsJSON)
		p.Anomalies = decodeStringMap(anomaliesJSON)
		p.Optimizations = decodeStringMap(optimizationsJSON)
		lens.Performance = p

	case canon.KindConversation:
		c := &canon.ConversationLens{}
		err := s.db.QueryRowContext(ctx,
			`SELECT channel, thread_id, role, content FROM lens_conversation WHERE doc_id = ?`,
			docID).Scan(&c.Channel, &c.ThreadID, &c.Role, &c.Content)
		if err != nil {
			return nil, err
		}
		lens.Conversation = c

	case canon.KindCoordination:
		c := &canon.CoordinationLens{}
		var participantsJSON, payloadJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT coord_type, participants, payload, effectiveness FROM lens_coordination WHERE doc_id = ?`,
			docID).Scan(&c.Type, &participantsJSON, &payloadJSON, &c.Effectiveness)
		if err != nil {
			return nil, err
		}
		c.Participants = decodeStringSlice(participantsJSON)
		c.Payload = decodeStringMap(payloadJSON)
		lens.Coordination = c

	case canon.KindTool:
		t := &canon.ToolLens{}
		var failureModesJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT pattern, success_rate, failure_modes, optimizations FROM lens_tool WHERE doc_id = ?`,
			docID).Scan(&t.Pattern, &t.SuccessRate, &failureModesJSON, &t.Optimizations)
		if err != nil {
			return nil, err
		}
		t.FailureModes = decodeStringSlice(failureModesJSON)
		lens.Tool = t

	default:
		return nil, fmt.Errorf("no lens table for kind %q", kind)
	}

	return lens, nil
}

// encodeJSON marshals tags, meta, and lens collections for column storage.
// Inputs are plain string/float maps and slices, so marshaling cannot fail.
func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func decodeStringSlice(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func decodeStringMap(s string) map[string]string {
	var out map[string]string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func decodeFloatMap(s string) map[string]float64 {
	var out map[string]float64
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
