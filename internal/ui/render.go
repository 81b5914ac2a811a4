package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ResultView is one ranked document prepared for display.
type ResultView struct {
	DocID     string    `json:"doc_id"`
	Score     float64   `json:"score"`
	Kind      string    `json:"kind"`
	Project   string    `json:"project,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary"`
}

// ResultListView is a ranked result set with degradation flags.
type ResultListView struct {
	Query           string       `json:"query,omitempty"`
	Results         []ResultView `json:"results"`
	PartialIndex    bool         `json:"partial_index"`
	KeywordFallback bool         `json:"keyword_fallback"`
}

// DocumentView is a full document prepared for display.
type DocumentView struct {
	DocID      string            `json:"doc_id"`
	Kind       string            `json:"kind"`
	Project    string            `json:"project,omitempty"`
	AgentID    string            `json:"agent_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Title      string            `json:"title,omitempty"`
	Summary    string            `json:"summary"`
	Tags       []string          `json:"tags,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	EmbedState string            `json:"embed_state"`
	Canonical  string            `json:"canonical"`
}

// StatsView aggregates corpus counts for display.
type StatsView struct {
	Scope          string         `json:"scope,omitempty"`
	TotalDocuments int            `json:"total_documents"`
	ByKind         map[string]int `json:"by_kind"`
	ByAgent        map[string]int `json:"by_agent"`
	ByProject      map[string]int `json:"by_project"`
	Pending        int            `json:"pending"`
	Failed         int            `json:"failed"`
}

// BackendView is one embedding backend's health and coverage.
type BackendView struct {
	BackendID   string  `json:"backend_id"`
	Default     bool    `json:"default"`
	Available   bool    `json:"available"`
	Embedded    int     `json:"embedded"`
	Total       int     `json:"total"`
	Coverage    float64 `json:"coverage"`
	PendingDocs int     `json:"pending_docs"`
	FailedDocs  int     `json:"failed_docs"`
}

// Renderer draws view structs to a CLI stream.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer creates a Renderer. Color is suppressed when noColor is true.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	return &Renderer{out: out, styles: GetStyles(noColor)}
}

// JSON writes any view as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Results renders a ranked result list.
func (r *Renderer) Results(view ResultListView) error {
	if view.KeywordFallback {
		_, _ = fmt.Fprintf(r.out, "%s\n",
			r.styles.Warning.Render("embedding backend unavailable, results ranked by keyword match"))
	} else if view.PartialIndex {
		_, _ = fmt.Fprintf(r.out, "%s\n",
			r.styles.Warning.Render("partial index: some documents are awaiting embeddings"))
	}

	if len(view.Results) == 0 {
		_, _ = fmt.Fprintln(r.out, "no results")
		return nil
	}

	for i, res := range view.Results {
		title := res.Title
		if title == "" {
			title = res.Summary
		}
		_, _ = fmt.Fprintf(r.out, "%s %s %s\n",
			r.styles.Header.Render(fmt.Sprintf("%2d.", i+1)),
			title,
			r.styles.Score.Render(fmt.Sprintf("(%.3f)", res.Score)))

		attrs := []string{res.Kind}
		if res.Project != "" {
			attrs = append(attrs, res.Project)
		}
		if res.AgentID != "" {
			attrs = append(attrs, res.AgentID)
		}
		attrs = append(attrs, formatAge(res.Timestamp))
		_, _ = fmt.Fprintf(r.out, "    %s %s\n",
			r.styles.Label.Render(strings.Join(attrs, " · ")),
			r.styles.Dim.Render(res.DocID))
	}
	return nil
}

// Document renders a full document record.
func (r *Renderer) Document(view DocumentView) error {
	header := view.Title
	if header == "" {
		header = view.Summary
	}
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render(header))

	r.field("ID", view.DocID)
	r.field("Kind", view.Kind)
	if view.Project != "" {
		r.field("Project", view.Project)
	}
	if view.AgentID != "" {
		r.field("Agent", view.AgentID)
	}
	r.field("Recorded", view.Timestamp.Format(time.RFC3339))
	if len(view.Tags) > 0 {
		r.field("Tags", strings.Join(view.Tags, ", "))
	}
	for k, v := range view.Meta {
		r.field("meta."+k, v)
	}
	r.field("Embedding", view.EmbedState)

	_, _ = fmt.Fprintln(r.out)
	for _, line := range strings.Split(strings.TrimRight(view.Canonical, "\n"), "\n") {
		_, _ = fmt.Fprintf(r.out, "  %s\n", line)
	}
	return nil
}

// Stats renders corpus counts.
func (r *Renderer) Stats(view StatsView) error {
	header := "Memory Stats"
	if view.Scope != "" {
		header += ": " + view.Scope
	}
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render(header))

	r.field("Documents", fmt.Sprintf("%d", view.TotalDocuments))
	r.field("Pending embeddings", fmt.Sprintf("%d", view.Pending))
	if view.Failed > 0 {
		r.field("Failed embeddings", r.styles.Error.Render(fmt.Sprintf("%d", view.Failed)))
	}

	r.countSection("By kind", view.ByKind)
	r.countSection("By agent", view.ByAgent)
	r.countSection("By project", view.ByProject)
	return nil
}

// Backends renders embedding backend health.
func (r *Renderer) Backends(views []BackendView) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Embedding Backends"))

	for _, be := range views {
		name := be.BackendID
		if be.Default {
			name += " (default)"
		}
		avail := r.styles.Success.Render("available")
		if !be.Available {
			avail = r.styles.Error.Render("unavailable")
		}
		_, _ = fmt.Fprintf(r.out, "  %s  %s\n", name, avail)
		_, _ = fmt.Fprintf(r.out, "    coverage: %d/%d (%.0f%%)\n",
			be.Embedded, be.Total, be.Coverage*100)
		if be.PendingDocs > 0 {
			_, _ = fmt.Fprintf(r.out, "    pending:  %d\n", be.PendingDocs)
		}
		if be.FailedDocs > 0 {
			_, _ = fmt.Fprintf(r.out, "    failed:   %s\n",
				r.styles.Error.Render(fmt.Sprintf("%d", be.FailedDocs)))
		}
	}
	return nil
}

func (r *Renderer) field(label, value string) {
	_, _ = fmt.Fprintf(r.out, "  %s %s\n",
		r.styles.Label.Render(fmt.Sprintf("%-20s", label+":")), value)
}

func (r *Renderer) countSection(label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	_, _ = fmt.Fprintf(r.out, "\n  %s\n", r.styles.Label.Render(label))
	for name, n := range counts {
		_, _ = fmt.Fprintf(r.out, "    %-24s %d\n", name, n)
	}
}

// formatAge renders a timestamp as a relative age.
func formatAge(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
