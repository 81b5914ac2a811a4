package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dadudekc/swarmmem/internal/canon"
	"github.com/Dadudekc/swarmmem/internal/query"
	"github.com/Dadudekc/swarmmem/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	project    string
	agentID    string
	kinds      []string
	backendID  string
	keyword    bool
	budget     time.Duration
	jsonOutput bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search recorded memory",
		Long: `Search the memory store by semantic similarity.

Results are ranked by cosine similarity against the default embedding
backend. When the backend is unavailable the search degrades to FTS5
keyword matching and says so; pass --keyword to request keyword
ranking deliberately.`,
		Example: `  swarmmem search "failed deploys in the payments project" -p payments
  swarmmem search "retry protocol" --kind protocol --limit 5
  swarmmem search "timeout" --keyword --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Restrict to one project")
	cmd.Flags().StringVarP(&opts.agentID, "agent", "a", "", "Restrict to one agent")
	cmd.Flags().StringSliceVarP(&opts.kinds, "kind", "k", nil, "Restrict to document kinds (repeatable)")
	cmd.Flags().StringVar(&opts.backendID, "backend", "", "Score against this backend's corpus")
	cmd.Flags().BoolVar(&opts.keyword, "keyword", false, "Rank by keyword match instead of similarity")
	cmd.Flags().DurationVar(&opts.budget, "budget", 0, "Deadline for the query (e.g. 200ms); partial results past it")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, queryText string, opts searchOptions) error {
	queryOpts, err := buildQueryOptions(opts)
	if err != nil {
		return err
	}

	svc, _, cleanup, err := openService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var res *query.Result
	if opts.keyword {
		res, err = svc.Keyword(ctx, queryText, queryOpts)
	} else {
		res, err = svc.Search(ctx, queryText, queryOpts)
	}
	if err != nil {
		return err
	}

	return renderResults(cmd, queryText, res, opts.jsonOutput)
}

func buildQueryOptions(opts searchOptions) (query.Options, error) {
	filters := store.Filters{Project: opts.project, AgentID: opts.agentID}
	for _, k := range opts.kinds {
		kind, err := canon.ParseKind(k)
		if err != nil {
			return query.Options{}, err
		}
		filters.Kinds = append(filters.Kinds, kind)
	}
	return query.Options{
		Limit:     opts.limit,
		Filters:   filters,
		BackendID: opts.backendID,
		Budget:    opts.budget,
	}, nil
}
