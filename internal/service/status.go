package service

import (
	"context"
	"sort"

	"github.com/Dadudekc/swarmmem/internal/store"
)

// BackendStatus reports one embedding backend's health and how much of
// the corpus it covers.
type BackendStatus struct {
	BackendID string
	Default   bool
	// Available reflects a live health probe for registered backends.
	// Historical backends without a registered embedder report false.
	Available bool
	Coverage  store.BackendCoverage
	// PendingDocs and FailedDocs describe the default backend's backlog.
	PendingDocs int
	FailedDocs  int
}

// BackendStatuses reports health and coverage for every backend that has
// vectors in the store, every registered query backend, and the default
// backend even when the store is empty. A registered backend with no
// vectors yet shows zero coverage over the eligible corpus. This is the
// observability surface for the embedding sub-state: embedding failures
// never surface through ingestion, they show up here and in the
// partial_index flag.
func (s *Service) BackendStatuses(ctx context.Context) ([]BackendStatus, error) {
	stats, err := s.store.GetStats(ctx, store.Scope{})
	if err != nil {
		return nil, err
	}

	coverage := make(map[string]store.BackendCoverage, len(stats.Coverage))
	for _, cov := range stats.Coverage {
		coverage[cov.BackendID] = cov
	}

	registered := s.engine.Backends()
	counted := false
	var eligible int
	for id := range registered {
		if _, ok := coverage[id]; ok {
			continue
		}
		if !counted {
			eligible, err = s.store.CountEligible(ctx, store.Filters{})
			if err != nil {
				return nil, err
			}
			counted = true
		}
		coverage[id] = store.BackendCoverage{BackendID: id, Total: eligible}
	}

	ids := make([]string, 0, len(coverage))
	for id := range coverage {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	defaultID := s.embedder.BackendID()
	statuses := make([]BackendStatus, 0, len(ids))
	for _, id := range ids {
		st := BackendStatus{
			BackendID: id,
			Coverage:  coverage[id],
		}
		if embedder, ok := registered[id]; ok {
			st.Available = embedder.Available(ctx)
		}
		if id == defaultID {
			st.Default = true
			st.PendingDocs = stats.Pending
			st.FailedDocs = stats.Failed
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
