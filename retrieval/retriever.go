// Package retrieval fuses course-scoped knowledge-store results into the
// ranked, deduplicated context bundle backing a response. A general collector
// runs for every approved turn; a logistics collector joins in only when the
// router classified the turn as logistics.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/tutorflow/tutorflow/config"
	"github.com/tutorflow/tutorflow/core"
)

// Retriever queries the knowledge store and merges collector results.
type Retriever struct {
	cfg       config.RetrievalConfig
	knowledge core.KnowledgeStore
}

// New creates a retriever over the given knowledge store.
func New(cfg config.RetrievalConfig, knowledge core.KnowledgeStore) *Retriever {
	return &Retriever{cfg: cfg, knowledge: knowledge}
}

// Retrieve runs the collectors for the route, merges by source ref, sorts by
// score descending and truncates to the configured cap. Empty results are a
// valid outcome and are never retried here; transient store errors are
// wrapped as core.ErrRetrieval for the orchestrator's single retry.
func (r *Retriever) Retrieve(ctx context.Context, turn core.Turn, route core.Route) (core.ContextBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	general, err := r.knowledge.Query(ctx, turn.Input, turn.CourseID, r.cfg.TopK)
	if err != nil {
		return core.ContextBundle{}, fmt.Errorf("%w: general collector: %v", core.ErrRetrieval, err)
	}

	merged := general
	if route.Intent == core.IntentLogistics {
		logistics, err := r.knowledge.Query(ctx, logisticsQuery(turn.Input), turn.CourseID, r.cfg.TopK)
		if err != nil {
			return core.ContextBundle{}, fmt.Errorf("%w: logistics collector: %v", core.ErrRetrieval, err)
		}
		merged = append(merged, logistics...)
	}

	return r.fuse(merged), nil
}

// logisticsQuery biases the second collector toward course-administration
// material without discarding the student's own words.
func logisticsQuery(input string) string {
	return input + " syllabus schedule deadlines grading policy"
}

// fuse deduplicates by source ref (keeping the higher score), sorts by score
// descending with source ref as a deterministic tiebreaker, and truncates.
func (r *Retriever) fuse(passages []core.Passage) core.ContextBundle {
	bySource := make(map[string]core.Passage, len(passages))
	for _, p := range passages {
		if prior, ok := bySource[p.SourceRef]; !ok || p.Score > prior.Score {
			bySource[p.SourceRef] = p
		}
	}

	items := make([]core.ContextItem, 0, len(bySource))
	for _, p := range bySource {
		items = append(items, core.ContextItem{SourceRef: p.SourceRef, Text: p.Text, Score: p.Score})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].SourceRef < items[j].SourceRef
	})

	bundle := core.ContextBundle{Items: items}
	if len(items) > r.cfg.MaxItems {
		bundle.Items = items[:r.cfg.MaxItems]
		bundle.Truncated = true
	}
	return bundle
}
