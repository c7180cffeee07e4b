// Package selector resolves which sequencing run a pipeline attempt
// will process: either a user-supplied accession or an auto-selected
// candidate not yet present in the category's database.
package selector

import (
	"context"
	"fmt"
	"sort"

	"github.com/dereneaton/kmunity/internal/domain"
)

// MetadataService is the remote lookup the selector consumes. The
// entrez package provides the production implementation.
type MetadataService interface {
	// LookupRun resolves one accession to its metadata, including
	// category hints derived from the run's taxonomy.
	LookupRun(ctx context.Context, accession string) (*domain.RunInfo, error)

	// QueryUnpopulated returns candidate runs for a category that are
	// absent from the known set.
	QueryUnpopulated(ctx context.Context, category domain.Category, known map[string]bool) ([]*domain.RunInfo, error)
}

// Selector builds RunTasks. It performs no reservation: the database
// append's duplicate check is the sole authority on "already done".
type Selector struct {
	meta MetadataService
}

// New creates a Selector backed by the given metadata service.
func New(meta MetadataService) *Selector {
	return &Selector{meta: meta}
}

// Explicit resolves a user-supplied accession. If category is empty it
// is inferred from the run's taxonomy; an inference that does not map
// to exactly one category fails with AmbiguousCategory.
func (s *Selector) Explicit(ctx context.Context, accession string, category domain.Category) (*domain.RunTask, error) {
	if !domain.ValidAccession(accession) {
		return nil, fmt.Errorf("malformed run accession %q", accession)
	}

	info, err := s.meta.LookupRun(ctx, accession)
	if err != nil {
		return nil, err
	}

	if category == "" {
		if len(info.CategoryHints) != 1 {
			return nil, fmt.Errorf("run %s maps to %d categories %v: %w",
				accession, len(info.CategoryHints), info.CategoryHints, domain.ErrAmbiguousCategory)
		}
		category = info.CategoryHints[0]
	}

	return domain.NewRunTask(info, category)
}

// Auto picks one unpopulated run for the category. The choice is
// deterministic: candidates are ordered by accession and the lowest
// one wins, so retries over the same database snapshot and query
// response pick the same run.
func (s *Selector) Auto(ctx context.Context, category domain.Category, known map[string]bool) (*domain.RunTask, error) {
	candidates, err := s.meta.QueryUnpopulated(ctx, category, known)
	if err != nil {
		return nil, err
	}

	var fresh []*domain.RunInfo
	for _, ri := range candidates {
		if !known[ri.Run] && domain.ValidAccession(ri.Run) {
			fresh = append(fresh, ri)
		}
	}
	if len(fresh) == 0 {
		return nil, fmt.Errorf("category %s: %w", category, domain.ErrNoCandidateFound)
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Run < fresh[j].Run })
	return domain.NewRunTask(fresh[0], category)
}
