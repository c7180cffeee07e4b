package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/dereneaton/kmunity/internal/domain"
)

// fakeMeta is an in-memory MetadataService.
type fakeMeta struct {
	runs       map[string]*domain.RunInfo
	candidates []*domain.RunInfo
	err        error
}

func (f *fakeMeta) LookupRun(ctx context.Context, accession string) (*domain.RunInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	ri, ok := f.runs[accession]
	if !ok {
		return nil, domain.ErrNoCandidateFound
	}
	return ri, nil
}

func (f *fakeMeta) QueryUnpopulated(ctx context.Context, category domain.Category, known map[string]bool) ([]*domain.RunInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*domain.RunInfo
	for _, ri := range f.candidates {
		if !known[ri.Run] {
			out = append(out, ri)
		}
	}
	return out, nil
}

func bear() *domain.RunInfo {
	return &domain.RunInfo{
		Run:           "SRR7811753",
		Biosample:     "SRS3758609",
		Organism:      "Ursus americanus",
		TaxID:         9643,
		Bases:         116e9,
		CategoryHints: []domain.Category{domain.CategoryMammals},
	}
}

func TestExplicit_ResolvesAndInfersCategory(t *testing.T) {
	sel := New(&fakeMeta{runs: map[string]*domain.RunInfo{"SRR7811753": bear()}})

	task, err := sel.Explicit(context.Background(), "SRR7811753", "")
	if err != nil {
		t.Fatal(err)
	}
	if task.Category != domain.CategoryMammals {
		t.Errorf("inferred category = %q, want mammals", task.Category)
	}
	if task.Organism != "Ursus americanus" || task.Biosample != "SRS3758609" {
		t.Errorf("task = %+v", task)
	}
}

func TestExplicit_AmbiguousCategory(t *testing.T) {
	ri := bear()
	ri.CategoryHints = nil
	sel := New(&fakeMeta{runs: map[string]*domain.RunInfo{"SRR7811753": ri}})

	_, err := sel.Explicit(context.Background(), "SRR7811753", "")
	if !errors.Is(err, domain.ErrAmbiguousCategory) {
		t.Errorf("err = %v, want ErrAmbiguousCategory", err)
	}

	// a supplied category skips inference entirely
	task, err := sel.Explicit(context.Background(), "SRR7811753", domain.CategoryMammals)
	if err != nil {
		t.Fatal(err)
	}
	if task.Category != domain.CategoryMammals {
		t.Errorf("category = %q", task.Category)
	}
}

func TestExplicit_MalformedAccession(t *testing.T) {
	sel := New(&fakeMeta{})
	if _, err := sel.Explicit(context.Background(), "not-an-srr", ""); err == nil {
		t.Error("malformed accession should fail before any lookup")
	}
}

func TestAuto_DeterministicLowestAccession(t *testing.T) {
	meta := &fakeMeta{candidates: []*domain.RunInfo{
		{Run: "SRR9000002", Organism: "B", Bases: 10e9},
		{Run: "SRR9000001", Organism: "A", Bases: 10e9},
		{Run: "SRR9000003", Organism: "C", Bases: 10e9},
	}}
	sel := New(meta)
	known := map[string]bool{}

	first, err := sel.Auto(context.Background(), domain.CategoryBirds, known)
	if err != nil {
		t.Fatal(err)
	}
	second, err := sel.Auto(context.Background(), domain.CategoryBirds, known)
	if err != nil {
		t.Fatal(err)
	}
	if first.Run != "SRR9000001" || second.Run != first.Run {
		t.Errorf("picks = %q, %q; want SRR9000001 both times", first.Run, second.Run)
	}
}

func TestAuto_SkipsKnownRuns(t *testing.T) {
	meta := &fakeMeta{candidates: []*domain.RunInfo{
		{Run: "SRR9000001", Bases: 10e9},
		{Run: "SRR9000002", Bases: 10e9},
	}}
	sel := New(meta)

	task, err := sel.Auto(context.Background(), domain.CategoryBirds, map[string]bool{"SRR9000001": true})
	if err != nil {
		t.Fatal(err)
	}
	if task.Run != "SRR9000002" {
		t.Errorf("pick = %q, want SRR9000002", task.Run)
	}
}

func TestAuto_NoCandidateFound(t *testing.T) {
	sel := New(&fakeMeta{})
	_, err := sel.Auto(context.Background(), domain.CategoryPlants, nil)
	if !errors.Is(err, domain.ErrNoCandidateFound) {
		t.Errorf("err = %v, want ErrNoCandidateFound", err)
	}
}

func TestAuto_PropagatesMetadataError(t *testing.T) {
	sel := New(&fakeMeta{err: domain.ErrMetadataUnavailable})
	_, err := sel.Auto(context.Background(), domain.CategoryPlants, nil)
	if !errors.Is(err, domain.ErrMetadataUnavailable) {
		t.Errorf("err = %v, want ErrMetadataUnavailable", err)
	}
}
