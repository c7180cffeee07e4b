package domain

import (
	"fmt"
	"strconv"
)

// Unresolved marks a numeric field whose value could not be computed.
// It is written to the database verbatim so "not computed" is never
// confused with a computed zero.
const Unresolved = "NA"

// Record is one completed analysis, immutable once appended. Numeric
// fields are kept in their textual decimal form so the persisted
// database never drifts through float round-trips.
type Record struct {
	Organism       string
	Taxid          string
	Biosample      string
	Run            string
	BasesGb        string
	Coverage       string
	GenomeSize     string
	Heterozygosity string
}

// Fields returns the record's values in database column order.
func (r *Record) Fields() []string {
	return []string{
		r.Organism,
		r.Taxid,
		r.Biosample,
		r.Run,
		r.BasesGb,
		r.Coverage,
		r.GenomeSize,
		r.Heterozygosity,
	}
}

// Validate checks the record invariants before it is committed: a
// well-formed run accession and every numeric field either a parseable
// decimal or the explicit Unresolved marker.
func (r *Record) Validate() error {
	if !ValidAccession(r.Run) {
		return fmt.Errorf("record has malformed run accession %q", r.Run)
	}
	if r.Organism == "" {
		return fmt.Errorf("record for %s has empty organism", r.Run)
	}
	numeric := map[string]string{
		"taxid":          r.Taxid,
		"bases_gb":       r.BasesGb,
		"coverage":       r.Coverage,
		"genome_size":    r.GenomeSize,
		"heterozygosity": r.Heterozygosity,
	}
	for name, val := range numeric {
		if val == Unresolved {
			continue
		}
		if val == "" {
			return fmt.Errorf("record for %s has empty %s (use %q for unresolved)", r.Run, name, Unresolved)
		}
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			return fmt.Errorf("record for %s has non-numeric %s %q", r.Run, name, val)
		}
	}
	return nil
}
