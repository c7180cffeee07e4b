package domain

import (
	"fmt"
	"regexp"
)

// accessionRe matches SRA run accessions: an archive prefix (SRR for
// NCBI, ERR for EBI, DRR for DDBJ) followed by a numeric ID.
var accessionRe = regexp.MustCompile(`^[SED]RR[0-9]{5,9}$`)

// ValidAccession reports whether s is a well-formed run accession.
func ValidAccession(s string) bool {
	return accessionRe.MatchString(s)
}

// RunInfo is the metadata the remote lookup returns for one sequencing
// run. Bases is the total sequenced base count reported by the archive.
type RunInfo struct {
	Run           string
	Biosample     string
	Organism      string
	TaxID         int
	Bases         int64
	CategoryHints []Category
}

// BasesGb returns the reported base count in whole gigabases.
func (ri *RunInfo) BasesGb() int64 {
	return ri.Bases / 1e9
}

// RunTask is the unit of work: one run accession with resolved
// metadata, bound to a target category. It is created by the selector
// and discarded once the record is written or the attempt fails.
type RunTask struct {
	Run       string
	Organism  string
	TaxID     int
	Biosample string
	Bases     int64
	Category  Category
}

// NewRunTask binds resolved run metadata to a category.
func NewRunTask(info *RunInfo, category Category) (*RunTask, error) {
	if !ValidAccession(info.Run) {
		return nil, fmt.Errorf("malformed run accession %q", info.Run)
	}
	return &RunTask{
		Run:       info.Run,
		Organism:  info.Organism,
		TaxID:     info.TaxID,
		Biosample: info.Biosample,
		Bases:     info.Bases,
		Category:  category,
	}, nil
}
