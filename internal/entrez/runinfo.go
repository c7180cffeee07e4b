package entrez

import (
	"encoding/xml"
	"fmt"

	"github.com/dereneaton/kmunity/internal/domain"
)

// eSearchResult is the subset of the esearch XML response we use.
type eSearchResult struct {
	XMLName xml.Name `xml:"eSearchResult"`
	Count   int      `xml:"Count"`
	IDs     []string `xml:"IdList>Id"`
}

// Runinfo XML shape: each EXPERIMENT_PACKAGE carries a RUN_SET whose
// RUN elements hold the accession and base count as attributes, and a
// Pool/Member element naming the biosample, organism and taxid.
type experimentPackageSet struct {
	XMLName  xml.Name            `xml:"EXPERIMENT_PACKAGE_SET"`
	Packages []experimentPackage `xml:"EXPERIMENT_PACKAGE"`
}

type experimentPackage struct {
	RunSets []runSet `xml:"RUN_SET"`
}

type runSet struct {
	Runs []runElem `xml:"RUN"`
}

type runElem struct {
	Accession  string   `xml:"accession,attr"`
	TotalBases int64    `xml:"total_bases,attr"`
	Pool       poolElem `xml:"Pool"`
}

type poolElem struct {
	Members []memberElem `xml:"Member"`
}

type memberElem struct {
	Accession string `xml:"accession,attr"`
	Organism  string `xml:"organism,attr"`
	TaxID     int    `xml:"tax_id,attr"`
}

// ParseRunInfo extracts run metadata from an efetch runinfo XML body.
func ParseRunInfo(body []byte) ([]*domain.RunInfo, error) {
	var set experimentPackageSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing runinfo xml: %v", err)
	}

	var infos []*domain.RunInfo
	for _, pkg := range set.Packages {
		for _, rs := range pkg.RunSets {
			for _, run := range rs.Runs {
				if run.Accession == "" || len(run.Pool.Members) == 0 {
					continue
				}
				member := run.Pool.Members[0]
				infos = append(infos, &domain.RunInfo{
					Run:       run.Accession,
					Biosample: member.Accession,
					Organism:  member.Organism,
					TaxID:     member.TaxID,
					Bases:     run.TotalBases,
				})
			}
		}
	}
	return infos, nil
}
