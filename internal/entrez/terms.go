package entrez

import "github.com/dereneaton/kmunity/internal/domain"

// Entrez SRA search terms per category: public Illumina WGS runs with
// fastq files, scoped to the category's taxon.
const termSuffix = `
 AND "public"[Access]
 AND "illumina"[Platform]
 AND "wgs"[Strategy]
 AND "genomic"[Source]
 AND "filetype fastq"[Filter]
 AND "strategy whole genome sequencing"[Filter]`

var categoryTaxa = map[domain.Category]string{
	domain.CategoryMammals: "Mammalia[Organism]",
	domain.CategoryBirds:   "Aves[Organism]",
	domain.CategoryPlants:  "Viridiplantae[Organism]",
	domain.CategoryOther:   "Eukaryota[Organism] NOT Mammalia[Organism] NOT Aves[Organism] NOT Viridiplantae[Organism]",
}

// SearchTerm returns the full SRA query term for a category.
func SearchTerm(c domain.Category) string {
	taxon, ok := categoryTaxa[c]
	if !ok {
		return ""
	}
	return compact("(" + taxon + ")" + termSuffix)
}

// AccessionTerm returns the query term resolving a single run.
func AccessionTerm(accession string) string {
	return accession + "[Accession]"
}

func compact(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
