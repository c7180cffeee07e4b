package results

import (
	"errors"
	"strings"
	"testing"

	"github.com/dereneaton/kmunity/internal/domain"
)

const statFixture = `#The parameters used in kmer counting
#Kmer size	17
#Kmer indivdual number	98734217765
#Kmer species number	12077946853
#Total number of reads	773333334
#Total number of bases	116000000000
`

const homozygousFixture = `gce version 1.0.2
reading kmer frequency file
estimating coverage depth

Final estimation table:
raw_peak	eff_kmer_num	est_kmer_num	coverage_depth	genome_size
32	94521000000	94300000000	32.4	2909399713
`

const heterozygousFixture = `gce version 1.0.2
running in heterozygous mode with -c 32

Final estimation table:
raw_peak	eff_kmer_num	est_kmer_num	coverage_depth	genome_size	het_rate
32	94521000000	94300000000	32.4	2909399713	0.5138
`

func TestParseStat(t *testing.T) {
	st, err := ParseStat([]byte(statFixture))
	if err != nil {
		t.Fatalf("ParseStat: %v", err)
	}
	if st.KmerIndividualNum != "98734217765" {
		t.Errorf("kmer individual number = %q", st.KmerIndividualNum)
	}
	if st.TotalBases != "116000000000" {
		t.Errorf("total bases = %q", st.TotalBases)
	}
}

func TestParseStatMissingField(t *testing.T) {
	_, err := ParseStat([]byte("#Kmer indivdual number\t123\n"))
	if !errors.Is(err, domain.ErrUnparseableOutput) {
		t.Fatalf("err = %v, want ErrUnparseableOutput", err)
	}
}

func TestParseEstimationHomozygous(t *testing.T) {
	est, err := ParseEstimation(homozygousFixture)
	if err != nil {
		t.Fatalf("ParseEstimation: %v", err)
	}
	if est.CoverageDepth != "32.4" {
		t.Errorf("coverage = %q, want 32.4", est.CoverageDepth)
	}
	if est.GenomeSize != "2909399713" {
		t.Errorf("genome size = %q", est.GenomeSize)
	}
	if est.HetRate != "" {
		t.Errorf("het rate = %q, want empty in homozygous mode", est.HetRate)
	}
	cov, err := est.CoverageInt()
	if err != nil {
		t.Fatalf("CoverageInt: %v", err)
	}
	if cov != 32 {
		t.Errorf("rounded coverage = %d, want 32", cov)
	}
}

func TestParseEstimationErrors(t *testing.T) {
	cases := []struct {
		name   string
		output string
	}{
		{"no marker", "gce crashed before emitting results\n"},
		{"truncated table", "Final estimation table:\nraw_peak\tcoverage_depth\n"},
		{"column mismatch", "Final estimation table:\ncoverage_depth\tgenome_size\n32.4\n"},
		{"non-numeric value", "Final estimation table:\ncoverage_depth\tgenome_size\nnan?\t123\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEstimation(tc.output); !errors.Is(err, domain.ErrUnparseableOutput) {
				t.Errorf("err = %v, want ErrUnparseableOutput", err)
			}
		})
	}
}

func TestBuildRecord(t *testing.T) {
	task := &domain.RunTask{
		Run:       "SRR7811753",
		Organism:  "Ursus americanus",
		TaxID:     9643,
		Biosample: "SAMN09736286",
		Category:  domain.CategoryMammals,
	}
	st, err := ParseStat([]byte(statFixture))
	if err != nil {
		t.Fatalf("ParseStat: %v", err)
	}
	est, err := ParseEstimation(heterozygousFixture)
	if err != nil {
		t.Fatalf("ParseEstimation: %v", err)
	}

	rec, err := BuildRecord(task, st, est)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	want := &domain.Record{
		Organism:       "Ursus americanus",
		Taxid:          "9643",
		Biosample:      "SAMN09736286",
		Run:            "SRR7811753",
		BasesGb:        "116",
		Coverage:       "32.4",
		GenomeSize:     "2.91",
		Heterozygosity: "0.5138",
	}
	if *rec != *want {
		t.Errorf("record = %+v, want %+v", rec, want)
	}
}

func TestBuildRecordRequiresHetRate(t *testing.T) {
	task := &domain.RunTask{Run: "SRR7811753", Organism: "Ursus americanus", TaxID: 9643}
	st := &Stat{KmerIndividualNum: "98734217765", TotalBases: "116000000000"}
	est, err := ParseEstimation(homozygousFixture)
	if err != nil {
		t.Fatalf("ParseEstimation: %v", err)
	}
	if _, err := BuildRecord(task, st, est); !errors.Is(err, domain.ErrUnparseableOutput) {
		t.Fatalf("err = %v, want ErrUnparseableOutput", err)
	}
}

func TestBuildRecordScientificNotation(t *testing.T) {
	task := &domain.RunTask{Run: "SRR7811753", Organism: "Ursus americanus", TaxID: 9643, Biosample: "SAMN09736286"}
	st := &Stat{KmerIndividualNum: "9.8734e10", TotalBases: "1.16e11"}
	est := &Estimation{CoverageDepth: "32.4", GenomeSize: "2.9094e9", HetRate: "0.5138"}
	rec, err := BuildRecord(task, st, est)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	if rec.BasesGb != "116" || rec.GenomeSize != "2.91" {
		t.Errorf("BasesGb = %q GenomeSize = %q", rec.BasesGb, rec.GenomeSize)
	}
}

func TestParseStatLongLines(t *testing.T) {
	// A stat file with a very wide histogram line must not break the scanner.
	var sb strings.Builder
	sb.WriteString(statFixture)
	sb.WriteString(strings.Repeat("1\t2\t", 40000))
	sb.WriteString("\n")
	if _, err := ParseStat([]byte(sb.String())); err != nil {
		t.Fatalf("ParseStat: %v", err)
	}
}
