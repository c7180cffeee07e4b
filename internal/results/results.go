// Package results parses the external tool output into canonical
// statistics. The grammar is strict: a missing or non-numeric required
// field is a hard parse failure, never a defaulted zero, so the
// database's "unresolved is explicit" invariant holds.
package results

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/dereneaton/kmunity/internal/domain"
)

// estimationMarker introduces gce's result table: a tab-separated
// header row and value row on the next two non-empty lines.
const estimationMarker = "Final estimation table:"

// Stat fields extracted from the kmerfreq stat file header. The
// "indivdual" spelling is the tool's own.
const (
	keyKmerIndividualNum = "#Kmer indivdual number"
	keyTotalBases        = "#Total number of bases"
)

// Stat holds the kmerfreq summary values, kept textual.
type Stat struct {
	KmerIndividualNum string
	TotalBases        string
}

// ParseStat extracts the required summary fields from a kmerfreq stat
// file body.
func ParseStat(data []byte) (*Stat, error) {
	st := &Stat{}
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, keyKmerIndividualNum):
			st.KmerIndividualNum = lastField(line)
		case strings.HasPrefix(line, keyTotalBases):
			st.TotalBases = lastField(line)
		}
	}
	if err := requireNumeric("kmer individual number", st.KmerIndividualNum); err != nil {
		return nil, err
	}
	if err := requireNumeric("total bases", st.TotalBases); err != nil {
		return nil, err
	}
	return st, nil
}

// Estimation holds the gce table values. HetRate is empty after a
// homozygous-mode pass and required after a heterozygous-mode pass.
type Estimation struct {
	CoverageDepth string
	GenomeSize    string
	HetRate       string
}

// ParseEstimation extracts the final estimation table from gce output.
func ParseEstimation(output string) (*Estimation, error) {
	idx := strings.Index(output, estimationMarker)
	if idx < 0 {
		return nil, fmt.Errorf("missing %q in gce output: %w", estimationMarker, domain.ErrUnparseableOutput)
	}

	var rows [][]string
	sc := bufio.NewScanner(strings.NewReader(output[idx+len(estimationMarker):]))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() && len(rows) < 2 {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	if len(rows) != 2 {
		return nil, fmt.Errorf("estimation table truncated: %w", domain.ErrUnparseableOutput)
	}
	headers, values := rows[0], rows[1]
	if len(headers) != len(values) {
		return nil, fmt.Errorf("estimation table has %d headers but %d values: %w",
			len(headers), len(values), domain.ErrUnparseableOutput)
	}

	table := make(map[string]string, len(headers))
	for i, h := range headers {
		if err := requireNumeric(h, values[i]); err != nil {
			return nil, err
		}
		table[h] = values[i]
	}

	est := &Estimation{
		CoverageDepth: table["coverage_depth"],
		GenomeSize:    table["genome_size"],
		HetRate:       table["het_rate"],
	}
	if est.CoverageDepth == "" {
		return nil, fmt.Errorf("estimation table missing coverage_depth: %w", domain.ErrUnparseableOutput)
	}
	if est.GenomeSize == "" {
		return nil, fmt.Errorf("estimation table missing genome_size: %w", domain.ErrUnparseableOutput)
	}
	return est, nil
}

// CoverageInt rounds the coverage depth to the nearest whole integer,
// the form gce's -c flag expects.
func (e *Estimation) CoverageInt() (int, error) {
	v, err := strconv.ParseFloat(e.CoverageDepth, 64)
	if err != nil {
		return 0, fmt.Errorf("coverage depth %q: %w", e.CoverageDepth, domain.ErrUnparseableOutput)
	}
	return int(v + 0.5), nil
}

// BuildRecord assembles the database record for a completed analysis.
// Coverage and heterozygosity pass through in the tool's own decimal
// form; base and genome-size counts are reduced to gigabases.
func BuildRecord(task *domain.RunTask, stat *Stat, est *Estimation) (*domain.Record, error) {
	if est.HetRate == "" {
		return nil, fmt.Errorf("heterozygous pass produced no het_rate: %w", domain.ErrUnparseableOutput)
	}

	basesGb, err := toGigabases(stat.TotalBases, 0)
	if err != nil {
		return nil, err
	}
	genomeGb, err := toGigabases(est.GenomeSize, 2)
	if err != nil {
		return nil, err
	}

	rec := &domain.Record{
		Organism:       task.Organism,
		Taxid:          strconv.Itoa(task.TaxID),
		Biosample:      task.Biosample,
		Run:            task.Run,
		BasesGb:        basesGb,
		Coverage:       est.CoverageDepth,
		GenomeSize:     genomeGb,
		Heterozygosity: est.HetRate,
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUnparseableOutput)
	}
	return rec, nil
}

// toGigabases converts a base count (decimal or scientific notation)
// to gigabases with the given precision. Zero precision yields a whole
// number.
func toGigabases(bases string, prec int) (string, error) {
	v, err := strconv.ParseFloat(bases, 64)
	if err != nil {
		return "", fmt.Errorf("base count %q: %w", bases, domain.ErrUnparseableOutput)
	}
	gb := v / 1e9
	if prec == 0 {
		return strconv.FormatInt(int64(gb), 10), nil
	}
	return strconv.FormatFloat(gb, 'f', prec, 64), nil
}

func lastField(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func requireNumeric(name, val string) error {
	if val == "" {
		return fmt.Errorf("missing field %s: %w", name, domain.ErrUnparseableOutput)
	}
	if _, err := strconv.ParseFloat(val, 64); err != nil {
		return fmt.Errorf("field %s has non-numeric value %q: %w", name, val, domain.ErrUnparseableOutput)
	}
	return nil
}
