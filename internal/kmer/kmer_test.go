package kmer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dereneaton/kmunity/internal/config"
	"github.com/dereneaton/kmunity/internal/domain"
	"github.com/dereneaton/kmunity/internal/results"
	"github.com/dereneaton/kmunity/internal/workspace"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(kmerfreq, gce string) config.AnalysisConfig {
	return config.AnalysisConfig{
		Kmerfreq: kmerfreq,
		GCE:      gce,
		KmerSize: 17,
		Threads:  2,
		Timeout:  5 * time.Second,
	}
}

// kmerfreqBody writes a stat file at the -p prefix (arg 6) with the
// summary header and a small histogram.
const kmerfreqBody = `cat > "$6.kmer.freq.stat" <<'EOF'
#Kmer size	17
#Kmer indivdual number	98734217765
#Total number of bases	116000000000
1	4021
2	118845
3	904412
EOF`

// gceBody emits a heterozygous-mode table when extra flags are passed
// and a homozygous-mode table otherwise, logging its arguments.
func gceBody(callsFile string) string {
	return fmt.Sprintf(`echo "$@" >> %q
if [ "$#" -gt 4 ]; then
printf 'Final estimation table:\ncoverage_depth\tgenome_size\thet_rate\n32.4\t2909399713\t0.5138\n'
else
printf 'Final estimation table:\ncoverage_depth\tgenome_size\n32.4\t2909399713\n'
fi`, callsFile)
}

func TestRun_Success(t *testing.T) {
	bins := t.TempDir()
	callsFile := filepath.Join(bins, "gce.calls")
	kmerfreq := writeScript(t, bins, "kmerfreq", kmerfreqBody)
	gce := writeScript(t, bins, "gce", gceBody(callsFile))

	ws, err := workspace.New(t.TempDir(), "SRR7811753")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Cleanup()

	r := New(testConfig(kmerfreq, gce), nil)
	out, err := r.Run(context.Background(), "SRR7811753", ws.Path("files.lib"), ws)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Stat.TotalBases != "116000000000" {
		t.Errorf("total bases = %q", out.Stat.TotalBases)
	}

	est, err := results.ParseEstimation(out.HeterozygousOut)
	if err != nil {
		t.Fatalf("parse heterozygous output: %v", err)
	}
	if est.HetRate != "0.5138" {
		t.Errorf("het rate = %q, want 0.5138", est.HetRate)
	}

	// Second gce pass must be seeded with the rounded coverage.
	calls, err := os.ReadFile(callsFile)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(calls)), "\n")
	if len(lines) != 2 {
		t.Fatalf("gce invoked %d times, want 2", len(lines))
	}
	if strings.Contains(lines[0], "-H 1") {
		t.Errorf("first pass used heterozygous mode: %s", lines[0])
	}
	if !strings.Contains(lines[1], "-H 1 -c 32") {
		t.Errorf("second pass args = %s, want -H 1 -c 32", lines[1])
	}

	// Histogram must contain only the two-column data rows.
	hist, err := os.ReadFile(out.StatFile + ".2col")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(hist)); got != "1\t4021\n2\t118845\n3\t904412" {
		t.Errorf("histogram = %q", got)
	}
}

func TestRun_KmerfreqNonzeroExit(t *testing.T) {
	bins := t.TempDir()
	kmerfreq := writeScript(t, bins, "kmerfreq", "echo boom >&2; exit 3")
	gce := writeScript(t, bins, "gce", "exit 0")

	ws, err := workspace.New(t.TempDir(), "SRR7811753")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Cleanup()

	r := New(testConfig(kmerfreq, gce), nil)
	_, err = r.Run(context.Background(), "SRR7811753", ws.Path("files.lib"), ws)
	if !errors.Is(err, domain.ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
	var aerr *domain.AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %T, want *AnalysisError", err)
	}
	if aerr.Tool != "kmerfreq" || aerr.Cause != domain.CauseNonzeroExit {
		t.Errorf("tool = %s cause = %s", aerr.Tool, aerr.Cause)
	}
	if !strings.Contains(aerr.Output, "boom") {
		t.Errorf("output %q missing tool stderr", aerr.Output)
	}
}

func TestRun_Timeout(t *testing.T) {
	bins := t.TempDir()
	kmerfreq := writeScript(t, bins, "kmerfreq", "exec sleep 5")
	gce := writeScript(t, bins, "gce", "exit 0")

	ws, err := workspace.New(t.TempDir(), "SRR7811753")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Cleanup()

	cfg := testConfig(kmerfreq, gce)
	cfg.Timeout = 50 * time.Millisecond
	r := New(cfg, nil)
	_, err = r.Run(context.Background(), "SRR7811753", ws.Path("files.lib"), ws)
	var aerr *domain.AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
	if aerr.Cause != domain.CauseTimeout {
		t.Errorf("cause = %s, want timeout", aerr.Cause)
	}
}

func TestRun_MissingStatFile(t *testing.T) {
	bins := t.TempDir()
	kmerfreq := writeScript(t, bins, "kmerfreq", "exit 0")
	gce := writeScript(t, bins, "gce", "exit 0")

	ws, err := workspace.New(t.TempDir(), "SRR7811753")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Cleanup()

	r := New(testConfig(kmerfreq, gce), nil)
	_, err = r.Run(context.Background(), "SRR7811753", ws.Path("files.lib"), ws)
	var aerr *domain.AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("err = %v, want *AnalysisError", err)
	}
	if aerr.Cause != domain.CauseCrash {
		t.Errorf("cause = %s, want crash", aerr.Cause)
	}
}

func TestRun_Canceled(t *testing.T) {
	bins := t.TempDir()
	kmerfreq := writeScript(t, bins, "kmerfreq", "exec sleep 5")
	gce := writeScript(t, bins, "gce", "exit 0")

	ws, err := workspace.New(t.TempDir(), "SRR7811753")
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(testConfig(kmerfreq, gce), nil)
	_, err = r.Run(ctx, "SRR7811753", ws.Path("files.lib"), ws)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, domain.ErrAnalysisFailed) {
		t.Error("cancellation must not classify as an analysis failure")
	}
}

func TestWriteHistogram_NoRows(t *testing.T) {
	statFile := filepath.Join(t.TempDir(), "x.kmer.freq.stat")
	data := []byte("#only headers here\n#nothing else\n")
	if err := os.WriteFile(statFile, data, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := writeHistogram(statFile, data); !errors.Is(err, domain.ErrUnparseableOutput) {
		t.Fatalf("err = %v, want ErrUnparseableOutput", err)
	}
}
