// Package kmer drives the external kmerfreq and gce binaries over a
// downloaded run's fastq files. Estimation is a two-pass affair: a
// homozygous-mode gce pass yields the coverage depth, which seeds the
// heterozygous-mode pass that produces the final genome size and
// heterozygosity.
package kmer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dereneaton/kmunity/internal/config"
	"github.com/dereneaton/kmunity/internal/domain"
	"github.com/dereneaton/kmunity/internal/results"
	"github.com/dereneaton/kmunity/internal/runlog"
	"github.com/dereneaton/kmunity/internal/workspace"
)

// Runner invokes the analysis toolchain inside a run's workspace.
type Runner struct {
	kmerfreq string
	gce      string
	kmerSize int
	threads  int
	timeout  time.Duration
	log      *runlog.Logger
}

// New builds a Runner from the analysis configuration. A nil logger
// discards tool transcripts.
func New(cfg config.AnalysisConfig, log *runlog.Logger) *Runner {
	if log == nil {
		log = runlog.Discard()
	}
	return &Runner{
		kmerfreq: cfg.Kmerfreq,
		gce:      cfg.GCE,
		kmerSize: cfg.KmerSize,
		threads:  cfg.Threads,
		timeout:  cfg.Timeout,
		log:      log,
	}
}

// Output carries the raw artifacts of a completed analysis, before any
// record is assembled from them.
type Output struct {
	Stat            *results.Stat
	HomozygousOut   string
	HeterozygousOut string
	StatFile        string
}

// Run executes the full analysis chain: kmer counting, histogram
// extraction, and both gce estimation passes.
func (r *Runner) Run(ctx context.Context, run, libFile string, ws *workspace.Workspace) (*Output, error) {
	r.log.Stage(domain.StageAnalyzing)

	statFile, err := r.countKmers(ctx, run, libFile, ws)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(statFile)
	if err != nil {
		return nil, fmt.Errorf("read kmer stat: %w", err)
	}
	stat, err := results.ParseStat(data)
	if err != nil {
		return nil, err
	}

	histFile, err := writeHistogram(statFile, data)
	if err != nil {
		return nil, err
	}
	ws.Track(histFile)

	homOut, err := r.estimate(ctx, stat.KmerIndividualNum, histFile, 0)
	if err != nil {
		return nil, err
	}
	homEst, err := results.ParseEstimation(homOut)
	if err != nil {
		return nil, err
	}
	coverage, err := homEst.CoverageInt()
	if err != nil {
		return nil, err
	}
	r.log.Infof("homozygous pass estimated coverage depth %s (using -c %d)", homEst.CoverageDepth, coverage)

	hetOut, err := r.estimate(ctx, stat.KmerIndividualNum, histFile, coverage)
	if err != nil {
		return nil, err
	}

	return &Output{
		Stat:            stat,
		HomozygousOut:   homOut,
		HeterozygousOut: hetOut,
		StatFile:        statFile,
	}, nil
}

// countKmers runs kmerfreq over the fastq library file and returns the
// path of the produced stat file.
func (r *Runner) countKmers(ctx context.Context, run, libFile string, ws *workspace.Workspace) (string, error) {
	prefix := ws.Path(run)
	args := []string{
		"-k", strconv.Itoa(r.kmerSize),
		"-t", strconv.Itoa(r.threads),
		"-p", prefix,
		libFile,
	}
	r.log.Exec(fmt.Sprintf("{kmerfreq} -k %d -t %d -p {workspace}/%s {libfile}", r.kmerSize, r.threads, run))
	if _, err := r.runTool(ctx, "kmerfreq", r.kmerfreq, args, ws.Root); err != nil {
		return "", err
	}
	statFile := prefix + ".kmer.freq.stat"
	if _, err := os.Stat(statFile); err != nil {
		return "", &domain.AnalysisError{
			Tool:  "kmerfreq",
			Cause: domain.CauseCrash,
			Err:   fmt.Errorf("stat file not produced: %w", err),
		}
	}
	return statFile, nil
}

// estimate runs one gce pass. A zero coverage selects homozygous mode;
// a positive coverage selects heterozygous mode seeded with it.
func (r *Runner) estimate(ctx context.Context, ikmerNum, histFile string, coverage int) (string, error) {
	args := []string{"-g", ikmerNum, "-f", histFile}
	mode := "{gce} -g {ikmer} -f {histogram}"
	if coverage > 0 {
		args = append(args, "-H", "1", "-c", strconv.Itoa(coverage))
		mode += fmt.Sprintf(" -H 1 -c %d", coverage)
	}
	r.log.Exec(mode)
	return r.runTool(ctx, "gce", r.gce, args, filepath.Dir(histFile))
}

// runTool executes one toolchain binary under the configured timeout
// and classifies failures.
func (r *Runner) runTool(ctx context.Context, name, bin string, args []string, dir string) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err == nil {
		return string(out), nil
	}
	if ctx.Err() != nil {
		// Operator cancellation, not a tool fault.
		return "", ctx.Err()
	}

	cause := domain.CauseCrash
	switch {
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		cause = domain.CauseTimeout
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.Exited() {
			cause = domain.CauseNonzeroExit
		}
	}
	return "", &domain.AnalysisError{
		Tool:   name,
		Cause:  cause,
		Output: tail(string(out), 4096),
		Err:    err,
	}
}

// writeHistogram strips the stat file down to the two-column frequency
// histogram gce consumes: comment and blank lines dropped, first two
// tab-separated columns kept.
func writeHistogram(statFile string, data []byte) (string, error) {
	var sb strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
			continue
		}
		sb.WriteString(fields[0])
		sb.WriteByte('\t')
		sb.WriteString(fields[1])
		sb.WriteByte('\n')
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("stat file %s has no histogram rows: %w",
			filepath.Base(statFile), domain.ErrUnparseableOutput)
	}
	histFile := statFile + ".2col"
	if err := os.WriteFile(histFile, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("write histogram: %w", err)
	}
	return histFile, nil
}

// tail keeps the last n bytes of tool output for error reporting.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
