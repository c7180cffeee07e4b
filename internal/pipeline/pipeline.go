// Package pipeline orchestrates one complete attempt: select a run,
// pull its reads, size the genome, and commit the result to the shared
// database. Scratch space is always reclaimed, whatever the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/dereneaton/kmunity/internal/acquire"
	"github.com/dereneaton/kmunity/internal/config"
	"github.com/dereneaton/kmunity/internal/database"
	"github.com/dereneaton/kmunity/internal/domain"
	"github.com/dereneaton/kmunity/internal/history"
	"github.com/dereneaton/kmunity/internal/kmer"
	"github.com/dereneaton/kmunity/internal/notify"
	"github.com/dereneaton/kmunity/internal/results"
	"github.com/dereneaton/kmunity/internal/runlog"
	"github.com/dereneaton/kmunity/internal/selector"
	"github.com/dereneaton/kmunity/internal/workspace"
)

// Orchestrator runs the pipeline end to end.
type Orchestrator struct {
	cfg      *config.Config
	selector *selector.Selector
	store    *history.Store
	notifier notify.Notifier
	echo     io.Writer
}

// New assembles an orchestrator. The history store may be nil to skip
// attempt tracking; a nil notifier means no notifications; a nil echo
// keeps run logs off the terminal.
func New(cfg *config.Config, meta selector.MetadataService, store *history.Store, notifier notify.Notifier, echo io.Writer) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Orchestrator{
		cfg:      cfg,
		selector: selector.New(meta),
		store:    store,
		notifier: notifier,
		echo:     echo,
	}
}

// Result summarizes a finished attempt.
type Result struct {
	Run      string
	Category domain.Category
	Outcome  domain.Outcome
	Record   *domain.Record
	LogPath  string
}

// RunExplicit processes one named accession. The category may be
// empty, in which case it is inferred from the run's taxonomy.
func (o *Orchestrator) RunExplicit(ctx context.Context, accession string, category domain.Category) (*Result, error) {
	task, err := o.selector.Explicit(ctx, accession, category)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageSelecting, Err: err}
	}
	return o.execute(ctx, task)
}

// RunAuto selects the best unpopulated candidate for the category and
// processes it.
func (o *Orchestrator) RunAuto(ctx context.Context, category domain.Category) (*Result, error) {
	db, err := database.Open(o.cfg.General.RepoRoot, category)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageSelecting, Err: err}
	}
	known, err := db.Runs()
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageSelecting, Err: err}
	}
	if o.store != nil {
		failed, err := o.store.FailedRuns(category)
		if err == nil {
			for run := range failed {
				known[run] = true
			}
		}
	}

	task, err := o.selector.Auto(ctx, category, known)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageSelecting, Err: err}
	}
	return o.execute(ctx, task)
}

// execute drives a selected task through acquisition, analysis, and
// recording. It reports the terminal outcome to the run log, the local
// history, and the notifier; a duplicate commit counts as success.
func (o *Orchestrator) execute(ctx context.Context, task *domain.RunTask) (*Result, error) {
	log, err := runlog.Open(o.cfg.General.RepoRoot, task.Category, task.Run, o.echo)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageSelecting, Err: err}
	}
	defer log.Close()

	log.Section("KMUNITY RUN " + task.Run)
	log.Infof("organism: %s (taxid %d), biosample %s", task.Organism, task.TaxID, task.Biosample)
	log.Infof("category: %s, expected bases: %d", task.Category, task.Bases)
	log.Infof("contributor: %s", contributor(ctx))
	o.logToolVersions(ctx, log)

	var attemptID string
	if o.store != nil {
		attemptID, err = o.store.RecordStart(task.Run, task.Category)
		if err != nil {
			log.Infof("history unavailable: %v", err)
			attemptID = ""
		}
	}

	rec, runErr := o.process(ctx, task, log)

	res := &Result{
		Run:      task.Run,
		Category: task.Category,
		Record:   rec,
		LogPath:  log.Path(),
	}
	stage := domain.StageDone
	switch {
	case runErr == nil:
		res.Outcome = domain.OutcomeRecorded
	case errors.Is(runErr, domain.ErrDuplicateRun):
		res.Outcome = domain.OutcomeDuplicate
		runErr = nil
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		res.Outcome = domain.OutcomeCanceled
		stage = domain.FailedStage(runErr)
	default:
		res.Outcome = domain.OutcomeFailed
		stage = domain.FailedStage(runErr)
	}

	log.Outcome(res.Outcome, stage, runErr)
	if o.store != nil && attemptID != "" {
		if err := o.store.RecordFinish(attemptID, stage, res.Outcome, runErr); err != nil {
			log.Infof("history update failed: %v", err)
		}
	}
	o.sendNotification(res, runErr, log)

	return res, runErr
}

// process runs the acquire/analyze/parse/record chain inside a scratch
// workspace that is removed before returning.
func (o *Orchestrator) process(ctx context.Context, task *domain.RunTask, log *runlog.Logger) (*domain.Record, error) {
	ws, err := workspace.New(o.cfg.General.ScratchRoot, task.Run)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageAcquiring, Err: err}
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Infof("workspace cleanup: %v", err)
		}
	}()

	fetched, err := acquire.New(o.cfg.Acquire, log).Fetch(ctx, task, ws)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageAcquiring, Err: err}
	}

	out, err := kmer.New(o.cfg.Analysis, log).Run(ctx, task.Run, fetched.LibFile, ws)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageAnalyzing, Err: err}
	}

	log.Stage(domain.StageParsing)
	est, err := results.ParseEstimation(out.HeterozygousOut)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageParsing, Err: err}
	}
	rec, err := results.BuildRecord(task, out.Stat, est)
	if err != nil {
		return nil, &domain.StageError{Stage: domain.StageParsing, Err: err}
	}
	log.Infof("parsed: bases %s Gb, coverage %s, genome size %s Gb, heterozygosity %s",
		rec.BasesGb, rec.Coverage, rec.GenomeSize, rec.Heterozygosity)

	log.Stage(domain.StageRecording)
	db, err := database.Open(o.cfg.General.RepoRoot, task.Category)
	if err != nil {
		return rec, &domain.StageError{Stage: domain.StageRecording, Err: err}
	}
	if err := db.Append(rec); err != nil {
		return rec, &domain.StageError{Stage: domain.StageRecording, Err: err}
	}
	log.Infof("appended %s to %s", rec.Run, db.Path())
	return rec, nil
}

// logToolVersions records the toolchain versions so a log file pins
// the exact binaries behind a database row.
func (o *Orchestrator) logToolVersions(ctx context.Context, log *runlog.Logger) {
	tools := map[string]string{
		"prefetch":     o.cfg.Acquire.Prefetch,
		"fasterq-dump": o.cfg.Acquire.FasterqDump,
		"kmerfreq":     o.cfg.Analysis.Kmerfreq,
		"gce":          o.cfg.Analysis.GCE,
	}
	for _, name := range []string{"prefetch", "fasterq-dump", "kmerfreq", "gce"} {
		log.Infof("tool %s: version %s", name, acquire.ToolVersion(ctx, tools[name]))
	}
}

func (o *Orchestrator) sendNotification(res *Result, runErr error, log *runlog.Logger) {
	msg := ""
	switch {
	case runErr != nil:
		msg = runErr.Error()
	case res.Outcome == domain.OutcomeDuplicate:
		msg = "run was recorded by another contributor first"
	case res.Record != nil:
		msg = fmt.Sprintf("genome size %s Gb, heterozygosity %s", res.Record.GenomeSize, res.Record.Heterozygosity)
	}
	if err := o.notifier.Send(notify.Notification{
		Run:      res.Run,
		Category: res.Category,
		Outcome:  res.Outcome,
		Message:  msg,
	}); err != nil {
		log.Infof("notification failed: %v", err)
	}
}

// contributor resolves the name to stamp into run logs, preferring
// the git identity the shared checkout will commit under.
func contributor(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "git", "config", "user.name").Output()
	name := strings.TrimSpace(string(out))
	if err != nil || name == "" {
		return "anonymous"
	}
	return name
}
