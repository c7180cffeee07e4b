// Package runlog writes the per-run log file: an append-only textual
// record of one pipeline attempt kept under the category's logfiles
// directory and committed to the shared repository alongside the
// database row.
package runlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/dereneaton/kmunity/internal/domain"
)

// Logger wraps a stdlib log.Logger bound to one run's log file. A
// re-attempt truncates the previous attempt's file rather than
// silently merging with it.
type Logger struct {
	path string
	file *os.File
	log  *log.Logger
}

// Open creates (or truncates) the log file for a run under
// <repo>/<category>/logfiles/<run>.log and mirrors lines to echo.
func Open(repoRoot string, category domain.Category, run string, echo io.Writer) (*Logger, error) {
	dir := filepath.Join(repoRoot, string(category), "logfiles")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	path := filepath.Join(dir, run+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating log file: %w", err)
	}

	var w io.Writer = file
	if echo != nil {
		w = io.MultiWriter(file, echo)
	}
	return &Logger{
		path: path,
		file: file,
		log:  log.New(w, "", log.LstdFlags),
	}, nil
}

// Discard returns a Logger that drops everything, for callers that
// run before a log file can exist and for tests.
func Discard() *Logger {
	return &Logger{log: log.New(io.Discard, "", 0)}
}

// Path returns the log file location, or "" for a discard logger.
func (l *Logger) Path() string {
	return l.path
}

// Infof writes one timestamped line.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log.Printf(format, args...)
}

// Section writes a visual section header.
func (l *Logger) Section(name string) {
	l.log.Printf("")
	l.log.Printf("== %s ==", name)
}

// Stage records a state machine transition.
func (l *Logger) Stage(stage domain.Stage) {
	l.log.Printf("stage: %s", stage)
}

// Exec records an external command invocation. Callers pass a
// templated form so scratch paths stay out of the shared log.
func (l *Logger) Exec(template string) {
	l.log.Printf("executing: %s", template)
}

// Outcome writes the terminal line for the attempt.
func (l *Logger) Outcome(outcome domain.Outcome, stage domain.Stage, err error) {
	if err != nil {
		l.log.Printf("outcome: %s at stage %s: %v", outcome, stage, err)
		return
	}
	l.log.Printf("outcome: %s", outcome)
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
