// Package database maintains the per-category CSV database inside the
// shared repository checkout. The file is the contribution currency of
// the project, so writes are serialized with an advisory lock on a
// sidecar file and committed by atomic rename; concurrent invocations
// on the same host never interleave rows or clobber each other.
package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/dereneaton/kmunity/internal/domain"
)

// FileName is the database file inside each category directory.
const FileName = "database.csv"

// Header is the fixed column order of every category database.
var Header = []string{
	"Organism", "Taxid", "Biosample", "Run",
	"Bases_Gb", "Coverage", "Genome_Size", "Heterozygosity",
}

// DB is a handle on one category's database file.
type DB struct {
	path     string
	lockPath string
}

// Open returns a handle for the category's database, creating the
// file with its header row when absent.
func Open(repoRoot string, category domain.Category) (*DB, error) {
	dir := filepath.Join(repoRoot, category.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create category dir: %w", err)
	}
	db := &DB{
		path:     filepath.Join(dir, FileName),
		lockPath: filepath.Join(dir, "."+FileName+".lock"),
	}
	if _, err := os.Stat(db.path); errors.Is(err, os.ErrNotExist) {
		if err := db.init(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return db, nil
}

// Path returns the database file location.
func (d *DB) Path() string {
	return d.path
}

// init creates the database with only its header row. Taken under the
// lock so two racing first invocations produce one header.
func (d *DB) init() error {
	unlock, err := d.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := os.Stat(d.path); err == nil {
		return nil
	}
	return d.commit(nil)
}

// Records reads every row of the database.
func (d *DB) Records() ([]domain.Record, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer f.Close()
	return readRecords(f)
}

// Runs returns the set of run accessions already present.
func (d *DB) Runs() (map[string]bool, error) {
	recs, err := d.Records()
	if err != nil {
		return nil, err
	}
	runs := make(map[string]bool, len(recs))
	for _, r := range recs {
		runs[r.Run] = true
	}
	return runs, nil
}

// Append commits one record. The database is re-read under the lock
// before writing, so a run recorded by a concurrent invocation after
// this process selected it surfaces as ErrDuplicateRun rather than a
// second row.
func (d *DB) Append(rec *domain.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}

	unlock, err := d.lock()
	if err != nil {
		return err
	}
	defer unlock()

	recs, err := d.Records()
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	for _, existing := range recs {
		if existing.Run == rec.Run {
			return fmt.Errorf("run %s: %w", rec.Run, domain.ErrDuplicateRun)
		}
	}
	return d.commit(append(recs, *rec))
}

// commit writes the header and rows to a temp file in the database
// directory, syncs it, and renames it into place.
func (d *DB) commit(recs []domain.Record) error {
	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+FileName+".*")
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	for _, r := range recs {
		if err := w.Write(r.Fields()); err != nil {
			tmp.Close()
			return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	return nil
}

// lock takes an exclusive advisory lock on the sidecar file, blocking
// until the holder releases it.
func (d *DB) lock() (func(), error) {
	f, err := os.OpenFile(d.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrDatabaseWriteFailed)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %v: %w", d.lockPath, err, domain.ErrDatabaseWriteFailed)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// readRecords parses CSV rows after verifying the header.
func readRecords(r io.Reader) ([]domain.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected column %q at position %d, want %q", header[i], i, col)
		}
	}

	var recs []domain.Record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		recs = append(recs, domain.Record{
			Organism:       row[0],
			Taxid:          row[1],
			Biosample:      row[2],
			Run:            row[3],
			BasesGb:        row[4],
			Coverage:       row[5],
			GenomeSize:     row[6],
			Heterozygosity: row[7],
		})
	}
	return recs, nil
}
