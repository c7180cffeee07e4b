// Package acquire downloads the raw read data for one run into the
// workspace by driving the sra-tools binaries: prefetch pulls the .sra
// archive, fasterq-dump extracts fastq files from it. Every byte lands
// under the workspace so one cleanup call removes it all.
package acquire

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/dereneaton/kmunity/internal/config"
	"github.com/dereneaton/kmunity/internal/domain"
	"github.com/dereneaton/kmunity/internal/runlog"
	"github.com/dereneaton/kmunity/internal/workspace"
)

// prefetchMaxSize caps the .sra download size accepted by prefetch.
const prefetchMaxSize = "1000000000000"

// Manager acquires read data for runs.
type Manager struct {
	prefetch        string
	fasterqDump     string
	retries         int
	backoff         time.Duration
	spaceMultiplier float64
	log             *runlog.Logger
}

// New creates a Manager from configuration.
func New(cfg config.AcquireConfig, log *runlog.Logger) *Manager {
	if log == nil {
		log = runlog.Discard()
	}
	return &Manager{
		prefetch:        cfg.Prefetch,
		fasterqDump:     cfg.FasterqDump,
		retries:         cfg.Retries,
		backoff:         cfg.RetryBackoff,
		spaceMultiplier: cfg.SpaceMultiplier,
		log:             log,
	}
}

// FetchResult holds the local paths produced by a successful download.
type FetchResult struct {
	Fastqs  []string
	LibFile string
	Bytes   int64
}

// Fetch downloads all read files for the task into the workspace.
// Transient failures are retried with doubling backoff; a run that the
// archive rejects outright fails immediately with DownloadFailed.
func (m *Manager) Fetch(ctx context.Context, task *domain.RunTask, ws *workspace.Workspace) (*FetchResult, error) {
	if err := m.checkSpace(ws.Root, task.Bases); err != nil {
		return nil, err
	}

	m.log.Exec("{prefetch} {run} -O {workspace} -X " + prefetchMaxSize)
	out, err := m.runWithRetry(ctx, m.prefetch, task.Run, "-O", ws.Root, "-X", prefetchMaxSize)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("prefetch %s: %s: %w", task.Run, firstLine(out), domain.ErrDownloadFailed)
	}
	sra, err := m.findOne(ws, ".sra")
	if err != nil {
		return nil, fmt.Errorf("prefetch %s: %v: %w", task.Run, err, domain.ErrDownloadFailed)
	}
	if info, err := os.Stat(sra); err == nil {
		m.log.Infof("downloaded %s (%s)", filepath.Base(sra), humanize.Bytes(uint64(info.Size())))
	}

	m.log.Exec("{fasterq-dump} {run} -O {workspace} -t {workspace}")
	out, err = m.runWithRetry(ctx, m.fasterqDump, task.Run, "-O", ws.Root, "-t", ws.Root)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fasterq-dump %s: %s: %w", task.Run, firstLine(out), domain.ErrDownloadFailed)
	}

	fastqs, err := filepath.Glob(ws.Path("*.fastq"))
	if err != nil {
		return nil, err
	}
	if len(fastqs) == 0 {
		return nil, fmt.Errorf("fasterq-dump %s produced no fastq files: %w", task.Run, domain.ErrDownloadFailed)
	}
	sort.Strings(fastqs)

	// Size every fastq concurrently; a missing file here is a failed
	// extraction even if the tool exited zero.
	var mu sync.Mutex
	var total int64
	g, gctx := errgroup.WithContext(ctx)
	for _, fq := range fastqs {
		fq := fq
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(fq)
			if err != nil {
				return fmt.Errorf("missing fastq %s: %w", filepath.Base(fq), domain.ErrDownloadFailed)
			}
			mu.Lock()
			total += info.Size()
			mu.Unlock()
			m.log.Infof("fastq dumped %s (%s)", filepath.Base(fq), humanize.Bytes(uint64(info.Size())))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// kmerfreq reads its inputs from a lib file listing one fastq per line.
	libFile := ws.Path(task.Run + "_files.lib")
	if err := os.WriteFile(libFile, []byte(strings.Join(fastqs, "\n")+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing lib file: %w", err)
	}

	return &FetchResult{Fastqs: fastqs, LibFile: libFile, Bytes: total}, nil
}

// checkSpace fails fast when the scratch filesystem cannot hold the
// expected download plus extracted fastqs. Advisory only: space can
// still fill up mid-transfer.
func (m *Manager) checkSpace(dir string, expectedBases int64) error {
	if expectedBases <= 0 {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return nil // cannot stat: proceed and let the download fail
	}
	avail := int64(st.Bavail) * st.Bsize
	required := int64(float64(expectedBases) * m.spaceMultiplier)
	if avail < required {
		return fmt.Errorf("need %s free, have %s: %w",
			humanize.Bytes(uint64(required)), humanize.Bytes(uint64(avail)), domain.ErrInsufficientSpace)
	}
	return nil
}

// runWithRetry executes a tool, retrying transient failures a bounded
// number of times. The returned string is the last combined output.
func (m *Manager) runWithRetry(ctx context.Context, bin string, args ...string) (string, error) {
	var out string
	var err error
	backoff := m.backoff
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			m.log.Infof("retrying %s (attempt %d/%d) in %s", filepath.Base(bin), attempt+1, m.retries+1, backoff)
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		cmd := exec.CommandContext(ctx, bin, args...)
		raw, runErr := cmd.CombinedOutput()
		out = string(raw)
		err = runErr
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if !transient(out) {
			return out, err
		}
	}
	return out, err
}

// transient reports whether a tool failure looks like a network blip
// worth retrying. Rejections by the archive are final.
func transient(output string) bool {
	lower := strings.ToLower(output)
	for _, fatal := range []string{"not found", "denied", "invalid accession", "no data", "unauthorized", "does not exist"} {
		if strings.Contains(lower, fatal) {
			return false
		}
	}
	return true
}

// findOne locates exactly one file with the given extension anywhere
// under the workspace. prefetch nests its output one directory deep.
func (m *Manager) findOne(ws *workspace.Workspace, ext string) (string, error) {
	files, err := ws.Files()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, f := range files {
		if filepath.Ext(f) == ext {
			matches = append(matches, f)
		}
	}
	if len(matches) != 1 {
		return "", fmt.Errorf("expected one %s file, found %d", ext, len(matches))
	}
	return matches[0], nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
