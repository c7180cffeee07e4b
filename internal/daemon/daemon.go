// Package daemon runs the pipeline continuously: each configured
// category is attempted on a cron schedule, and categories that ran
// out of candidates are put on cooldown until their database changes
// again (a git pull bringing rows from other contributors shifts the
// candidate set).
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dereneaton/kmunity/internal/domain"
	"github.com/dereneaton/kmunity/internal/pipeline"
)

// RunFunc executes one automatic attempt for a category.
type RunFunc func(ctx context.Context, category domain.Category) (*pipeline.Result, error)

// Daemon schedules automatic attempts across categories.
type Daemon struct {
	categories []domain.Category
	schedule   cron.Schedule
	run        RunFunc
	log        *log.Logger

	tick time.Duration

	mu       sync.RWMutex
	running  map[domain.Category]bool
	lastRun  map[domain.Category]time.Time
	cooldown map[domain.Category]bool
}

// New creates a daemon firing on the given cron expression for each
// category. Output goes to out; a nil out discards it.
func New(cronExpr string, categories []domain.Category, run RunFunc, out io.Writer) (*Daemon, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories configured")
	}
	if out == nil {
		out = io.Discard
	}
	return &Daemon{
		categories: categories,
		schedule:   schedule,
		run:        run,
		log:        log.New(out, "daemon: ", log.LstdFlags),
		tick:       time.Minute,
		running:    make(map[domain.Category]bool),
		lastRun:    make(map[domain.Category]time.Time),
		cooldown:   make(map[domain.Category]bool),
	}, nil
}

// NextRun returns the next scheduled attempt time for a category.
func (d *Daemon) NextRun(category domain.Category) time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()

	last := d.lastRun[category]
	if last.IsZero() {
		last = time.Now()
	}
	return d.schedule.Next(last)
}

// ShouldRun returns true if a category is due now.
func (d *Daemon) ShouldRun(category domain.Category) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.running[category] || d.cooldown[category] {
		return false
	}

	last := d.lastRun[category]
	if last.IsZero() {
		last = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(d.schedule.Next(last))
}

// MarkRunning marks a category as currently being attempted.
func (d *Daemon) MarkRunning(category domain.Category) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[category] = true
}

// MarkComplete records a finished attempt. A candidate drought puts
// the category on cooldown until its database changes.
func (d *Daemon) MarkComplete(category domain.Category, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running[category] = false
	d.lastRun[category] = time.Now()
	if err != nil && isNoCandidate(err) {
		d.cooldown[category] = true
	}
}

// ClearCooldown makes a drained category eligible again.
func (d *Daemon) ClearCooldown(category domain.Category) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cooldown[category] {
		d.log.Printf("category %s: cooldown cleared", category)
	}
	d.cooldown[category] = false
}

// OnCooldown reports whether a category is paused.
func (d *Daemon) OnCooldown(category domain.Category) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cooldown[category]
}

// Start runs the scheduling loop until the context is canceled.
// Attempts for distinct categories may overlap; a category never
// overlaps itself.
func (d *Daemon) Start(ctx context.Context) {
	d.log.Printf("scheduling %d categories", len(d.categories))
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			for _, category := range d.categories {
				if !d.ShouldRun(category) {
					continue
				}
				d.MarkRunning(category)
				wg.Add(1)
				go func(cat domain.Category) {
					defer wg.Done()
					d.attempt(ctx, cat)
				}(category)
			}
		}
	}
}

func (d *Daemon) attempt(ctx context.Context, category domain.Category) {
	d.log.Printf("category %s: starting attempt", category)
	res, err := d.run(ctx, category)
	d.MarkComplete(category, err)
	switch {
	case err == nil:
		d.log.Printf("category %s: %s %s", category, res.Run, res.Outcome)
	case isNoCandidate(err):
		d.log.Printf("category %s: no candidates, pausing until database changes", category)
	default:
		d.log.Printf("category %s: attempt failed: %v", category, err)
	}
}
