// Package cron runs the maintenance jobs (summary sweep, raw retention,
// backups) on cron expressions and keeps a ledger of their runs.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bowerhall/chordial/internal/logger"
)

// JobFunc does one maintenance pass and returns a short result summary
type JobFunc func(ctx context.Context, now time.Time) (string, error)

// AlertFunc reports a failed job to the operator
type AlertFunc func(component, message string, err error)

type job struct {
	name string
	spec string
	fn   JobFunc
	id   cron.EntryID
}

// Entry describes a registered job
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

type Runner struct {
	cron  *cron.Cron
	store *Store
	alert AlertFunc
	now   func() time.Time

	mu   sync.Mutex
	jobs map[string]*job
	ctx  context.Context
}

// NewRunner builds a runner evaluating schedules in loc. store and alert may be nil.
func NewRunner(store *Store, loc *time.Location, alert AlertFunc) *Runner {
	if loc == nil {
		loc = time.UTC
	}

	l := cronLogger{}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		store: store,
		alert: alert,
		now:   time.Now,
		jobs:  make(map[string]*job),
		ctx:   context.Background(),
	}
}

// Add registers fn under name. An empty spec registers the job for RunNow only.
func (r *Runner) Add(name, spec string, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}

	j := &job{name: name, spec: spec, fn: fn}
	if spec != "" {
		sched, err := cronParser.Parse(spec)
		if err != nil {
			return fmt.Errorf("invalid cron schedule for %s: %w", name, err)
		}
		j.id = r.cron.Schedule(sched, cron.FuncJob(func() {
			r.mu.Lock()
			ctx := r.ctx
			r.mu.Unlock()
			r.run(ctx, j)
		}))
	}

	r.jobs[name] = j
	return nil
}

// Start runs the scheduler until ctx is cancelled, then waits for running jobs
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.cron.Start()
	logger.Info("maintenance started", "jobs", len(r.Entries()))

	<-ctx.Done()

	stopped := r.cron.Stop()
	<-stopped.Done()
	logger.Debug("maintenance stopped")
}

// RunNow runs a registered job immediately
func (r *Runner) RunNow(ctx context.Context, name string) (*Run, error) {
	r.mu.Lock()
	j, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}

	run := r.run(ctx, j)
	if run.Failed() {
		return run, fmt.Errorf("%s: %s", name, run.Error)
	}
	return run, nil
}

func (r *Runner) run(ctx context.Context, j *job) *Run {
	started := r.now()
	logger.Debug("maintenance job starting", "job", j.name)

	result, err := j.fn(ctx, started)

	run := &Run{Job: j.name, StartedAt: started, FinishedAt: r.now(), Result: result}
	if err != nil {
		run.Error = err.Error()
		logger.Error("maintenance job failed", "job", j.name, "error", err)
		if r.alert != nil {
			r.alert("maintenance", j.name+" failed", err)
		}
	} else {
		logger.Info("maintenance job finished", "job", j.name, "result", result, "took", run.FinishedAt.Sub(started))
	}

	if r.store != nil {
		if saved, err := r.store.Record(context.WithoutCancel(ctx), *run); err != nil {
			logger.Warn("failed to record maintenance run", "job", j.name, "error", err)
		} else {
			run = saved
		}
	}

	return run
}

// Entries lists registered jobs by name
func (r *Runner) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.jobs))
	for _, j := range r.jobs {
		e := Entry{Name: j.name, Spec: j.spec}
		if j.spec != "" {
			e.Next = r.cron.Entry(j.id).Next
			if e.Next.IsZero() {
				e.Next, _ = ComputeNextRun(j.spec, r.now().In(r.cron.Location()))
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, k int) bool { return entries[i].Name < entries[k].Name })
	return entries
}

// cronLogger routes robfig/cron's own logging through ours
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
