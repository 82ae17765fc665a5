package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var ErrJobNotFound = errors.New("job not found")

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Trigger(ctx context.Context, name string) (bool, error)
	Start(ctx context.Context)
	Stop()
}

type entry struct {
	job     Job
	spec    string
	running atomic.Bool
}

// CronScheduler runs jobs on five field specs or descriptors such as
// "@every 1h". Cron firings and manual triggers share one guard per job, so
// a job never runs twice at the same time.
type CronScheduler struct {
	cron *cron.Cron

	mu      sync.RWMutex
	entries map[string]*entry
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]*entry),
		ctx:     context.Background(),
	}
}

// AddJob registers job. An empty spec registers it for Trigger only.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	e := &entry{job: job, spec: spec}
	if spec != "" {
		if _, err := c.cron.AddFunc(spec, func() { c.run(c.baseContext(), e, "cron") }); err != nil {
			logger.Error("schedule job failed", zap.Error(err))
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}
	c.entries[name] = e
	logger.Info("job registered")
	return nil
}

func (c *CronScheduler) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Trigger runs the named job now and waits for it. It reports false when
// the job was skipped because a previous run is still going.
func (c *CronScheduler) Trigger(ctx context.Context, name string) (bool, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return c.run(ctx, e, "trigger")
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

// Stop waits for cron fired jobs to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) baseContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx
}

func (c *CronScheduler) run(ctx context.Context, e *entry, source string) (bool, error) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job", e.job.Name()),
		zap.String("source", source),
	)
	if !e.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return false, nil
	}
	defer e.running.Store(false)

	start := time.Now()
	logger.Debug("job started")
	err := e.job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", elapsed))
		return true, err
	}
	logger.Info("job finished", zap.Duration("duration", elapsed))
	return true, nil
}
