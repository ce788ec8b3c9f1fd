package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is the work a scheduled job does on each run
type JobFunc func(ctx context.Context) error

// Job is a registered periodic job
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Expression  string     `json:"expression"`
	Runs        int        `json:"runs"`
	LastRunTime *time.Time `json:"last_run_time,omitempty"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// CronScheduler runs the console's periodic jobs
type CronScheduler struct {
	logger *zap.Logger
	cron   *cron.Cron
	parser cron.Parser

	mu       sync.Mutex
	ctx      context.Context
	jobs     map[string]*Job
	entryIDs map[string]cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// NewCronScheduler creates a new scheduler. Expressions carry a seconds field.
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		cron.WithLogger(cronLogger),
	}

	return &CronScheduler{
		logger:   logger.Named("scheduler"),
		cron:     cron.New(cronOptions...),
		parser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		ctx:      context.Background(),
		jobs:     make(map[string]*Job),
		entryIDs: make(map[string]cron.EntryID),
	}
}

// Start starts running jobs. Jobs receive ctx.
func (s *CronScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.ListJobs())))
}

// Stop stops the scheduler and waits for running jobs
func (s *CronScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// AddJob registers fn to run on the cron expression
func (s *CronScheduler) AddJob(name, expression string, fn JobFunc) (*Job, error) {
	spec, err := s.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidExpression, expression, err)
	}

	job := &Job{
		ID:         uuid.New().String(),
		Name:       name,
		Expression: expression,
	}
	next := spec.Next(time.Now())
	job.NextRunTime = &next

	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := s.cron.Schedule(spec, &cronJob{scheduler: s, id: job.ID, spec: spec, fn: fn})
	s.jobs[job.ID] = job
	s.entryIDs[job.ID] = entryID

	s.logger.Info("Added job",
		zap.String("id", job.ID),
		zap.String("name", name),
		zap.String("expression", expression),
		zap.Time("next_run", next))

	snapshot := *job
	return &snapshot, nil
}

// RemoveJob unregisters a job
func (s *CronScheduler) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entryIDs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	s.cron.Remove(entryID)
	delete(s.entryIDs, id)
	delete(s.jobs, id)

	s.logger.Info("Removed job", zap.String("id", id))
	return nil
}

// GetJob returns a copy of a job's state
func (s *CronScheduler) GetJob(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	snapshot := *job
	return &snapshot, nil
}

// ListJobs returns copies of every job, ordered by name
func (s *CronScheduler) ListJobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *CronScheduler
	id        string
	spec      cron.Schedule
	fn        JobFunc
}

// Run implements cron.Job
func (j *cronJob) Run() {
	s := j.scheduler
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	now := time.Now()
	err := j.fn(ctx)
	next := j.spec.Next(time.Now())

	s.mu.Lock()
	job, ok := s.jobs[j.id]
	if ok {
		job.Runs++
		job.LastRunTime = &now
		job.NextRunTime = &next
		job.LastError = ""
		if err != nil {
			job.LastError = err.Error()
		}
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if err != nil {
		s.logger.Error("Job failed",
			zap.String("id", j.id),
			zap.String("name", job.Name),
			zap.Error(err))
		return
	}
	s.logger.Debug("Executed job",
		zap.String("id", j.id),
		zap.String("name", job.Name),
		zap.Duration("took", time.Since(now)),
		zap.Time("next_run", next))
}
