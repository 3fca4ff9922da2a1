// Package scheduler implements the Job Scheduler of spec §4.2: admission,
// queuing, dispatch, retry, timeout, and cancellation for asynchronous
// clipping jobs. Concurrency and retry policy mirror the teacher's
// RetryWithBackoff pattern, generalized from a fixed attempt table to the
// exponential-with-jitter formula the spec requires.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/eventbus"
	"viralclip-backend/internal/metrics"
	"viralclip-backend/internal/models"
)

type jobRepo interface {
	Create(j *models.Job) error
	Get(id uuid.UUID) (*models.Job, error)
	GetForPrincipal(id uuid.UUID, principalID string) (*models.Job, error)
	List(principalID string, status models.JobStatus, limit, offset int) ([]*models.Job, error)
	ListRunningWithoutLiveLease(now time.Time) ([]*models.Job, error)
	ListReady(class models.PriorityClass, limit int) ([]*models.Job, error)
	CountRunningForPrincipal(principalID string) (int, error)
	CountRunning() (int, error)
	Update(j *models.Job) error
	Delete(id uuid.UUID) error
}

type blobExistence interface {
	Exists(id string) (bool, error)
}

// ProgressReporter is how a running PipelineRunner tells the scheduler
// about stage progress and asks whether it has been asked to cancel.
type ProgressReporter interface {
	Report(phase string, percent int, description string)
	Cancelled() bool
}

// PipelineRunner executes the Media Pipeline's stage sequence for one job
// attempt. A retryable failure must be returned as an *apperr.Error with a
// retryable Kind; anything else is treated as terminal.
type PipelineRunner interface {
	Run(ctx context.Context, job *models.Job, report ProgressReporter) (*models.JobResults, error)
}

// Options configures the policy knobs of spec §4.2/§6.4.
type Options struct {
	WorkerConcurrency int
	PerPrincipalLimit int
	MaxAttempts       int
	RetryBase         time.Duration
	RetryFactor       float64
	RetryJitter       float64
	JobDeadline       time.Duration
	LeaseTTL          time.Duration
	DispatchInterval  time.Duration
}

// Scheduler owns the PENDING -> RUNNING -> {COMPLETED, FAILED, CANCELLED}
// state machine. Each job id has exactly one writer at a time: either the
// dispatch loop, a running attempt's completion, or a handler-triggered
// cancel — all serialized by jobLock.
type Scheduler struct {
	jobs   jobRepo
	blobs  blobExistence
	bus    *eventbus.Bus
	plans  PlanResolver
	runner PipelineRunner
	log    zerolog.Logger
	opts   Options

	slots chan struct{}

	mu      sync.Mutex
	jobLock map[uuid.UUID]*sync.Mutex
	cancel  map[uuid.UUID]context.CancelFunc
}

func New(jobs jobRepo, blobs blobExistence, bus *eventbus.Bus, plans PlanResolver, runner PipelineRunner, log zerolog.Logger, opts Options) *Scheduler {
	if opts.DispatchInterval <= 0 {
		opts.DispatchInterval = 500 * time.Millisecond
	}
	return &Scheduler{
		jobs:    jobs,
		blobs:   blobs,
		bus:     bus,
		plans:   plans,
		runner:  runner,
		log:     log,
		opts:    opts,
		slots:   make(chan struct{}, opts.WorkerConcurrency),
		jobLock: make(map[uuid.UUID]*sync.Mutex),
		cancel:  make(map[uuid.UUID]context.CancelFunc),
	}
}

func (s *Scheduler) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.jobLock[id]
	if !ok {
		l = &sync.Mutex{}
		s.jobLock[id] = l
	}
	return l
}

// Submit creates a PENDING job and enqueues it into its priority class's
// FIFO, per spec §4.2.
func (s *Scheduler) Submit(principalID, inputBlobID string, options models.JobOptions) (*models.Job, error) {
	if principalID == "" || inputBlobID == "" {
		return nil, apperr.New(apperr.KindInvalidParameters, "principal and input blob are required")
	}
	options.Normalize()

	job := &models.Job{
		ID:            uuid.New(),
		PrincipalID:   principalID,
		JobType:       models.JobTypeVideoClip,
		InputBlobID:   inputBlobID,
		Options:       options,
		PriorityClass: s.plans.PriorityClassFor(principalID),
		Status:        models.JobPending,
	}
	if err := s.jobs.Create(job); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientIO, "create job", err)
	}
	s.bus.Publish(job.ID.String(), job.Status, job.Progress)
	return job, nil
}

// Cancel transitions PENDING->CANCELLED immediately, or sets a cancellation
// flag a RUNNING attempt observes at its next checkpoint.
func (s *Scheduler) Cancel(jobID uuid.UUID, principalID string) error {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.jobs.GetForPrincipal(jobID, principalID)
	if err != nil {
		return apperr.New(apperr.KindNotFound, "job not found")
	}
	if job.Terminal() {
		return apperr.New(apperr.KindConflict, "job has already reached a terminal status")
	}

	if job.Status == models.JobPending {
		job.Status = models.JobCancelled
		now := time.Now()
		job.FinishedAt = &now
		if err := s.jobs.Update(job); err != nil {
			return apperr.Wrap(apperr.KindTransientIO, "update job", err)
		}
		s.bus.Publish(job.ID.String(), job.Status, job.Progress)
		return nil
	}

	s.mu.Lock()
	if cancel, ok := s.cancel[jobID]; ok {
		cancel()
	}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) Status(jobID uuid.UUID, principalID string) (*models.Job, error) {
	job, err := s.jobs.GetForPrincipal(jobID, principalID)
	if err != nil {
		return nil, apperr.New(apperr.KindNotFound, "job not found")
	}
	return job, nil
}

func (s *Scheduler) List(principalID string, status models.JobStatus, limit, offset int) ([]*models.Job, error) {
	jobs, err := s.jobs.List(principalID, status, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientIO, "list jobs", err)
	}
	return jobs, nil
}

// Subscribe returns a live event stream for a job the principal owns.
func (s *Scheduler) Subscribe(jobID uuid.UUID, principalID string) (*eventbus.Subscription, error) {
	if _, err := s.jobs.GetForPrincipal(jobID, principalID); err != nil {
		return nil, apperr.New(apperr.KindNotFound, "job not found")
	}
	return s.bus.Subscribe(jobID.String()), nil
}

// RecoverCrashed implements the crash-recovery rule of spec §4.2: a RUNNING
// job with no live worker lease returns to PENDING if it still has
// attempts remaining and its input blob exists, otherwise FAILED with kind
// worker-lost.
func (s *Scheduler) RecoverCrashed() error {
	stale, err := s.jobs.ListRunningWithoutLiveLease(time.Now())
	if err != nil {
		return err
	}
	for _, job := range stale {
		exists, _ := s.blobs.Exists(job.InputBlobID)
		if job.Attempts < s.opts.MaxAttempts && exists {
			job.Status = models.JobPending
			job.WorkerLease = ""
			job.LeaseExpiresAt = nil
			s.log.Warn().Str("job_id", job.ID.String()).Msg("recovered crashed job to PENDING")
		} else {
			job.Status = models.JobFailed
			job.Error = &models.JobError{Kind: string(apperr.KindWorkerLost), Message: "worker lost lease across restart", Retryable: true}
			now := time.Now()
			job.FinishedAt = &now
			s.log.Warn().Str("job_id", job.ID.String()).Msg("crashed job exhausted attempts, marking FAILED")
		}
		if err := s.jobs.Update(job); err != nil {
			return err
		}
		s.bus.Publish(job.ID.String(), job.Status, job.Progress)
	}
	return nil
}

// Run drives the dispatch loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.DispatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchTick()
		}
	}
}

func (s *Scheduler) dispatchTick() {
	for _, class := range priorityOrder {
		available := s.availableSlots()
		if available <= 0 {
			return
		}
		ready, err := s.jobs.ListReady(class, available*4)
		if err != nil {
			s.log.Error().Err(err).Str("priority_class", string(class)).Msg("list ready jobs failed")
			continue
		}
		if len(ready) == 0 {
			continue
		}

		running := make(map[string]int)
		seen := make(map[string]bool)
		for _, job := range ready {
			if seen[job.PrincipalID] {
				continue
			}
			seen[job.PrincipalID] = true
			count, err := s.jobs.CountRunningForPrincipal(job.PrincipalID)
			if err != nil {
				continue
			}
			running[job.PrincipalID] = count
		}

		metrics.QueueDepth.WithLabelValues(string(class)).Set(float64(len(ready)))

		for _, job := range SelectDispatchable(ready, running, s.opts.PerPrincipalLimit, available) {
			s.dispatch(job)
		}
	}
}

func (s *Scheduler) availableSlots() int {
	return cap(s.slots) - len(s.slots)
}

func (s *Scheduler) dispatch(job *models.Job) {
	lock := s.lockFor(job.ID)
	lock.Lock()
	defer lock.Unlock()

	if current, err := s.jobs.Get(job.ID); err != nil || current.Status != models.JobPending {
		return
	}

	select {
	case s.slots <- struct{}{}:
	default:
		return
	}

	now := time.Now()
	leaseExpiry := now.Add(s.opts.LeaseTTL)
	job.Status = models.JobRunning
	job.WorkerLease = NewLeaseToken()
	job.LeaseExpiresAt = &leaseExpiry
	job.StartedAt = &now
	job.Attempts++

	if err := s.jobs.Update(job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to mark job RUNNING")
		<-s.slots
		return
	}
	s.bus.Publish(job.ID.String(), job.Status, job.Progress)
	metrics.RunningJobs.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobDeadline)
	s.mu.Lock()
	s.cancel[job.ID] = cancel
	s.mu.Unlock()

	go s.runJob(ctx, cancel, job)
}

func (s *Scheduler) runJob(ctx context.Context, cancel context.CancelFunc, job *models.Job) {
	defer func() {
		<-s.slots
		s.mu.Lock()
		delete(s.cancel, job.ID)
		s.mu.Unlock()
		cancel()
		metrics.RunningJobs.Dec()
	}()

	reporter := &jobReporter{ctx: ctx, bus: s.bus, jobs: s.jobs, job: job}
	results, err := s.runner.Run(ctx, job, reporter)
	s.finish(job, results, err, ctx.Err())
}

func (s *Scheduler) finish(job *models.Job, results *models.JobResults, runErr error, ctxErr error) {
	lock := s.lockFor(job.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.jobs.Get(job.ID)
	if err == nil {
		job = current
	}
	if job.Status == models.JobCancelled {
		return
	}

	now := time.Now()

	switch {
	case runErr == nil && ctxErr != context.Canceled:
		job.Status = models.JobCompleted
		job.Results = results
		job.FinishedAt = &now
		job.Progress = models.Progress{Phase: models.PhaseFinalize, Percent: 100, Description: "done"}

	case ctxErr == context.Canceled:
		job.Status = models.JobCancelled
		job.FinishedAt = &now

	case ctxErr == context.DeadlineExceeded:
		s.scheduleOutcome(job, &models.JobError{Kind: string(apperr.KindTimeout), Message: "job exceeded its global deadline", Retryable: true}, now)

	default:
		ae, ok := apperr.As(runErr)
		if !ok {
			ae = &apperr.Error{Kind: apperr.KindInternal, Message: runErr.Error()}
		}
		s.scheduleOutcome(job, &models.JobError{Kind: string(ae.Kind), Message: ae.Message, Retryable: ae.Retryable()}, now)
	}

	if err := s.jobs.Update(job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to persist job outcome")
		return
	}
	s.bus.Publish(job.ID.String(), job.Status, job.Progress)
	if job.Status == models.JobCompleted || job.Status == models.JobFailed || job.Status == models.JobCancelled {
		metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	}
}

// scheduleOutcome decides between a backed-off retry and a terminal
// failure, per spec §4.2's retry rule.
func (s *Scheduler) scheduleOutcome(job *models.Job, jobErr *models.JobError, now time.Time) {
	if jobErr.Retryable && job.Attempts < s.opts.MaxAttempts {
		delay := Backoff(job.Attempts, s.opts.RetryBase, s.opts.RetryFactor, s.opts.RetryJitter)
		next := now.Add(delay)
		job.Status = models.JobPending
		job.WorkerLease = ""
		job.LeaseExpiresAt = nil
		job.NextAttemptAt = &next
		metrics.RetriesTotal.WithLabelValues(jobErr.Kind).Inc()
		return
	}
	job.Status = models.JobFailed
	job.Error = jobErr
	job.FinishedAt = &now
}

// jobReporter adapts a running attempt's progress calls into bus
// publishes, clamped to the stage's fixed percent band (§4.4).
type jobReporter struct {
	ctx  context.Context
	bus  *eventbus.Bus
	jobs jobRepo
	job  *models.Job
}

func (r *jobReporter) Report(phase string, percent int, description string) {
	if rng, ok := models.PhaseRanges[phase]; ok {
		if percent < rng.Low {
			percent = rng.Low
		}
		if percent > rng.High {
			percent = rng.High
		}
	}
	r.job.Progress = models.Progress{Phase: phase, Percent: percent, Description: description}
	_ = r.jobs.Update(r.job)
	r.bus.Publish(r.job.ID.String(), r.job.Status, r.job.Progress)
}

func (r *jobReporter) Cancelled() bool {
	return r.ctx.Err() != nil
}
