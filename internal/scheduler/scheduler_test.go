package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viralclip-backend/internal/apperr"
	"viralclip-backend/internal/eventbus"
	"viralclip-backend/internal/models"
)

func TestBackoff_GrowsExponentially(t *testing.T) {
	d1 := Backoff(1, time.Second, 2.0, 0)
	d2 := Backoff(2, time.Second, 2.0, 0)
	d3 := Backoff(3, time.Second, 2.0, 0)
	assert.Equal(t, time.Second, d1)
	assert.Equal(t, 2*time.Second, d2)
	assert.Equal(t, 4*time.Second, d3)
}

func TestBackoff_JitterStaysInBand(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := Backoff(2, time.Second, 2.0, 0.25)
		assert.True(t, d >= time.Duration(float64(2*time.Second)*0.75))
		assert.True(t, d <= time.Duration(float64(2*time.Second)*1.25))
	}
}

func TestSelectDispatchable_RespectsPerPrincipalLimit(t *testing.T) {
	jobs := []*models.Job{
		{ID: uuid.New(), PrincipalID: "p1"},
		{ID: uuid.New(), PrincipalID: "p1"},
		{ID: uuid.New(), PrincipalID: "p2"},
	}
	dispatchable := SelectDispatchable(jobs, map[string]int{"p1": 1}, 1, 10)
	var principals []string
	for _, j := range dispatchable {
		principals = append(principals, j.PrincipalID)
	}
	assert.Equal(t, []string{"p2"}, principals)
}

func TestSelectDispatchable_RespectsAvailableSlots(t *testing.T) {
	jobs := []*models.Job{
		{ID: uuid.New(), PrincipalID: "p1"},
		{ID: uuid.New(), PrincipalID: "p2"},
		{ID: uuid.New(), PrincipalID: "p3"},
	}
	dispatchable := SelectDispatchable(jobs, nil, 5, 2)
	assert.Len(t, dispatchable, 2)
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*models.Job)}
}

func (f *fakeJobRepo) Create(j *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *j
	f.jobs[j.ID] = &clone
	return nil
}

func (f *fakeJobRepo) Get(id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "not found")
	}
	clone := *j
	return &clone, nil
}

func (f *fakeJobRepo) GetForPrincipal(id uuid.UUID, principalID string) (*models.Job, error) {
	j, err := f.Get(id)
	if err != nil || j.PrincipalID != principalID {
		return nil, apperr.New(apperr.KindNotFound, "not found")
	}
	return j, nil
}

func (f *fakeJobRepo) List(principalID string, status models.JobStatus, limit, offset int) ([]*models.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListRunningWithoutLiveLease(now time.Time) ([]*models.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) ListReady(class models.PriorityClass, limit int) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Job
	for _, j := range f.jobs {
		if j.Status == models.JobPending && j.PriorityClass == class {
			if j.NextAttemptAt != nil && j.NextAttemptAt.After(now()) {
				continue
			}
			clone := *j
			out = append(out, &clone)
		}
	}
	return out, nil
}

func now() time.Time { return time.Now() }

func (f *fakeJobRepo) CountRunningForPrincipal(principalID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, j := range f.jobs {
		if j.PrincipalID == principalID && j.Status == models.JobRunning {
			count++
		}
	}
	return count, nil
}

func (f *fakeJobRepo) CountRunning() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, j := range f.jobs {
		if j.Status == models.JobRunning {
			count++
		}
	}
	return count, nil
}

func (f *fakeJobRepo) Update(j *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *j
	f.jobs[j.ID] = &clone
	return nil
}

func (f *fakeJobRepo) Delete(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

type fakeBlobExistence struct{ exists bool }

func (f fakeBlobExistence) Exists(id string) (bool, error) { return f.exists, nil }

type fakeRunner struct {
	run func(ctx context.Context, job *models.Job, report ProgressReporter) (*models.JobResults, error)
}

func (f *fakeRunner) Run(ctx context.Context, job *models.Job, report ProgressReporter) (*models.JobResults, error) {
	return f.run(ctx, job, report)
}

func testOptions() Options {
	return Options{
		WorkerConcurrency: 2,
		PerPrincipalLimit: 2,
		MaxAttempts:       3,
		RetryBase:         10 * time.Millisecond,
		RetryFactor:       2.0,
		RetryJitter:       0,
		JobDeadline:       time.Second,
		LeaseTTL:          time.Minute,
		DispatchInterval:  5 * time.Millisecond,
	}
}

func TestScheduler_SubmitAndDispatchToCompletion(t *testing.T) {
	jobs := newFakeJobRepo()
	bus := eventbus.New(8, nil)
	plans := NewStaticPlanResolver(nil)
	runner := &fakeRunner{run: func(ctx context.Context, job *models.Job, report ProgressReporter) (*models.JobResults, error) {
		report.Report(models.PhaseProbe, 1, "probing")
		return &models.JobResults{TotalClips: 1}, nil
	}}
	s := New(jobs, fakeBlobExistence{exists: true}, bus, plans, runner, zerolog.Nop(), testOptions())

	job, err := s.Submit("user-1", "blob-1", models.JobOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		current, err := s.Status(job.ID, "user-1")
		require.NoError(t, err)
		if current.Status == models.JobCompleted {
			assert.Equal(t, 1, current.Results.TotalClips)
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, last status %s", current.Status)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestScheduler_RetryableFailureRequeues(t *testing.T) {
	jobs := newFakeJobRepo()
	bus := eventbus.New(8, nil)
	plans := NewStaticPlanResolver(nil)
	attempt := 0
	runner := &fakeRunner{run: func(ctx context.Context, job *models.Job, report ProgressReporter) (*models.JobResults, error) {
		attempt++
		if attempt < 2 {
			return nil, apperr.New(apperr.KindTransientIO, "flaky dependency")
		}
		return &models.JobResults{TotalClips: 1}, nil
	}}
	opts := testOptions()
	s := New(jobs, fakeBlobExistence{exists: true}, bus, plans, runner, zerolog.Nop(), opts)

	job, err := s.Submit("user-1", "blob-1", models.JobOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		current, _ := s.Status(job.ID, "user-1")
		if current.Status == models.JobCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed after retry, last status %s attempts %d", current.Status, current.Attempts)
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.GreaterOrEqual(t, attempt, 2)
}

func TestScheduler_CancelPendingJobIsImmediate(t *testing.T) {
	jobs := newFakeJobRepo()
	bus := eventbus.New(8, nil)
	plans := NewStaticPlanResolver(nil)
	runner := &fakeRunner{run: func(ctx context.Context, job *models.Job, report ProgressReporter) (*models.JobResults, error) {
		return &models.JobResults{}, nil
	}}
	opts := testOptions()
	opts.WorkerConcurrency = 0 // never dispatches, so it stays PENDING
	s := New(jobs, fakeBlobExistence{exists: true}, bus, plans, runner, zerolog.Nop(), opts)

	job, err := s.Submit("user-1", "blob-1", models.JobOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(job.ID, "user-1"))
	current, err := s.Status(job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, current.Status)
}
