package models

import "time"

import "github.com/google/uuid"

// JobStatus is a node in the state machine of §4.2: PENDING -> RUNNING ->
// {COMPLETED, FAILED, CANCELLED}, with CANCELLED also reachable from PENDING.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// PriorityClass is the scheduler's single coordination dimension; every
// principal maps to exactly one class via a PlanResolver.
type PriorityClass string

const (
	PriorityInteractive PriorityClass = "interactive"
	PriorityBatch       PriorityClass = "batch"
)

type JobType string

const JobTypeVideoClip JobType = "VIDEOCLIP"

// Progress carries the currently executing stage name and a monotonically
// advancing percentage within the attempt.
type Progress struct {
	Phase       string
	Percent     int
	Description string
}

// JobError is the terminal-failure descriptor persisted on a FAILED job.
// Kind mirrors an apperr.Kind but is copied here, not imported, so the
// model stays independent of the error package's retry bookkeeping.
type JobError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// JobResults is the structured payload a COMPLETED job carries; no ad-hoc
// JSON blobs, per the design notes on typed producers/consumers.
type JobResults struct {
	TotalClips  int         `json:"total_clips"`
	ArtifactIDs []uuid.UUID `json:"artifact_ids"`
}

type Job struct {
	ID            uuid.UUID
	PrincipalID   string
	JobType       JobType
	InputBlobID   string
	Options       JobOptions
	PriorityClass PriorityClass

	Status   JobStatus
	Progress Progress
	Error    *JobError
	Results  *JobResults

	Attempts       int
	WorkerLease    string
	LeaseExpiresAt *time.Time
	NextAttemptAt  *time.Time

	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Terminal reports whether the job has reached a status with no further
// transitions (§4.2's DAG leaves).
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Stage names and their fixed percent sub-ranges, per §4.4's progress table.
const (
	PhaseProbe      = "probe"
	PhaseExtract    = "extract"
	PhaseTranscribe = "transcribe"
	PhaseScore      = "score"
	PhaseCut        = "cut"
	PhaseReframe    = "reframe"
	PhaseCaption    = "caption"
	PhaseFinalize   = "finalize"
)

// PhaseRange is the [low, high] percent band a stage is allowed to report
// progress within; percent is non-decreasing inside a stage and never
// crosses into the next stage's band.
type PhaseRange struct {
	Low, High int
}

var PhaseRanges = map[string]PhaseRange{
	PhaseProbe:      {0, 5},
	PhaseExtract:    {5, 10},
	PhaseTranscribe: {10, 40},
	PhaseScore:      {40, 45},
	PhaseCut:        {45, 60},
	PhaseReframe:    {60, 75},
	PhaseCaption:    {75, 90},
	PhaseFinalize:   {90, 100},
}

// StageOrder is the strict serial order stages run in, per §4.4 and §5.
var StageOrder = []string{
	PhaseProbe, PhaseExtract, PhaseTranscribe, PhaseScore,
	PhaseCut, PhaseReframe, PhaseCaption, PhaseFinalize,
}
