package ingestion

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docreply/core"
)

// JobStatus is the lifecycle state of a background ingestion.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is a snapshot of a background ingestion.
type Job struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	DocumentID  core.DocumentID `json:"document_id,omitempty"`
	ChunkCount  int             `json:"chunk_count"`
	DuplicateOf core.DocumentID `json:"duplicate_of,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

type jobTable struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func newJobTable() *jobTable {
	return &jobTable{jobs: make(map[string]*Job)}
}

func (t *jobTable) add() string {
	now := time.Now().UTC()
	job := &Job{ID: uuid.NewString(), Status: JobQueued, CreatedAt: now, UpdatedAt: now}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.ID] = job
	return job.ID
}

func (t *jobTable) update(id string, fn func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if job, ok := t.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = time.Now().UTC()
	}
}

func (t *jobTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}

func (t *jobTable) get(id string) (Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}
