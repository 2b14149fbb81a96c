// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/brightkite/channelpull/internal/pull"
	"github.com/brightkite/channelpull/internal/store"
)

// JobStore keeps pull job records in a map.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]pull.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]pull.Job)}
}

// SaveJob inserts or replaces the record keyed by job.ID.
func (s *JobStore) SaveJob(_ context.Context, job pull.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (pull.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return pull.Job{}, store.ErrNotFound
	}
	return job, nil
}

// ListJobs returns jobs newest first with limit/offset paging.
func (s *JobStore) ListJobs(_ context.Context, limit, offset int) ([]pull.Job, error) {
	s.mu.RLock()
	all := make([]pull.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []pull.Job{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// FailRunning marks every non-terminal record FAILED with the given reason.
func (s *JobStore) FailRunning(_ context.Context, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() {
			continue
		}
		job.Status = pull.StatusFailed
		job.Error = reason
		completed := job.UpdatedAt
		job.CompletedAt = &completed
		s.jobs[id] = job
		changed++
	}
	return changed, nil
}
