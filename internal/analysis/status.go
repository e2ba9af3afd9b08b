// File path: internal/analysis/status.go
package analysis

import (
	"sync"
	"time"

	"github.com/repolens/repolens/internal/devops"
	"github.com/repolens/repolens/internal/repo"
)

// State is the lifecycle stage of an analysis job.
type State string

const (
	StatePending   State = "pending"
	StateFetching  State = "fetching"
	StateChunking  State = "chunking"
	StateEmbedding State = "embedding"
	StateAnalyzing State = "analyzing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// terminal states accept no further transitions.
func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Stats accumulates pipeline counters as stages complete.
type Stats struct {
	FileCount           int     `json:"file_count"`
	ChunkCount          int     `json:"chunk_count"`
	EmbeddingsGenerated int     `json:"embeddings_generated"`
	AnalysisScore       float64 `json:"analysis_score"`
}

// Status is the externally visible record of one analysis job.
type Status struct {
	ID           string         `json:"id"`
	RepoID       string         `json:"repo_id"`
	RepoURL      string         `json:"repo_url"`
	UserID       string         `json:"user_id,omitempty"`
	ProjectID    string         `json:"project_id,omitempty"`
	State        State          `json:"state"`
	Progress     int            `json:"progress"`
	CurrentStep  string         `json:"current_step"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Metadata     *repo.Metadata `json:"metadata,omitempty"`
	DevOpsResult *devops.Result `json:"devops_result,omitempty"`
	Stats        Stats          `json:"stats"`
}

func (s *Status) clone() *Status {
	out := *s
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		out.CompletedAt = &completed
	}
	if s.Metadata != nil {
		meta := *s.Metadata
		out.Metadata = &meta
	}
	if s.DevOpsResult != nil {
		result := *s.DevOpsResult
		result.Recommendations = append([]string(nil), s.DevOpsResult.Recommendations...)
		out.DevOpsResult = &result
	}
	return &out
}

// registry is the in-memory status table. Readers always receive copies;
// writers mutate under the lock. Updates addressed to an unknown or deleted
// analysis are dropped silently so a late-running job cannot resurrect a
// record the caller already removed.
type registry struct {
	mu       sync.RWMutex
	statuses map[string]*Status
}

func newRegistry() *registry {
	return &registry{statuses: make(map[string]*Status)}
}

func (r *registry) create(status *Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[status.ID] = status.clone()
}

func (r *registry) get(id string) (*Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[id]
	if !ok {
		return nil, false
	}
	return status.clone(), true
}

func (r *registry) all() []*Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Status, 0, len(r.statuses))
	for _, status := range r.statuses {
		out = append(out, status.clone())
	}
	return out
}

func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.statuses[id]; !ok {
		return false
	}
	delete(r.statuses, id)
	return true
}

// update applies fn to the stored record if it still exists and has not
// reached a terminal state.
func (r *registry) update(id string, fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.statuses[id]
	if !ok || status.State.terminal() {
		return
	}
	fn(status)
}

// setStage advances the job to a new state, step label, and progress value.
// Progress never moves backwards while the job is running.
func (r *registry) setStage(id string, state State, step string, progress int) {
	r.update(id, func(status *Status) {
		status.State = state
		status.CurrentStep = step
		if progress > status.Progress {
			status.Progress = progress
		}
	})
}

// setFailed marks the job failed, resetting progress to zero. Failure is
// terminal; there is no retry.
func (r *registry) setFailed(id string, message string) {
	r.update(id, func(status *Status) {
		now := time.Now().UTC()
		status.State = StateFailed
		status.Progress = 0
		status.CurrentStep = "failed"
		status.Error = message
		status.CompletedAt = &now
	})
}

func (r *registry) setCompleted(id string) {
	r.update(id, func(status *Status) {
		now := time.Now().UTC()
		status.State = StateCompleted
		status.Progress = 100
		status.CurrentStep = "completed"
		status.CompletedAt = &now
	})
}
