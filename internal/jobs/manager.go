package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/apispec/internal/scrape"
	"github.com/yourorg/apispec/pkg/types"
)

// StateError reports an illegal job request, such as retrying a job that is
// missing, not completed, or has no extracted endpoints.
type StateError struct {
	ID     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("job %s: %s", e.ID, e.Reason)
}

// Collector turns documentation pages into extracted endpoints.
type Collector interface {
	ScrapeAll(ctx context.Context, urls []string) ([]types.Endpoint, scrape.Stats, error)
}

// Synthesizer produces a specification from extracted endpoints.
type Synthesizer interface {
	Generate(ctx context.Context, endpoints []types.Endpoint, baseURL, sourceURL string) (*types.Specification, error)
}

// Evaluator scores a synthesized specification.
type Evaluator interface {
	Evaluate(ctx context.Context, spec *types.Specification, expectedCount int, sourceURL string) *types.JudgeResult
}

// Pipeline bundles the stages one job runs through.
type Pipeline struct {
	Collector   Collector
	Synthesizer Synthesizer
	Evaluator   Evaluator
}

// PipelineProvider builds a pipeline for a job, honoring a per-request
// oracle credential when one is supplied.
type PipelineProvider interface {
	Pipeline(oracleKey string) Pipeline
}

// Request is one job submission.
type Request struct {
	URL            string
	BaseURL        string
	AdditionalURLs []string
	RenderHint     bool
	OracleKey      string
}

// Options tune the manager.
type Options struct {
	Workers       int
	Retention     time.Duration
	SweepInterval time.Duration
	Logger        *slog.Logger

	// OnComplete, when set, receives a snapshot of every job that reaches
	// Completed with a specification. Used to archive results out-of-band.
	OnComplete func(types.Job)
}

type record struct {
	job *types.Job
	req Request
}

// Manager owns the job table and drives jobs through the state machine
// queued -> processing -> completed/failed. The table is the only shared
// mutable state; callers only ever see snapshot copies.
type Manager struct {
	provider  PipelineProvider
	logger    *slog.Logger
	retention time.Duration
	sem       chan struct{}

	mu   sync.RWMutex
	jobs map[string]*record

	onComplete func(types.Job)

	done chan struct{}
	once sync.Once
}

// NewManager creates a manager and starts its garbage collection sweep.
func NewManager(provider PipelineProvider, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.Retention <= 0 {
		opts.Retention = 5 * time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		provider:   provider,
		logger:     opts.Logger,
		retention:  opts.Retention,
		sem:        make(chan struct{}, opts.Workers),
		jobs:       make(map[string]*record),
		done:       make(chan struct{}),
		onComplete: opts.OnComplete,
	}
	go m.sweepLoop(opts.SweepInterval)
	return m
}

// Close stops the garbage collection sweep. In-flight jobs run to
// completion; there is no mid-flight cancellation primitive.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.done) })
}

// Submit creates a queued job and schedules it. It never blocks beyond the
// table insertion; worker capacity is awaited by the processing goroutine.
func (m *Manager) Submit(req Request) types.Job {
	job := &types.Job{
		ID:        uuid.NewString(),
		Status:    types.StatusQueued,
		SourceURL: req.URL,
		CreatedAt: time.Now().UTC(),
		Progress:  "queued",
	}
	m.mu.Lock()
	m.jobs[job.ID] = &record{job: job, req: req}
	snapshot := copyJob(job)
	m.mu.Unlock()

	m.logger.Info("job submitted", "job", job.ID, "url", req.URL, "render_hint", req.RenderHint)
	go m.process(job.ID)
	return snapshot
}

// Get returns a snapshot of the job, or false if it is unknown or already
// evicted.
func (m *Manager) Get(id string) (types.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	if !ok {
		return types.Job{}, false
	}
	return copyJob(rec.job), true
}

// RetrySynthesis reruns synthesis and judging for a completed job using its
// already-extracted endpoints. Discovery and extraction are not repeated.
func (m *Manager) RetrySynthesis(id string) (types.Job, error) {
	m.mu.Lock()
	rec, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return types.Job{}, &StateError{ID: id, Reason: "not found"}
	}
	if rec.job.Status != types.StatusCompleted {
		status := rec.job.Status
		m.mu.Unlock()
		return types.Job{}, &StateError{ID: id, Reason: fmt.Sprintf("cannot retry synthesis while %s", status)}
	}
	if len(rec.job.Endpoints) == 0 {
		m.mu.Unlock()
		return types.Job{}, &StateError{ID: id, Reason: "no extracted endpoints to synthesize from"}
	}
	rec.job.Status = types.StatusProcessing
	rec.job.RetryCount++
	rec.job.CompletedAt = nil
	rec.job.Error = ""
	rec.job.Progress = "regenerating specification"
	snapshot := copyJob(rec.job)
	m.mu.Unlock()

	m.logger.Info("synthesis retry scheduled", "job", id, "retry", snapshot.RetryCount)
	go m.resynthesize(id)
	return snapshot, nil
}

// Stats counts jobs per status, for monitoring surfaces.
func (m *Manager) Stats() map[types.JobStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.JobStatus]int, 4)
	for _, rec := range m.jobs {
		out[rec.job.Status]++
	}
	return out
}

func (m *Manager) process(id string) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	m.mu.RLock()
	rec, ok := m.jobs[id]
	var req Request
	if ok {
		req = rec.req
	}
	m.mu.RUnlock()
	if !ok {
		return
	}

	ctx := context.Background()
	p := m.provider.Pipeline(req.OracleKey)

	m.update(id, func(j *types.Job) {
		j.Status = types.StatusProcessing
		j.Progress = "fetching and parsing documentation"
	})

	urls := append([]string{req.URL}, req.AdditionalURLs...)
	endpoints, stats, err := p.Collector.ScrapeAll(ctx, urls)
	if err != nil {
		m.fail(id, err)
		return
	}
	if len(endpoints) == 0 {
		now := time.Now().UTC()
		m.update(id, func(j *types.Job) {
			j.Status = types.StatusCompleted
			j.CompletedAt = &now
			j.Progress = "completed: no endpoints found"
		})
		m.logger.Info("job completed with no endpoints", "job", id)
		return
	}

	m.update(id, func(j *types.Job) {
		j.Endpoints = endpoints
		j.EndpointCount = len(endpoints)
		j.Progress = fmt.Sprintf("extracted %d endpoints (%d failed), generating specification", len(endpoints), stats.Failed)
	})

	spec, err := p.Synthesizer.Generate(ctx, endpoints, req.BaseURL, req.URL)
	if err != nil {
		m.fail(id, err)
		return
	}

	m.update(id, func(j *types.Job) {
		j.Spec = spec
		j.Progress = "judging specification quality"
	})

	verdict := p.Evaluator.Evaluate(ctx, spec, len(endpoints), req.URL)

	now := time.Now().UTC()
	m.update(id, func(j *types.Job) {
		j.Judge = verdict
		j.Status = types.StatusCompleted
		j.CompletedAt = &now
		j.Progress = fmt.Sprintf("completed: %d endpoints, judge score %d", len(endpoints), verdict.Score)
	})
	m.logger.Info("job completed", "job", id, "endpoints", len(endpoints), "score", verdict.Score)
	m.notifyComplete(id)
}

func (m *Manager) resynthesize(id string) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	m.mu.RLock()
	rec, ok := m.jobs[id]
	var (
		req       Request
		endpoints []types.Endpoint
	)
	if ok {
		req = rec.req
		endpoints = append([]types.Endpoint(nil), rec.job.Endpoints...)
	}
	m.mu.RUnlock()
	if !ok {
		return
	}

	ctx := context.Background()
	p := m.provider.Pipeline(req.OracleKey)

	spec, err := p.Synthesizer.Generate(ctx, endpoints, req.BaseURL, req.URL)
	if err != nil {
		m.fail(id, err)
		return
	}
	verdict := p.Evaluator.Evaluate(ctx, spec, len(endpoints), req.URL)

	now := time.Now().UTC()
	m.update(id, func(j *types.Job) {
		j.Spec = spec
		j.Judge = verdict
		j.Status = types.StatusCompleted
		j.CompletedAt = &now
		j.Progress = fmt.Sprintf("completed: %d endpoints, judge score %d", len(endpoints), verdict.Score)
	})
	m.logger.Info("synthesis retry completed", "job", id, "score", verdict.Score)
	m.notifyComplete(id)
}

func (m *Manager) notifyComplete(id string) {
	if m.onComplete == nil {
		return
	}
	if snapshot, ok := m.Get(id); ok && snapshot.Spec != nil {
		m.onComplete(snapshot)
	}
}

func (m *Manager) fail(id string, err error) {
	now := time.Now().UTC()
	m.update(id, func(j *types.Job) {
		j.Status = types.StatusFailed
		j.CompletedAt = &now
		j.Error = err.Error()
		j.Progress = "failed: " + err.Error()
	})
	m.logger.Error("job failed", "job", id, "error", err)
}

func (m *Manager) update(id string, fn func(*types.Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.jobs[id]; ok {
		fn(rec.job)
	}
}

func (m *Manager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep(time.Now().UTC())
		}
	}
}

// sweep removes terminal jobs whose completion time is past the retention
// window.
func (m *Manager) sweep(now time.Time) {
	cutoff := now.Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, rec := range m.jobs {
		if !rec.job.Status.Terminal() || rec.job.CompletedAt == nil {
			continue
		}
		if rec.job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("evicted finished jobs", "removed", removed, "remaining", len(m.jobs))
	}
}

// copyJob returns a deep snapshot so callers never hold live references
// into the job table.
func copyJob(j *types.Job) types.Job {
	out := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Endpoints != nil {
		out.Endpoints = append([]types.Endpoint(nil), j.Endpoints...)
	}
	if j.Judge != nil {
		v := *j.Judge
		v.Issues = append([]string(nil), j.Judge.Issues...)
		out.Judge = &v
	}
	if j.Spec != nil {
		s := *j.Spec
		s.Servers = append([]types.Server(nil), j.Spec.Servers...)
		if j.Spec.Paths != nil {
			s.Paths = make(map[string]json.RawMessage, len(j.Spec.Paths))
			for k, v := range j.Spec.Paths {
				s.Paths[k] = v
			}
		}
		out.Spec = &s
	}
	return out
}
