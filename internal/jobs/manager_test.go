package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yourorg/apispec/internal/scrape"
	"github.com/yourorg/apispec/pkg/types"
)

type fakeCollector struct {
	endpoints []types.Endpoint
	stats     scrape.Stats
	err       error
}

func (f *fakeCollector) ScrapeAll(ctx context.Context, urls []string) ([]types.Endpoint, scrape.Stats, error) {
	return f.endpoints, f.stats, f.err
}

type fakeSynthesizer struct {
	spec  *types.Specification
	err   error
	calls int32
}

func (f *fakeSynthesizer) Generate(ctx context.Context, endpoints []types.Endpoint, baseURL, sourceURL string) (*types.Specification, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.spec, f.err
}

type fakeEvaluator struct {
	result *types.JudgeResult
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, spec *types.Specification, expectedCount int, sourceURL string) *types.JudgeResult {
	return f.result
}

type staticProvider struct {
	pipeline Pipeline
	lastKey  string
}

func (p *staticProvider) Pipeline(oracleKey string) Pipeline {
	p.lastKey = oracleKey
	return p.pipeline
}

func goodPipeline() (*staticProvider, *fakeSynthesizer) {
	synth := &fakeSynthesizer{spec: &types.Specification{
		OpenAPI: "3.0.0",
		Info:    types.Info{Title: "API Documentation", Version: "1.0.0"},
	}}
	return &staticProvider{pipeline: Pipeline{
		Collector: &fakeCollector{endpoints: []types.Endpoint{
			{Method: "GET", Path: "/users"},
			{Method: "POST", Path: "/users"},
		}},
		Synthesizer: synth,
		Evaluator:   &fakeEvaluator{result: &types.JudgeResult{Score: 85, Valid: true, Recommendation: "accept"}},
	}}, synth
}

func waitTerminal(t *testing.T, m *Manager, id string) types.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := m.Get(id); ok && job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", id)
	return types.Job{}
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	provider, _ := goodPipeline()
	m := NewManager(provider, Options{Workers: 2})
	defer m.Close()

	job := m.Submit(Request{URL: "https://docs.example.com"})
	if job.Status != types.StatusQueued {
		t.Fatalf("expected queued snapshot, got %s", job.Status)
	}
	if job.ID == "" {
		t.Fatal("expected generated job id")
	}

	final := waitTerminal(t, m, job.ID)
	if final.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.Error)
	}
	if final.EndpointCount != 2 || len(final.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %+v", final)
	}
	if final.Spec == nil || final.Judge == nil {
		t.Fatal("expected spec and judge verdict on completed job")
	}
	if final.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
}

func TestJobFailureRecordsCauseVerbatim(t *testing.T) {
	provider := &staticProvider{pipeline: Pipeline{
		Collector: &fakeCollector{err: errors.New("fetch https://x: status 503")},
	}}
	m := NewManager(provider, Options{})
	defer m.Close()

	job := m.Submit(Request{URL: "https://x"})
	final := waitTerminal(t, m, job.ID)
	if final.Status != types.StatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Error != "fetch https://x: status 503" {
		t.Fatalf("cause not preserved: %q", final.Error)
	}
}

func TestZeroEndpointsCompletesGracefully(t *testing.T) {
	provider := &staticProvider{pipeline: Pipeline{
		Collector: &fakeCollector{endpoints: nil},
	}}
	m := NewManager(provider, Options{})
	defer m.Close()

	job := m.Submit(Request{URL: "https://empty"})
	final := waitTerminal(t, m, job.ID)
	if final.Status != types.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.Error)
	}
	if final.Spec != nil || final.EndpointCount != 0 {
		t.Fatalf("expected empty completion, got %+v", final)
	}
}

func TestGetUnknownJob(t *testing.T) {
	provider, _ := goodPipeline()
	m := NewManager(provider, Options{})
	defer m.Close()

	if _, ok := m.Get("nope"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	provider, _ := goodPipeline()
	m := NewManager(provider, Options{})
	defer m.Close()

	job := m.Submit(Request{URL: "https://docs"})
	final := waitTerminal(t, m, job.ID)

	final.Endpoints[0].Path = "/mutated"
	final.Spec.Info.Title = "mutated"

	again, _ := m.Get(job.ID)
	if again.Endpoints[0].Path == "/mutated" {
		t.Fatal("endpoint slice shared with caller")
	}
	if again.Spec.Info.Title == "mutated" {
		t.Fatal("spec shared with caller")
	}
}

func TestRetrySynthesisReruns(t *testing.T) {
	provider, synth := goodPipeline()
	m := NewManager(provider, Options{})
	defer m.Close()

	job := m.Submit(Request{URL: "https://docs"})
	waitTerminal(t, m, job.ID)

	snapshot, err := m.RetrySynthesis(job.ID)
	if err != nil {
		t.Fatalf("RetrySynthesis error: %v", err)
	}
	if snapshot.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", snapshot.RetryCount)
	}
	final := waitTerminal(t, m, job.ID)
	if final.Status != types.StatusCompleted {
		t.Fatalf("expected completed after retry, got %s", final.Status)
	}
	if atomic.LoadInt32(&synth.calls) != 2 {
		t.Fatalf("expected 2 synthesis runs, got %d", synth.calls)
	}
}

func TestRetrySynthesisRejectsIllegalStates(t *testing.T) {
	t.Run("unknown job", func(t *testing.T) {
		provider, _ := goodPipeline()
		m := NewManager(provider, Options{})
		defer m.Close()

		_, err := m.RetrySynthesis("missing")
		var serr *StateError
		if !errors.As(err, &serr) {
			t.Fatalf("expected *StateError, got %v", err)
		}
	})

	t.Run("failed job", func(t *testing.T) {
		provider := &staticProvider{pipeline: Pipeline{
			Collector: &fakeCollector{err: errors.New("down")},
		}}
		m := NewManager(provider, Options{})
		defer m.Close()

		job := m.Submit(Request{URL: "https://x"})
		waitTerminal(t, m, job.ID)

		_, err := m.RetrySynthesis(job.ID)
		var serr *StateError
		if !errors.As(err, &serr) {
			t.Fatalf("expected *StateError, got %v", err)
		}
		after, _ := m.Get(job.ID)
		if after.Status != types.StatusFailed || after.RetryCount != 0 {
			t.Fatalf("rejected retry must not mutate the job: %+v", after)
		}
	})

	t.Run("completed without endpoints", func(t *testing.T) {
		provider := &staticProvider{pipeline: Pipeline{
			Collector: &fakeCollector{endpoints: nil},
		}}
		m := NewManager(provider, Options{})
		defer m.Close()

		job := m.Submit(Request{URL: "https://empty"})
		waitTerminal(t, m, job.ID)

		_, err := m.RetrySynthesis(job.ID)
		var serr *StateError
		if !errors.As(err, &serr) {
			t.Fatalf("expected *StateError, got %v", err)
		}
	})
}

func TestSweepEvictsExpiredTerminalJobs(t *testing.T) {
	provider, _ := goodPipeline()
	m := NewManager(provider, Options{Retention: time.Minute})
	defer m.Close()

	job := m.Submit(Request{URL: "https://docs"})
	waitTerminal(t, m, job.ID)

	m.sweep(time.Now().UTC())
	if _, ok := m.Get(job.ID); !ok {
		t.Fatal("fresh job must survive the sweep")
	}

	m.sweep(time.Now().UTC().Add(2 * time.Minute))
	if _, ok := m.Get(job.ID); ok {
		t.Fatal("expired job must be evicted")
	}
}

func TestOnCompleteHookReceivesSnapshot(t *testing.T) {
	provider, _ := goodPipeline()
	got := make(chan types.Job, 1)
	m := NewManager(provider, Options{OnComplete: func(j types.Job) { got <- j }})
	defer m.Close()

	job := m.Submit(Request{URL: "https://docs"})
	select {
	case archived := <-got:
		if archived.ID != job.ID || archived.Spec == nil {
			t.Fatalf("unexpected hook payload: %+v", archived)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("hook was not invoked")
	}
}

func TestPerJobOracleKeyReachesProvider(t *testing.T) {
	provider, _ := goodPipeline()
	m := NewManager(provider, Options{})
	defer m.Close()

	job := m.Submit(Request{URL: "https://docs", OracleKey: "sk-override"})
	waitTerminal(t, m, job.ID)
	if provider.lastKey != "sk-override" {
		t.Fatalf("expected per-job key to reach provider, got %q", provider.lastKey)
	}
}
