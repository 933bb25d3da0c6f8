package types

import "time"

// Descriptor is a lightweight endpoint reference produced by discovery,
// before any detail extraction has happened.
type Descriptor struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	DocURL string `json:"url,omitempty"`
}

// Parameter describes one endpoint parameter.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
	In          string `json:"in,omitempty"`
}

// Example is a request or response sample attached to an endpoint.
type Example struct {
	Language    string `json:"language,omitempty"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Endpoint is the canonical extracted unit. It is never mutated after
// assembly, only replaced wholesale on retry.
type Endpoint struct {
	Method          string      `json:"method"`
	Path            string      `json:"path"`
	Summary         string      `json:"summary,omitempty"`
	Description     string      `json:"description,omitempty"`
	Parameters      []Parameter `json:"parameters,omitempty"`
	RequestExample  *Example    `json:"request_example,omitempty"`
	ResponseExample *Example    `json:"response_example,omitempty"`
	Tags            []string    `json:"tags,omitempty"`
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JudgeResult is the quality verdict for a synthesized specification.
type JudgeResult struct {
	Score          int      `json:"score"`
	Valid          bool     `json:"valid"`
	Issues         []string `json:"issues,omitempty"`
	Recommendation string   `json:"recommendation"`
}

// ShouldRetry reports whether the verdict recommends regenerating the spec.
func (r *JudgeResult) ShouldRetry() bool {
	return r.Recommendation == "retry" || r.Score < 70 || !r.Valid
}

// Job is one asynchronous pipeline execution with observable progress.
type Job struct {
	ID            string         `json:"id"`
	Status        JobStatus      `json:"status"`
	SourceURL     string         `json:"source_url"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	EndpointCount int            `json:"endpoint_count"`
	Endpoints     []Endpoint     `json:"endpoints,omitempty"`
	Spec          *Specification `json:"spec,omitempty"`
	Judge         *JudgeResult   `json:"judge,omitempty"`
	RetryCount    int            `json:"retry_count"`
	Progress      string         `json:"progress,omitempty"`
	Error         string         `json:"error,omitempty"`
}
