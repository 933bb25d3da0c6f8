package store

import "time"

// ArchivedSpec is one completed job's output kept for later retrieval.
type ArchivedSpec struct {
	JobID         string    `json:"job_id"`
	SourceURL     string    `json:"source_url"`
	EndpointCount int       `json:"endpoint_count"`
	JudgeScore    int       `json:"judge_score"`
	SpecJSON      string    `json:"spec_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store archives synthesized specifications. The pipeline never reads the
// archive back; it exists for export and inspection only.
type Store interface {
	SaveSpec(rec *ArchivedSpec) error
	GetSpec(jobID string) (*ArchivedSpec, error)
	ListSpecs() ([]ArchivedSpec, error)
	Close() error
}
