package store

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a job's spec was never archived.
var ErrNotFound = errors.New("store: spec not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS specs (
		job_id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		endpoint_count INTEGER NOT NULL,
		judge_score INTEGER NOT NULL,
		spec_json TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) SaveSpec(rec *ArchivedSpec) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO specs(job_id,source_url,endpoint_count,judge_score,spec_json,created_at)
	VALUES(?,?,?,?,?,?)
	ON CONFLICT(job_id) DO UPDATE SET source_url=excluded.source_url,endpoint_count=excluded.endpoint_count,judge_score=excluded.judge_score,spec_json=excluded.spec_json,created_at=excluded.created_at`,
		rec.JobID, rec.SourceURL, rec.EndpointCount, rec.JudgeScore, rec.SpecJSON, rec.CreatedAt)
	return err
}

func (s *SQLiteStore) GetSpec(jobID string) (*ArchivedSpec, error) {
	row := s.db.QueryRow(`SELECT job_id,source_url,endpoint_count,judge_score,spec_json,created_at FROM specs WHERE job_id=?`, jobID)
	var out ArchivedSpec
	if err := row.Scan(&out.JobID, &out.SourceURL, &out.EndpointCount, &out.JudgeScore, &out.SpecJSON, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (s *SQLiteStore) ListSpecs() ([]ArchivedSpec, error) {
	rows, err := s.db.Query(`SELECT job_id,source_url,endpoint_count,judge_score,spec_json,created_at FROM specs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ArchivedSpec
	for rows.Next() {
		var rec ArchivedSpec
		if err := rows.Scan(&rec.JobID, &rec.SourceURL, &rec.EndpointCount, &rec.JudgeScore, &rec.SpecJSON, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}
