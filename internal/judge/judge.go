package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yourorg/apispec/internal/oracle"
	"github.com/yourorg/apispec/pkg/types"
)

// previewLimit caps how much of the spec is sent for the oracle opinion.
const previewLimit = 5000

// Score ceilings applied by the deterministic check.
const (
	invalidScoreCap   = 30
	shortfallScoreCap = 50
)

// Oracle is the completion surface the judge depends on.
type Oracle interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Judge scores a synthesized specification by combining an oracle opinion
// with deterministic structural checks.
type Judge struct {
	Oracle Oracle
	Logger *slog.Logger
}

type oracleVerdict struct {
	Score          int      `json:"score"`
	IsValid        bool     `json:"isValid"`
	Issues         []string `json:"issues"`
	Recommendation string   `json:"recommendation"`
}

// Evaluate produces a quality verdict. It never fails: when the oracle
// opinion is unavailable the deterministic check alone decides.
func (j *Judge) Evaluate(ctx context.Context, spec *types.Specification, expectedCount int, sourceURL string) *types.JudgeResult {
	valid, pathCount := structuralCheck(spec)

	verdict, err := j.oracleOpinion(ctx, spec, expectedCount, sourceURL)
	if err != nil {
		j.logger().Warn("oracle evaluation failed, falling back to deterministic checks", "error", err)
		return deterministicResult(valid, pathCount, expectedCount)
	}

	score := verdict.Score
	issues := verdict.Issues
	isValid := verdict.IsValid

	if !valid {
		if score > invalidScoreCap {
			score = invalidScoreCap
		}
		isValid = false
		issues = append(issues, "invalid specification structure")
	}
	if shortfall(pathCount, expectedCount) {
		if score > shortfallScoreCap {
			score = shortfallScoreCap
		}
		issues = append(issues, fmt.Sprintf("missing endpoints: expected %d, found %d", expectedCount, pathCount))
	}

	recommendation := verdict.Recommendation
	if recommendation == "" {
		recommendation = "accept"
	}
	if score < 70 || !isValid {
		recommendation = "retry"
	}

	result := &types.JudgeResult{
		Score:          score,
		Valid:          isValid,
		Issues:         issues,
		Recommendation: recommendation,
	}
	j.logger().Info("judge verdict", "score", result.Score, "valid", result.Valid,
		"recommendation", result.Recommendation, "issues", len(result.Issues))
	return result
}

func (j *Judge) oracleOpinion(ctx context.Context, spec *types.Specification, expectedCount int, sourceURL string) (*oracleVerdict, error) {
	preview := specPreview(spec)
	resp, err := j.Oracle.Chat(ctx, judgeSystemPrompt, buildJudgePrompt(sourceURL, expectedCount, preview))
	if err != nil {
		return nil, err
	}
	verdict := oracleVerdict{Score: 50}
	if err := oracle.DecodeLoose(resp, &verdict); err != nil {
		return nil, fmt.Errorf("parse judge verdict: %w", err)
	}
	return &verdict, nil
}

func structuralCheck(spec *types.Specification) (valid bool, pathCount int) {
	if spec == nil {
		return false, 0
	}
	pathCount = spec.PathCount()
	valid = spec.OpenAPI != "" && spec.Info.Title != "" && pathCount > 0
	return valid, pathCount
}

func shortfall(pathCount, expected int) bool {
	return expected > 0 && float64(pathCount) < float64(expected)*0.8
}

// deterministicResult is the neutral score band used when the oracle
// opinion is unavailable.
func deterministicResult(valid bool, pathCount, expected int) *types.JudgeResult {
	switch {
	case !valid:
		return &types.JudgeResult{
			Score:          20,
			Valid:          false,
			Issues:         []string{"invalid specification structure"},
			Recommendation: "retry",
		}
	case shortfall(pathCount, expected):
		return &types.JudgeResult{
			Score:          40,
			Valid:          true,
			Issues:         []string{fmt.Sprintf("missing endpoints: expected %d, found %d", expected, pathCount)},
			Recommendation: "retry",
		}
	case pathCount == expected:
		return &types.JudgeResult{Score: 80, Valid: true, Recommendation: "accept"}
	default:
		return &types.JudgeResult{Score: 50, Valid: true, Recommendation: "accept"}
	}
}

func specPreview(spec *types.Specification) string {
	data, err := json.Marshal(spec)
	if err != nil {
		return ""
	}
	if len(data) > previewLimit {
		return string(data[:previewLimit]) + "... (truncated for evaluation)"
	}
	return string(data)
}

func (j *Judge) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
