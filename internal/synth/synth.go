package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/yourorg/apispec/internal/oracle"
	"github.com/yourorg/apispec/pkg/types"
)

// chunkSize is the largest endpoint group synthesized in one oracle call.
// Larger groups get their output truncated by the oracle.
const chunkSize = 8

const fallbackBaseURL = "https://api.example.com"

// Error reports that specification synthesis failed entirely. Partial chunk
// failures do not produce it; only a synthesis with no surviving output does.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "synthesis: " + e.Msg + ": " + e.Err.Error()
	}
	return "synthesis: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Oracle is the completion surface the generator depends on.
type Oracle interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Generator synthesizes an OpenAPI specification from extracted endpoints.
type Generator struct {
	Oracle Oracle
	Logger *slog.Logger
}

// Generate produces a complete specification. Small endpoint sets go through
// one oracle call; larger sets are split into chunks of at most chunkSize,
// generated as paths-only fragments and merged deterministically.
func (g *Generator) Generate(ctx context.Context, endpoints []types.Endpoint, baseURL, sourceURL string) (*types.Specification, error) {
	if len(endpoints) == 0 {
		return nil, &Error{Msg: "no endpoints to synthesize"}
	}
	base := DetermineBaseURL(sourceURL, baseURL)

	if len(endpoints) <= chunkSize {
		g.logger().Info("generating complete spec in single request", "endpoints", len(endpoints))
		return g.generateComplete(ctx, endpoints, base, sourceURL)
	}
	g.logger().Info("generating spec in chunks", "endpoints", len(endpoints), "chunk_size", chunkSize)
	return g.generateChunked(ctx, endpoints, base, sourceURL)
}

func (g *Generator) generateComplete(ctx context.Context, endpoints []types.Endpoint, baseURL, sourceURL string) (*types.Specification, error) {
	resp, err := g.Oracle.Chat(ctx, completeSystemPrompt, buildCompletePrompt(endpoints, baseURL))
	if err != nil {
		return nil, &Error{Msg: "complete spec generation failed", Err: err}
	}

	var spec types.Specification
	if err := oracle.DecodeLoose(resp, &spec); err != nil {
		return nil, &Error{Msg: "complete spec output unusable", Err: err}
	}
	fillEnvelope(&spec, baseURL, sourceURL)
	if spec.PathCount() < len(endpoints) {
		g.logger().Warn("spec may be incomplete", "expected", len(endpoints), "paths", spec.PathCount())
	}
	return &spec, nil
}

func (g *Generator) generateChunked(ctx context.Context, endpoints []types.Endpoint, baseURL, sourceURL string) (*types.Specification, error) {
	chunks := splitChunks(endpoints, chunkSize)
	g.logger().Info("split endpoints into chunks", "chunks", len(chunks))

	fragments := make([]map[string]json.RawMessage, 0, len(chunks))
	var lastErr error
	for i, chunk := range chunks {
		fragment, err := g.generateChunk(ctx, chunk, baseURL, i+1)
		if err != nil {
			g.logger().Warn("chunk generation failed, continuing with remaining chunks",
				"chunk", i+1, "total", len(chunks), "error", err)
			lastErr = err
			continue
		}
		g.logger().Info("chunk generated", "chunk", i+1, "total", len(chunks), "paths", len(fragment))
		fragments = append(fragments, fragment)
	}

	if len(fragments) == 0 {
		return nil, &Error{Msg: "every chunk failed", Err: lastErr}
	}

	spec := g.merge(fragments, baseURL, sourceURL)
	g.logger().Info("merged spec complete", "paths", spec.PathCount())
	return spec, nil
}

func (g *Generator) generateChunk(ctx context.Context, chunk []types.Endpoint, baseURL string, chunkNum int) (map[string]json.RawMessage, error) {
	resp, err := g.Oracle.Chat(ctx, chunkSystemPrompt, buildChunkPrompt(chunk, baseURL, chunkNum))
	if err != nil {
		return nil, err
	}
	var fragment struct {
		Paths map[string]json.RawMessage `json:"paths"`
	}
	if err := oracle.DecodeLoose(resp, &fragment); err != nil {
		return nil, fmt.Errorf("parse chunk %d: %w", chunkNum, err)
	}
	if len(fragment.Paths) == 0 {
		return nil, fmt.Errorf("chunk %d produced no paths", chunkNum)
	}
	return fragment.Paths, nil
}

// merge builds the final envelope and unions the chunk fragments into one
// paths mapping. On a key collision the earliest fragment wins; collisions
// are logged since oracle output ordering carries no guarantee.
func (g *Generator) merge(fragments []map[string]json.RawMessage, baseURL, sourceURL string) *types.Specification {
	paths := make(map[string]json.RawMessage)
	for i, fragment := range fragments {
		for key, ops := range fragment {
			if _, exists := paths[key]; exists {
				g.logger().Warn("duplicate path across chunks, keeping first", "path", key, "chunk", i+1)
				continue
			}
			paths[key] = ops
		}
	}
	spec := &types.Specification{Paths: paths}
	fillEnvelope(spec, baseURL, sourceURL)
	return spec
}

func splitChunks(endpoints []types.Endpoint, size int) [][]types.Endpoint {
	var chunks [][]types.Endpoint
	for i := 0; i < len(endpoints); i += size {
		end := i + size
		if end > len(endpoints) {
			end = len(endpoints)
		}
		chunks = append(chunks, endpoints[i:end])
	}
	return chunks
}

func fillEnvelope(spec *types.Specification, baseURL, sourceURL string) {
	if spec.OpenAPI == "" {
		spec.OpenAPI = "3.0.0"
	}
	if spec.Info.Title == "" {
		spec.Info.Title = "API Documentation"
	}
	if spec.Info.Version == "" {
		spec.Info.Version = "1.0.0"
	}
	if spec.Info.Description == "" {
		spec.Info.Description = "Generated from " + sourceURL
	}
	if len(spec.Servers) == 0 {
		spec.Servers = []types.Server{{URL: baseURL}}
	}
	if spec.Paths == nil {
		spec.Paths = make(map[string]json.RawMessage)
	}
	if spec.Components == nil {
		spec.Components = &types.Components{Schemas: map[string]json.RawMessage{}}
	}
}

// DetermineBaseURL picks the caller-supplied base URL, else derives
// scheme://host from the source, else a fixed placeholder.
func DetermineBaseURL(sourceURL, provided string) string {
	if provided != "" {
		return provided
	}
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fallbackBaseURL
	}
	return u.Scheme + "://" + u.Host
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
