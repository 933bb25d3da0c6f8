package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yourorg/apispec/internal/fetch"
	"github.com/yourorg/apispec/internal/oracle"
	"github.com/yourorg/apispec/pkg/types"
)

// extractPoolCap bounds concurrent extractions regardless of endpoint
// count, protecting the oracle from burst load.
const extractPoolCap = 5

// detailCharBudget caps the page text sent for per-endpoint extraction.
const detailCharBudget = 8000

// Stats summarizes an extraction batch.
type Stats struct {
	Succeeded int
	Failed    int
}

// endpointDetail is the oracle's answer shape for one endpoint.
type endpointDetail struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	Parameters  []types.Parameter `json:"parameters"`
	Tags        []string          `json:"tags"`
}

// Extract resolves every descriptor into a full endpoint. Descriptors with
// a dedicated documentation URL are fetched and run through the oracle;
// the rest become minimal endpoints built locally. Each item is isolated:
// a failure is logged, counted and skipped, never propagated. Result order
// is completion order, not input order.
func (s *Scraper) Extract(ctx context.Context, descriptors []types.Descriptor) ([]types.Endpoint, Stats) {
	if len(descriptors) == 0 {
		return nil, Stats{}
	}

	poolSize := extractPoolCap
	if len(descriptors) < poolSize {
		poolSize = len(descriptors)
	}

	var (
		mu        sync.Mutex
		endpoints []types.Endpoint
		stats     Stats
	)

	g := new(errgroup.Group)
	g.SetLimit(poolSize)
	for _, d := range descriptors {
		d := d
		g.Go(func() error {
			ep, err := s.extractOne(ctx, d)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				s.logger().Warn("endpoint extraction failed", "method", d.Method, "path", d.Path, "error", err)
				return nil
			}
			stats.Succeeded++
			endpoints = append(endpoints, ep)
			return nil
		})
	}
	_ = g.Wait()

	s.logger().Info("extraction complete", "total", len(descriptors), "succeeded", stats.Succeeded, "failed", stats.Failed)
	return endpoints, stats
}

func (s *Scraper) extractOne(ctx context.Context, d types.Descriptor) (types.Endpoint, error) {
	if d.DocURL == "" {
		return basicEndpoint(d), nil
	}

	page, err := s.Fetcher.Fetch(ctx, d.DocURL)
	if err != nil {
		return types.Endpoint{}, err
	}
	text := fetch.Truncate(fetch.Text(page), detailCharBudget)

	resp, err := s.Oracle.Chat(ctx, extractSystemPrompt, buildExtractPrompt(d.Method, d.Path, text))
	if err != nil {
		return types.Endpoint{}, err
	}

	var detail endpointDetail
	if err := oracle.DecodeLoose(resp, &detail); err != nil {
		return types.Endpoint{}, fmt.Errorf("parse endpoint detail: %w", err)
	}

	ep := types.Endpoint{
		Method:      strings.ToUpper(strings.TrimSpace(detail.Method)),
		Path:        strings.TrimSpace(detail.Path),
		Summary:     detail.Summary,
		Description: detail.Description,
		Parameters:  detail.Parameters,
		Tags:        detail.Tags,
	}
	if ep.Method == "" {
		ep.Method = strings.ToUpper(d.Method)
	}
	if ep.Path == "" {
		ep.Path = d.Path
	}
	if ep.Summary == "" {
		ep.Summary = d.Name
	}
	return ep, nil
}

func basicEndpoint(d types.Descriptor) types.Endpoint {
	return types.Endpoint{
		Method:  strings.ToUpper(d.Method),
		Path:    d.Path,
		Summary: d.Name,
	}
}
