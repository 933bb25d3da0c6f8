package scrape

import (
	"context"

	"github.com/yourorg/apispec/internal/fetch"
	"github.com/yourorg/apispec/pkg/types"
)

// Scrape runs discovery and extraction for one documentation page.
func (s *Scraper) Scrape(ctx context.Context, sourceURL string) ([]types.Endpoint, Stats, error) {
	page, err := s.Fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, Stats{}, err
	}
	descriptors := s.Discover(ctx, fetch.Text(page), sourceURL)
	endpoints, stats := s.Extract(ctx, descriptors)
	return endpoints, stats, nil
}

// ScrapeAll scrapes several pages and unions their endpoints. A page that
// cannot be scraped is logged and skipped; the error return is non-nil only
// when every page failed.
func (s *Scraper) ScrapeAll(ctx context.Context, urls []string) ([]types.Endpoint, Stats, error) {
	var (
		all     []types.Endpoint
		total   Stats
		lastErr error
		failed  int
	)
	for _, u := range urls {
		endpoints, stats, err := s.Scrape(ctx, u)
		if err != nil {
			s.logger().Warn("source scrape failed", "url", u, "error", err)
			lastErr = err
			failed++
			continue
		}
		all = append(all, endpoints...)
		total.Succeeded += stats.Succeeded
		total.Failed += stats.Failed
	}
	if failed == len(urls) && len(urls) > 0 {
		return nil, total, lastErr
	}
	return all, total, nil
}
