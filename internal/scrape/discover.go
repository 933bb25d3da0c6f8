package scrape

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yourorg/apispec/internal/fetch"
	"github.com/yourorg/apispec/internal/oracle"
	"github.com/yourorg/apispec/pkg/types"
)

// Oracle is the completion surface the scraper depends on.
type Oracle interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Scraper discovers endpoints in documentation pages and extracts their
// details through the oracle.
type Scraper struct {
	Oracle  Oracle
	Fetcher fetch.Fetcher
	Logger  *slog.Logger
}

// discoveryCharBudget caps the document text sent for discovery. The limit
// is local and defensive; oversized pages get truncated, not rejected.
const discoveryCharBudget = 10000

// Discover asks the oracle to enumerate every endpoint visible in the
// document. Failures degrade to an empty result; discovery never fails a
// job on its own.
func (s *Scraper) Discover(ctx context.Context, docText, sourceURL string) []types.Descriptor {
	text := fetch.Truncate(docText, discoveryCharBudget)

	resp, err := s.Oracle.Chat(ctx, discoverySystemPrompt, buildDiscoveryPrompt(sourceURL, text))
	if err != nil {
		s.logger().Warn("endpoint discovery call failed", "source", sourceURL, "error", err)
		return nil
	}

	var raw []types.Descriptor
	if err := oracle.DecodeLoose(resp, &raw); err != nil {
		s.logger().Warn("endpoint discovery output unusable", "source", sourceURL, "error", err)
		return nil
	}

	out := make([]types.Descriptor, 0, len(raw))
	for _, d := range raw {
		if strings.TrimSpace(d.Method) == "" || strings.TrimSpace(d.Path) == "" {
			continue
		}
		d.Method = strings.ToUpper(strings.TrimSpace(d.Method))
		out = append(out, d)
	}
	s.logger().Info("discovery complete", "source", sourceURL, "endpoints", len(out))
	return out
}

func (s *Scraper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
