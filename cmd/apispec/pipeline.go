package main

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/yourorg/apispec/internal/config"
	"github.com/yourorg/apispec/internal/fetch"
	"github.com/yourorg/apispec/internal/jobs"
	"github.com/yourorg/apispec/internal/judge"
	"github.com/yourorg/apispec/internal/oracle"
	"github.com/yourorg/apispec/internal/scrape"
	"github.com/yourorg/apispec/internal/synth"
)

// pipelineProvider builds per-job pipelines. The rate limiter is shared so
// jobs carrying their own oracle credential still draw from one budget.
type pipelineProvider struct {
	cfg     *config.Config
	logger  *slog.Logger
	limiter *rate.Limiter
}

func newPipelineProvider(cfg *config.Config, logger *slog.Logger) *pipelineProvider {
	return &pipelineProvider{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.Oracle.RequestsPerSecond), 1),
	}
}

func (p *pipelineProvider) Pipeline(oracleKey string) jobs.Pipeline {
	key := p.cfg.Oracle.APIKey
	if strings.TrimSpace(oracleKey) != "" {
		key = oracleKey
	}
	client := &oracle.Client{
		BaseURL:     p.cfg.Oracle.BaseURL,
		APIKey:      key,
		Model:       p.cfg.Oracle.Model,
		MaxTokens:   p.cfg.Oracle.MaxTokens,
		Temperature: p.cfg.Oracle.Temperature,
		TopP:        p.cfg.Oracle.TopP,
		Timeout:     time.Duration(p.cfg.Oracle.TimeoutSeconds) * time.Second,
		Limiter:     p.limiter,
		Logger:      p.logger,
	}
	fetcher := &fetch.HTTPFetcher{
		Client:    http.DefaultClient,
		UserAgent: p.cfg.Fetch.UserAgent,
		Timeout:   time.Duration(p.cfg.Fetch.TimeoutSeconds) * time.Second,
	}
	return jobs.Pipeline{
		Collector:   &scrape.Scraper{Oracle: client, Fetcher: fetcher, Logger: p.logger},
		Synthesizer: &synth.Generator{Oracle: client, Logger: p.logger},
		Evaluator:   &judge.Judge{Oracle: client, Logger: p.logger},
	}
}
