package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/apispec/internal/config"
	"github.com/yourorg/apispec/internal/jobs"
	"github.com/yourorg/apispec/internal/server"
	"github.com/yourorg/apispec/internal/store"
	"github.com/yourorg/apispec/pkg/types"
)

const defaultConfigContent = `oracle:
  api_key: ""
  base_url: "https://api.openai.com/v1"
  model: "gpt-4o"
  max_tokens: 8192
  temperature: 0.2
  top_p: 1.0
  timeout_seconds: 120
  requests_per_second: 2

fetch:
  timeout_seconds: 30
  user_agent: "apispec/1.0"

jobs:
  workers: 5
  retention_minutes: 5
  sweep_interval_seconds: 60

archive:
  path: ""

server:
  host: "127.0.0.1"
  port: 8080

log:
  level: "info"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "apispec",
		Short: "Generate OpenAPI specifications from API documentation pages",
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")

	root.AddCommand(newInitCmd())
	root.AddCommand(newScrapeCmd(&cfgPath))
	root.AddCommand(newServeCmd(&cfgPath))
	root.AddCommand(newListCmd(&cfgPath))
	root.AddCommand(newShowCmd(&cfgPath))

	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.apispec directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".apispec")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "apispec.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "please update oracle.api_key in", cfgFile)
			return nil
		},
	}
}

func newScrapeCmd(cfgPath *string) *cobra.Command {
	var url, baseURL, out string
	var additional []string
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape documentation and print the generated specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateScrape(); err != nil {
				return err
			}
			logger := buildLogger(cfg.Log.Level)

			p := newPipelineProvider(cfg, logger).Pipeline("")
			ctx := cmd.Context()

			urls := append([]string{url}, additional...)
			endpoints, stats, err := p.Collector.ScrapeAll(ctx, urls)
			if err != nil {
				return err
			}
			if len(endpoints) == 0 {
				return errors.New("no endpoints found in documentation")
			}
			logger.Info("extraction finished", "endpoints", len(endpoints), "failed", stats.Failed)

			spec, err := p.Synthesizer.Generate(ctx, endpoints, baseURL, url)
			if err != nil {
				return err
			}
			verdict := p.Evaluator.Evaluate(ctx, spec, len(endpoints), url)
			logger.Info("specification judged", "score", verdict.Score, "valid", verdict.Valid)

			data, err := json.MarshalIndent(spec, "", "  ")
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "documentation URL")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL for the servers block")
	cmd.Flags().StringSliceVar(&additional, "additional", nil, "additional documentation URLs")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP job service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			logger := buildLogger(cfg.Log.Level)
			if cfg.Oracle.APIKey == "" {
				logger.Warn("no oracle api key configured, jobs must supply their own")
			}

			var archive store.Store
			if cfg.Archive.Path != "" {
				s, err := store.NewSQLiteStore(cfg.Archive.Path)
				if err != nil {
					return err
				}
				defer s.Close()
				archive = s
			}

			provider := newPipelineProvider(cfg, logger)
			manager := jobs.NewManager(provider, jobs.Options{
				Workers:       cfg.Jobs.Workers,
				Retention:     time.Duration(cfg.Jobs.RetentionMinutes) * time.Minute,
				SweepInterval: time.Duration(cfg.Jobs.SweepIntervalSeconds) * time.Second,
				Logger:        logger,
				OnComplete:    archiveHook(archive, logger),
			})
			defer manager.Close()

			srv, err := server.New(manager, archive, logger)
			if err != nil {
				return err
			}
			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			logger.Info("listening", "addr", addr)
			return srv.ListenAndServe(addr)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "server host")
	cmd.Flags().IntVar(&port, "port", 0, "server port")
	return cmd
}

// archiveHook persists completed jobs. Archive failures are logged, never
// surfaced to the job itself.
func archiveHook(archive store.Store, logger *slog.Logger) func(types.Job) {
	if archive == nil {
		return nil
	}
	return func(job types.Job) {
		data, err := json.Marshal(job.Spec)
		if err != nil {
			logger.Error("archive marshal failed", "job", job.ID, "error", err)
			return
		}
		score := 0
		if job.Judge != nil {
			score = job.Judge.Score
		}
		rec := &store.ArchivedSpec{
			JobID:         job.ID,
			SourceURL:     job.SourceURL,
			EndpointCount: job.EndpointCount,
			JudgeScore:    score,
			SpecJSON:      string(data),
		}
		if err := archive.SaveSpec(rec); err != nil {
			logger.Error("archive save failed", "job", job.ID, "error", err)
			return
		}
		logger.Info("specification archived", "job", job.ID)
	}
}

func newListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived specifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openArchive(*cfgPath)
			if err != nil {
				return err
			}
			defer s.Close()
			specs, err := s.ListSpecs()
			if err != nil {
				return err
			}
			for _, rec := range specs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  endpoints=%d  score=%d  %s\n",
					rec.JobID, rec.CreatedAt.Format(time.RFC3339), rec.EndpointCount, rec.JudgeScore, rec.SourceURL)
			}
			return nil
		},
	}
}

func newShowCmd(cfgPath *string) *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print an archived specification",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openArchive(*cfgPath)
			if err != nil {
				return err
			}
			defer s.Close()
			rec, err := s.GetSpec(jobID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.SpecJSON)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func openArchive(cfgPath string) (store.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	path := cfg.Archive.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".apispec", "apispec.db")
	}
	return store.NewSQLiteStore(path)
}

func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
