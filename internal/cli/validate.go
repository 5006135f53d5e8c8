package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimcheck/internal/llm"
	"github.com/ppiankov/claimcheck/internal/metrics"
	"github.com/ppiankov/claimcheck/internal/model"
	"github.com/ppiankov/claimcheck/internal/pipeline"
	"github.com/ppiankov/claimcheck/internal/report"
	"github.com/ppiankov/claimcheck/internal/rules"
	"github.com/ppiankov/claimcheck/internal/store"
	"github.com/ppiankov/claimcheck/internal/util"
	"github.com/ppiankov/claimcheck/internal/worker"
)

var (
	tenantID        string
	listFile        string
	validateTimeout time.Duration
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate claims files against a tenant's rules",
	Long: `Validate runs every claims file through the validation pipeline:
- Ingest CSV or JSON rows and normalise column names
- Resolve claim identifiers (duplicates and re-uploads get suffixes)
- Check data quality, then apply technical and medical rules
- Optionally ask the advisory evaluator for a second opinion
- Reconcile verdicts, persist them and write the results

Each file becomes its own batch. Files are processed concurrently.

Example:
  claimcheck validate claims.csv --tenant acme
  claimcheck validate --list uploads.txt --files 4 --format json,parquet
  claimcheck validate claims.csv --advisory errors --provider openai --model gpt-4o-mini`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&tenantID, "tenant", "", "tenant whose rules apply (default: rules.default_tenant)")
	validateCmd.Flags().StringVar(&listFile, "list", "", "file listing claims files, one per line")
	validateCmd.Flags().DurationVar(&validateTimeout, "timeout", 30*time.Minute, "total timeout for the run")

	// Output flags
	validateCmd.Flags().String("output-dir", "", "output directory for results")
	validateCmd.Flags().StringSlice("format", nil, "output formats (json, parquet)")
	validateCmd.Flags().Bool("json-log", false, "emit logs as JSON")
	validateCmd.Flags().String("metrics-textfile", "", "write Prometheus metrics to this file on exit")

	// Processing flags
	validateCmd.Flags().Int("files", 0, "number of files validated concurrently")
	validateCmd.Flags().Bool("no-medical", false, "disable the medical rules engine")
	validateCmd.Flags().String("database-url", "", "Postgres URL for persisted results (default: in-memory)")

	// Advisory flags
	validateCmd.Flags().String("advisory", "", "advisory evaluation mode (off, errors, all)")
	validateCmd.Flags().String("provider", "", "LLM provider (openai, anthropic, ollama)")
	validateCmd.Flags().String("model", "", "LLM model name")
	validateCmd.Flags().Int("advisory-workers", 0, "concurrent advisory calls per batch")

	bind := map[string]string{
		"output.dir":        "output-dir",
		"output.formats":    "format",
		"output.json_log":   "json-log",
		"metrics.textfile":  "metrics-textfile",
		"concurrency.files": "files",
		"database.url":      "database-url",
		"advisory.mode":     "advisory",
		"advisory.provider": "provider",
		"advisory.model":    "model",
		"advisory.workers":  "advisory-workers",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, validateCmd.Flags().Lookup(flag))
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && listFile == "" {
		return fmt.Errorf("no claims files given (pass files or --list)")
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noMedical, _ := cmd.Flags().GetBool("no-medical"); noMedical {
		cfg.Validation.MedicalEngine = false
	}

	paths := args
	if listFile != "" {
		listed, err := worker.ReadFileList(listFile)
		if err != nil {
			return fmt.Errorf("read file list: %w", err)
		}
		paths = append(paths, listed...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := util.NewLogger(os.Stderr, cfg.Output.Verbose, cfg.Output.JSONLog)
	m := metrics.New(prometheus.NewRegistry())

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Claimcheck Validation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Files:        %d\n", len(paths))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Files)
	fmt.Fprintf(os.Stderr, "  Rules dir:    %s\n", cfg.Rules.Dir)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", cfg.Output.Dir)
	if cfg.Advisory.Mode != model.AdvisoryModeOff {
		fmt.Fprintf(os.Stderr, "  Advisory:     %s (%s/%s)\n", cfg.Advisory.Mode, cfg.Advisory.Provider, cfg.Advisory.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	ruleStore := rules.NewStore(rules.NewFileSource(cfg.Rules.Dir), nil, cfg.Rules.DefaultTenant, cfg.Rules.CacheTTL, logger).
		WithMetrics(m)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	advisor, err := newAdvisor(ctx, cfg, logger, m)
	if err != nil {
		return err
	}

	p := pipeline.NewPipeline(cfg, ruleStore, st, advisor, logger, m)
	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Files)
	results := processor.ProcessFiles(ctx, tenantID, paths)

	renderer := report.NewRenderer(os.Stderr, cfg.Output.Verbose)
	failures := 0
	for _, result := range results {
		if result.Error != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Path, result.Error)
			continue
		}

		written, err := renderer.Render(result.Batch, cfg.Output.Dir, cfg.Output.Formats)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write results: %v\n", result.Path, err)
			continue
		}
		renderer.RenderSummary(result.Batch)
		for _, path := range written {
			fmt.Fprintf(os.Stderr, "✓ %s\n", path)
		}
	}

	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("failed to write metrics textfile")
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d files\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", len(results)-failures)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failures)
	fmt.Fprintf(os.Stderr, "\n")

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(results))
	}
	return nil
}

// openStore connects to Postgres when a database URL is configured and
// falls back to an in-memory store otherwise.
func openStore(ctx context.Context, cfg *model.Config) (store.Store, error) {
	if cfg.Database.URL == "" {
		return store.NewMemoryStore(), nil
	}

	pool, err := store.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, err
	}
	st, err := store.NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

// advisoryPreflight bounds the provider availability check
const advisoryPreflight = 10 * time.Second

// newAdvisor builds the advisory evaluator. It returns nil when the advisory
// stage is off or the provider does not answer the availability check, in
// which case claims keep their static verdicts.
func newAdvisor(ctx context.Context, cfg *model.Config, logger zerolog.Logger, m *metrics.Metrics) (pipeline.Advisor, error) {
	if cfg.Advisory.Mode == model.AdvisoryModeOff {
		return nil, nil
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Advisory))
	if err != nil {
		return nil, fmt.Errorf("create advisory provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("advisory mode %q needs a provider", cfg.Advisory.Mode)
	}

	checkCtx, cancel := context.WithTimeout(ctx, advisoryPreflight)
	defer cancel()
	if !provider.IsAvailable(checkCtx) {
		logger.Warn().
			Str("provider", provider.Name()).
			Msg("advisory provider unavailable, continuing without advisory evaluation")
		return nil, nil
	}

	limiter := worker.NewLimiter(cfg.Advisory.RequestsPerSecond, cfg.Advisory.Burst)
	opts := llm.EvaluatorOptions{
		Model:             cfg.Advisory.Model,
		MaxTokens:         cfg.Advisory.MaxTokens,
		TopK:              cfg.Advisory.TopK,
		AssumeMedicalPass: cfg.Advisory.AssumeMedicalPass,
	}
	return llm.NewEvaluator(provider, opts, limiter, logger, m), nil
}
