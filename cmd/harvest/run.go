package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixir/pubmed-harvester/internal/app"
	"github.com/helixir/pubmed-harvester/internal/config"
	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/export"
	"github.com/helixir/pubmed-harvester/internal/harvest"
	"github.com/helixir/pubmed-harvester/internal/observability"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	query      string
	startYear  string
	endYear    string
	parallel   int
	outDir     string
	prefix     string
	apiKey     string
	configPath string
	yes        bool
	width      int
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search PubMed, fetch every matching record and write the exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHarvest(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "PubMed search query")
	cmd.Flags().StringVar(&opts.startYear, "start-year", "", "first publication year (YYYY)")
	cmd.Flags().StringVar(&opts.endYear, "end-year", "", "last publication year (YYYY)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "p", 0, "parallel requests per group, 3 to 10 (default from config)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "output directory (default from config)")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "export file name prefix (default from config)")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "NCBI API key (overrides PUBHARVEST_PUBMED_API_KEY)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (default: search ./config.yaml)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "fetch without asking for confirmation")
	cmd.Flags().IntVar(&opts.width, "width", defaultLineWidth, "progress line width")
	return cmd
}

func runHarvest(ctx context.Context, opts runOptions, in io.Reader, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, opts)

	logCfg := app.LoggingConfig(cfg.Logging)
	logCfg.Format = "console"
	logger := observability.NewLoggerWithWriter(logCfg, errOut)

	var confirm harvest.ConfirmFunc
	if !opts.yes {
		confirm = promptConfirm(in, out)
	}

	runner, err := app.NewRunner(cfg, logger, nil, confirm)
	if err != nil {
		return err
	}

	bar := newProgressBar(out, opts.width)
	params := harvest.Params{
		Query:       opts.query,
		StartYear:   opts.startYear,
		EndYear:     opts.endYear,
		MaxParallel: cfg.Harvest.MaxParallel,
	}

	report, err := runner.Run(ctx, params, bar)
	bar.Close()
	if errors.Is(err, domain.ErrAborted) {
		return nil
	}
	if err != nil {
		return err
	}

	paths, err := export.WriteAll(cfg.Export.OutputDir, cfg.Export.FilePrefix, report.Result.Articles, report.Result.FailedIDs, report.StartedAt)
	for _, p := range paths {
		fmt.Fprintf(out, "Saved %s\n", p)
	}
	return err
}

// applyOverrides lets flags take precedence over file and environment values.
func applyOverrides(cfg *config.Config, opts runOptions) {
	if opts.apiKey != "" {
		cfg.PubMed.APIKey = opts.apiKey
	}
	if opts.parallel != 0 {
		cfg.Harvest.MaxParallel = opts.parallel
	}
	if opts.outDir != "" {
		cfg.Export.OutputDir = opts.outDir
	}
	if opts.prefix != "" {
		cfg.Export.FilePrefix = opts.prefix
	}
}

// promptConfirm asks on out and reads a y/yes answer from in.
// Anything else, including end of input, declines.
func promptConfirm(in io.Reader, out io.Writer) harvest.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, n int) bool {
		fmt.Fprintf(out, "%s [y/N] ", harvest.ConfirmPrompt(n))
		answer, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
