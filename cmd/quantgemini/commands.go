package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"quantgemini/internal/config"
	"quantgemini/internal/logging"
	"quantgemini/pkg/quantgemini"
)

type rootOptions struct {
	configPath string
	dataDir    string
	verbose    bool
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "quantgemini",
		Short: "Search-grounded stock analysis from the command line",
		Long: `quantgemini asks a search-grounded Gemini model about a ticker,
structures the answer into a technical, sentiment and strategy report,
and keeps the results in the same database the web server uses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "directory holding the database")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log model prompts and responses to stderr")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newRecentCmd(opts),
		newHistoryCmd(opts),
		newChartCmd(opts),
		newSettingsCmd(opts),
	)
	return root
}

// openCore loads config the same way the server does and opens the shared database.
func openCore(cmd *cobra.Command, opts *rootOptions) (*quantgemini.Core, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		config.SetRuntimeDataDir(opts.dataDir)
	}
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewConsoleLogger(cmd.ErrOrStderr(), level)
	return quantgemini.OpenWithOptions(cfg.CoreOptions(dbPath, logger))
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var apiKey string
	cmd := &cobra.Command{
		Use:   "analyze TICKER",
		Short: "Run a grounded analysis for a ticker and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			progress := func(stage string) {
				if !opts.jsonOut {
					fmt.Fprintf(cmd.ErrOrStderr(), "... %s\n", stage)
				}
			}
			result, err := core.AnalyzeWithProgress(cmd.Context(), quantgemini.AnalysisRequest{
				Ticker: args[0],
				APIKey: apiKey,
			}, progress)
			if err != nil {
				if quantgemini.IsAnalysisFailure(err) && !opts.verbose {
					return fmt.Errorf("analysis failed, check the ticker or try again later (%s)", failureKind(err))
				}
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			printAnalysis(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Gemini API key for this run (overrides config and env)")
	return cmd
}

func newRecentCmd(opts *rootOptions) *cobra.Command {
	var clearFirst bool
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently analyzed tickers, or suggestions when there are none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			if clearFirst {
				if err := core.ClearRecentTickers(); err != nil {
					return err
				}
			}
			tickers, err := core.RecentTickers()
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"tickers":     tickers,
					"suggestions": core.SuggestedTickers(),
				})
			}
			out := cmd.OutOrStdout()
			if len(tickers) == 0 {
				fmt.Fprintf(out, "No recent searches. Try: %s\n", strings.Join(core.SuggestedTickers(), ", "))
				return nil
			}
			for _, ticker := range tickers {
				fmt.Fprintln(out, ticker)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "clear the list first")
	return cmd
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var del bool
	cmd := &cobra.Command{
		Use:   "history TICKER",
		Short: "Show stored analyses for a ticker, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			out := cmd.OutOrStdout()
			if del {
				n, err := core.DeleteAnalyses(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "deleted %d analyses\n", n)
				return nil
			}
			results, err := core.GetAnalysisHistory(args[0], limit)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(out, results)
			}
			printHistory(out, results)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of analyses to show")
	cmd.Flags().BoolVar(&del, "delete", false, "delete all stored analyses for the ticker")
	return cmd
}

func newChartCmd(opts *rootOptions) *cobra.Command {
	var price string
	cmd := &cobra.Command{
		Use:   "chart TICKER",
		Short: "Print a synthetic placeholder price series",
		Long: `chart prints the placeholder series shown before an analysis exists.
The points are random jitter around the price, not market data.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			points, err := core.PlaceholderHistory(args[0], price)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), points)
			}
			printChart(cmd.OutOrStdout(), points)
			return nil
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "base price such as $123.45 (default: latest stored price)")
	return cmd
}

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	var provider, baseURL, groundingModel, extractionModel string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or update the stored model settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := openCore(cmd, opts)
			if err != nil {
				return err
			}
			defer core.Close()

			settings, err := core.GetAISettings()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("provider") || flags.Changed("base-url") || flags.Changed("grounding-model") || flags.Changed("extraction-model") {
				if flags.Changed("provider") {
					settings.Provider = provider
					// A new provider without a model gets that provider's default.
					settings.ExtractionModel = ""
				}
				if flags.Changed("base-url") {
					settings.BaseURL = baseURL
				}
				if flags.Changed("grounding-model") {
					settings.GroundingModel = groundingModel
				}
				if flags.Changed("extraction-model") {
					settings.ExtractionModel = extractionModel
				}
				if settings, err = core.SetAISettings(settings); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), settings)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "extraction provider: gemini, openai or anthropic")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "provider base URL")
	cmd.Flags().StringVar(&groundingModel, "grounding-model", "", "search-grounded Gemini model")
	cmd.Flags().StringVar(&extractionModel, "extraction-model", "", "structured extraction model")
	return cmd
}

func failureKind(err error) string {
	if quantgemini.IsErrorCode(err, quantgemini.ErrCodeFormat) {
		return "unreadable model output"
	}
	return "model call failed"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
