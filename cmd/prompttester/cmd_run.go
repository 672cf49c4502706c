package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/tartakovsky/prompttester/internal/cache"
	"github.com/tartakovsky/prompttester/internal/dataset"
	"github.com/tartakovsky/prompttester/internal/models"
	"github.com/tartakovsky/prompttester/internal/orchestration"
	"github.com/tartakovsky/prompttester/internal/pricing"
	"github.com/tartakovsky/prompttester/internal/projectconfig"
	"github.com/tartakovsky/prompttester/internal/runner"
	"github.com/tartakovsky/prompttester/internal/session"
	"github.com/tartakovsky/prompttester/internal/spinner"
	"github.com/tartakovsky/prompttester/internal/template"
	"github.com/tartakovsky/prompttester/internal/tokens"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// sessionLogDir is where --session-log writes NDJSON files.
const sessionLogDir = ".prompttester/sessions"

type runOptions struct {
	apiKey     string
	relayURL   string
	inputsCSV  string
	rows       string
	outputPath string
	mode       string
	sessionLog bool
	dryRun     bool
	noPricing  bool
	noStore    bool
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <test.yaml>",
		Short: "Run every prompt of a test across its models and inputs",
		Long: `Run every prompt of a test definition across its enabled models and
non-empty inputs, one prompt at a time.

Prompts run sequentially; within a prompt every (model, input) cell runs
concurrently. A run is bounded by the configured timeout (5 minutes by
default) and can be interrupted with Ctrl-C.

Exit codes: 0 when every cell succeeded, 1 when some cells failed, 2 on a
configuration or runtime error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommandE(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "OpenRouter API key (defaults to $"+apiKeyEnv+")")
	cmd.Flags().StringVar(&opts.relayURL, "relay-url", "", "Evaluate through a running relay instead of in-process")
	cmd.Flags().StringVar(&opts.inputsCSV, "inputs", "", "Load inputs from a CSV file with id,name,content columns")
	cmd.Flags().StringVar(&opts.rows, "rows", "", "Restrict --inputs to a 1-based row range such as 2-5")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write the result snapshot as JSON to this path")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Override the test mode (plain, scorer, commenter)")
	cmd.Flags().BoolVar(&opts.sessionLog, "session-log", false, "Write run events as NDJSON under "+sessionLogDir)
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the estimated input tokens and cost per model without calling any model")
	cmd.Flags().BoolVar(&opts.noPricing, "no-pricing", false, "Skip fetching model prices")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "Do not persist the test and its snapshot")

	return cmd
}

func runCommandE(cmd *cobra.Command, testPath string, opts *runOptions) error {
	cfg, err := loadProjectConfig()
	if err != nil {
		return err
	}

	tc, err := models.LoadTestConfig(testPath)
	if err != nil {
		return fmt.Errorf("loading test: %w", err)
	}
	if tc.ID == "" {
		tc.ID = testIDFromPath(testPath)
	}
	if tc.Name == "" {
		tc.Name = tc.ID
	}

	var ws *cache.Workspace
	var store cache.Store
	if !opts.noStore && !opts.dryRun {
		s, closeStore, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer closeStore()
		store = s
		ws = cache.LoadWorkspace(store, nil)
		restoreThresholds(tc, ws)
	}

	if err := applyRunOverrides(tc, cfg, opts); err != nil {
		return err
	}
	if err := template.RenderPrompts(tc); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.dryRun {
		return dryRun(cmd, cfg, tc, opts.noPricing)
	}
	apiKey := resolveAPIKey(opts.apiKey)

	relayURL := opts.relayURL
	if relayURL == "" {
		relayURL = cfg.Relay.URL
	}

	coordOpts := []runner.Option{runner.WithTimeout(cfg.RunTimeout())}
	var (
		ev    runner.Evaluator
		local *orchestration.Evaluator
	)
	if relayURL != "" {
		ev = runner.NewRelayClient(relayURL)
		coordOpts = append(coordOpts, runner.WithServerSideKey())
	} else {
		local = orchestration.NewEvaluator(
			newUpstreamClient(cfg),
			orchestration.WithMaxTokens(cfg.Defaults.MaxTokens),
		)
		ev = runner.NewLocalEvaluator(local)
	}

	if store != nil {
		coordOpts = append(coordOpts, runner.WithStore(store))
	}

	if opts.sessionLog || (cfg.Defaults.SessionLog != nil && *cfg.Defaults.SessionLog) {
		sl, err := session.Create(sessionLogDir, tc.ID)
		if err != nil {
			return err
		}
		defer sl.Close() //nolint:errcheck
		fmt.Fprintf(cmd.ErrOrStderr(), "Session log: %s\n", sl.Path()) //nolint:errcheck
		coordOpts = append(coordOpts, runner.WithSessionLog(sl))
	}

	stopSpinner := func() {}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		sp := spinner.Start(f, "Starting run...")
		stopSpinner = sp.Stop
		defer sp.Stop()
		progress := &spinnerProgress{update: sp.Update}
		coordOpts = append(coordOpts, runner.WithProgress(progress.onPrompt))
		if local != nil {
			local.OnProgress(progress.onCell)
		}
	} else {
		coordOpts = append(coordOpts, runner.WithProgress(textProgress(cmd.ErrOrStderr())))
	}

	coord := runner.New(ev, coordOpts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// Prices are fetched alongside the run; a pricing failure only hides costs.
	var (
		table   pricing.Table
		outcome *runner.Outcome
		runErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	if !opts.noPricing {
		g.Go(func() error {
			list, err := newUpstreamClient(cfg).ListModels(gctx)
			if err != nil {
				slog.Warn("fetching model prices failed", "error", err)
				return nil
			}
			table = pricing.TableFromModels(list)
			return nil
		})
	}
	g.Go(func() error {
		outcome, runErr = coord.Run(ctx, tc, apiKey)
		return nil
	})
	_ = g.Wait()
	stopSpinner()

	var cfgErr *runner.ConfigError
	if errors.As(runErr, &cfgErr) {
		return runErr
	}

	if ws != nil {
		ws.Put(tc)
		if err := ws.SetActive(tc.ID); err != nil {
			slog.Warn("activating test", "error", err)
		}
		if tc.Thresholds != nil {
			ws.SaveThresholds(*tc.Thresholds)
		}
	}

	var snap *models.Snapshot
	if outcome != nil {
		snap = outcome.Snapshot
	}
	reportSnapshot(out, snap, tc.Mode, table)

	if opts.outputPath != "" && snap != nil {
		if err := writeSnapshot(opts.outputPath, snap); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSnapshot written to %s\n", opts.outputPath) //nolint:errcheck
	}

	if runErr != nil {
		return runErr
	}

	total, failed := countCells(snap)
	fmt.Fprintf(out, "\n%d cell(s), %d failed, %s\n", total, failed, outcome.Duration.Round(time.Millisecond)) //nolint:errcheck
	if failed > 0 {
		return &CellFailureError{Failed: failed, Total: total}
	}
	return nil
}

// restoreThresholds gives a test without thresholds of its own the ones saved
// by the last run.
func restoreThresholds(tc *models.TestConfig, ws *cache.Workspace) {
	if tc.Thresholds != nil {
		return
	}
	if th, ok := ws.LoadThresholds(); ok {
		tc.Thresholds = &th
	}
}

// applyRunOverrides fills unset test fields from project defaults and applies flags.
func applyRunOverrides(tc *models.TestConfig, cfg *projectconfig.ProjectConfig, opts *runOptions) error {
	if opts.mode != "" {
		mode, err := models.ParseMode(opts.mode)
		if err != nil {
			return err
		}
		tc.Mode = mode
	}
	if tc.Mode == "" {
		tc.Mode = cfg.Defaults.Mode
	}
	if tc.Thresholds == nil {
		th := cfg.Thresholds
		tc.Thresholds = &th
	}

	if len(tc.Models) == 0 {
		for i, id := range cfg.Defaults.Models {
			tc.Models = append(tc.Models, models.ModelItem{
				ID:      fmt.Sprintf("m%d", i+1),
				Name:    id,
				ModelID: id,
				Enabled: true,
			})
		}
	}

	if opts.inputsCSV != "" {
		inputs, err := dataset.LoadInputs(opts.inputsCSV, opts.rows)
		if err != nil {
			return err
		}
		tc.Inputs = inputs
	} else if opts.rows != "" {
		return fmt.Errorf("--rows requires --inputs")
	}
	return nil
}

// dryRun prints the projected prompt-side cost of tc per enabled model.
func dryRun(cmd *cobra.Command, cfg *projectconfig.ProjectConfig, tc *models.TestConfig, noPricing bool) error {
	table := pricing.Table{}
	if !noPricing {
		list, err := newUpstreamClient(cfg).ListModels(cmd.Context())
		if err != nil {
			slog.Warn("fetching model prices failed", "error", err)
		} else {
			table = pricing.TableFromModels(list)
		}
	}

	out := cmd.OutOrStdout()
	previews := pricing.PreviewRun(tc, table, tokens.NewEstimatingCounter())
	fmt.Fprintf(out, "%s  %6s  %12s  %10s\n", padRight("Model", 40), "Cells", "Input tok", "Input cost") //nolint:errcheck
	for _, pv := range previews {
		cost := "-"
		if pv.Priced {
			cost = pricing.FormatCost(pv.InputCost)
		}
		fmt.Fprintf(out, "%s  %6d  %12d  %10s\n", padRight(fit(pv.Model, 40), 40), pv.Cells, pv.InputTokens, cost) //nolint:errcheck
	}
	fmt.Fprintln(out, "\nCompletion tokens are not included; nothing was sent.") //nolint:errcheck
	return nil
}

// testIDFromPath derives a stable id from the test file name, so repeated
// runs of one file share a persisted snapshot.
func testIDFromPath(path string) string {
	base := filepath.Base(path)
	return "test-" + strings.TrimSuffix(base, filepath.Ext(base))
}

func writeSnapshot(path string, snap *models.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// spinnerProgress shows the current prompt and, for in-process runs, how
// many of its cells have settled.
type spinnerProgress struct {
	update func(string)

	mu     sync.Mutex
	prompt string
	done   int
}

func (p *spinnerProgress) onPrompt(e runner.ProgressEvent) {
	if e.EventType != runner.EventPromptStart {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = fmt.Sprintf("Prompt %d/%d: %s", e.PromptNum, e.TotalPrompts, e.PromptName)
	p.done = 0
	p.update(p.prompt)
}

func (p *spinnerProgress) onCell(e orchestration.ProgressEvent) {
	if e.EventType != orchestration.EventCellComplete {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.update(fmt.Sprintf("%s (%d/%d cells)", p.prompt, p.done, e.TotalCells))
}

func textProgress(w io.Writer) runner.ProgressListener {
	return func(e runner.ProgressEvent) {
		switch e.EventType {
		case runner.EventPromptStart:
			fmt.Fprintf(w, "[%d/%d] %s\n", e.PromptNum, e.TotalPrompts, e.PromptName) //nolint:errcheck
		case runner.EventPromptComplete:
			fmt.Fprintf(w, "[%d/%d] %s done: %d cell(s), %d failed (%dms)\n", //nolint:errcheck
				e.PromptNum, e.TotalPrompts, e.PromptName, e.Results.CellCount(), e.Results.ErrorCount(), e.DurationMs)
		}
	}
}

