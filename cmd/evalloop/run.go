package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/evalloop/evalloop/internal/browser"
	"github.com/evalloop/evalloop/internal/chatgpt"
	"github.com/evalloop/evalloop/internal/config"
	"github.com/evalloop/evalloop/internal/evalapi"
	"github.com/evalloop/evalloop/internal/orchestrator"
	"github.com/evalloop/evalloop/internal/prompts"
	"github.com/evalloop/evalloop/internal/results"
	"github.com/evalloop/evalloop/internal/session"
	"github.com/evalloop/evalloop/internal/shutdown"
)

// run flags; zero values mean "use the config file".
var (
	sessionsDir string
	csvPath     string
	watchCSV    bool
	outputPath  string
	apiBaseURL  string
	runsPerSess int
	maxAttempts int
	headless    bool
)

// RunCmd builds the `run` command, the evaluation loop itself.
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the evaluation loop",
		Long: `Run polls prompts, evaluates each against ChatGPT with bounded
retries, and records every outcome. With a CSV source and no watch
flag the process exits once the file is consumed; with --watch or an
API source it runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runLoop(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&sessionsDir, "sessions", "", "directory of session storage-state files")
	cmd.Flags().StringVarP(&csvPath, "input", "i", "", "prompts CSV file (columns: id,prompt)")
	cmd.Flags().BoolVar(&watchCSV, "watch", false, "keep tailing the CSV for appended prompts")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "results file (.json, or .db/.sqlite for local history)")
	cmd.Flags().StringVar(&apiBaseURL, "api", "", "evaluation API base URL (overrides the CSV source)")
	cmd.Flags().IntVar(&runsPerSess, "runs", 0, "evaluations per session before rotation")
	cmd.Flags().IntVar(&maxAttempts, "attempts", 0, "attempts per prompt before the forced rotation")
	cmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless")

	return cmd
}

// applyRunFlags lets explicitly set flags override the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("sessions") {
		cfg.Sessions.Dir = sessionsDir
	}
	if cmd.Flags().Changed("input") {
		cfg.Source.CSVPath = csvPath
	}
	if cmd.Flags().Changed("watch") {
		cfg.Source.Watch = watchCSV
	}
	if cmd.Flags().Changed("output") {
		cfg.Sink.OutputPath = outputPath
	}
	if cmd.Flags().Changed("api") {
		cfg.API.BaseURL = apiBaseURL
	}
	if cmd.Flags().Changed("runs") {
		cfg.Sessions.PerSessionRuns = runsPerSess
	}
	if cmd.Flags().Changed("attempts") {
		cfg.Evaluation.MaxAttempts = maxAttempts
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = headless
	}
}

func runLoop(cmd *cobra.Command, cfg *config.Config) error {
	pool, err := session.LoadDir(cfg.Sessions.Dir, cfg.Sessions.PerSessionRuns)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	source, sink, err := buildSourceAndSink(cfg)
	if err != nil {
		return err
	}

	coord := shutdown.New()
	coord.Install()
	defer coord.Stop()

	driver := chatgpt.NewClient(chatgpt.Options{
		Headless:          cfg.Browser.Headless,
		NavigationTimeout: time.Duration(cfg.Browser.NavigationTimeoutSeconds) * time.Second,
		ResponseTimeout:   time.Duration(cfg.Browser.ResponseTimeoutSeconds) * time.Second,
	})
	defer browser.Shutdown()

	orch, err := orchestrator.New(pool, driver, source, sink, coord, orchestrator.Options{
		MaxAttempts:  cfg.Evaluation.MaxAttempts,
		PollInterval: cfg.PollInterval(),
		IdleTimeout:  cfg.IdleTimeout(),
	})
	if err != nil {
		return err
	}

	return orch.Run(cmd.Context())
}

// buildSourceAndSink picks the prompt source and result sink for this
// run: the evaluation API drives both ends when configured, otherwise
// CSV in and JSON or SQLite out by output extension.
func buildSourceAndSink(cfg *config.Config) (orchestrator.PromptSource, orchestrator.ResultSink, error) {
	if cfg.UseAPI() {
		client, err := evalapi.NewClient(evalapi.Options{
			BaseURL:       cfg.API.BaseURL,
			AssistantName: cfg.API.AssistantName,
			PlanName:      cfg.API.PlanName,
			RetryAttempts: cfg.API.RetryAttempts,
			RetryDelay:    time.Duration(cfg.API.RetryDelaySeconds) * time.Second,
			Timeout:       time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("evaluation API: %w", err)
		}
		return prompts.NewAPISource(client), results.NewAPISink(client), nil
	}

	source, err := prompts.NewCSVSource(cfg.Source.CSVPath, cfg.Source.Watch)
	if err != nil {
		return nil, nil, fmt.Errorf("open prompts: %w", err)
	}

	switch filepath.Ext(cfg.Sink.OutputPath) {
	case ".db", ".sqlite":
		sink, err := results.NewSQLiteSink(cfg.Sink.OutputPath)
		if err != nil {
			_ = source.Close()
			return nil, nil, fmt.Errorf("open history database: %w", err)
		}
		return source, sink, nil
	default:
		return source, results.NewJSONSink(cfg.Sink.OutputPath), nil
	}
}
