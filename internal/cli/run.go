package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentloop/agentloop/internal/agent"
	"github.com/agentloop/agentloop/internal/config"
	"github.com/agentloop/agentloop/internal/logger"
	"github.com/agentloop/agentloop/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the implement/verify/self-correct loop in the current project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		root, err := projectRoot(cmd)
		if err != nil {
			return err
		}

		settings := config.Resolve(root, overridesFromFlags(cmd))
		if err := settings.ValidateForRun(); err != nil {
			return err
		}
		if err := checkInputFile(root, settings.PromptFile, "prompt file"); err != nil {
			return err
		}
		if err := checkInputFile(root, settings.RequirementsFile, "requirements file"); err != nil {
			return err
		}

		log, err := newRunLogger(root, settings)
		if err != nil {
			return err
		}
		defer log.Sync()

		runner := agent.NewCLIRunner(root, log)
		if err := runner.Check(); err != nil {
			return fmt.Errorf("agent CLI not available: %w", err)
		}

		// SIGINT/SIGTERM stop the loop at the next phase boundary.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := pipeline.New(root, settings, log)
		converged, err := p.Run(ctx)
		if err != nil {
			return fmt.Errorf("pipeline aborted: %w", err)
		}
		if !converged {
			return fmt.Errorf("did not converge within %d iterations", settings.MaxIterations)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Converged.")
		return nil
	},
}

func init() {
	addConfigFlags(runCmd)
	runCmd.Flags().Int("max-iterations", 0, "iteration budget (default 5)")
	runCmd.Flags().Int("max-retries", 0, "agent call retries per attempt (default 2)")
	runCmd.Flags().String("webhook-url", "", "POST a run summary to this URL on completion")
	runCmd.Flags().Bool("parallel-gates", false, "run quality gates concurrently")
	runCmd.Flags().String("plugin-dir", "", "directory of plugin gate scripts")
}

// addConfigFlags registers the flags shared by run and verify.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("prompt", "p", "", "prompt file with the implementation brief")
	cmd.Flags().StringP("requirements", "r", "", "requirements document for verification")
	cmd.Flags().String("output-dir", "", "artifact directory (default .agentloop)")
	cmd.Flags().Int("timeout", 0, "per-call timeout in seconds (default 300)")
	cmd.Flags().String("base-branch", "", "branch changed files are diffed against (default main)")
	cmd.Flags().StringP("dir", "C", "", "project root (default current directory)")
}

// overridesFromFlags converts only the flags the user actually set, so an
// untouched flag never shadows a config file or env value.
func overridesFromFlags(cmd *cobra.Command) config.Overrides {
	var o config.Overrides
	flags := cmd.Flags()

	if flags.Changed("prompt") {
		v, _ := flags.GetString("prompt")
		o.PromptFile = &v
	}
	if flags.Changed("requirements") {
		v, _ := flags.GetString("requirements")
		o.RequirementsFile = &v
	}
	if flags.Changed("output-dir") {
		v, _ := flags.GetString("output-dir")
		o.OutputDir = &v
	}
	if flags.Changed("timeout") {
		sec, _ := flags.GetInt("timeout")
		d := time.Duration(sec) * time.Second
		o.Timeout = &d
	}
	if flags.Changed("base-branch") {
		v, _ := flags.GetString("base-branch")
		o.BaseBranch = &v
	}
	if flags.Changed("max-iterations") {
		v, _ := flags.GetInt("max-iterations")
		o.MaxIterations = &v
	}
	if flags.Changed("max-retries") {
		v, _ := flags.GetInt("max-retries")
		o.MaxRetries = &v
	}
	if flags.Changed("webhook-url") {
		v, _ := flags.GetString("webhook-url")
		o.WebhookURL = &v
	}
	if flags.Changed("parallel-gates") {
		v, _ := flags.GetBool("parallel-gates")
		o.ParallelGates = &v
	}
	if flags.Changed("plugin-dir") {
		v, _ := flags.GetString("plugin-dir")
		o.PluginDir = &v
	}
	return o
}

func projectRoot(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Lookup("dir") != nil {
		if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
			abs, err := filepath.Abs(dir)
			if err != nil {
				return "", fmt.Errorf("resolve project root: %w", err)
			}
			return abs, nil
		}
	}
	root, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	return root, nil
}

// checkInputFile rejects missing or empty input documents before any agent
// call is made.
func checkInputFile(root, name, label string) error {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", label, name, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return fmt.Errorf("%s %s is empty", label, name)
	}
	return nil
}

func outputDirPath(root string, settings *config.Settings) string {
	if filepath.IsAbs(settings.OutputDir) {
		return settings.OutputDir
	}
	return filepath.Join(root, settings.OutputDir)
}

func newRunLogger(root string, settings *config.Settings) (*logger.Logger, error) {
	outputDir := outputDirPath(root, settings)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return logger.NewFromEnv(filepath.Join(outputDir, pipeline.LoopLogFile))
}
