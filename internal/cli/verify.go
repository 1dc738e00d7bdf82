package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentloop/agentloop/internal/agent"
	"github.com/agentloop/agentloop/internal/config"
	"github.com/agentloop/agentloop/internal/detect"
	"github.com/agentloop/agentloop/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run triangular verification only, without the implement loop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		root, err := projectRoot(cmd)
		if err != nil {
			return err
		}

		settings := config.Resolve(root, overridesFromFlags(cmd))
		if err := settings.ValidateForVerify(); err != nil {
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

		det := detect.New(root, settings.BaseBranch)
		coord := verify.NewCoordinator(runner, log)
		passed, err := coord.Run(verify.Opts{
			RequirementsFile: settings.RequirementsFile,
			OutputDir:        outputDirPath(root, settings),
			ChangedFiles:     det.ChangedFiles(),
			InstructionFiles: det.InstructionFiles(),
			DesignDocs:       det.DesignDocs(),
			Timeout:          settings.Timeout,
			MaxRetries:       settings.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("verification aborted: %w", err)
		}
		if !passed {
			return fmt.Errorf("verification failed; see %s", verify.DiscrepancyFile)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Verification passed.")
		return nil
	},
}

func init() {
	addConfigFlags(verifyCmd)
	verifyCmd.Flags().Int("max-retries", 0, "agent call retries per attempt (default 2)")
}
