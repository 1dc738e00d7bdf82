package cli

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "agentloop",
	Short: "agentloop — an implement/verify/self-correct pipeline for coding agents",
	Long: `agentloop orchestrates an agent CLI through a bounded loop: implement the
requirements, run deterministic quality gates (lint, test, security, plugins),
then triangular verification against the requirements document. Failures feed
back into the next iteration until the change converges or the iteration
budget runs out.

Run artifacts (feedback, verification reports, metrics, event log) live under
the output directory (.agentloop/ by default).`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}
