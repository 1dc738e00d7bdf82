package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentloop/agentloop/internal/config"
	"github.com/agentloop/agentloop/internal/detect"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the detected project type, gate commands, and context files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		root, err := projectRoot(cmd)
		if err != nil {
			return err
		}
		settings := config.Resolve(root, overridesFromFlags(cmd))

		det := detect.New(root, settings.BaseBranch)
		snap := det.Snapshot()

		out := cmd.OutOrStdout()
		heading := color.New(color.FgCyan, color.Bold)
		for i, line := range strings.Split(snap.String(), "\n") {
			if i == 0 {
				heading.Fprintln(out, line)
				continue
			}
			fmt.Fprintln(out, line)
		}
		fmt.Fprintf(out, "Changed files (%d):\n", len(snap.ChangedFiles))
		for _, f := range snap.ChangedFiles {
			fmt.Fprintf(out, "  %s\n", f)
		}
		return nil
	},
}

func init() {
	addConfigFlags(detectCmd)
}
