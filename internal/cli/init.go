package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentloop/agentloop/internal/scaffold"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold PROMPT.md, requirements.md, and config in the current project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		root, err := projectRoot(cmd)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		actions, err := scaffold.Run(root, force)
		for _, a := range actions {
			if strings.HasPrefix(a, "Skipped") {
				fmt.Fprintln(cmd.OutOrStdout(), color.YellowString(a))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), color.GreenString(a))
			}
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "\nEdit PROMPT.md and requirements.md, then run: agentloop run")
		return nil
	},
}

func init() {
	initCmd.Flags().StringP("dir", "C", "", "project root (default current directory)")
	initCmd.Flags().BoolP("force", "f", false, "overwrite existing scaffold files")
}
