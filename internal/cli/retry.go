package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRetryCmd(deps *Dependencies) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "retry <shadow-id>",
		Short: "Re-run processing for a failed shadow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shadow, err := deps.Client.RetryProcessing(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Shadow %s is %s again.\n", shadow.ID, shadow.Status)
			if wait {
				return waitForProcessing(cmd.Context(), deps, shadow.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for processing to finish before exiting")

	return cmd
}
