package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewListCmd(deps *Dependencies) *cobra.Command {
	var skip, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List shadows, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			shadows, err := deps.Client.ListShadows(cmd.Context(), skip, limit)
			if err != nil {
				return err
			}
			if len(shadows) == 0 {
				fmt.Println("No shadows yet. Record one with: shadowcast record -t <title>")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCREATED\tTITLE")
			for _, s := range shadows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Title)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&skip, "skip", 0, "Number of shadows to skip")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum shadows to return")

	return cmd
}
