package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/totcainc/knowledge-shadows/internal/domain"
)

func NewShowCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <shadow-id>",
		Short: "Show a shadow with its chapters and decision points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]

			shadow, err := deps.Client.GetShadow(ctx, id)
			if err != nil {
				return err
			}
			printShadow(shadow)

			if shadow.Status != domain.StatusReadyForReview && shadow.Status != domain.StatusPublished {
				return nil
			}
			chapters, err := deps.Client.ListChapters(ctx, id)
			if err != nil {
				return err
			}
			if len(chapters) > 0 {
				fmt.Println("\nChapters:")
				for _, c := range chapters {
					fmt.Printf("  %s - %s  %s\n", timestamp(c.StartSeconds), timestamp(c.EndSeconds), c.Title)
				}
			}
			points, err := deps.Client.ListDecisionPoints(ctx, id)
			if err != nil {
				return err
			}
			if len(points) > 0 {
				fmt.Println("\nDecision points:")
				for _, p := range points {
					fmt.Printf("  %s  %s\n", timestamp(p.TimestampSeconds), p.DecisionDescription)
					if p.Reasoning != "" {
						fmt.Printf("          %s\n", p.Reasoning)
					}
				}
			}
			return nil
		},
	}
	return cmd
}

func printShadow(s domain.Shadow) {
	fmt.Printf("%s\n", s.Title)
	fmt.Printf("  id:       %s\n", s.ID)
	fmt.Printf("  status:   %s\n", s.Status)
	fmt.Printf("  created:  %s\n", s.CreatedAt.Local().Format(time.RFC1123))
	if s.DurationSeconds > 0 {
		fmt.Printf("  duration: %s\n", timestamp(float64(s.DurationSeconds)))
	}
	if len(s.Tags) > 0 {
		fmt.Printf("  tags:     %s\n", strings.Join(s.Tags, ", "))
	}
	if s.RawVideoURL != nil {
		fmt.Printf("  video:    %s\n", *s.RawVideoURL)
	}
	if s.Status == domain.StatusFailed && s.ProcessingError != nil {
		fmt.Printf("  error:    %s\n", *s.ProcessingError)
	}
	if s.ExecutiveSummary != nil && *s.ExecutiveSummary != "" {
		fmt.Printf("\n%s\n", *s.ExecutiveSummary)
	}
	if len(s.KeyTakeaways) > 0 {
		fmt.Println("\nKey takeaways:")
		for _, k := range s.KeyTakeaways {
			fmt.Printf("  - %s\n", k)
		}
	}
}

func timestamp(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", m, s)
}
