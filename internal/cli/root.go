// Package cli wires the shadowcast commands.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/totcainc/knowledge-shadows/internal/api"
	"github.com/totcainc/knowledge-shadows/internal/capture"
	"github.com/totcainc/knowledge-shadows/internal/infrastructure/config"
	obs "github.com/totcainc/knowledge-shadows/internal/infrastructure/observability"
)

type Dependencies struct {
	Cfg       *config.AgentConfig
	Client    *api.Client
	Source    capture.MediaSource
	Recorders capture.RecorderFactory
	Logger    zerolog.Logger
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "shadowcast",
		Short:         "Capture screen walkthroughs into reviewable knowledge shadows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = obs.Version

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewListCmd(deps))
	rootCmd.AddCommand(NewShowCmd(deps))
	rootCmd.AddCommand(NewRetryCmd(deps))
	rootCmd.AddCommand(NewLoginCmd(deps))
	rootCmd.AddCommand(NewLogoutCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}
