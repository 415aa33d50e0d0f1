package main

import (
	"context"
	"fmt"
	"os"

	"github.com/totcainc/knowledge-shadows/internal/adapters/media/ffmpeg"
	"github.com/totcainc/knowledge-shadows/internal/api"
	"github.com/totcainc/knowledge-shadows/internal/cli"
	cfgpkg "github.com/totcainc/knowledge-shadows/internal/infrastructure/config"
	obs "github.com/totcainc/knowledge-shadows/internal/infrastructure/observability"
)

func main() {
	cfg, err := cfgpkg.LoadAgent()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.LogLevel, true)

	client := api.New(api.Options{
		BaseURL: cfg.ServerURL,
		Tokens:  api.NewFileTokenStore(cfg.TokenPath),
		Logger:  *logger,
	})

	deps := &cli.Dependencies{
		Cfg:       cfg,
		Client:    client,
		Source:    ffmpeg.NewSource(*logger),
		Recorders: ffmpeg.NewFactory(*logger),
		Logger:    *logger,
	}

	// SIGINT is the record command's stop signal, so the root context is not
	// bound to it.
	if err := cli.NewRootCmd(deps).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
