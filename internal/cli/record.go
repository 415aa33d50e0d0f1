package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/totcainc/knowledge-shadows/internal/capture"
	"github.com/totcainc/knowledge-shadows/internal/domain"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var title, notes string
	var tags []string
	var wait bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the screen and upload it as a new shadow",
		Long:  "Start a capture session: the screen (plus microphone when available) is recorded until Ctrl+C or the share is ended externally, then uploaded and queued for processing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), deps, title, notes, tags, wait)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Shadow title (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes stored with the shadow")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for processing to finish before exiting")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

type sessionResult struct {
	id     string
	errMsg string
}

func runRecord(ctx context.Context, deps *Dependencies, title, notes string, tags []string, wait bool) error {
	done := make(chan sessionResult, 1)
	ctrl := capture.NewController(capture.ControllerOptions{
		Source:        deps.Source,
		Recorders:     deps.Recorders,
		Backend:       deps.Client,
		Logger:        deps.Logger,
		ChunkInterval: deps.Cfg.ChunkInterval,
		Navigate: func(shadowID string) {
			select {
			case done <- sessionResult{id: shadowID}:
			default:
			}
		},
		OnChange: func(s capture.Snapshot) {
			if s.State == capture.StateIdle && s.LastError != "" {
				select {
				case done <- sessionResult{id: s.RecordID, errMsg: s.LastError}:
				default:
				}
			}
		},
	})
	defer ctrl.Close()

	if err := ctrl.Start(ctx, capture.StartOptions{Title: title, UserNotes: notes, Tags: tags}); err != nil {
		if msg := ctrl.Snapshot().LastError; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Println("Recording. Press Ctrl+C to finish.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var id string
	select {
	case <-sig:
		fmt.Println("Stopping and uploading...")
		stopped, err := ctrl.End(ctx)
		if err != nil {
			if msg := ctrl.Snapshot().LastError; msg != "" {
				return errors.New(msg)
			}
			return err
		}
		id = stopped
	case r := <-done:
		// the share was ended externally; End ran on our behalf
		if r.errMsg != "" {
			return errors.New(r.errMsg)
		}
		fmt.Println("Screen share ended, recording uploaded.")
		id = r.id
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Printf("Shadow %s uploaded, processing started.\n", id)
	if !wait {
		fmt.Printf("Check progress with: shadowcast show %s\n", id)
		return nil
	}
	return waitForProcessing(ctx, deps, id)
}

func waitForProcessing(ctx context.Context, deps *Dependencies, id string) error {
	fmt.Println("Waiting for processing...")
	var last domain.Status
	shadow, err := deps.Client.WaitWhileProcessing(ctx, id, deps.Cfg.PollInterval, func(s domain.Shadow) {
		if s.Status != last {
			fmt.Printf("  status: %s\n", s.Status)
			last = s.Status
		}
	})
	if err != nil {
		return err
	}
	if shadow.Status == domain.StatusFailed {
		msg := "processing failed"
		if shadow.ProcessingError != nil {
			msg = *shadow.ProcessingError
		}
		return fmt.Errorf("%s (retry with: shadowcast retry %s)", msg, id)
	}
	fmt.Printf("Done: shadow %s is %s.\n", id, shadow.Status)
	return nil
}
