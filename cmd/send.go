package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/deskbridge/internal/application"
	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
)

func newSendCmd(app *app) *cobra.Command {
	var (
		timeout   time.Duration
		contextID string
		rawOutput bool
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Relay one message and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" {
				return domain.ErrEmptyMessage
			}

			ctx := cmd.Context()
			if err := app.surface.Connect(ctx); err != nil {
				return fmt.Errorf("attach to chat surface: %w", err)
			}
			defer func() {
				if err := app.surface.Close(); err != nil {
					logger.Warn("close surface: %v", err)
				}
			}()

			var result domain.FinalResult
			run := func(ctx context.Context) error {
				injected, err := app.bridge.InjectAndTrack(ctx, message, application.InjectOptions{
					Source:    "cli",
					ContextID: domain.ContextID(contextID),
				})
				if err != nil {
					return fmt.Errorf("inject message: %w", err)
				}

				result, err = app.bridge.ExtractResponse(ctx, injected.Anchor.ID, application.MonitorOptions{
					Timeout: timeout,
				})
				return err
			}

			if err := runWaitSpinner(ctx, cmd.ErrOrStderr(), "Waiting for response...", run); err != nil {
				return err
			}

			if rawOutput {
				fmt.Fprintln(cmd.OutOrStdout(), result.Content)
				return nil
			}

			if !result.Success {
				fmt.Fprintf(cmd.ErrOrStderr(), "incomplete: %s\n", result.Message)
			}
			if result.Content != "" {
				fmt.Fprintln(cmd.OutOrStdout(), result.Content)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "(%s, %d updates)\n", result.Elapsed.Round(10*time.Millisecond), result.Updates)

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "response timeout (default from config)")
	cmd.Flags().StringVar(&contextID, "context", "", "conversation context to attach the message to")
	cmd.Flags().BoolVar(&rawOutput, "raw", false, "print only the response content")

	return cmd
}
