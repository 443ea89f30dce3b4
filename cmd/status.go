package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/deskbridge/internal/adapters/render/status"
	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check health of the chat surface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := app.surface.Connect(ctx); err != nil {
				return fmt.Errorf("attach to chat surface: %w", err)
			}
			defer func() {
				if err := app.surface.Close(); err != nil {
					logger.Warn("close surface: %v", err)
				}
			}()

			report := app.health.RunOnce(ctx)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			active := make([]domain.Anchor, 0)
			for _, id := range app.bridge.ActiveMonitors() {
				if anchor, ok := app.anchors.Get(id); ok {
					active = append(active, anchor)
				}
			}

			snapshot := statusadapter.Snapshot{
				Health:   report,
				Active:   active,
				Contexts: app.contexts.Len(),
			}

			rendered, err := app.statusRenderer(snapshot, statusadapter.RenderOptions{
				Now:        app.now(),
				StaleAfter: 5 * time.Minute,
			})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the health report as JSON")

	return cmd
}
