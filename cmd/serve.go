package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/deskbridge/internal/adapters/deliver/mattermost"
	"github.com/bnema/deskbridge/internal/adapters/deliver/terminal"
	"github.com/bnema/deskbridge/internal/adapters/secrets"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

func newServeCmd(app *app) *cobra.Command {
	var platformName string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge against the chat surface",
		Long:  "serve attaches to the chat application and relays messages from the chosen delivery platform until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			platform, err := buildPlatform(ctx, app, platformName)
			if err != nil {
				return err
			}

			if err := app.surface.Connect(ctx); err != nil {
				return fmt.Errorf("attach to chat surface: %w", err)
			}
			defer func() {
				if err := app.surface.Close(); err != nil {
					logger.Warn("close surface: %v", err)
				}
			}()

			if err := restoreContexts(ctx, app); err != nil {
				logger.Warn("restore contexts: %v", err)
			}
			defer snapshotContexts(app)

			go app.anchors.Run(ctx)
			go app.contexts.Run(ctx)
			go app.health.Watch(ctx)

			logger.Info("serving via %s platform", platform.Name())
			err = platform.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run %s platform: %w", platform.Name(), err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&platformName, "interface", "terminal", "delivery platform (terminal or mattermost)")

	return cmd
}

func buildPlatform(ctx context.Context, app *app, name string) (ports.Platform, error) {
	switch name {
	case "terminal":
		return terminal.New(app.messages), nil
	case "mattermost":
		mm := app.cfg.Mattermost
		if mm.URL == "" {
			return nil, errors.New("mattermost.url is not configured")
		}

		token, err := app.secretStore.Get(ctx, secrets.KeyMattermostToken)
		if err != nil {
			return nil, fmt.Errorf("load mattermost token (run `deskbridge token set`): %w", err)
		}

		client := mattermost.NewClient(mm.URL, token)
		return mattermost.New(client, app.messages, ports.SystemClock{}, mattermost.Config{
			BotUserID:       mm.BotUserID,
			TeamID:          mm.TeamID,
			PollInterval:    mm.PollInterval,
			MentionPatterns: mm.MentionPatterns,
		}), nil
	default:
		return nil, fmt.Errorf("unknown platform %q (want terminal or mattermost)", name)
	}
}

func restoreContexts(ctx context.Context, app *app) error {
	stored, err := app.contextStore.Load(ctx)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}

	app.contexts.Restore(stored)
	logger.Info("restored %d conversation contexts", len(stored))

	return nil
}

// snapshotContexts persists the registry on shutdown with a fresh
// context; the serve context is already cancelled by then.
func snapshotContexts(app *app) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snapshot := app.contexts.Snapshot()
	if err := app.contextStore.Save(ctx, snapshot); err != nil {
		logger.Warn("persist contexts: %v", err)
		return
	}
	logger.Debug("persisted %d conversation contexts", len(snapshot))
}
