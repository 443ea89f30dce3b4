package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/deskbridge/internal/adapters/secrets"
)

func newTokenCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the Mattermost bot token",
	}

	var value string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the Mattermost bot token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.secretStore.Put(cmd.Context(), secrets.KeyMattermostToken, value); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token stored")
			return nil
		},
	}
	setCmd.Flags().StringVar(&value, "value", "", "bot token value")
	_ = setCmd.MarkFlagRequired("value")

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored Mattermost bot token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.secretStore.Delete(cmd.Context(), secrets.KeyMattermostToken); err != nil {
				return fmt.Errorf("delete token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token removed")
			return nil
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)

	return cmd
}
