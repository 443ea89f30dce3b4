package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "deskbridge",
		Short:         "deskbridge: remote-control bridge for a desktop chat application",
		Long:          "deskbridge attaches to a running chat application over its devtools port, relays messages into it from the terminal or Mattermost, and streams the responses back out.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(app),
		newSendCmd(app),
		newStatusCmd(app),
		newTokenCmd(app),
	)

	return rootCmd
}
