package cmd

import (
	"github.com/spf13/cobra"

	"github.com/versolabs/verso/internal/app"
	"github.com/versolabs/verso/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
