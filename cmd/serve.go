package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bz888/champs/internal/api/server"
	"github.com/bz888/champs/internal/api/server/client"
	"github.com/bz888/champs/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := logger.InitLogger(cfg.Dev, cfg.LogPath, nil); err != nil {
			return err
		}
		defer logger.Close()

		ctx, cancel := signalContext()
		defer cancel()

		provider, err := client.NewProvider(ctx, cfg)
		if err != nil {
			return err
		}
		return server.New(cfg, provider).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
