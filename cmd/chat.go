package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bz888/champs/internal/api"
	"github.com/bz888/champs/internal/auth"
	"github.com/bz888/champs/internal/logger"
	"github.com/bz888/champs/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the chat UI against a running relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig(cmd)
		if err := cfg.ValidateClient(); err != nil {
			return err
		}

		relay, err := api.New(cfg.ServerURL, cfg.Transport)
		if err != nil {
			return err
		}

		view := ui.New(relay, auth.FromConfig(cfg), cfg.Dev)
		if err := logger.InitLogger(cfg.Dev, cfg.LogPath, view.DebugConsole()); err != nil {
			return err
		}
		defer logger.Close()

		ctx, cancel := signalContext()
		defer cancel()
		return view.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
