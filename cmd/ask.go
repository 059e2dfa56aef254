package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bz888/champs/internal/api"
	"github.com/bz888/champs/internal/chat"
	"github.com/bz888/champs/internal/logger"
	"github.com/bz888/champs/internal/models"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message to the relay and stream the reply to stdout",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		if err := cfg.ValidateClient(); err != nil {
			return err
		}
		if err := logger.InitLogger(cfg.Dev, cfg.LogPath, nil); err != nil {
			return err
		}
		defer logger.Close()

		relay, err := api.New(cfg.ServerURL, cfg.Transport)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()
		return ask(ctx, relay, strings.Join(args, " "), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

// ask streams a single exchange, seeded with the greeting like the chat UI.
func ask(ctx context.Context, streamer chat.Streamer, message string, out io.Writer) error {
	message = chat.FormatUserText(message)
	if message == "" {
		return fmt.Errorf("message is empty")
	}

	turns := []models.ChatTurn{
		{Role: models.RoleAssistant, Content: chat.Greeting},
		{Role: models.RoleUser, Content: message},
	}
	err := streamer.Stream(ctx, turns, func(fragment string) error {
		_, err := io.WriteString(out, fragment)
		return err
	})
	fmt.Fprintln(out)
	return err
}
