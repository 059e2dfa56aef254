package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bz888/champs/internal/api"
	"github.com/bz888/champs/internal/api/server"
	"github.com/bz888/champs/internal/api/server/client"
	"github.com/bz888/champs/internal/auth"
	"github.com/bz888/champs/internal/config"
	"github.com/bz888/champs/internal/logger"
	"github.com/bz888/champs/internal/ui"
)

var version = "dev"

var flags struct {
	dev       bool
	logPath   string
	addr      string
	provider  string
	model     string
	serverURL string
	transport string
}

var rootCmd = &cobra.Command{
	Use:   "champs",
	Short: "Chatbot Champs - streaming chat relay and terminal client",
	Long: `Chatbot Champs relays a conversation to a hosted LLM and streams the reply
back token by token.

  champs                     Start the relay and the chat UI together
  champs serve               Start only the relay
  champs chat                Start only the chat UI against --server
  champs ask "hello"         Stream one reply to stdout`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAll,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.dev, "dev", false, "Development mode: debug logging and the debug console")
	pf.StringVar(&flags.logPath, "log-path", "", "Directory for JSON log files")
	pf.StringVar(&flags.addr, "addr", "", "Relay listen address (env CHAMPS_ADDR)")
	pf.StringVar(&flags.provider, "provider", "", "Upstream provider: groq, openai, ollama, gemini (env LLM_PROVIDER)")
	pf.StringVar(&flags.model, "model", "", "Upstream model id (env LLM_MODEL)")
	pf.StringVar(&flags.serverURL, "server", "", "Relay URL for the client (env CHAMPS_SERVER_URL)")
	pf.StringVar(&flags.transport, "transport", "", "Client transport: http or ws (env CHAMPS_TRANSPORT)")
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment, then applies any flags given.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	changed := cmd.Flags().Changed

	if changed("dev") {
		cfg.Dev = flags.dev
	}
	if changed("log-path") {
		cfg.LogPath = flags.logPath
	}
	if changed("addr") {
		cfg.Addr = flags.addr
	}
	if changed("provider") {
		cfg.SetProvider(flags.provider)
	}
	if changed("model") {
		cfg.Model = flags.model
	}
	if changed("server") {
		cfg.ServerURL = flags.serverURL
	}
	if changed("transport") {
		cfg.Transport = flags.transport
	}
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runAll starts the relay and the chat UI in one process. The UI talks to
// the relay over loopback exactly as a remote client would.
func runAll(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	provider, err := client.NewProvider(ctx, cfg)
	if err != nil {
		return err
	}
	srv := server.New(cfg, provider)
	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	relay, err := api.New(loopbackURL(ln), cfg.Transport)
	if err != nil {
		ln.Close()
		return err
	}

	view := ui.New(relay, auth.FromConfig(cfg), cfg.Dev)
	if err := logger.InitLogger(cfg.Dev, cfg.LogPath, view.DebugConsole()); err != nil {
		ln.Close()
		return err
	}
	defer logger.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, ln) }()

	uiErr := view.Run(ctx)
	cancel()
	if err := <-serveErr; err != nil {
		return err
	}
	return uiErr
}

func loopbackURL(ln net.Listener) string {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf("http://127.0.0.1:%d", addr.Port)
	}
	return "http://" + ln.Addr().String()
}
