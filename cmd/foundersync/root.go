package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/foundersync/internal/agent"
	"github.com/ashureev/foundersync/internal/config"
	"github.com/ashureev/foundersync/internal/llm"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "foundersync",
	Short: "Ask a simulated founding team about your startup.",
	Long: `foundersync runs the Foundersync agent team without the HTTP server.

It reads the same environment (and optional .env file) as the server:
GEMINI_API_KEY, GEMINI_MODEL, DB_PATH, FOUNDERSYNC_USE_MOCK_LLM and friends.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

		if err := godotenv.Load(); err != nil {
			slog.Debug("No .env file found, using environment variables")
		}
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging on stderr")
}

// newService loads configuration and builds the agent service.
func newService(cmd *cobra.Command) (*config.Config, *agent.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	invoker, err := llm.NewInvoker(cmd.Context(), cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("model client: %w", err)
	}
	svc, err := agent.NewService(invoker, agent.Config{
		ChunkDelay:         cfg.Chat.ChunkDelay,
		HistoryLimit:       cfg.Chat.HistoryLimit,
		MaxRequestBodySize: cfg.Chat.MaxRequestBodySize,
		RateLimitRequests:  cfg.RateLimit.RequestsPerWindow,
		RateLimitWindow:    cfg.RateLimit.WindowDuration,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, svc, nil
}
