package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/bounty-backend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "bounty",
	Short:         "Bounty ledger backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Log.WithError(err).Error("command failed")
		stop()
		os.Exit(1)
	}
}
