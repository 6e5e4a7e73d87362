package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// A missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.StandardLogger().WithError(err).Error("command failed")
		cancel()
		os.Exit(1)
	}
}
