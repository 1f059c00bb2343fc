package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

type globalFlags struct {
	server   string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Starkville storefront - pay for merch and bookings with M-Pesa",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", envOr("STOREFRONT_SERVER_URL", "http://localhost:10000"), "Payment server base URL")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(checkoutCmd(flags))
	rootCmd.AddCommand(bookCmd(flags))
	rootCmd.AddCommand(watchCmd(flags))
	rootCmd.AddCommand(statusCmd(flags))
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
