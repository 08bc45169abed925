package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	baseURL string
	token   string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "wtctl",
		Short:         "World Tycoon CLI tool",
		Long:          `A command line interface for the World Tycoon economy API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("WTCTL_URL", "http://localhost:8080"), "Base URL of the World Tycoon API")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("WTCTL_TOKEN"), "Bearer token sent with every request")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(economyCmd(opts))
	rootCmd.AddCommand(offersCmd(opts))
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
