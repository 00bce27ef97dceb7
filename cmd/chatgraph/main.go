// Package main is the entry point for the chatgraph CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petasbytes/go-chatgraph/internal/config"
)

// globalFlags override config values when set.
type globalFlags struct {
	configPath string
	store      string
	dsn        string
	logMode    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			fmt.Fprintln(os.Stderr, "Missing ANTHROPIC_API_KEY; export it before running.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	gf := &globalFlags{}
	chatOpts := &chatOptions{}

	rootCmd := &cobra.Command{
		Use:   "chatgraph",
		Short: "A conversational agent driven by a checkpointed state graph",
		Long: `chatgraph runs each chat turn through a three-step graph: classify the
user's intent, ask the model for a reply, and append the exchange to the
thread's transcript. State is checkpointed per thread in memory, SQLite,
Postgres or Redis.

Running chatgraph without a subcommand starts the interactive chat.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), gf, chatOpts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&gf.configPath, "config", "", "path to a YAML config file (default $CHATGRAPH_CONFIG)")
	pf.StringVar(&gf.store, "store", "", "checkpoint backend: memory, sqlite, postgres or redis")
	pf.StringVar(&gf.dsn, "dsn", "", "checkpoint backend DSN (sqlite path, postgres URL, redis URL)")
	pf.StringVar(&gf.logMode, "log-mode", "", "log format: dev or prod")
	addChatFlags(rootCmd, chatOpts)

	rootCmd.AddCommand(
		chatCmd(gf),
		demoCmd(gf),
		serveCmd(gf),
		historyCmd(gf),
		threadsCmd(gf),
	)
	return rootCmd
}
