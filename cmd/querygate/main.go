// Package main provides the querygate CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/querygate/cli"
	"github.com/richinex/querygate/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "querygate",
		Short: "Document-grounded question answering over a fallback provider chain",
		Long: `Answer questions from candidate documents using an ordered chain of LLM providers.

Each query is answered by:
- Ranking the candidate documents and packing the best into a token budget
- Calling the primary provider, falling back to the secondary and then the offline model
- Letting the model call web_search a bounded number of times before a final answer`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file (default querygate.toml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(providersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadSettings() (config.Settings, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return config.Settings{}, err
	}
	cli.ConfigureLogging(settings.Log, verbose)
	return settings, nil
}

// withApp loads settings, wires the application and runs fn with a
// context canceled on SIGINT or SIGTERM.
func withApp(fn func(ctx context.Context, app *cli.App) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.Build(ctx, settings)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				if addr != "" {
					app.Settings.Server.Addr = addr
				}
				return cli.Serve(ctx, app)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func askCmd() *cobra.Command {
	var opts cli.AskOptions

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a single query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.Ask(ctx, app, args[0], opts, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&opts.ConversationID, "conversation", "", "Conversation ID to continue")
	cmd.Flags().StringVar(&opts.Scope, "scope", "", "Owner scope of stored candidate documents")
	cmd.Flags().StringSliceVar(&opts.DocumentIDs, "doc", nil, "Stored document ID to consider (repeatable)")
	cmd.Flags().StringVarP(&opts.DocumentsFile, "documents", "d", "", "JSON file of candidate documents")
	cmd.Flags().BoolVarP(&opts.AllowWebSearch, "web", "w", false, "Allow the web_search tool")
	cmd.Flags().IntVar(&opts.TokenBudget, "budget", 0, "Token budget for documents (default engine.token_budget)")
	cmd.Flags().BoolVar(&opts.ShowTrace, "trace", false, "Print the provider attempt trace")

	return cmd
}

func mcpCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve search, fetch and ask as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				return cli.ServeMCP(app, scope)
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Owner scope searched and fetched from")

	return cmd
}

func ingestCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "ingest [documents.json]",
		Short: "Store documents for later queries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, app *cli.App) error {
				n, err := cli.Ingest(ctx, app.Documents, args[0], scope)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %d documents\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Owner scope assigned to every document")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the provider chain in fallback order",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			cli.ListProviders(settings, cmd.OutOrStdout())
			return nil
		},
	}
}
