package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ledgerfeed",
		Short:        "Index ledger posts and serve reputation-ranked feeds",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(syncCmd())
	root.AddCommand(feedCmd())
	root.AddCommand(explainCmd())
	root.AddCommand(weightsCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Copy new posts from the ledger into the local index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context())
		},
	}
}

func feedCmd() *cobra.Command {
	var opts feedOptions

	cmd := &cobra.Command{
		Use:   "feed <variant>",
		Short: "Print a feed variant from the local index",
		Long:  "Variants: chronological, ranked, personalized, trending, high-quality.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.variant = args[0]
			return runFeed(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.viewer, "viewer", "", "viewer address for the personalized feed")
	cmd.Flags().StringVar(&opts.tier, "tier", "", "viewer tier for the personalized feed (overrides --viewer)")
	cmd.Flags().DurationVar(&opts.window, "window", 0, "trending window (default: from config)")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max posts to show, 0 for all")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "include score breakdowns in JSON output")
	return cmd
}

func explainCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "explain <post-id>",
		Short: "Show how a post's ranking score is built",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func weightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weights",
		Short: "Show the configured ranking weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeights()
		},
	}
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
