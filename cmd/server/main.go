// Command server runs the fundflow project lifecycle engine and its admin tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides FUNDFLOW_CONFIG_PATH.
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fundflow",
	Short: "Project budget escrow and package allocation server",
	Long: `fundflow escrows project budgets, pays the treasury fee and carves the net budget
into packages and collaborator shares. Without a subcommand it runs the server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (.yaml or .toml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(tokenCmd)
}
