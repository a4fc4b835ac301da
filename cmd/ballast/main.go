package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/ballast/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ballast",
	Short: "Ballast - per-node disk balancer for block-storage data nodes",
	Long: `Ballast shifts blocks between the storage volumes attached to a data
node according to a plan produced by an external planner. The agent runs
embedded in the node, validates submitted plans, and executes the block
moves while honoring bandwidth ceilings and error budgets.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Ballast version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("agent", "localhost:7070", "Agent admin API address")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	// Add subcommands
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(volumesCmd)
	rootCmd.AddCommand(bandwidthCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(eventsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      logLevel,
		JSONOutput: logJSON,
	})
}

func agentAddr(cmd *cobra.Command) string {
	addr, _ := rootCmd.PersistentFlags().GetString("agent")
	return addr
}
