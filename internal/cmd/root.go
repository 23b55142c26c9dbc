// Package cmd implements the cs command tree.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/swarm"
)

// Command group IDs for help output.
const (
	GroupAgents = "agents"
	GroupLocks  = "locks"
	GroupMsg    = "messaging"
	GroupTasks  = "tasks"
	GroupCoord  = "coordination"
	GroupDiag   = "diagnostics"
)

var rootFlag string

var rootCmd = &cobra.Command{
	Use:   "cs",
	Short: "Serverless coordination for a swarm of coding agents",
	Long: `cs coordinates multiple coding agents working in one repository.

All state lives in JSON files at the project root, guarded by OS
advisory locks. There is no daemon: every command reads the current
state, applies its change, and exits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Project root (default: auto-detected)")
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupAgents, Title: "Agent discovery:"},
		&cobra.Group{ID: GroupLocks, Title: "File locks:"},
		&cobra.Group{ID: GroupMsg, Title: "Messaging:"},
		&cobra.Group{ID: GroupTasks, Title: "Tasks and delegation:"},
		&cobra.Group{ID: GroupCoord, Title: "Coordination:"},
		&cobra.Group{ID: GroupDiag, Title: "Diagnostics:"},
	)
}

// Execute runs the command tree and returns the process exit code.
// Validation failures and coordination conflicts exit 1 with the reason
// on stderr.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// requireSubcommand is the RunE for commands that only group others.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// getSwarm wires the application context for one command invocation.
func getSwarm() (*swarm.Swarm, error) {
	return swarm.New(swarm.Options{Root: rootFlag})
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
