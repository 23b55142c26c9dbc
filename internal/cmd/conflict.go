package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/conflict"
	"github.com/claudeswarm/claudeswarm/internal/style"
)

var (
	conflictListStatus string
	conflictListJSON   bool
	resolveYield       bool
)

var conflictCmd = &cobra.Command{
	Use:     "conflict",
	GroupID: GroupCoord,
	Short:   "Record and resolve resource conflicts",
	RunE:    requireSubcommand,
	Long: `Manage CONFLICT_LOG.json. Denied lock acquisitions are recorded here
automatically; conflicts are then decided by task priority, explicit
yield, or negotiation, with holder seniority as the tie breaker.`,
}

var conflictListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts",
	Args:  cobra.NoArgs,
	RunE:  runConflictList,
}

var conflictShowCmd = &cobra.Command{
	Use:   "show <conflict_id>",
	Short: "Show one conflict with its negotiation rounds",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictShow,
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve <conflict_id>",
	Short: "Resolve a conflict by the strategy ladder",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictResolve,
}

var conflictNegotiateCmd = &cobra.Command{
	Use:   "negotiate <conflict_id> <agent_id> <yield|insist|compromise> [message]",
	Short: "Submit a negotiation move",
	Args:  cobra.RangeArgs(3, 4),
	RunE:  runConflictNegotiate,
}

func init() {
	conflictListCmd.Flags().StringVar(&conflictListStatus, "status", "", "Filter by status")
	conflictListCmd.Flags().BoolVar(&conflictListJSON, "json", false, "Output JSON")
	conflictResolveCmd.Flags().BoolVar(&resolveYield, "requester-yields", false, "The requester gives up its claim")

	conflictCmd.AddCommand(conflictListCmd, conflictShowCmd, conflictResolveCmd, conflictNegotiateCmd)
	rootCmd.AddCommand(conflictCmd)
}

func runConflictList(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	conflicts, err := sw.Conflicts.List(conflict.Status(conflictListStatus))
	if err != nil {
		return err
	}
	if conflictListJSON {
		return printJSON(map[string]any{"conflicts": conflicts})
	}
	if len(conflicts) == 0 {
		fmt.Println("No conflicts.")
		return nil
	}
	table := style.NewTable(
		style.Column{Name: "ID", Width: 36},
		style.Column{Name: "TYPE", Width: 9},
		style.Column{Name: "AGENTS", Width: 22},
		style.Column{Name: "RESOURCE", Width: 24},
		style.Column{Name: "STATUS", Width: 9},
	)
	for _, c := range conflicts {
		table.AddRow(c.ConflictID, string(c.Type), strings.Join(c.AgentsInvolved, " vs "),
			c.Resource, string(c.Status))
	}
	fmt.Print(table.Render())
	return nil
}

func runConflictShow(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	c, err := sw.Conflicts.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s %s over %s\n", style.Title.Render(c.ConflictID), string(c.Type), c.Resource)
	fmt.Printf("  Agents: %s\n", strings.Join(c.AgentsInvolved, " vs "))
	fmt.Printf("  Status: %s\n", c.Status)
	for _, n := range c.Negotiations {
		fmt.Printf("  round %d: %s %s", n.Round, n.AgentID, n.Action)
		if n.Message != "" {
			fmt.Printf(" (%s)", n.Message)
		}
		fmt.Println()
	}
	for _, s := range c.Steps {
		fmt.Printf("  step: %s\n", s)
	}
	if c.Resolution != nil {
		winner := c.Resolution.Winner
		if winner == "" {
			winner = "nobody"
		}
		fmt.Printf("  Resolution: %s wins by %s (%s)\n", style.Bold.Render(winner),
			c.Resolution.Strategy, c.Resolution.Detail)
	}
	return nil
}

func runConflictResolve(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	c, err := sw.Conflicts.Resolve(args[0], resolveYield)
	if err != nil {
		return err
	}
	fmt.Printf("%s Resolved: %s wins by %s\n", style.Check(), c.Resolution.Winner, c.Resolution.Strategy)
	return nil
}

func runConflictNegotiate(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	action, err := conflict.ParseAction(args[2])
	if err != nil {
		return err
	}
	c, err := sw.Conflicts.Negotiate(args[0], args[1], action, optionalArg(args, 3))
	if err != nil {
		return err
	}
	if c.Resolution != nil {
		winner := c.Resolution.Winner
		if winner == "" {
			winner = "nobody"
		}
		fmt.Printf("%s Settled: %s wins by %s\n", style.Check(), winner, c.Resolution.Strategy)
		return nil
	}
	fmt.Printf("Move recorded, conflict still %s\n", c.Status)
	return nil
}
