package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/style"
)

var (
	delegateTo      string
	delegateExclude []string
	delegateTools   []string
	historyJSON     bool
)

var delegateCmd = &cobra.Command{
	Use:     "delegate <task_id>",
	GroupID: GroupTasks,
	Short:   "Assign a task to the best-scoring agent",
	Long: `Score every active agent's card against the task's skill requirements
and assign the task to the winner. Requirements come from the task's
files, keywords in the objective, and explicit "requires <skill>"
phrases in constraints.

With --to the named agent is used instead of scoring.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelegate,
}

var delegationHistoryCmd = &cobra.Command{
	Use:     "delegation-history",
	GroupID: GroupTasks,
	Short:   "Show recorded delegation outcomes",
	Args:    cobra.NoArgs,
	RunE:    runDelegationHistory,
}

func init() {
	delegateCmd.Flags().StringVar(&delegateTo, "to", "", "Assign to this agent instead of scoring")
	delegateCmd.Flags().StringSliceVar(&delegateExclude, "exclude", nil, "Agent to skip (repeatable)")
	delegateCmd.Flags().StringSliceVar(&delegateTools, "tool", nil, "Required tool (repeatable)")
	delegationHistoryCmd.Flags().BoolVar(&historyJSON, "json", false, "Output JSON")

	rootCmd.AddCommand(delegateCmd, delegationHistoryCmd)
}

func runDelegate(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Get(args[0])
	if err != nil {
		return err
	}

	if delegateTo == "" && (len(delegateExclude) > 0 || len(delegateTools) > 0) {
		best, _, err := sw.Delegate.FindBest(t, delegateExclude, delegateTools)
		if err != nil {
			return err
		}
		if best == nil {
			return fmt.Errorf("no suitable agent for task %s", t.TaskID)
		}
		delegateTo = best.AgentID
	}

	rec, err := sw.Delegate.Delegate(t, delegateTo)
	if err != nil {
		return err
	}
	fmt.Printf("%s Assigned %s to %s (score %.2f)\n", style.Check(), rec.TaskID, rec.AssignedTo, rec.Score)
	for _, alt := range rec.Alternatives {
		fmt.Printf("  also considered %s (%.2f)\n", alt.AgentID, alt.Score)
	}
	return nil
}

func runDelegationHistory(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	records, err := sw.Delegate.History()
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(map[string]any{"delegations": records})
	}
	if len(records) == 0 {
		fmt.Println("No delegations recorded.")
		return nil
	}
	table := style.NewTable(
		style.Column{Name: "WHEN", Width: 20},
		style.Column{Name: "TASK", Width: 36},
		style.Column{Name: "AGENT", Width: 10},
		style.Column{Name: "SCORE", Width: 5, Align: style.AlignRight},
		style.Column{Name: "OUTCOME", Width: 24},
	)
	for _, r := range records {
		outcome := "assigned"
		if !r.Assigned {
			outcome = style.Bad.Render(r.Reason)
		}
		table.AddRow(r.DelegatedAt.Local().Format("2006-01-02 15:04:05"),
			r.TaskID, r.AssignedTo, fmt.Sprintf("%.2f", r.Score), outcome)
	}
	fmt.Print(table.Render())
	return nil
}
