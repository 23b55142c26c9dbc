package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/memory"
	"github.com/claudeswarm/claudeswarm/internal/style"
)

var (
	memoryShowJSON bool
	learnSuccess   bool
	learnSkills    []string
)

var memoryCmd = &cobra.Command{
	Use:     "memory",
	GroupID: GroupCoord,
	Short:   "Inspect and update per-agent memory",
	RunE:    requireSubcommand,
	Long: `Manage per-agent memory files under .agent_memory/. Memory holds the
agent's recent task outcomes, learned patterns, and relationship scores
with other agents.`,
}

var memoryShowCmd = &cobra.Command{
	Use:   "show <agent_id>",
	Short: "Print an agent's memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryShow,
}

var memoryPatternCmd = &cobra.Command{
	Use:   "learn-pattern <agent_id> <description> <effectiveness>",
	Short: "Record or reinforce a pattern",
	Args:  cobra.ExactArgs(3),
	RunE:  runMemoryPattern,
}

var memoryInteractionCmd = &cobra.Command{
	Use:   "record-interaction <agent_id> <other_agent> <positive|negative>",
	Short: "Record an interaction between two agents",
	Args:  cobra.ExactArgs(3),
	RunE:  runMemoryInteraction,
}

var learningStatsCmd = &cobra.Command{
	Use:     "learning-stats [agent_id]",
	GroupID: GroupCoord,
	Short:   "Show aggregate task statistics per agent",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runLearningStats,
}

var recordOutcomeCmd = &cobra.Command{
	Use:     "record-outcome <agent_id> <duration>",
	GroupID: GroupCoord,
	Short:   "Fold a finished task into an agent's learning stats",
	Long: `Record a task outcome for learning. Duration is a Go duration string
like 90s or 4m. Success rates and completion times blend in with an
exponential moving average; per-skill rates propagate to the agent's
capability card.

Example:
  cs record-outcome agent-1 4m --success --skill go --skill testing`,
	Args: cobra.ExactArgs(2),
	RunE: runRecordOutcome,
}

func init() {
	memoryShowCmd.Flags().BoolVar(&memoryShowJSON, "json", false, "Output JSON")
	recordOutcomeCmd.Flags().BoolVar(&learnSuccess, "success", false, "The task succeeded")
	recordOutcomeCmd.Flags().StringSliceVar(&learnSkills, "skill", nil, "Skill exercised (repeatable)")

	memoryCmd.AddCommand(memoryShowCmd, memoryPatternCmd, memoryInteractionCmd)
	rootCmd.AddCommand(memoryCmd, learningStatsCmd, recordOutcomeCmd)
}

func runMemoryShow(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	mem, err := sw.Memory.Load(args[0])
	if err != nil {
		return err
	}
	if memoryShowJSON {
		return printJSON(mem)
	}

	fmt.Println(style.Title.Render("Memory for " + args[0]))
	if len(mem.Tasks) > 0 {
		fmt.Println("  Recent tasks:")
		for _, tm := range mem.Tasks {
			mark := style.Check()
			if !tm.Success {
				mark = style.Cross()
			}
			fmt.Printf("    %s %s %s\n", mark, tm.TaskID, tm.Objective)
		}
	}
	if len(mem.Patterns) > 0 {
		fmt.Println("  Patterns:")
		for _, p := range mem.Patterns {
			fmt.Printf("    %.2f (%dx) %s\n", p.Effectiveness, p.Occurrences, p.Description)
		}
	}
	if len(mem.Relationships) > 0 {
		fmt.Println("  Relationships:")
		for other, rel := range mem.Relationships {
			fmt.Printf("    %s trust %.2f reliability %.2f over %d interaction(s)\n",
				other, rel.Trust, rel.Reliability, rel.Interactions)
		}
	}
	return nil
}

func runMemoryPattern(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	effectiveness, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("effectiveness must be a number in [0, 1]: %w", err)
	}
	p, err := sw.Memory.LearnPattern(args[0], args[1], effectiveness)
	if err != nil {
		return err
	}
	fmt.Printf("%s Pattern %s now %.2f after %d occurrence(s)\n",
		style.Check(), p.Hash, p.Effectiveness, p.Occurrences)
	return nil
}

func runMemoryInteraction(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	var positive bool
	switch args[2] {
	case "positive":
		positive = true
	case "negative":
	default:
		return fmt.Errorf("outcome must be positive or negative, got %q", args[2])
	}
	rel, err := sw.Memory.RecordInteraction(args[0], args[1], positive)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s now trusts %s at %.2f\n", style.Check(), args[0], args[1], rel.Trust)
	return nil
}

func runLearningStats(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		stats, err := sw.Learning.Stats(args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]memory.AgentStats{args[0]: stats})
	}
	all, err := sw.Learning.All()
	if err != nil {
		return err
	}
	return printJSON(all)
}

func runRecordOutcome(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	duration, err := time.ParseDuration(args[1])
	if err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	if err := sw.Learning.RecordTaskCompleted(args[0], learnSkills, learnSuccess, duration); err != nil {
		return err
	}
	stats, err := sw.Learning.Stats(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s %s success rate now %.2f\n", style.Check(), args[0], stats.SuccessRate)
	return nil
}
