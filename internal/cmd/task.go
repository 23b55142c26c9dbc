package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/style"
	"github.com/claudeswarm/claudeswarm/internal/task"
)

var (
	taskCreatePriority string
	taskCreateContext  string
	taskCreateParent   string
	taskCreateFiles    []string
	taskCreateLimits   []string
	taskListStatus     string
	taskListAssignee   string
	taskListContext    string
	taskListTerminal   bool
	taskListJSON       bool
	taskBlockOn        []string
)

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: GroupTasks,
	Short:   "Create and drive tasks through their lifecycle",
	RunE:    requireSubcommand,
	Long: `Manage the shared task store in TASKS.json.

Tasks move through pending, assigned, working, review, blocked, failed,
completed, and cancelled. Every transition is validated and recorded in
the task's history.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <created_by> <objective>",
	Short: "Create a pending task",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskCreate,
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <task_id> <assignee> <by_agent>",
	Short: "Assign a pending task to an agent",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskAssign,
}

var taskStartCmd = &cobra.Command{
	Use:   "start <task_id> <agent_id>",
	Short: "Move an assigned task to working",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStart,
}

var taskReviewCmd = &cobra.Command{
	Use:   "review <task_id> <agent_id>",
	Short: "Move a working task to review",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskReview,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete <task_id> <agent_id> [result]",
	Short: "Mark a task completed",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runTaskComplete,
}

var taskFailCmd = &cobra.Command{
	Use:   "fail <task_id> <agent_id> [error]",
	Short: "Mark a task failed",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runTaskFail,
}

var taskBlockCmd = &cobra.Command{
	Use:   "block <task_id> <agent_id> [message]",
	Short: "Mark a task blocked",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runTaskBlock,
}

var taskUnblockCmd = &cobra.Command{
	Use:   "unblock <task_id> <agent_id>",
	Short: "Clear a task's blocked state",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskUnblock,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel <task_id> <agent_id> [reason]",
	Short: "Cancel a task",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runTaskCancel,
}

var taskRetryCmd = &cobra.Command{
	Use:   "retry <task_id> <agent_id>",
	Short: "Return a failed task to pending",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskRetry,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, highest priority first",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task_id>",
	Short: "Show one task with its history and subtasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize tasks by status and priority",
	Args:  cobra.NoArgs,
	RunE:  runTaskStats,
}

func init() {
	taskCreateCmd.Flags().StringVar(&taskCreatePriority, "priority", "", "critical, high, normal, or low")
	taskCreateCmd.Flags().StringVar(&taskCreateContext, "context", "", "Context ID to attach")
	taskCreateCmd.Flags().StringVar(&taskCreateParent, "parent", "", "Parent task ID")
	taskCreateCmd.Flags().StringSliceVar(&taskCreateFiles, "file", nil, "Relevant file (repeatable)")
	taskCreateCmd.Flags().StringSliceVar(&taskCreateLimits, "constraint", nil, "Constraint (repeatable)")
	taskBlockCmd.Flags().StringSliceVar(&taskBlockOn, "on", nil, "Blocking task ID (repeatable)")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Filter by status")
	taskListCmd.Flags().StringVar(&taskListAssignee, "assignee", "", "Filter by assignee")
	taskListCmd.Flags().StringVar(&taskListContext, "context", "", "Filter by context ID")
	taskListCmd.Flags().BoolVar(&taskListTerminal, "all", false, "Include completed and cancelled")
	taskListCmd.Flags().BoolVar(&taskListJSON, "json", false, "Output JSON")

	taskCmd.AddCommand(taskCreateCmd, taskAssignCmd, taskStartCmd, taskReviewCmd,
		taskCompleteCmd, taskFailCmd, taskBlockCmd, taskUnblockCmd, taskCancelCmd,
		taskRetryCmd, taskListCmd, taskShowCmd, taskStatsCmd)
	rootCmd.AddCommand(taskCmd)
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	priority, err := task.ParsePriority(taskCreatePriority)
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Create(args[1], args[0], task.CreateOptions{
		Priority:     priority,
		ContextID:    taskCreateContext,
		Constraints:  taskCreateLimits,
		Files:        taskCreateFiles,
		ParentTaskID: taskCreateParent,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s Created %s (%s)\n", style.Check(), t.TaskID, t.Priority)
	return nil
}

func runTaskAssign(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Assign(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Printf("%s Assigned %s to %s\n", style.Check(), t.TaskID, t.AssignedTo)
	return nil
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	return transitionTask(args[0], task.StatusWorking, args[1], "")
}

func runTaskReview(cmd *cobra.Command, args []string) error {
	return transitionTask(args[0], task.StatusReview, args[1], "")
}

func runTaskRetry(cmd *cobra.Command, args []string) error {
	return transitionTask(args[0], task.StatusPending, args[1], "retrying")
}

func transitionTask(taskID string, to task.Status, agentID, message string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Transition(taskID, to, agentID, message, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s is now %s\n", style.Check(), t.TaskID, style.TaskStatus(string(t.Status)))
	return nil
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Complete(args[0], args[1], optionalArg(args, 2))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s completed\n", style.Check(), t.TaskID)
	return nil
}

func runTaskFail(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Fail(args[0], args[1], optionalArg(args, 2))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s failed\n", style.Cross(), t.TaskID)
	return nil
}

func runTaskBlock(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Block(args[0], args[1], taskBlockOn, optionalArg(args, 2))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s blocked\n", style.Warn.Render("!"), t.TaskID)
	return nil
}

func runTaskUnblock(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Unblock(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s %s is now %s\n", style.Check(), t.TaskID, style.TaskStatus(string(t.Status)))
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Cancel(args[0], args[1], optionalArg(args, 2))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s cancelled\n", style.Cross(), t.TaskID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	f := task.Filter{
		AssignedTo:      taskListAssignee,
		ContextID:       taskListContext,
		IncludeTerminal: taskListTerminal,
	}
	if taskListStatus != "" {
		status, err := task.ParseStatus(taskListStatus)
		if err != nil {
			return err
		}
		f.Status = status
	}
	tasks, err := sw.Tasks.List(f)
	if err != nil {
		return err
	}
	if taskListJSON {
		return printJSON(map[string]any{"tasks": tasks})
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	table := style.NewTable(
		style.Column{Name: "ID", Width: 36},
		style.Column{Name: "PRIORITY", Width: 8},
		style.Column{Name: "STATUS", Width: 9},
		style.Column{Name: "ASSIGNEE", Width: 10},
		style.Column{Name: "OBJECTIVE", Width: 40},
	)
	for _, t := range tasks {
		table.AddRow(t.TaskID, string(t.Priority), style.TaskStatus(string(t.Status)),
			t.AssignedTo, t.Objective)
	}
	fmt.Print(table.Render())
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	t, err := sw.Tasks.Get(args[0])
	if err != nil {
		return err
	}
	subtasks, err := sw.Tasks.Subtasks(t.TaskID)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", style.Title.Render(t.TaskID), style.TaskStatus(string(t.Status)))
	fmt.Printf("  Objective: %s\n", t.Objective)
	fmt.Printf("  Priority:  %s\n", t.Priority)
	fmt.Printf("  Created:   %s by %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"), t.CreatedBy)
	if t.AssignedTo != "" {
		fmt.Printf("  Assignee:  %s\n", t.AssignedTo)
	}
	if len(t.BlockedBy) > 0 {
		fmt.Printf("  Blocked by: %s\n", strings.Join(t.BlockedBy, ", "))
	}
	if t.Result != "" {
		fmt.Printf("  Result:    %s\n", t.Result)
	}
	if t.Error != "" {
		fmt.Printf("  Error:     %s\n", style.Bad.Render(t.Error))
	}
	if len(t.History) > 0 {
		fmt.Println("  History:")
		for _, h := range t.History {
			line := fmt.Sprintf("    %s  %s → %s", h.Timestamp.Local().Format("15:04:05"), h.From, h.To)
			if h.AgentID != "" {
				line += " by " + h.AgentID
			}
			if h.Message != "" {
				line += " (" + h.Message + ")"
			}
			fmt.Println(line)
		}
	}
	if len(subtasks) > 0 {
		fmt.Println("  Subtasks:")
		for _, st := range subtasks {
			fmt.Printf("    %s [%s] %s\n", st.TaskID, style.TaskStatus(string(st.Status)), st.Objective)
		}
	}
	return nil
}

func runTaskStats(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	stats, err := sw.Tasks.Stats()
	if err != nil {
		return err
	}
	return printJSON(stats)
}
