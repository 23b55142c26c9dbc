package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/style"
)

var contextCmd = &cobra.Command{
	Use:     "context",
	GroupID: GroupTasks,
	Short:   "Group related tasks under a shared context",
	RunE:    requireSubcommand,
	Long: `Manage shared work contexts in CONTEXTS.json. A context collects the
decisions and files for one piece of work so tasks created under it
carry that background.`,
}

var contextCreateCmd = &cobra.Command{
	Use:   "create <created_by> <name> [description]",
	Short: "Create a context",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runContextCreate,
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts",
	Args:  cobra.NoArgs,
	RunE:  runContextList,
}

var contextShowCmd = &cobra.Command{
	Use:   "show <context_id>",
	Short: "Show a context with its tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextShow,
}

var contextDecideCmd = &cobra.Command{
	Use:   "add-decision <context_id> <decision>",
	Short: "Record a decision on a context",
	Args:  cobra.ExactArgs(2),
	RunE:  runContextDecide,
}

var contextFilesCmd = &cobra.Command{
	Use:   "add-files <context_id> <file>...",
	Short: "Attach files to a context",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runContextFiles,
}

func init() {
	contextCmd.AddCommand(contextCreateCmd, contextListCmd, contextShowCmd,
		contextDecideCmd, contextFilesCmd)
	rootCmd.AddCommand(contextCmd)
}

func runContextCreate(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	c, err := sw.Contexts.Create(args[1], optionalArg(args, 2), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s Created context %s\n", style.Check(), c.ContextID)
	return nil
}

func runContextList(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	contexts, err := sw.Contexts.List()
	if err != nil {
		return err
	}
	if len(contexts) == 0 {
		fmt.Println("No contexts.")
		return nil
	}
	table := style.NewTable(
		style.Column{Name: "ID", Width: 36},
		style.Column{Name: "NAME", Width: 20},
		style.Column{Name: "DECISIONS", Width: 9, Align: style.AlignRight},
		style.Column{Name: "FILES", Width: 5, Align: style.AlignRight},
	)
	for _, c := range contexts {
		table.AddRow(c.ContextID, c.Name, fmt.Sprint(len(c.Decisions)), fmt.Sprint(len(c.Files)))
	}
	fmt.Print(table.Render())
	return nil
}

func runContextShow(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	c, err := sw.Contexts.Get(args[0])
	if err != nil {
		return err
	}
	tasks, err := sw.Tasks.ContextTasks(c.ContextID)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", style.Title.Render(c.ContextID), c.Name)
	if c.Description != "" {
		fmt.Printf("  %s\n", c.Description)
	}
	for _, d := range c.Decisions {
		fmt.Printf("  decision: %s\n", d)
	}
	for _, f := range c.Files {
		fmt.Printf("  file: %s\n", f)
	}
	for _, t := range tasks {
		fmt.Printf("  task: %s [%s] %s\n", t.TaskID, style.TaskStatus(string(t.Status)), t.Objective)
	}
	return nil
}

func runContextDecide(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if _, err := sw.Contexts.AddDecision(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s Recorded decision on %s\n", style.Check(), args[0])
	return nil
}

func runContextFiles(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if _, err := sw.Contexts.AddFiles(args[0], args[1:]...); err != nil {
		return err
	}
	fmt.Printf("%s Attached %d file(s) to %s\n", style.Check(), len(args)-1, args[0])
	return nil
}
