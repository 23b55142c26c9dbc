package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/style"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: GroupCoord,
	Short:   "Read and edit the shared coordination notes",
	RunE:    requireSubcommand,
	Long: `Manage COORDINATION.md, the free-form Markdown file agents use for
hand-off notes. Sections are "## <name>" headings; edits lock the whole
file so concurrent writers cannot interleave.`,
}

var boardShowCmd = &cobra.Command{
	Use:   "show [section]",
	Short: "Print the board or one section",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBoardShow,
}

var boardSectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List section names",
	Args:  cobra.NoArgs,
	RunE:  runBoardSections,
}

var boardUpdateCmd = &cobra.Command{
	Use:   "update <section> <body>",
	Short: "Replace a section's body, creating it when missing",
	Args:  cobra.ExactArgs(2),
	RunE:  runBoardUpdate,
}

var boardAppendCmd = &cobra.Command{
	Use:   "append <section> <lines>",
	Short: "Append lines to a section",
	Args:  cobra.ExactArgs(2),
	RunE:  runBoardAppend,
}

func init() {
	boardCmd.AddCommand(boardShowCmd, boardSectionsCmd, boardUpdateCmd, boardAppendCmd)
	rootCmd.AddCommand(boardCmd)
}

func runBoardShow(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		body, err := sw.Board.GetSection(args[0])
		if err != nil {
			return err
		}
		fmt.Println(body)
		return nil
	}
	content, err := sw.Board.Read()
	if err != nil {
		return err
	}
	fmt.Print(content)
	return nil
}

func runBoardSections(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	names, err := sw.Board.Sections()
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runBoardUpdate(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if err := sw.Board.UpdateSection(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s Updated section %q\n", style.Check(), args[0])
	return nil
}

func runBoardAppend(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if err := sw.Board.AppendToSection(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s Appended to section %q\n", style.Check(), args[0])
	return nil
}
