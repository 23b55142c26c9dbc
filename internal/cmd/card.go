package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/cards"
	"github.com/claudeswarm/claudeswarm/internal/style"
)

var (
	cardName     string
	cardSkills   []string
	cardTools    []string
	cardSpecs    []string
	cardListJSON bool
)

var cardCmd = &cobra.Command{
	Use:     "card",
	GroupID: GroupTasks,
	Short:   "Manage agent capability cards",
	RunE:    requireSubcommand,
	Long: `Manage AGENT_CARDS.json, the capability registry the delegation engine
scores against. A card declares an agent's skills, tools, and
specializations; success rates accumulate automatically as tasks finish.`,
}

var cardRegisterCmd = &cobra.Command{
	Use:   "register <agent_id>",
	Short: "Register or update an agent's card",
	Args:  cobra.ExactArgs(1),
	RunE:  runCardRegister,
}

var cardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered cards",
	Args:  cobra.NoArgs,
	RunE:  runCardList,
}

var cardAvailabilityCmd = &cobra.Command{
	Use:   "availability <agent_id> <active|busy|offline>",
	Short: "Set an agent's availability",
	Args:  cobra.ExactArgs(2),
	RunE:  runCardAvailability,
}

var cardRemoveCmd = &cobra.Command{
	Use:   "remove <agent_id>",
	Short: "Remove an agent's card",
	Args:  cobra.ExactArgs(1),
	RunE:  runCardRemove,
}

func init() {
	cardRegisterCmd.Flags().StringVar(&cardName, "name", "", "Display name")
	cardRegisterCmd.Flags().StringSliceVar(&cardSkills, "skill", nil, "Declared skill (repeatable)")
	cardRegisterCmd.Flags().StringSliceVar(&cardTools, "tool", nil, "Available tool (repeatable)")
	cardRegisterCmd.Flags().StringSliceVar(&cardSpecs, "specialization", nil, "Specialization (repeatable)")
	cardListCmd.Flags().BoolVar(&cardListJSON, "json", false, "Output JSON")

	cardCmd.AddCommand(cardRegisterCmd, cardListCmd, cardAvailabilityCmd, cardRemoveCmd)
	rootCmd.AddCommand(cardCmd)
}

func runCardRegister(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	c, err := sw.Cards.Register(cards.Card{
		AgentID:         args[0],
		Name:            cardName,
		Skills:          cardSkills,
		Tools:           cardTools,
		Specializations: cardSpecs,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s Registered card for %s (%s)\n", style.Check(), c.AgentID, c.Availability)
	return nil
}

func runCardList(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	all, err := sw.Cards.All()
	if err != nil {
		return err
	}
	if cardListJSON {
		return printJSON(map[string]any{"cards": all})
	}
	if len(all) == 0 {
		fmt.Println("No cards registered.")
		return nil
	}

	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := style.NewTable(
		style.Column{Name: "AGENT", Width: 10},
		style.Column{Name: "AVAILABILITY", Width: 12},
		style.Column{Name: "SKILLS", Width: 36},
		style.Column{Name: "TOOLS", Width: 20},
	)
	for _, id := range ids {
		c := all[id]
		table.AddRow(c.AgentID, style.Availability(string(c.Availability)),
			strings.Join(c.Skills, ","), strings.Join(c.Tools, ","))
	}
	fmt.Print(table.Render())
	return nil
}

func runCardAvailability(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	a, err := cards.ParseAvailability(args[1])
	if err != nil {
		return err
	}
	if err := sw.Cards.SetAvailability(args[0], a); err != nil {
		return err
	}
	fmt.Printf("%s %s is now %s\n", style.Check(), args[0], style.Availability(string(a)))
	return nil
}

func runCardRemove(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if err := sw.Cards.Remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("%s Removed card for %s\n", style.Check(), args[0])
	return nil
}
