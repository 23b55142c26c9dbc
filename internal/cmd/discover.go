package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/discovery"
	"github.com/claudeswarm/claudeswarm/internal/style"
)

var (
	discoverWatch     bool
	discoverInterval  int
	discoverJSON      bool
	discoverThreshold int
	listAgentsJSON    bool
)

var discoverAgentsCmd = &cobra.Command{
	Use:     "discover-agents",
	GroupID: GroupAgents,
	Short:   "Scan for live agents and refresh the registry",
	Long: `Scan the backend for live agent processes and reconcile them with
ACTIVE_AGENTS.json. Known identifiers keep their agent IDs; new ones get
the next free slot; vanished agents age through stale to dead.

Examples:
  cs discover-agents
  cs discover-agents --watch --interval 10
  cs discover-agents --json`,
	Args: cobra.NoArgs,
	RunE: runDiscoverAgents,
}

var listAgentsCmd = &cobra.Command{
	Use:     "list-agents",
	GroupID: GroupAgents,
	Short:   "List registered agents without rescanning",
	Args:    cobra.NoArgs,
	RunE:    runListAgents,
}

func init() {
	discoverAgentsCmd.Flags().BoolVar(&discoverWatch, "watch", false, "Rescan continuously")
	discoverAgentsCmd.Flags().IntVar(&discoverInterval, "interval", 5, "Seconds between rescans with --watch")
	discoverAgentsCmd.Flags().BoolVar(&discoverJSON, "json", false, "Output JSON")
	discoverAgentsCmd.Flags().IntVar(&discoverThreshold, "stale-threshold", 0, "Override stale threshold in seconds")
	listAgentsCmd.Flags().BoolVar(&listAgentsJSON, "json", false, "Output JSON")

	rootCmd.AddCommand(discoverAgentsCmd, listAgentsCmd)
}

func runDiscoverAgents(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}

	reg := sw.Discovery
	if discoverThreshold > 0 {
		reg = discovery.NewRegistry(sw.Store, sw.Backend, sw.Root, sw.Config.SessionName,
			time.Duration(discoverThreshold)*time.Second)
	}

	for {
		agents, err := reg.Refresh()
		if err != nil {
			return err
		}
		if err := printAgents(agents, discoverJSON); err != nil {
			return err
		}
		if !discoverWatch {
			return nil
		}
		time.Sleep(time.Duration(discoverInterval) * time.Second)
		fmt.Println()
	}
}

func runListAgents(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	agents, err := sw.Discovery.Load()
	if err != nil {
		return err
	}
	return printAgents(agents, listAgentsJSON)
}

func printAgents(agents []discovery.Agent, asJSON bool) error {
	if asJSON {
		return printJSON(map[string]any{"agents": agents})
	}
	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return nil
	}

	table := style.NewTable(
		style.Column{Name: "ID", Width: 10},
		style.Column{Name: "IDENTIFIER", Width: 14},
		style.Column{Name: "PID", Width: 8, Align: style.AlignRight},
		style.Column{Name: "STATUS", Width: 8},
		style.Column{Name: "LAST SEEN", Width: 20},
	)
	for _, a := range agents {
		table.AddRow(a.ID, a.Identifier, fmt.Sprint(a.PID), a.Status,
			a.LastSeen.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Print(table.Render())
	return nil
}
