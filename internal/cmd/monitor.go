package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/claudeswarm/claudeswarm/internal/backend"
	"github.com/claudeswarm/claudeswarm/internal/messaging"
	"github.com/claudeswarm/claudeswarm/internal/tui/monitor"
)

var (
	monitorFilterType  string
	monitorFilterAgent string
	monitorNoTmux      bool
)

var startMonitoringCmd = &cobra.Command{
	Use:     "start-monitoring",
	GroupID: GroupDiag,
	Short:   "Watch the message log live",
	Long: `Open the live message monitor. Inside tmux the monitor runs in a new
pane; elsewhere, or with --no-tmux, it takes over the current terminal.

Examples:
  cs start-monitoring
  cs start-monitoring --filter-type BLOCKED
  cs start-monitoring --filter-agent agent-2 --no-tmux`,
	Args: cobra.NoArgs,
	RunE: runStartMonitoring,
}

func init() {
	startMonitoringCmd.Flags().StringVar(&monitorFilterType, "filter-type", "", "Only show this message type")
	startMonitoringCmd.Flags().StringVar(&monitorFilterAgent, "filter-agent", "", "Only show messages involving this agent")
	startMonitoringCmd.Flags().BoolVar(&monitorNoTmux, "no-tmux", false, "Run in the current terminal")

	rootCmd.AddCommand(startMonitoringCmd)
}

func runStartMonitoring(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}

	if monitorFilterType != "" {
		if _, err := messaging.ParseType(monitorFilterType); err != nil {
			return err
		}
		monitorFilterType = strings.ToUpper(monitorFilterType)
	}

	if !monitorNoTmux {
		inner := []string{"cs", "start-monitoring", "--no-tmux"}
		if monitorFilterType != "" {
			inner = append(inner, "--filter-type", monitorFilterType)
		}
		if monitorFilterAgent != "" {
			inner = append(inner, "--filter-agent", monitorFilterAgent)
		}
		pane, err := sw.Backend.CreateMonitorPane(strings.Join(inner, " "))
		if err == nil {
			fmt.Printf("Monitoring in pane %s\n", pane)
			return nil
		}
		if !errors.Is(err, backend.ErrUnsupported) {
			return err
		}
		// No pane capability, fall through to inline.
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the monitor needs a terminal; pipe show-messages instead")
	}

	done := make(chan struct{})
	defer close(done)
	records, err := messaging.NewTailer(sw.Messaging.LogPath()).Run(done)
	if err != nil {
		return err
	}

	model := monitor.NewModel(records, monitor.Filter{
		Type:  monitorFilterType,
		Agent: monitorFilterAgent,
	})
	defer model.Close()

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
