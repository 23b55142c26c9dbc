package cmd

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/web"
)

var (
	dashboardHost string
	dashboardPort int
	dashboardOpen bool
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: GroupDiag,
	Short:   "Serve the read-only web dashboard",
	Long: `Start the dashboard HTTP server. It exposes swarm state as JSON under
/api and a live message stream at /events.

Set CLAUDESWARM_DASHBOARD_USER and CLAUDESWARM_DASHBOARD_PASS to require
basic auth, and CLAUDESWARM_CORS_ORIGINS to allow cross-origin reads.

Examples:
  cs dashboard                  # 127.0.0.1:8787
  cs dashboard --port 3000
  cs dashboard --open           # open a browser too`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardHost, "host", "", "Listen host (default from config)")
	dashboardCmd.Flags().IntVar(&dashboardPort, "port", 0, "Listen port (default from config)")
	dashboardCmd.Flags().BoolVar(&dashboardOpen, "open", false, "Open browser automatically")

	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}

	host := sw.Config.Dashboard.Host
	if dashboardHost != "" {
		host = dashboardHost
	}
	port := sw.Config.Dashboard.Port
	if dashboardPort != 0 {
		port = dashboardPort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	if dashboardOpen {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser("http://" + addr)
		}()
	}

	fmt.Printf("Dashboard listening on http://%s\n", addr)
	return web.NewServer(sw).ListenAndServe(cmd.Context(), addr)
}

// openBrowser opens url in the platform browser, best effort.
func openBrowser(url string) {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	_ = c.Start()
}
