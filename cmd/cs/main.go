// cs is the Claude Swarm CLI for coordinating multiple coding agents.
package main

import (
	"os"

	"github.com/claudeswarm/claudeswarm/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
