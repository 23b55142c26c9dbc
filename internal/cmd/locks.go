package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/style"
)

var (
	whoHasJSON        bool
	listLocksStale    bool
	listLocksJSON     bool
	cleanupTimeoutSec int
)

var acquireLockCmd = &cobra.Command{
	Use:     "acquire-file-lock <path> <agent_id> [reason]",
	GroupID: GroupLocks,
	Short:   "Acquire an advisory lock on a file or glob",
	Long: `Acquire an advisory lock on a path relative to the project root. The
path may be a glob like src/auth/*.py; a lock conflicts with any other
lock whose pattern overlaps it in either direction.

A denied acquire prints the holder and exits 1. Re-acquiring your own
lock refreshes its timestamp.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runAcquireLock,
}

var releaseLockCmd = &cobra.Command{
	Use:     "release-file-lock <path> <agent_id>",
	GroupID: GroupLocks,
	Short:   "Release a lock you hold",
	Long: `Release the lock on a path. Releasing an already unlocked path
succeeds; releasing another agent's live lock fails.`,
	Args: cobra.ExactArgs(2),
	RunE: runReleaseLock,
}

var whoHasLockCmd = &cobra.Command{
	Use:     "who-has-lock <path>",
	GroupID: GroupLocks,
	Short:   "Show who holds the lock on a path",
	Args:    cobra.ExactArgs(1),
	RunE:    runWhoHasLock,
}

var listLocksCmd = &cobra.Command{
	Use:     "list-all-locks",
	GroupID: GroupLocks,
	Short:   "List every held lock",
	Args:    cobra.NoArgs,
	RunE:    runListLocks,
}

var cleanupLocksCmd = &cobra.Command{
	Use:     "cleanup-stale-locks",
	GroupID: GroupLocks,
	Short:   "Delete locks past the stale timeout",
	Args:    cobra.NoArgs,
	RunE:    runCleanupLocks,
}

func init() {
	whoHasLockCmd.Flags().BoolVar(&whoHasJSON, "json", false, "Output JSON")
	listLocksCmd.Flags().BoolVar(&listLocksStale, "include-stale", false, "Include stale locks")
	listLocksCmd.Flags().BoolVar(&listLocksJSON, "json", false, "Output JSON")
	cleanupLocksCmd.Flags().IntVar(&cleanupTimeoutSec, "timeout", 0, "Override stale timeout in seconds")

	rootCmd.AddCommand(acquireLockCmd, releaseLockCmd, whoHasLockCmd, listLocksCmd, cleanupLocksCmd)
}

func runAcquireLock(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	reason := ""
	if len(args) == 3 {
		reason = args[2]
	}

	ok, conflict, err := sw.AcquireLock(args[0], args[1], reason)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cannot lock %s: %s", args[0], conflict)
	}
	fmt.Printf("%s Locked %s for %s\n", style.Check(), args[0], args[1])
	return nil
}

func runReleaseLock(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	if err := sw.Locks.Release(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s Released %s\n", style.Check(), args[0])
	return nil
}

func runWhoHasLock(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	lock, err := sw.Locks.WhoHas(args[0])
	if err != nil {
		return err
	}
	if whoHasJSON {
		return printJSON(map[string]any{"lock": lock})
	}
	if lock == nil {
		fmt.Printf("%s is not locked\n", args[0])
		return nil
	}
	fmt.Printf("%s locked by %s for %s (%s)\n", lock.Filepath, style.Bold.Render(lock.AgentID),
		lock.Age(time.Now()).Round(time.Second), lock.Reason)
	return nil
}

func runListLocks(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	locks, err := sw.Locks.ListAll(listLocksStale)
	if err != nil {
		return err
	}
	if listLocksJSON {
		return printJSON(map[string]any{"locks": locks})
	}
	if len(locks) == 0 {
		fmt.Println("No locks held.")
		return nil
	}

	staleAfter := time.Duration(sw.Config.LockStaleTimeoutSeconds) * time.Second
	table := style.NewTable(
		style.Column{Name: "PATH", Width: 36},
		style.Column{Name: "AGENT", Width: 10},
		style.Column{Name: "HELD FOR", Width: 10, Align: style.AlignRight},
		style.Column{Name: "REASON", Width: 28},
	)
	now := time.Now()
	for _, l := range locks {
		held := l.Age(now).Round(time.Second).String()
		if l.Age(now) > staleAfter {
			held = style.Warn.Render(held + " stale")
		}
		table.AddRow(l.Filepath, l.AgentID, held, l.Reason)
	}
	fmt.Print(table.Render())
	return nil
}

func runCleanupLocks(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	var timeout time.Duration
	if cleanupTimeoutSec > 0 {
		timeout = time.Duration(cleanupTimeoutSec) * time.Second
	}
	removed, err := sw.Locks.CleanupStale(timeout)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d stale lock(s)\n", removed)
	return nil
}
