package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

// run executes one command line against a scratch project root.
func run(t *testing.T, root string, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append(args, "--root", root))
	defer rootCmd.SetArgs(nil)
	return rootCmd.Execute()
}

func TestAcquireAndReleaseLock(t *testing.T) {
	root := t.TempDir()

	if err := run(t, root, "acquire-file-lock", "src/main.go", "agent-1", "editing"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, ".agent_locks"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("lock dir = %v (err %v)", entries, err)
	}

	// A second agent is refused and the refusal is an error exit.
	if err := run(t, root, "acquire-file-lock", "src/main.go", "agent-2", "also editing"); err == nil {
		t.Fatal("conflicting acquire succeeded")
	}

	if err := run(t, root, "release-file-lock", "src/main.go", "agent-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	entries, _ = os.ReadDir(filepath.Join(root, ".agent_locks"))
	if len(entries) != 0 {
		t.Errorf("lock survived release: %v", entries)
	}
}

func TestTaskLifecycleCommands(t *testing.T) {
	root := t.TempDir()

	if err := run(t, root, "task", "create", "agent-1", "refactor the auth module", "--priority", "high"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Invalid priority is a validation error.
	if err := run(t, root, "task", "create", "agent-1", "x", "--priority", "urgent"); err == nil {
		t.Fatal("bad priority accepted")
	}
}

func TestValidationFailuresReturnErrors(t *testing.T) {
	root := t.TempDir()

	if err := run(t, root, "acquire-file-lock", "../outside.go", "agent-1"); err == nil {
		t.Error("path escape accepted")
	}
	if err := run(t, root, "send-message", "agent 1", "agent-2", "INFO", "hi"); err == nil {
		t.Error("malformed sender accepted")
	}
	if err := run(t, root, "send-message", "agent-1", "agent-2", "SHOUT", "hi"); err == nil {
		t.Error("unknown type accepted")
	}
}
