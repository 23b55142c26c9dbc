package swarmfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_ExplicitWins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvRoot, "/nonexistent/elsewhere")

	root, err := Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if root != dir {
		t.Errorf("root = %q, want %q", root, dir)
	}
}

func TestResolve_ExplicitMustBeDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "afile")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve(file); err == nil {
		t.Error("expected error for non-directory explicit root")
	}
}

func TestResolve_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvRoot, dir)

	root, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if root != dir {
		t.Errorf("root = %q, want %q", root, dir)
	}
}

func TestFindUp_MarkerInAncestor(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".claudeswarm.yaml"), nil, 0o600); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	root, ok := findUp(nested)
	if !ok {
		t.Fatal("expected to find marker")
	}
	if root != dir {
		t.Errorf("root = %q, want %q", root, dir)
	}
}

func TestFindUp_NoMarker(t *testing.T) {
	// A fresh temp dir has no markers up to / ... unless the tmpfs root
	// happens to contain one, so nest deep inside an empty tree and check
	// the result is not inside the temp dir.
	dir := t.TempDir()
	nested := filepath.Join(dir, "x", "y")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if root, ok := findUp(nested); ok {
		if root == nested || root == filepath.Join(dir, "x") || root == dir {
			t.Errorf("unexpected marker found at %q", root)
		}
	}
}
