// Package coordination manages COORDINATION.md, the human-editable
// shared notes file agents use to hand off free-form context. Sections
// are Markdown "## <name>" headings; the whole file is exclusive-locked
// for the duration of any update so concurrent editors cannot interleave
// half-written sections.
package coordination

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/claudeswarm/claudeswarm/internal/state"
)

// File is the basename of the coordination board.
const File = "COORDINATION.md"

// Board reads and edits the coordination file.
type Board struct {
	store *state.Store
	path  string
}

// NewBoard creates a board rooted at the project root.
func NewBoard(st *state.Store, root string) *Board {
	return &Board{store: st, path: filepath.Join(root, File)}
}

// Read returns the whole file, empty when it does not exist.
func (b *Board) Read() (string, error) {
	data, err := b.store.ReadLocked(b.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Sections lists the section names in file order.
func (b *Board) Sections() ([]string, error) {
	content, err := b.Read()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(content, "\n") {
		if name, ok := sectionName(line); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// GetSection returns the body of one section, without its heading and
// with surrounding blank lines trimmed. A missing section is reported
// as an error.
func (b *Board) GetSection(name string) (string, error) {
	content, err := b.Read()
	if err != nil {
		return "", err
	}
	body, ok := findSection(content, name)
	if !ok {
		return "", fmt.Errorf("section %q not found in %s", name, File)
	}
	return strings.Trim(body, "\n"), nil
}

// UpdateSection replaces a section's body, creating the section at the
// end of the file when it does not exist yet.
func (b *Board) UpdateSection(name, body string) error {
	return b.store.Update(b.path, func(old []byte) ([]byte, error) {
		return []byte(replaceSection(string(old), name, strings.Trim(body, "\n"))), nil
	})
}

// AppendToSection adds lines to the end of a section, creating it when
// missing.
func (b *Board) AppendToSection(name, lines string) error {
	return b.store.Update(b.path, func(old []byte) ([]byte, error) {
		content := string(old)
		body, ok := findSection(content, name)
		if !ok {
			return []byte(replaceSection(content, name, strings.Trim(lines, "\n"))), nil
		}
		merged := strings.Trim(body, "\n")
		if merged != "" {
			merged += "\n"
		}
		merged += strings.Trim(lines, "\n")
		return []byte(replaceSection(content, name, merged)), nil
	})
}

// sectionName parses a "## <name>" heading line.
func sectionName(line string) (string, bool) {
	rest, ok := strings.CutPrefix(line, "## ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// findSection returns the raw body between a section's heading and the
// next heading (or end of file).
func findSection(content, name string) (string, bool) {
	lines := strings.Split(content, "\n")
	start := -1
	for i, line := range lines {
		if n, ok := sectionName(line); ok && n == name {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", false
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if _, ok := sectionName(lines[i]); ok {
			end = i
			break
		}
	}
	return strings.Join(lines[start:end], "\n"), true
}

// replaceSection rewrites content with the named section's body set to
// newBody, appending the section when absent.
func replaceSection(content, name, newBody string) string {
	lines := strings.Split(content, "\n")
	start := -1
	for i, line := range lines {
		if n, ok := sectionName(line); ok && n == name {
			start = i
			break
		}
	}

	section := "## " + name + "\n\n" + newBody + "\n"
	if start < 0 {
		trimmed := strings.TrimRight(content, "\n")
		if trimmed == "" {
			return section
		}
		return trimmed + "\n\n" + section
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if _, ok := sectionName(lines[i]); ok {
			end = i
			break
		}
	}

	var out []string
	out = append(out, lines[:start]...)
	out = append(out, "## "+name, "", newBody, "")
	out = append(out, lines[end:]...)
	result := strings.Join(out, "\n")
	return strings.TrimRight(result, "\n") + "\n"
}
