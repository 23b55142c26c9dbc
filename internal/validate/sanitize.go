package validate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// hiddenRunes are code points scrubbed from message content: bidirectional
// override and isolate controls plus zero-width characters. Leaving these
// in would let a sender display one thing to a human while the agent reads
// another (Trojan-Source-class attacks).
func isHiddenRune(r rune) bool {
	switch {
	case r >= 0x202A && r <= 0x202E: // LRE, RLE, PDF, LRO, RLO
		return true
	case r >= 0x2066 && r <= 0x2069: // LRI, RLI, FSI, PDI
		return true
	case r >= 0x200B && r <= 0x200D: // zero-width space/non-joiner/joiner
		return true
	case r == 0x2060: // word joiner
		return true
	case r == 0xFEFF: // zero-width no-break space / BOM
		return true
	}
	return false
}

// isStrippedControl reports whether r is a control character removed from
// content. Tab, newline, and carriage return survive (CR is normalized to
// LF afterwards).
func isStrippedControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	if r < 0x20 || r == 0x7F { // C0 + DEL
		return true
	}
	if r >= 0x80 && r <= 0x9F { // C1
		return true
	}
	return false
}

// SanitizeContent normalizes message content for safe display: null bytes
// and control characters are removed, hidden Unicode is stripped, line
// endings become LF, and trailing whitespace is trimmed per line.
func SanitizeContent(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if r == 0 || isStrippedControl(r) || isHiddenRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// maxSymlinkHops bounds symlink chains while resolving a path, mirroring
// the kernel's ELOOP limit.
const maxSymlinkHops = 40

// FilePath validates and canonicalizes a path for use inside the project
// root. It rejects null bytes, NFC-normalizes Unicode (so lookalike
// encodings of ".." cannot slip through), converts backslash separators,
// and requires the resolved path, after following every symlink in it,
// to stay within root. Any resolution failure fails closed.
func FilePath(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is empty", ErrValidation)
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: path contains null byte", ErrValidation)
	}

	path = norm.NFC.String(path)
	path = strings.ReplaceAll(path, "\\", "/")

	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: path traversal in %q", ErrValidation, path)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: resolving root: %v", ErrValidation, err)
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(absRoot, abs)
	}
	abs = filepath.Clean(abs)
	if !within(absRoot, abs) {
		return "", fmt.Errorf("%w: %q escapes project root", ErrValidation, path)
	}

	resolved, err := resolveSymlinks(absRoot, abs)
	if err != nil {
		return "", err
	}
	if !within(absRoot, resolved) {
		return "", fmt.Errorf("%w: %q resolves outside project root", ErrValidation, path)
	}
	return abs, nil
}

// within reports whether target equals root or lives under it.
func within(root, target string) bool {
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+string(filepath.Separator))
}

// resolveSymlinks walks the path component by component with lstat and
// readlink, following links up to maxSymlinkHops. Components that do not
// exist yet are accepted as-is, since a lock target may not exist yet.
func resolveSymlinks(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: relativizing path: %v", ErrValidation, err)
	}
	if rel == "." {
		return root, nil
	}

	current := root
	hops := 0
	parts := strings.Split(rel, string(filepath.Separator))
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if part == "" || part == "." {
			continue
		}
		current = filepath.Join(current, part)

		for {
			info, err := os.Lstat(current)
			if err != nil {
				if os.IsNotExist(err) {
					// Remainder does not exist; append it verbatim.
					return filepath.Join(append([]string{current}, parts[i+1:]...)...), nil
				}
				return "", fmt.Errorf("%w: lstat %s: %v", ErrValidation, current, err)
			}
			if info.Mode()&os.ModeSymlink == 0 {
				break
			}

			hops++
			if hops > maxSymlinkHops {
				return "", fmt.Errorf("%w: too many symlinks in %q", ErrValidation, abs)
			}
			target, err := os.Readlink(current)
			if err != nil {
				return "", fmt.Errorf("%w: readlink %s: %v", ErrValidation, current, err)
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(current), target)
			}
			target = filepath.Clean(target)
			if !within(root, target) {
				return "", fmt.Errorf("%w: symlink %s points outside project root", ErrValidation, current)
			}
			current = target
		}
	}
	return current, nil
}
