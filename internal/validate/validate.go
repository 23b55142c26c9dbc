// Package validate enforces the input contracts shared by every public
// entry point of the coordination core: agent IDs, message content, file
// paths, and numeric bounds. Validation failures never have side effects.
package validate

import (
	"errors"
	"fmt"
	"log"
	"net"
	"regexp"
	"strings"
)

// ErrValidation is the base error wrapped by every rejection in this
// package, so callers can classify failures with errors.Is.
var ErrValidation = errors.New("validation failed")

// MaxContentBytes is the maximum UTF-8 size of message content.
const MaxContentBytes = 10 * 1024

// agentIDPattern matches the allowed agent ID alphabet. Leading and
// trailing hyphens are checked separately for a clearer error message.
var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// AgentID validates an agent identifier.
func AgentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: agent ID is empty", ErrValidation)
	}
	if len(id) > 64 {
		return fmt.Errorf("%w: agent ID exceeds 64 characters", ErrValidation)
	}
	if !agentIDPattern.MatchString(id) {
		return fmt.Errorf("%w: agent ID %q contains invalid characters", ErrValidation, id)
	}
	if strings.HasPrefix(id, "-") || strings.HasSuffix(id, "-") {
		return fmt.Errorf("%w: agent ID %q must not start or end with a hyphen", ErrValidation, id)
	}
	return nil
}

// Content validates message content after sanitization: non-empty once
// trimmed, and at most MaxContentBytes of UTF-8.
func Content(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content is empty", ErrValidation)
	}
	if len(content) > MaxContentBytes {
		return fmt.Errorf("%w: message content exceeds %d bytes", ErrValidation, MaxContentBytes)
	}
	return nil
}

// Recipients validates a recipient list: non-empty, every entry a valid
// agent ID, no duplicates.
func Recipients(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: recipient list is empty", ErrValidation)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if err := AgentID(id); err != nil {
			return err
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate recipient %q", ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Timeout validates a lock/operation timeout in seconds.
func Timeout(seconds int) error {
	if seconds < 1 || seconds > 3600 {
		return fmt.Errorf("%w: timeout %d outside [1, 3600] seconds", ErrValidation, seconds)
	}
	return nil
}

// RetryCount validates a retry count.
func RetryCount(n int) error {
	if n < 0 || n > 5 {
		return fmt.Errorf("%w: retry count %d outside [0, 5]", ErrValidation, n)
	}
	return nil
}

// RateLimit validates rate-limiter parameters.
func RateLimit(maxMessages, windowSeconds int) error {
	if maxMessages < 1 || maxMessages > 1000 {
		return fmt.Errorf("%w: max_messages %d outside [1, 1000]", ErrValidation, maxMessages)
	}
	if windowSeconds < 1 || windowSeconds > 3600 {
		return fmt.Errorf("%w: window %d outside [1, 3600] seconds", ErrValidation, windowSeconds)
	}
	return nil
}

// Port validates a TCP port.
func Port(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d outside [1, 65535]", ErrValidation, port)
	}
	return nil
}

// hostnamePattern is the RFC 1123 hostname grammar: dot-separated labels
// of letters, digits, and interior hyphens, each at most 63 characters.
var hostnamePattern = regexp.MustCompile(
	`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9-]{0,61}[A-Za-z0-9])(\.([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9-]{0,61}[A-Za-z0-9]))*$`)

// Host validates a hostname or IP literal. Wildcard and globally routable
// addresses are accepted with a logged warning; binding policy is the
// operator's call, not ours.
func Host(host string) error {
	if host == "" {
		return fmt.Errorf("%w: host is empty", ErrValidation)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsUnspecified() {
			log.Printf("warning: host %s binds all interfaces", host)
		} else if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
			log.Printf("warning: host %s is globally routable", host)
		}
		return nil
	}
	if len(host) > 253 || !hostnamePattern.MatchString(host) {
		return fmt.Errorf("%w: %q is not a valid hostname or IP", ErrValidation, host)
	}
	return nil
}
