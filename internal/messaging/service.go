package messaging

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/claudeswarm/claudeswarm/internal/backend"
	"github.com/claudeswarm/claudeswarm/internal/discovery"
	"github.com/claudeswarm/claudeswarm/internal/state"
	"github.com/claudeswarm/claudeswarm/internal/validate"
)

// LogFile is the basename of the shared message log.
const LogFile = "agent_messages.log"

// maxLogBytes triggers rotation to LogFile + ".old".
const maxLogBytes = 10 << 20

// EnvSecret names the optional shared secret used to sign log records.
const EnvSecret = "CLAUDESWARM_SECRET"

// ErrRateLimited means the sender exhausted its sliding-window budget.
// Nothing was sent or logged.
var ErrRateLimited = errors.New("rate limited")

// LogRecord is one JSON line in agent_messages.log.
type LogRecord struct {
	Timestamp      time.Time       `json:"timestamp"`
	MsgID          string          `json:"msg_id"`
	Sender         string          `json:"sender"`
	Recipients     []string        `json:"recipients"`
	Type           Type            `json:"type"`
	Content        string          `json:"content"`
	DeliveryStatus map[string]bool `json:"delivery_status"`
	SuccessCount   int             `json:"success_count"`
	FailureCount   int             `json:"failure_count"`
	Signature      string          `json:"signature,omitempty"`
}

// Service is the messaging core: validate, rate-limit, resolve, push,
// and log.
type Service struct {
	store    *state.Store
	registry *discovery.Registry
	backend  backend.Backend
	root     string
	limiter  *Limiter
	secret   []byte

	now   func() time.Time // overridden in tests
	newID func() string
}

// NewService wires the messaging core. maxMessages and window configure
// the per-sender rate limit; non-positive values select the defaults.
// The signing secret is read from the environment, empty disables
// signing.
func NewService(store *state.Store, reg *discovery.Registry, b backend.Backend, root string, maxMessages int, window time.Duration) *Service {
	return &Service{
		store:    store,
		registry: reg,
		backend:  b,
		root:     root,
		limiter:  NewLimiter(maxMessages, window),
		secret:   []byte(os.Getenv(EnvSecret)),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetSecret replaces the signing secret, typically with a configured
// value when the environment variable is unset. Empty disables signing.
func (s *Service) SetSecret(secret []byte) {
	s.secret = secret
}

// LogPath returns the absolute path of the message log.
func (s *Service) LogPath() string {
	return filepath.Join(s.root, LogFile)
}

// Send delivers one message to one recipient. It returns the persisted
// message and the per-recipient real-time delivery status. A sender over
// its rate limit gets ErrRateLimited and nothing is logged.
func (s *Service) Send(sender, recipient string, typ Type, content string) (*Message, map[string]bool, error) {
	return s.deliver(sender, []string{recipient}, typ, content)
}

// Broadcast delivers one message to every active agent, optionally
// excluding the sender. The whole broadcast consumes one rate-limit
// slot. It returns the per-recipient real-time delivery status.
func (s *Service) Broadcast(sender string, typ Type, content string, excludeSelf bool) (map[string]bool, error) {
	active, err := s.registry.Active()
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	var recipients []string
	for _, a := range active {
		if excludeSelf && a.ID == sender {
			continue
		}
		recipients = append(recipients, a.ID)
	}
	if len(recipients) == 0 {
		return map[string]bool{}, nil
	}
	_, status, err := s.deliver(sender, recipients, typ, content)
	return status, err
}

// deliver runs the send pipeline for a fixed recipient set.
func (s *Service) deliver(sender string, recipients []string, typ Type, content string) (*Message, map[string]bool, error) {
	if err := validate.AgentID(sender); err != nil {
		return nil, nil, err
	}
	if err := validate.Recipients(recipients); err != nil {
		return nil, nil, err
	}
	content = validate.SanitizeContent(content)
	if err := validate.Content(content); err != nil {
		return nil, nil, err
	}
	if _, err := ParseType(string(typ)); err != nil {
		return nil, nil, err
	}

	if !s.limiter.Allow(sender) {
		return nil, nil, fmt.Errorf("%w: sender %s", ErrRateLimited, sender)
	}

	agents, err := s.registry.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading registry: %w", err)
	}
	byID := make(map[string]discovery.Agent, len(agents))
	for _, a := range agents {
		byID[a.ID] = a
	}

	now := s.now().UTC()
	msg := &Message{
		MsgID:      s.newID(),
		Sender:     sender,
		Timestamp:  now,
		Type:       typ,
		Content:    content,
		Recipients: recipients,
	}
	line := FormatLine(sender, now, typ, content)

	// Push to every recipient concurrently. A recipient without an
	// active registry entry fails delivery and is not logged; a backend
	// push error falls back to log-only delivery, so the recipient can
	// still pick the message up by polling the log.
	var (
		mu       sync.Mutex
		status   = make(map[string]bool, len(recipients))
		resolved int
	)
	var g errgroup.Group
	for _, recipient := range recipients {
		g.Go(func() error {
			agent, ok := byID[recipient]
			active := ok && agent.Status == discovery.StatusActive
			delivered := false
			if active {
				if d, err := s.backend.Push(agent.Identifier, line); err == nil {
					delivered = d
				}
			}
			mu.Lock()
			status[recipient] = delivered
			if active {
				resolved++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Only when no recipient resolved at all is there nothing to log and
	// no rate budget to charge.
	if resolved == 0 {
		return msg, status, nil
	}

	s.limiter.Record(sender)
	success, failure := 0, 0
	for _, d := range status {
		if d {
			success++
		} else {
			failure++
		}
	}
	rec := LogRecord{
		Timestamp:      now,
		MsgID:          msg.MsgID,
		Sender:         sender,
		Recipients:     recipients,
		Type:           typ,
		Content:        content,
		DeliveryStatus: status,
		SuccessCount:   success,
		FailureCount:   failure,
		Signature:      s.sign(msg.MsgID, sender, content),
	}
	if err := s.appendLog(rec); err != nil {
		return msg, status, fmt.Errorf("appending message log: %w", err)
	}
	return msg, status, nil
}

// appendLog appends one JSON line under an exclusive lock, rotating the
// log first when it has grown past the size cap.
func (s *Service) appendLog(rec LogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	path := s.LogPath()
	return s.store.WithExclusive(path, func() error {
		if fi, err := os.Stat(path); err == nil && fi.Size() > maxLogBytes {
			if err := os.Rename(path, path+".old"); err != nil {
				return fmt.Errorf("rotating log: %w", err)
			}
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, state.FileMode)
		if err != nil {
			return err
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// RecentLog returns the newest n log records, oldest first. Lines that
// fail to decode are skipped; a rotated-away log reads as empty.
func (s *Service) RecentLog(n int) ([]LogRecord, error) {
	data, err := s.store.ReadLocked(s.LogPath())
	if err != nil {
		return nil, err
	}
	var recs []LogRecord
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var r LogRecord
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	if n > 0 && len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	return recs, nil
}

// sign computes the record signature, empty when no secret is set.
func (s *Service) sign(msgID, sender, content string) string {
	if len(s.secret) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%s", msgID, sender, content)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a log record signature against the service's
// secret. Records written without a secret verify only when the service
// also has none.
func (s *Service) VerifySignature(msgID, sender, content, signature string) bool {
	want := s.sign(msgID, sender, content)
	return hmac.Equal([]byte(want), []byte(signature))
}
