// Package ack tracks messages that require acknowledgment and drives
// their retry and escalation lifecycle through PENDING_ACKS.json.
//
// The pending file carries an integer version for optimistic
// concurrency: every mutation is a read, a rebuild, and a compare-and-
// swap write, retried with fresh data on version conflict. Sends happen
// between the read and the write so no lock is held across backend I/O.
package ack

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claudeswarm/claudeswarm/internal/messaging"
	"github.com/claudeswarm/claudeswarm/internal/state"
)

// PendingFile is the basename of the pending-acknowledgment store.
const PendingFile = "PENDING_ACKS.json"

// MaxRetries is how many times an unacknowledged message is re-sent
// before escalating to a broadcast.
const MaxRetries = 3

// AckPrefix marks content whose recipient must acknowledge.
const AckPrefix = "[REQUIRES-ACK] "

// retryBackoff is indexed by the retry count after incrementing; entry 0
// doubles as the default first-retry delay.
var retryBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}

// PendingAck is one row awaiting acknowledgment.
type PendingAck struct {
	MsgID       string            `json:"msg_id"`
	SenderID    string            `json:"sender_id"`
	RecipientID string            `json:"recipient_id"`
	Message     messaging.Message `json:"message"`
	SentAt      time.Time         `json:"sent_at"`
	RetryCount  int               `json:"retry_count"`
	NextRetryAt time.Time         `json:"next_retry_at"`
}

// pendingDoc is the on-disk shape of PENDING_ACKS.json. Legacy files
// without a version field load as version 0 and are upgraded on the
// next write.
type pendingDoc struct {
	Version     int          `json:"version"`
	PendingAcks []PendingAck `json:"pending_acks"`
}

// Engine drives sendWithAck, acknowledgment, and retries.
type Engine struct {
	store *state.Store
	svc   *messaging.Service
	path  string

	now   func() time.Time // overridden in tests
	newID func() string
}

// NewEngine creates the ack engine over the given messaging core.
func NewEngine(store *state.Store, svc *messaging.Service, root string) *Engine {
	return &Engine{
		store: store,
		svc:   svc,
		path:  filepath.Join(root, PendingFile),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// remove deletes a pending row by message id.
func (e *Engine) remove(msgID string) error {
	return e.mutate(func(rows []PendingAck) ([]PendingAck, error) {
		kept := rows[:0]
		for _, r := range rows {
			if r.MsgID != msgID {
				kept = append(kept, r)
			}
		}
		return kept, nil
	})
}

// SendWithAck sends a message whose content is prefixed [REQUIRES-ACK]
// and records it as pending. The pending row is written before the send
// under a temporary id, then patched to the real message id; a failed
// send removes the row again. It returns the message id to acknowledge.
// A non-positive firstRetryAfter selects the default 30 seconds.
func (e *Engine) SendWithAck(sender, recipient string, typ messaging.Type, content string, firstRetryAfter time.Duration) (string, error) {
	if firstRetryAfter <= 0 {
		firstRetryAfter = retryBackoff[0]
	}
	now := e.now().UTC()
	tempID := "temp-" + e.newID()

	err := e.mutate(func(rows []PendingAck) ([]PendingAck, error) {
		return append(rows, PendingAck{
			MsgID:       tempID,
			SenderID:    sender,
			RecipientID: recipient,
			SentAt:      now,
			RetryCount:  0,
			NextRetryAt: now.Add(firstRetryAfter),
		}), nil
	})
	if err != nil {
		return "", err
	}

	msg, _, sendErr := e.svc.Send(sender, recipient, typ, AckPrefix+content)
	if sendErr != nil || msg == nil {
		if rmErr := e.remove(tempID); rmErr != nil {
			log.Printf("warning: orphaned pending row %s: %v", tempID, rmErr)
		}
		if sendErr == nil {
			sendErr = fmt.Errorf("send produced no message")
		}
		return "", sendErr
	}

	err = e.mutate(func(rows []PendingAck) ([]PendingAck, error) {
		for i := range rows {
			if rows[i].MsgID == tempID {
				rows[i].MsgID = msg.MsgID
				rows[i].Message = *msg
			}
		}
		return rows, nil
	})
	if err != nil {
		return "", err
	}
	return msg.MsgID, nil
}

// ReceiveAck acknowledges a pending message and removes its row. An ack
// from an agent other than the recorded recipient is accepted with a
// warning. It reports whether the message id was pending.
func (e *Engine) ReceiveAck(msgID, agentID string) (bool, error) {
	found := false
	err := e.mutate(func(rows []PendingAck) ([]PendingAck, error) {
		found = false
		kept := rows[:0]
		for _, r := range rows {
			if r.MsgID != msgID {
				kept = append(kept, r)
				continue
			}
			found = true
			if r.RecipientID != agentID {
				log.Printf("warning: ack for %s came from %s, expected %s", msgID, agentID, r.RecipientID)
			}
		}
		return kept, nil
	})
	return found, err
}

// CheckPending lists rows awaiting acknowledgment from agentID; an
// empty id lists every row.
func (e *Engine) CheckPending(agentID string) ([]PendingAck, error) {
	rows, _, err := e.load()
	if err != nil {
		return nil, err
	}
	if agentID == "" {
		return rows, nil
	}
	var out []PendingAck
	for _, r := range rows {
		if r.RecipientID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ClearPending removes rows awaiting acknowledgment from agentID, or
// every row when the id is empty, and returns how many were removed.
func (e *Engine) ClearPending(agentID string) (int, error) {
	removed := 0
	err := e.mutate(func(rows []PendingAck) ([]PendingAck, error) {
		removed = 0
		kept := rows[:0]
		for _, r := range rows {
			if agentID == "" || r.RecipientID == agentID {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		return kept, nil
	})
	return removed, err
}

// ProcessRetries handles every row whose retry deadline has passed:
// re-send with a [RETRY-<k>] prefix and push the deadline out along the
// backoff table, or escalate to a broadcast and drop the row once the
// retry budget is spent. It returns how many rows were acted on.
func (e *Engine) ProcessRetries() (int, error) {
	acted := 0
	for attempt := 0; attempt < state.MaxCASAttempts; attempt++ {
		rows, version, err := e.load()
		if err != nil {
			return 0, err
		}

		acted = 0
		now := e.now().UTC()
		kept := make([]PendingAck, 0, len(rows))
		for _, r := range rows {
			if r.NextRetryAt.After(now) {
				kept = append(kept, r)
				continue
			}
			acted++

			if r.RetryCount < MaxRetries {
				k := r.RetryCount + 1
				retryContent := fmt.Sprintf("[RETRY-%d] %s", k, r.Message.Content)
				if _, _, err := e.svc.Send(r.SenderID, r.RecipientID, r.Message.Type, retryContent); err != nil {
					log.Printf("warning: retry %d of %s failed: %v", k, r.MsgID, err)
				}
				r.RetryCount = k
				if k == MaxRetries {
					e.escalate(r)
					continue
				}
				r.NextRetryAt = now.Add(retryBackoff[k])
				kept = append(kept, r)
			} else {
				e.escalate(r)
			}
		}

		err = e.save(kept, version)
		if errors.Is(err, state.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return acted, nil
	}
	return 0, fmt.Errorf("persisting retry results: %w", state.ErrVersionConflict)
}

// escalate broadcasts the give-up notice to every active agent,
// including the original sender.
func (e *Engine) escalate(r PendingAck) {
	content := fmt.Sprintf("[UNACKNOWLEDGED] Message to %s unacknowledged after %d attempts. Original: %s",
		r.RecipientID, MaxRetries, originalContent(r))
	if _, err := e.svc.Broadcast(r.SenderID, r.Message.Type, content, false); err != nil {
		log.Printf("warning: escalation broadcast for %s failed: %v", r.MsgID, err)
	}
}

// originalContent strips the ack prefix the row's message was sent with.
func originalContent(r PendingAck) string {
	return strings.TrimPrefix(r.Message.Content, AckPrefix)
}

// load reads the pending rows and the document version.
func (e *Engine) load() ([]PendingAck, int, error) {
	data, version, err := e.store.ReadVersioned(e.path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) == 0 {
		return nil, version, nil
	}
	var doc pendingDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Printf("warning: corrupt %s, treating as empty: %v", PendingFile, err)
		return nil, version, nil
	}
	return doc.PendingAcks, version, nil
}

// save commits rows at version expected+1.
func (e *Engine) save(rows []PendingAck, expected int) error {
	if rows == nil {
		rows = []PendingAck{}
	}
	data, err := json.MarshalIndent(pendingDoc{Version: expected + 1, PendingAcks: rows}, "", "  ")
	if err != nil {
		return err
	}
	return e.store.WriteVersioned(e.path, data, expected)
}

// mutate runs fn inside a version-CAS loop until the write lands or the
// attempt budget runs out.
func (e *Engine) mutate(fn func(rows []PendingAck) ([]PendingAck, error)) error {
	for attempt := 0; attempt < state.MaxCASAttempts; attempt++ {
		rows, version, err := e.load()
		if err != nil {
			return err
		}
		out, err := fn(rows)
		if err != nil {
			return err
		}
		err = e.save(out, version)
		if errors.Is(err, state.ErrVersionConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("updating %s: %w", PendingFile, state.ErrVersionConflict)
}
