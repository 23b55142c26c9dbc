// Package messaging formats, rate-limits, delivers, and logs inter-agent
// messages. Delivery is attempted in real time through the active backend
// and always recorded in the shared agent_messages.log, which agents
// without a real-time channel poll instead.
package messaging

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies a message. The wire tags are upper case.
type Type string

const (
	TypeQuestion      Type = "QUESTION"
	TypeReviewRequest Type = "REVIEW-REQUEST"
	TypeBlocked       Type = "BLOCKED"
	TypeCompleted     Type = "COMPLETED"
	TypeChallenge     Type = "CHALLENGE"
	TypeInfo          Type = "INFO"
	TypeAck           Type = "ACK"
)

// Types lists every valid message type.
var Types = []Type{
	TypeQuestion, TypeReviewRequest, TypeBlocked,
	TypeCompleted, TypeChallenge, TypeInfo, TypeAck,
}

// ParseType maps a string to a message type, case-insensitively.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

// Message is one sent message with its recipient set.
type Message struct {
	MsgID      string    `json:"msg_id"`
	Sender     string    `json:"sender"`
	Timestamp  time.Time `json:"timestamp"`
	Type       Type      `json:"type"`
	Content    string    `json:"content"`
	Recipients []string  `json:"recipients"`
}

// timeLayout is the human-readable timestamp in pushed lines.
const timeLayout = "2006-01-02 15:04:05"

// FormatLine renders the message in its terminal wire form:
// [<sender>][YYYY-MM-DD HH:MM:SS][<TYPE>]: <content>
func FormatLine(sender string, ts time.Time, typ Type, content string) string {
	return fmt.Sprintf("[%s][%s][%s]: %s", sender, ts.Format(timeLayout), typ, content)
}
