package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/claudeswarm/claudeswarm/internal/messaging"
	"github.com/claudeswarm/claudeswarm/internal/style"
)

var (
	sendRequireAck    bool
	sendRetryAfterSec int
	broadcastSelf     bool
	showMessagesLimit int
	showMessagesJSON  bool
)

var sendMessageCmd = &cobra.Command{
	Use:     "send-message <sender> <recipient> <type> <content>",
	GroupID: GroupMsg,
	Short:   "Send a message to one agent",
	Long: `Send a typed message to another agent. The message is pushed into the
recipient's terminal when the backend supports it and always appended to
agent_messages.log.

Types: ` + typeList() + `

With --ack the message is tracked in PENDING_ACKS.json and resent with
backoff until the recipient acknowledges it or retries are exhausted.`,
	Args: cobra.ExactArgs(4),
	RunE: runSendMessage,
}

var broadcastCmd = &cobra.Command{
	Use:     "broadcast-message <sender> <type> <content>",
	GroupID: GroupMsg,
	Short:   "Send a message to every active agent",
	Args:    cobra.ExactArgs(3),
	RunE:    runBroadcast,
}

var ackMessageCmd = &cobra.Command{
	Use:     "ack-message <msg_id> <agent_id>",
	GroupID: GroupMsg,
	Short:   "Acknowledge a message awaiting ack",
	Args:    cobra.ExactArgs(2),
	RunE:    runAckMessage,
}

var checkAcksCmd = &cobra.Command{
	Use:     "check-pending-acks [agent_id]",
	GroupID: GroupMsg,
	Short:   "List messages still awaiting acknowledgment",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runCheckAcks,
}

var clearAcksCmd = &cobra.Command{
	Use:     "clear-pending-acks [agent_id]",
	GroupID: GroupMsg,
	Short:   "Drop pending-ack rows without resending",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runClearAcks,
}

var processRetriesCmd = &cobra.Command{
	Use:     "process-retries",
	GroupID: GroupMsg,
	Short:   "Resend or escalate overdue unacknowledged messages",
	Args:    cobra.NoArgs,
	RunE:    runProcessRetries,
}

var showMessagesCmd = &cobra.Command{
	Use:     "show-messages",
	GroupID: GroupMsg,
	Short:   "Print recent entries from the message log",
	Args:    cobra.NoArgs,
	RunE:    runShowMessages,
}

func init() {
	sendMessageCmd.Flags().BoolVar(&sendRequireAck, "ack", false, "Require acknowledgment with retries")
	sendMessageCmd.Flags().IntVar(&sendRetryAfterSec, "retry-after", 0, "Seconds before the first retry with --ack")
	broadcastCmd.Flags().BoolVar(&broadcastSelf, "include-self", false, "Deliver to the sender too")
	showMessagesCmd.Flags().IntVar(&showMessagesLimit, "limit", 20, "How many records to show")
	showMessagesCmd.Flags().BoolVar(&showMessagesJSON, "json", false, "Output JSON")

	rootCmd.AddCommand(sendMessageCmd, broadcastCmd, ackMessageCmd,
		checkAcksCmd, clearAcksCmd, processRetriesCmd, showMessagesCmd)
}

func typeList() string {
	var names []string
	for _, t := range messaging.Types {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func runSendMessage(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	typ, err := messaging.ParseType(args[2])
	if err != nil {
		return err
	}

	if sendRequireAck {
		msgID, err := sw.Acks.SendWithAck(args[0], args[1], typ, args[3],
			time.Duration(sendRetryAfterSec)*time.Second)
		if err != nil {
			return err
		}
		fmt.Printf("%s Sent %s to %s (awaiting ack)\n", style.Check(), msgID, args[1])
		return nil
	}

	msg, status, err := sw.Messaging.Send(args[0], args[1], typ, args[3])
	if err != nil {
		return err
	}
	if status[args[1]] {
		fmt.Printf("%s Delivered %s to %s\n", style.Check(), msg.MsgID, args[1])
	} else {
		fmt.Printf("%s Logged %s for %s (no live terminal)\n", style.Check(), msg.MsgID, args[1])
	}
	return nil
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	typ, err := messaging.ParseType(args[1])
	if err != nil {
		return err
	}
	status, err := sw.Messaging.Broadcast(args[0], typ, args[2], !broadcastSelf)
	if err != nil {
		return err
	}
	delivered := 0
	for _, d := range status {
		if d {
			delivered++
		}
	}
	fmt.Printf("%s Broadcast to %d agent(s), %d delivered live\n", style.Check(), len(status), delivered)
	return nil
}

func runAckMessage(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	found, err := sw.Acks.ReceiveAck(args[0], args[1])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no pending ack for message %s", args[0])
	}
	fmt.Printf("%s Acknowledged %s\n", style.Check(), args[0])
	return nil
}

func runCheckAcks(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	agentID := ""
	if len(args) == 1 {
		agentID = args[0]
	}
	rows, err := sw.Acks.CheckPending(agentID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No pending acknowledgments.")
		return nil
	}
	table := style.NewTable(
		style.Column{Name: "MSG ID", Width: 36},
		style.Column{Name: "FROM", Width: 10},
		style.Column{Name: "TO", Width: 10},
		style.Column{Name: "RETRIES", Width: 7, Align: style.AlignRight},
		style.Column{Name: "NEXT RETRY", Width: 20},
	)
	for _, r := range rows {
		table.AddRow(r.MsgID, r.SenderID, r.RecipientID,
			fmt.Sprint(r.RetryCount), r.NextRetryAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Print(table.Render())
	return nil
}

func runClearAcks(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	agentID := ""
	if len(args) == 1 {
		agentID = args[0]
	}
	removed, err := sw.Acks.ClearPending(agentID)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d pending ack(s)\n", removed)
	return nil
}

func runProcessRetries(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	processed, err := sw.Acks.ProcessRetries()
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d due message(s)\n", processed)
	return nil
}

func runShowMessages(cmd *cobra.Command, args []string) error {
	sw, err := getSwarm()
	if err != nil {
		return err
	}
	recs, err := sw.Messaging.RecentLog(showMessagesLimit)
	if err != nil {
		return err
	}
	if showMessagesJSON {
		return printJSON(map[string]any{"messages": recs})
	}
	for _, r := range recs {
		fmt.Println(messaging.FormatLine(r.Sender, r.Timestamp, r.Type, r.Content))
	}
	return nil
}
