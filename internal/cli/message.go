package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/service"
)

var (
	msgSession string
	msgType    string
	msgTokens  int
	msgAgent   string
	msgBuild   bool

	msgListLimit   int
	msgListDecrypt bool
)

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Store and inspect session messages",
}

var messageAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Append one turn to a session",
	Long: `Append one turn to a session. The session is created on first write.

Examples:
  mnemo message add "deploy finished" --session deploy-42
  mnemo message add "looks good" --session deploy-42 --type assistant
  mnemo message add "private note" --session s1 --tenant acme --owner alice`,
	Args: cobra.ExactArgs(1),
	RunE: runMessageAdd,
}

var messageListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show a session's recent messages",
	RunE:  runMessageList,
}

func init() {
	messageAddCmd.Flags().StringVarP(&msgSession, "session", "s", "", "session ID (generated when empty)")
	messageAddCmd.Flags().StringVarP(&msgType, "type", "t", "user", "message type (user, assistant, system, tool_call, ...)")
	messageAddCmd.Flags().IntVar(&msgTokens, "tokens", 0, "explicit token count (estimated when 0)")
	messageAddCmd.Flags().StringVar(&msgAgent, "agent", "", "agent name, used when the session is created")
	messageAddCmd.Flags().BoolVar(&msgBuild, "build", true, "attempt a moment build after the write")

	messageListCmd.Flags().StringVarP(&msgSession, "session", "s", "", "session ID")
	messageListCmd.Flags().IntVarP(&msgListLimit, "limit", "n", 20, "max messages")
	messageListCmd.Flags().BoolVar(&msgListDecrypt, "decrypt", false, "request decryption of client-mode rows")
	_ = messageListCmd.MarkFlagRequired("session")

	messageCmd.AddCommand(messageAddCmd)
	messageCmd.AddCommand(messageListCmd)
}

func runMessageAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	msg, err := memory.PersistMessage(ctx, service.PersistMessageInput{
		SessionID:  msgSession,
		Type:       models.MessageType(msgType),
		Content:    args[0],
		TokenCount: msgTokens,
		TenantID:   tenantPtr(),
		OwnerID:    ownerPtr(),
		Agent:      msgAgent,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Stored message %s in session %s (%d tokens)\n", msg.ID, msg.SessionID, msg.TokenCount)

	if msgBuild && cfg.MomentThresholdTokens > 0 {
		res, err := memory.MaybeBuildMoment(ctx, msg.SessionID, cfg.MomentThresholdTokens)
		if err != nil {
			return fmt.Errorf("moment build: %w", err)
		}
		if res.Moment != nil {
			fmt.Printf("Built moment %s (%d messages, %d tokens)\n",
				res.Moment.Name, res.WindowMessages, res.WindowTokens)
		}
	}
	return nil
}

func runMessageList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	opts, err := readOpts(ctx, msgListDecrypt)
	if err != nil {
		return err
	}
	msgs, err := repo.LoadMessageWindow(ctx, db.MessageWindow{
		SessionID:   msgSession,
		MaxMessages: msgListLimit,
	}, opts)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return nil
	}
	for _, m := range msgs {
		content := m.Content
		if m.DecryptSkipped {
			content = "(encrypted)"
		}
		fmt.Printf("%s  %-10s %s%s\n",
			m.CreatedAt.Format("2006-01-02 15:04:05"), m.Type,
			models.Truncate(content, 100), levelBadge(m.Base))
	}
	return nil
}
