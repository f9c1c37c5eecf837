package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/service"
)

var (
	ctxMaxTokens   int
	ctxMaxMessages int
	ctxAlwaysLast  int
	ctxMaxMoments  int
	ctxDecrypt     bool
	ctxJSON        bool
)

var contextCmd = &cobra.Command{
	Use:   "context <session-id>",
	Short: "Assemble a prompt-ready context window",
	Long: `Assemble a prompt-ready context window for a session: recent moment
summaries first, then the budgeted message tail with stale assistant
turns compacted into breadcrumbs.

Examples:
  mnemo context deploy-42
  mnemo context deploy-42 --max-tokens 4000 --moments 2
  mnemo context s1 --tenant acme --decrypt --json`,
	Args: cobra.ExactArgs(1),
	RunE: runContext,
}

func init() {
	contextCmd.Flags().IntVar(&ctxMaxTokens, "max-tokens", 0, "token budget (config default when 0)")
	contextCmd.Flags().IntVar(&ctxMaxMessages, "max-messages", 0, "message cap")
	contextCmd.Flags().IntVar(&ctxAlwaysLast, "always-last", 0, "trailing turns exempt from compaction")
	contextCmd.Flags().IntVar(&ctxMaxMoments, "moments", 0, "injected moment summaries (-1 disables)")
	contextCmd.Flags().BoolVar(&ctxDecrypt, "decrypt", false, "request decryption of client-mode rows")
	contextCmd.Flags().BoolVar(&ctxJSON, "json", false, "emit JSON")
}

func runContext(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	maxTokens := ctxMaxTokens
	if maxTokens <= 0 {
		maxTokens = cfg.ContextMaxTokens
	}
	alwaysLast := ctxAlwaysLast
	if alwaysLast <= 0 {
		alwaysLast = cfg.ContextAlwaysLast
	}
	maxMoments := ctxMaxMoments
	if maxMoments == 0 {
		maxMoments = cfg.ContextMaxMoments
	}

	items, err := memory.LoadContext(ctx, service.LoadContextParams{
		SessionID:   args[0],
		MaxTokens:   maxTokens,
		MaxMessages: ctxMaxMessages,
		AlwaysLast:  alwaysLast,
		MaxMoments:  maxMoments,
		TenantID:    tenantPtr(),
		Decrypt:     ctxDecrypt,
	})
	if err != nil {
		return err
	}

	if ctxJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	total := 0
	for _, item := range items {
		total += item.TokenCount
		marker := ""
		if item.Compacted {
			marker = " (compacted)"
		} else if item.MomentRef != "" {
			marker = " (moment " + item.MomentRef + ")"
		}
		fmt.Printf("[%s]%s %s\n", item.Role, marker, item.Content)
	}
	fmt.Printf("\n%d items, ~%d tokens\n", len(items), total)
	return nil
}
