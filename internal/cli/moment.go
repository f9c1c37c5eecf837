package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/service"
)

var (
	momentThreshold int

	momentShowDecrypt bool

	checkpointSummary string
	checkpointType    string
	checkpointSession string
	checkpointTags    []string
)

var momentCmd = &cobra.Command{
	Use:   "moment",
	Short: "Build and inspect moments",
}

var momentBuildCmd = &cobra.Command{
	Use:   "build <session-id>",
	Short: "Compact a session's unsummarized span into a moment",
	Args:  cobra.ExactArgs(1),
	RunE:  runMomentBuild,
}

var momentShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a moment by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runMomentShow,
}

var momentCheckpointCmd = &cobra.Command{
	Use:   "checkpoint <name>",
	Short: "Record a user-authored moment",
	Long: `Record a user-authored moment: a checkpoint, note, reminder or
meeting record, addressable by name and outside any chunk chain.

Examples:
  mnemo moment checkpoint release-cut --summary "Cut the 2.4 branch"
  mnemo moment checkpoint standup --type meeting --summary "Discussed rollout" --tags team`,
	Args: cobra.ExactArgs(1),
	RunE: runMomentCheckpoint,
}

func init() {
	momentBuildCmd.Flags().IntVar(&momentThreshold, "threshold", 0, "token threshold (config default when 0)")

	momentShowCmd.Flags().BoolVar(&momentShowDecrypt, "decrypt", false, "request decryption of client-mode rows")

	momentCheckpointCmd.Flags().StringVar(&checkpointSummary, "summary", "", "moment summary (required)")
	momentCheckpointCmd.Flags().StringVar(&checkpointType, "type", "checkpoint", "moment type (checkpoint, user_note, reminder, meeting)")
	momentCheckpointCmd.Flags().StringVar(&checkpointSession, "session", "", "anchor to an existing session")
	momentCheckpointCmd.Flags().StringSliceVar(&checkpointTags, "tags", nil, "topic tags")
	_ = momentCheckpointCmd.MarkFlagRequired("summary")

	momentCmd.AddCommand(momentBuildCmd)
	momentCmd.AddCommand(momentShowCmd)
	momentCmd.AddCommand(momentCheckpointCmd)
}

func runMomentBuild(cmd *cobra.Command, args []string) error {
	threshold := momentThreshold
	if threshold <= 0 {
		threshold = cfg.MomentThresholdTokens
	}

	res, err := memory.MaybeBuildMoment(context.Background(), args[0], threshold)
	if err != nil {
		return err
	}
	if res.Moment == nil {
		fmt.Printf("No moment built (%s): window has %d messages, %d tokens, threshold %d\n",
			res.Skipped, res.WindowMessages, res.WindowTokens, threshold)
		return nil
	}
	fmt.Printf("Built moment %s covering %d messages (%d tokens)\n",
		res.Moment.Name, res.WindowMessages, res.WindowTokens)
	fmt.Printf("Summary: %s\n", res.Moment.Summary)
	return nil
}

func runMomentShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	opts, err := readOpts(ctx, momentShowDecrypt)
	if err != nil {
		return err
	}
	m, err := repo.MomentByName(ctx, args[0], opts)
	if err != nil {
		return err
	}

	fmt.Printf("Name:    %s%s\n", m.Name, levelBadge(m.Base))
	fmt.Printf("Type:    %s\n", m.MomentType)
	fmt.Printf("Created: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
	if m.SourceSessionID != nil {
		fmt.Printf("Session: %s\n", *m.SourceSessionID)
	}
	if m.StartsTimestamp != nil && m.EndsTimestamp != nil {
		fmt.Printf("Span:    %s .. %s\n",
			m.StartsTimestamp.Format("15:04:05"), m.EndsTimestamp.Format("15:04:05"))
	}
	if len(m.PreviousMomentKeys) > 0 {
		fmt.Printf("Previous: %s\n", strings.Join(m.PreviousMomentKeys, ", "))
	}
	if m.DecryptSkipped {
		fmt.Println("Summary: (encrypted)")
	} else {
		fmt.Printf("Summary: %s\n", m.Summary)
	}
	return nil
}

func runMomentCheckpoint(cmd *cobra.Command, args []string) error {
	m, err := memory.CreateCheckpoint(context.Background(), service.CheckpointInput{
		Name:       args[0],
		Summary:    checkpointSummary,
		MomentType: models.MomentType(checkpointType),
		SessionID:  checkpointSession,
		Tags:       checkpointTags,
		TenantID:   tenantPtr(),
		OwnerID:    ownerPtr(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created %s moment %s (session %s)\n", m.MomentType, m.Name, *m.SourceSessionID)
	return nil
}
