package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/models"
)

var (
	sessListMode  string
	sessListLimit int

	sessShowDecrypt bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Soft-delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

func init() {
	sessionListCmd.Flags().StringVarP(&sessListMode, "mode", "m", "", "filter by mode (chat, workflow, eval, content_upload, checkpoint)")
	sessionListCmd.Flags().IntVarP(&sessListLimit, "limit", "n", 50, "max results")

	sessionShowCmd.Flags().BoolVar(&sessShowDecrypt, "decrypt", false, "request decryption of client-mode rows")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
}

func runSessionList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	opts, err := readOpts(ctx, false)
	if err != nil {
		return err
	}
	sessions, err := repo.FindSessions(ctx, ownerPtr(), models.SessionMode(sessListMode), sessListLimit, opts)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %-14s %6d tokens  %d moments  %s%s\n",
			s.CreatedAt.Format("2006-01-02"), s.Mode, s.TotalTokens,
			s.MomentCount(), s.ID, levelBadge(s.Base))
	}
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	opts, err := readOpts(ctx, sessShowDecrypt)
	if err != nil {
		return err
	}
	s, err := repo.GetSession(ctx, args[0], opts)
	if err != nil {
		return err
	}

	fmt.Printf("ID:      %s%s\n", s.ID, levelBadge(s.Base))
	fmt.Printf("Mode:    %s\n", s.Mode)
	if s.Agent != "" {
		fmt.Printf("Agent:   %s\n", s.Agent)
	}
	fmt.Printf("Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Tokens:  %d\n", s.TotalTokens)
	fmt.Printf("Moments: %d\n", s.MomentCount())
	if latest := s.LatestMomentID(); latest != "" {
		line := latest
		if moments, err := repo.MomentsByIDs(ctx, []string{latest}, opts); err == nil && len(moments) == 1 {
			line = fmt.Sprintf("%s (%s)", moments[0].Name, latest)
		}
		fmt.Printf("Latest:  %s\n", line)
	}
	if summary := s.Metadata.String(models.MetaLatestSummary); summary != "" {
		fmt.Printf("Summary: %s\n", summary)
	}
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	deleted, err := repo.SoftDelete(context.Background(), models.TableSession, args[0])
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("Session %s not found or already deleted.\n", args[0])
		return nil
	}
	fmt.Printf("Deleted session %s\n", args[0])
	return nil
}
