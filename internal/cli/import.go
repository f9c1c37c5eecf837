package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/service"
)

var (
	importSession string
	importBuild   bool
)

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Bulk-import a transcript from a JSONL file",
	Long: `Bulk-import a transcript. Each line is one message:

  {"type": "user", "content": "...", "token_count": 12, "created_at": "2026-08-01T10:00:00Z"}

token_count and created_at are optional. The target session is created
on first write in content_upload mode and remembers the source file.

Examples:
  mnemo import transcript.jsonl
  mnemo import transcript.jsonl --session support-123 --tenant acme`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importSession, "session", "s", "", "target session (generated when empty)")
	importCmd.Flags().BoolVar(&importBuild, "build", true, "build a moment after the import")
}

// importLine is one JSONL record of a transcript file.
type importLine struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
	CreatedAt  string `json:"created_at"`
	TraceID    string `json:"trace_id"`
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	lines, skipped, err := readImportFile(path)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("no importable lines in %s", path)
	}

	sessionID := importSession
	if sessionID == "" {
		sessionID = models.RandomID()
	}

	p := tea.NewProgram(newImportModel(sessionID, len(lines)))

	go func() {
		result, err := importLines(context.Background(), sessionID, filepath.Base(path), lines, func(done int) {
			p.Send(importProgressMsg{done: done, total: len(lines)})
		})
		result.Skipped = append(skipped, result.Skipped...)
		p.Send(importDoneMsg{result: result, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress ui: %w", err)
	}
	if m, ok := final.(importModel); ok && m.err != nil {
		return m.err
	}
	fmt.Printf("Session: %s\n", sessionID)
	return nil
}

// readImportFile parses the whole file up front so the total is known
// before any write happens.
func readImportFile(path string) ([]importLine, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open import file: %w", err)
	}
	defer file.Close()

	var lines []importLine
	var skipped []string

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line importLine
		if err := json.Unmarshal(raw, &line); err != nil {
			skipped = append(skipped, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}
		if line.Content == "" {
			skipped = append(skipped, fmt.Sprintf("line %d: empty content", lineNo))
			continue
		}
		if line.Type == "" {
			line.Type = string(models.MessageUser)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read import file: %w", err)
	}
	return lines, skipped, nil
}

// importLines persists the parsed transcript and stamps the session with
// its provenance.
func importLines(ctx context.Context, sessionID, fileName string, lines []importLine, onProgress func(done int)) (importResult, error) {
	var result importResult

	for i, line := range lines {
		in := service.PersistMessageInput{
			SessionID:  sessionID,
			Type:       models.MessageType(line.Type),
			Content:    line.Content,
			TokenCount: line.TokenCount,
			TenantID:   tenantPtr(),
			OwnerID:    ownerPtr(),
			Mode:       models.SessionModeContentUpload,
		}
		if line.TraceID != "" {
			in.TraceID = &line.TraceID
		}
		if line.CreatedAt != "" {
			at, err := time.Parse(time.RFC3339, line.CreatedAt)
			if err != nil {
				result.Skipped = append(result.Skipped, fmt.Sprintf("%s: bad created_at %q", sessionID, line.CreatedAt))
				continue
			}
			in.CreatedAt = at
		}

		msg, err := memory.PersistMessage(ctx, in)
		if err != nil {
			return result, fmt.Errorf("import message %d: %w", i+1, err)
		}
		result.Messages++
		result.Tokens += msg.TokenCount
		onProgress(result.Messages)
	}

	if _, err := repo.MergeSessionMetadata(ctx, sessionID, models.Metadata{
		models.MetaFileName: fileName,
		models.MetaUploads:  []any{fileName},
	}); err != nil {
		result.Skipped = append(result.Skipped, fmt.Sprintf("session metadata: %v", err))
	}

	if importBuild && cfg.MomentThresholdTokens > 0 {
		res, err := memory.MaybeBuildMoment(ctx, sessionID, cfg.MomentThresholdTokens)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("moment build: %v", err))
		} else if res.Moment != nil {
			result.Moments++
		}
	}

	return result, nil
}
