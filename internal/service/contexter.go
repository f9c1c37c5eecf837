package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/tokens"
)

// Context assembly defaults.
const (
	DefaultAlwaysLast = 5
	DefaultMaxMoments = 3

	// breadcrumbTokens approximates the cost of a moment breadcrumb;
	// compactedTokens that of the bare placeholder.
	breadcrumbTokens = 20
	compactedTokens  = 5

	// compactedPlaceholder stands in when no moment exists to point at.
	compactedPlaceholder = "[earlier message compacted]"

	// snippetMax bounds the summary snippet inside a breadcrumb.
	snippetMax = 120

	// resourceLineMax caps how many resource keys a moment line names.
	resourceLineMax = 10
)

// ContextItem is one prompt-ready entry of an assembled context window.
type ContextItem struct {
	Role       models.MessageType `json:"role"`
	Content    string             `json:"content"`
	TokenCount int                `json:"token_count"`

	// MomentRef names the moment an injected or compacted item points at.
	MomentRef string `json:"moment_ref,omitempty"`
	// Compacted marks items whose original content was replaced.
	Compacted bool `json:"compacted,omitempty"`
}

// LoadContextParams bounds a context assembly.
type LoadContextParams struct {
	SessionID   string
	MaxTokens   int
	MaxMessages int
	Since       *time.Time

	// AlwaysLast is how many trailing non-system messages are exempt from
	// compaction. Zero means the default.
	AlwaysLast int
	// MaxMoments caps injected moment summaries. Zero means the default;
	// negative disables injection.
	MaxMoments int

	TenantID *string
	// Decrypt is an explicit, authorized decrypt request for client-mode
	// tenants.
	Decrypt bool
}

// LoadContext assembles a prompt-ready window for a session: recent moment
// summaries first (oldest first), then the budgeted message tail with stale
// assistant turns compacted into breadcrumbs.
func (m *Memory) LoadContext(ctx context.Context, p LoadContextParams) ([]ContextItem, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("load context: session id required: %w", db.ErrMalformedInput)
	}
	alwaysLast := p.AlwaysLast
	if alwaysLast <= 0 {
		alwaysLast = DefaultAlwaysLast
	}
	maxMoments := p.MaxMoments
	if maxMoments == 0 {
		maxMoments = DefaultMaxMoments
	}

	tenant, err := m.tenantFor(ctx, p.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load context: resolve tenant: %w", err)
	}
	opts := db.ReadOptions{Tenant: tenant, Decrypt: p.Decrypt}

	msgs, err := m.store.LoadMessageWindow(ctx, db.MessageWindow{
		SessionID:   p.SessionID,
		Since:       p.Since,
		MaxMessages: p.MaxMessages,
		MaxTokens:   p.MaxTokens,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	var moments []models.Moment
	if maxMoments > 0 {
		moments, err = m.store.RecentMoments(ctx, p.SessionID, maxMoments, opts)
		if err != nil {
			return nil, fmt.Errorf("load context: load moments: %w", err)
		}
	}

	items := make([]ContextItem, 0, len(moments)+len(msgs))

	// RecentMoments is newest first; inject oldest first so the reader
	// meets history in order.
	for i := len(moments) - 1; i >= 0; i-- {
		mom := &moments[i]
		content := FormatMomentContext(mom)
		items = append(items, ContextItem{
			Role:       models.MessageSystem,
			Content:    content,
			TokenCount: m.estimator.Estimate(content),
			MomentRef:  mom.Name,
		})
	}

	var latest *models.Moment
	if len(moments) > 0 {
		latest = &moments[0]
	} else if maxMoments < 0 && len(msgs) > alwaysLast+2 {
		// Breadcrumbs name the latest moment even when injection is off.
		recent, err := m.store.RecentMoments(ctx, p.SessionID, 1, opts)
		if err != nil {
			return nil, fmt.Errorf("load context: load moments: %w", err)
		}
		if len(recent) > 0 {
			latest = &recent[0]
		}
	}
	items = append(items, m.compactTail(msgs, alwaysLast, latest)...)

	return items, nil
}

// compactTail converts the message window to items, replacing non-empty
// assistant turns older than the protected tail with breadcrumbs. Windows
// of alwaysLast+2 messages or fewer pass through untouched.
func (m *Memory) compactTail(msgs []models.Message, alwaysLast int, latest *models.Moment) []ContextItem {
	compact := len(msgs) > alwaysLast+2

	// The protected tail counts non-system messages from the end.
	cut := len(msgs)
	if compact {
		kept := 0
		for cut > 0 && kept < alwaysLast {
			cut--
			if msgs[cut].Type != models.MessageSystem {
				kept++
			}
		}
	}

	items := make([]ContextItem, 0, len(msgs))
	for i := range msgs {
		msg := &msgs[i]
		if compact && i < cut && msg.Type == models.MessageAssistant && msg.Content != "" {
			items = append(items, breadcrumb(latest))
			continue
		}
		items = append(items, ContextItem{
			Role:       msg.Type,
			Content:    msg.Content,
			TokenCount: tokens.Count(msg.TokenCount, msg.Content, m.estimator),
		})
	}
	return items
}

// breadcrumb builds the replacement item for a compacted assistant turn.
// When a moment covers the stale span, the crumb carries a summary snippet
// and a lookup pointer so the agent can recover the detail on demand.
func breadcrumb(latest *models.Moment) ContextItem {
	if latest == nil || latest.DecryptSkipped {
		return ContextItem{
			Role:       models.MessageAssistant,
			Content:    compactedPlaceholder,
			TokenCount: compactedTokens,
			Compacted:  true,
		}
	}
	snippet := models.Truncate(latest.Summary, snippetMax)
	return ContextItem{
		Role:       models.MessageAssistant,
		Content:    fmt.Sprintf("[Earlier: %s → REM LOOKUP %s]", snippet, latest.Name),
		TokenCount: breadcrumbTokens,
		MomentRef:  latest.Name,
		Compacted:  true,
	}
}

// FormatMomentContext renders one moment as an injectable context line:
// the summary plus resource, file, and topic hints when the summary does
// not already carry them.
func FormatMomentContext(m *models.Moment) string {
	var b strings.Builder
	b.WriteString(m.Summary)

	if keys := m.Metadata.StringSlice(models.MetaResourceKeys); len(keys) > 0 && !strings.Contains(m.Summary, "Resources:") {
		if len(keys) > resourceLineMax {
			keys = keys[:resourceLineMax]
		}
		b.WriteString("\nResources: ")
		b.WriteString(strings.Join(keys, ", "))
	}
	if name := m.Metadata.String(models.MetaFileName); name != "" && !strings.Contains(m.Summary, name) {
		b.WriteString("\nFile: ")
		b.WriteString(name)
	}
	if len(m.Tags) > 0 && !strings.Contains(m.Summary, "Topics:") {
		b.WriteString("\nTopics: ")
		b.WriteString(strings.Join(m.Tags, ", "))
	}
	return b.String()
}
