package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mnemolabs/mnemo/internal/models"
)

// UpsertMessage persists one turn. Content is redacted (when the tenant asks
// for it) and encrypted before it leaves this process; the write fails closed
// when key material is unavailable.
func (r *Repo) UpsertMessage(ctx context.Context, m *models.Message, tenant *models.Tenant) (*models.Message, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	stampID(m, "")
	content := m.Content
	if tenant != nil && tenant.RedactPII {
		content = models.RedactPII(content)
	}
	stored, level, err := r.encryptField(ctx, models.TableMessage, "content", content, tenant)
	if err != nil {
		return nil, fmt.Errorf("upsert message: %w", err)
	}
	if tenant != nil {
		m.TenantID = &tenant.ID
	}
	now := rfc3339(r.now())
	// imports carry historical timestamps; live writes leave CreatedAt zero
	created := now
	if !m.CreatedAt.IsZero() {
		created = rfc3339(m.CreatedAt)
	}

	sql := `
		UPSERT type::record("message", $id) SET
			session_id = $session_id,
			type = $type,
			content = $content,
			token_count = $token_count,
			tool_call = $tool_call,
			trace_id = $trace_id,
			span_id = $span_id,
			tenant_id = $tenant_id,
			owner_id = $owner_id,
			encryption_level = $level,
			metadata = $metadata,
			edges = $edges,
			tags = $tags,
			created_at = IF created_at THEN created_at ELSE type::datetime($created) END,
			updated_at = type::datetime($now)
		RETURN *, record::id(id) AS id
	`
	results, err := surrealdb.Query[[]models.Message](ctx, r.client.db, sql, map[string]any{
		"id":          m.ID,
		"session_id":  m.SessionID,
		"type":        string(m.Type),
		"content":     stored,
		"token_count": m.TokenCount,
		"tool_call":   m.ToolCall,
		"trace_id":    m.TraceID,
		"span_id":     m.SpanID,
		"tenant_id":   m.TenantID,
		"owner_id":    m.OwnerID,
		"level":       string(level),
		"metadata":    m.Metadata,
		"edges":       m.Edges,
		"tags":        m.Tags,
		"now":         now,
		"created":     created,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert message: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("upsert message: no result returned")
	}
	return out, nil
}

// GetMessage fetches one message, applying the read-path mode policy.
func (r *Repo) GetMessage(ctx context.Context, id string, opts ReadOptions) (*models.Message, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	results, err := surrealdb.Query[[]models.Message](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM type::record("message", $id)
		WHERE deleted_at = NONE
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get message: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("get message %s: %w", id, ErrNotFound)
	}
	r.decryptBatch(ctx, models.TableMessage, opts, messageRef(out))
	return out, nil
}

// MessagesSince returns every live message of a session strictly after the
// given timestamp (all messages when since is nil), oldest first. The
// moment builder windows over these; rows its tenant may not open keep
// their ciphertext and are flagged DecryptSkipped.
func (r *Repo) MessagesSince(ctx context.Context, sessionID string, since *time.Time, opts ReadOptions) ([]models.Message, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	sql := `
		SELECT *, record::id(id) AS id FROM message
		WHERE session_id = $session AND deleted_at = NONE
	`
	vars := map[string]any{"session": sessionID}
	if since != nil {
		sql += ` AND created_at > type::datetime($since)`
		vars["since"] = rfc3339(*since)
	}
	sql += ` ORDER BY created_at ASC`

	results, err := surrealdb.Query[[]models.Message](ctx, r.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("messages since: %w", wrapQueryError(err))
	}
	out := rows(results)
	r.decryptBatch(ctx, models.TableMessage, opts, messageRefs(out)...)
	return out, nil
}

// MessageWindow bounds a context-assembly load.
type MessageWindow struct {
	SessionID   string
	Since       *time.Time
	MaxMessages int
	MaxTokens   int
}

// DefaultMaxMessages caps a window load when the caller does not.
const DefaultMaxMessages = 200

// LoadMessageWindow loads a token- and count-budgeted slice of a session's
// history, newest-in first, returned oldest first. The budget is applied
// server-side while loading, not by truncating an unbounded fetch. Rows are
// decrypted per the read-path policy, one DEK resolution per tenant.
func (r *Repo) LoadMessageWindow(ctx context.Context, w MessageWindow, opts ReadOptions) ([]models.Message, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	limit := w.MaxMessages
	if limit <= 0 {
		limit = DefaultMaxMessages
	}

	sql := `
		SELECT *, record::id(id) AS id FROM message
		WHERE session_id = $session AND deleted_at = NONE
	`
	vars := map[string]any{"session": w.SessionID, "limit": limit}
	if w.Since != nil {
		sql += ` AND created_at > type::datetime($since)`
		vars["since"] = rfc3339(*w.Since)
	}
	sql += ` ORDER BY created_at DESC LIMIT $limit`

	results, err := surrealdb.Query[[]models.Message](ctx, r.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("load message window: %w", wrapQueryError(err))
	}
	newest := rows(results)

	// token budget: walk newest-to-oldest, stop once the budget is spent
	if w.MaxTokens > 0 {
		spent := 0
		cut := len(newest)
		for i, m := range newest {
			spent += m.TokenCount
			if spent > w.MaxTokens && i > 0 {
				cut = i
				break
			}
		}
		newest = newest[:cut]
	}

	// back to chronological order
	out := make([]models.Message, len(newest))
	for i, m := range newest {
		out[len(newest)-1-i] = m
	}

	r.decryptBatch(ctx, models.TableMessage, opts, messageRefs(out)...)
	return out, nil
}
