package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/tokens"
)

// PersistMessageInput describes one turn to persist. TokenCount of zero
// means "estimate for me".
type PersistMessageInput struct {
	SessionID  string
	Type       models.MessageType
	Content    string
	TokenCount int
	ToolCall   models.Metadata
	TraceID    *string
	SpanID     *string
	Metadata   models.Metadata
	Tags       []string

	// CreatedAt is honored when set (transcript imports); live writes
	// leave it zero and the store stamps the write time.
	CreatedAt time.Time

	TenantID *string
	OwnerID  *string

	// Session attributes used only when the session is created lazily by
	// this write.
	Agent string
	Mode  models.SessionMode
}

// PersistMessage stores one turn, creating the session on first write and
// accumulating its token total.
func (m *Memory) PersistMessage(ctx context.Context, in PersistMessageInput) (*models.Message, error) {
	if in.Type == "" || in.Content == "" {
		return nil, fmt.Errorf("persist message: type and content required: %w", db.ErrMalformedInput)
	}
	if in.SessionID == "" {
		in.SessionID = models.RandomID()
	}

	tenant, err := m.tenantFor(ctx, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("persist message: resolve tenant: %w", err)
	}

	if err := m.ensureSession(ctx, in, tenant); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	count := tokens.Count(in.TokenCount, in.Content, m.estimator)

	msg := &models.Message{
		SessionID:  in.SessionID,
		Type:       in.Type,
		Content:    in.Content,
		TokenCount: count,
		ToolCall:   in.ToolCall,
		TraceID:    in.TraceID,
		SpanID:     in.SpanID,
	}
	msg.CreatedAt = in.CreatedAt
	msg.OwnerID = in.OwnerID
	msg.Metadata = in.Metadata
	msg.Tags = in.Tags

	stored, err := m.store.UpsertMessage(ctx, msg, tenant)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	if err := m.store.AddSessionTokens(ctx, in.SessionID, count); err != nil {
		// the message is durable; token accounting is advisory
		m.logger.Warn("add session tokens failed", "session", in.SessionID, "error", err)
	}

	return stored, nil
}

// ensureSession creates the session lazily on first write.
func (m *Memory) ensureSession(ctx context.Context, in PersistMessageInput, tenant *models.Tenant) error {
	_, err := m.store.GetSession(ctx, in.SessionID, db.ReadOptions{Tenant: tenant})
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	mode := in.Mode
	if mode == "" {
		mode = models.SessionModeChat
	}
	sess := &models.Session{
		Agent: in.Agent,
		Mode:  mode,
	}
	sess.ID = in.SessionID
	sess.OwnerID = in.OwnerID
	if _, err := m.store.UpsertSession(ctx, sess, tenant); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	m.logger.Info("session created on first write", "session", in.SessionID, "mode", mode)
	return nil
}
