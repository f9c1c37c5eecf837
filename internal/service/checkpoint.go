package service

import (
	"context"
	"fmt"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
)

// CheckpointInput describes a user-authored moment: a named checkpoint,
// note, reminder, or meeting record, outside any chat transcript.
type CheckpointInput struct {
	Name       string
	Summary    string
	MomentType models.MomentType
	Metadata   models.Metadata
	Tags       []string

	// SessionID links the moment to an existing session. When empty a
	// dedicated checkpoint session is created to anchor it.
	SessionID string

	TenantID *string
	OwnerID  *string
}

// CreateCheckpoint stores a user-authored moment. Unlike chunk moments
// these are addressable by the caller-chosen name and sit outside the
// session chunk chain.
func (m *Memory) CreateCheckpoint(ctx context.Context, in CheckpointInput) (*models.Moment, error) {
	if in.Name == "" || in.Summary == "" {
		return nil, fmt.Errorf("create checkpoint: name and summary required: %w", db.ErrMalformedInput)
	}
	momentType := in.MomentType
	if momentType == "" {
		momentType = models.MomentCheckpoint
	}
	if momentType == models.MomentSessionChunk {
		return nil, fmt.Errorf("create checkpoint: session_chunk moments are builder-owned: %w", db.ErrMalformedInput)
	}

	tenant, err := m.tenantFor(ctx, in.TenantID)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint: resolve tenant: %w", err)
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sess := &models.Session{
			Name: in.Name,
			Mode: models.SessionModeCheckpoint,
		}
		sess.OwnerID = in.OwnerID
		created, err := m.store.UpsertSession(ctx, sess, tenant)
		if err != nil {
			return nil, fmt.Errorf("create checkpoint: anchor session: %w", err)
		}
		sessionID = created.ID
	} else if _, err := m.store.GetSession(ctx, sessionID, db.ReadOptions{Tenant: tenant}); err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}

	now := m.now()
	moment := &models.Moment{
		Name:            in.Name,
		Summary:         in.Summary,
		MomentType:      momentType,
		SourceSessionID: &sessionID,
		StartsTimestamp: &now,
		EndsTimestamp:   &now,
	}
	moment.OwnerID = in.OwnerID
	moment.Metadata = in.Metadata
	moment.Tags = in.Tags

	stored, err := m.store.UpsertMoment(ctx, moment, tenant)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint: %w", err)
	}

	patch := models.Metadata{
		models.MetaLatestMomentID: stored.ID,
		models.MetaLatestSummary:  models.Truncate(in.Summary, latestSummaryMax),
	}
	if _, err := m.store.MergeSessionMetadata(ctx, sessionID, patch); err != nil {
		m.logger.Warn("checkpoint session metadata update failed", "session", sessionID, "error", err)
	}

	m.logger.Info("checkpoint created", "moment", stored.Name, "type", momentType, "session", sessionID)
	return stored, nil
}
