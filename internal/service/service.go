// Package service implements the memory-layer operations on top of the
// repository: message persistence, moment building, context assembly,
// and the activity feed.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/tokens"
)

// Store is the repository surface the services depend on. *db.Repo
// implements it; tests substitute an in-memory fake.
type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)

	UpsertSession(ctx context.Context, s *models.Session, tenant *models.Tenant) (*models.Session, error)
	GetSession(ctx context.Context, id string, opts db.ReadOptions) (*models.Session, error)
	MergeSessionMetadata(ctx context.Context, id string, patch models.Metadata) (*models.Session, error)
	AddSessionTokens(ctx context.Context, id string, n int) error

	UpsertMessage(ctx context.Context, m *models.Message, tenant *models.Tenant) (*models.Message, error)
	MessagesSince(ctx context.Context, sessionID string, since *time.Time, opts db.ReadOptions) ([]models.Message, error)
	LoadMessageWindow(ctx context.Context, w db.MessageWindow, opts db.ReadOptions) ([]models.Message, error)

	UpsertMoment(ctx context.Context, m *models.Moment, tenant *models.Tenant) (*models.Moment, error)
	CreateMomentWithSession(ctx context.Context, m *models.Moment, sessionID string, sessionMeta models.Metadata) (*models.Moment, error)
	LatestChunkMoment(ctx context.Context, sessionID string) (*models.Moment, error)
	RecentMoments(ctx context.Context, sessionID string, limit int, opts db.ReadOptions) ([]models.Moment, error)
	MomentByName(ctx context.Context, name string, opts db.ReadOptions) (*models.Moment, error)
	MomentsForOwnerBefore(ctx context.Context, ownerID string, before *time.Time, limit int, opts db.ReadOptions) ([]models.Moment, error)

	DayStatsFor(ctx context.Context, ownerID string, dayStart, dayEnd time.Time) (*db.DayStats, error)
}

// Summarizer condenses a message window into a moment summary.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []models.Message) (string, error)
}

// Memory bundles the memory-layer services around one store.
type Memory struct {
	store      Store
	summarizer Summarizer // nil means deterministic aggregation only
	estimator  tokens.Estimator
	logger     *slog.Logger
	now        func() time.Time

	builds keyedMutex
}

// New creates the memory service. summarizer may be nil.
func New(store Store, summarizer Summarizer, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		store:      store,
		summarizer: summarizer,
		estimator:  tokens.Heuristic{},
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow injects a clock for tests.
func (m *Memory) WithNow(now func() time.Time) *Memory {
	m.now = now
	return m
}

// tenantFor resolves an optional tenant reference.
func (m *Memory) tenantFor(ctx context.Context, tenantID *string) (*models.Tenant, error) {
	if tenantID == nil || *tenantID == "" {
		return nil, nil
	}
	return m.store.GetTenant(ctx, *tenantID)
}
