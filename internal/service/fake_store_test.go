package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
)

// fakeStore is an in-memory Store with the same visible semantics as the
// SurrealDB repository: lazy ID stamping, soft-delete awareness, the
// unique chunk constraint, and budgeted window loads. Crypto is out of
// scope here; rows stay plaintext.
type fakeStore struct {
	mu sync.Mutex

	tenants  map[string]models.Tenant
	sessions map[string]models.Session
	messages map[string]models.Message
	moments  map[string]models.Moment

	now func() time.Time

	// failCreates forces the next n CreateMomentWithSession calls to
	// report a lost race, simulating a concurrent builder.
	failCreates int
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		tenants:  make(map[string]models.Tenant),
		sessions: make(map[string]models.Session),
		messages: make(map[string]models.Message),
		moments:  make(map[string]models.Moment),
		now:      now,
	}
}

func (f *fakeStore) stamp(base *models.Base) {
	if base.ID == "" {
		base.ID = models.RandomID()
	}
	if base.CreatedAt.IsZero() {
		base.CreatedAt = f.now()
	}
	base.UpdatedAt = f.now()
}

func (f *fakeStore) GetTenant(_ context.Context, id string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, db.ErrNotFound)
	}
	return &t, nil
}

func (f *fakeStore) UpsertSession(_ context.Context, s *models.Session, tenant *models.Tenant) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamp(&s.Base)
	if tenant != nil {
		s.TenantID = &tenant.ID
	}
	f.sessions[s.ID] = *s
	out := *s
	return &out, nil
}

func (f *fakeStore) GetSession(_ context.Context, id string, _ db.ReadOptions) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.DeletedAt != nil {
		return nil, fmt.Errorf("session %s: %w", id, db.ErrNotFound)
	}
	return &s, nil
}

func (f *fakeStore) MergeSessionMetadata(_ context.Context, id string, patch models.Metadata) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.DeletedAt != nil {
		return nil, fmt.Errorf("session %s: %w", id, db.ErrNotFound)
	}
	s.Metadata = models.MergeMetadata(s.Metadata, patch)
	s.UpdatedAt = f.now()
	f.sessions[id] = s
	out := s
	return &out, nil
}

func (f *fakeStore) AddSessionTokens(_ context.Context, id string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, db.ErrNotFound)
	}
	s.TotalTokens += n
	f.sessions[id] = s
	return nil
}

func (f *fakeStore) UpsertMessage(_ context.Context, m *models.Message, tenant *models.Tenant) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamp(&m.Base)
	if tenant != nil {
		m.TenantID = &tenant.ID
	}
	f.messages[m.ID] = *m
	out := *m
	return &out, nil
}

func (f *fakeStore) MessagesSince(_ context.Context, sessionID string, since *time.Time, _ db.ReadOptions) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, m := range f.messages {
		if m.SessionID != sessionID || m.DeletedAt != nil {
			continue
		}
		if since != nil && !m.CreatedAt.After(*since) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) LoadMessageWindow(ctx context.Context, w db.MessageWindow, opts db.ReadOptions) ([]models.Message, error) {
	all, err := f.MessagesSince(ctx, w.SessionID, w.Since, opts)
	if err != nil {
		return nil, err
	}
	maxMessages := w.MaxMessages
	if maxMessages <= 0 {
		maxMessages = db.DefaultMaxMessages
	}
	if len(all) > maxMessages {
		all = all[len(all)-maxMessages:]
	}
	if w.MaxTokens > 0 {
		spent := 0
		cut := 0
		for i := len(all) - 1; i >= 0; i-- {
			spent += all[i].TokenCount
			if spent > w.MaxTokens && i < len(all)-1 {
				cut = i + 1
				break
			}
		}
		all = all[cut:]
	}
	return all, nil
}

func (f *fakeStore) UpsertMoment(_ context.Context, m *models.Moment, tenant *models.Tenant) (*models.Moment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == "" && m.Name != "" {
		owner := ""
		if m.OwnerID != nil {
			owner = *m.OwnerID
		}
		m.ID = models.DeterministicID(models.TableMoment, m.Name, owner)
	}
	f.stamp(&m.Base)
	if tenant != nil {
		m.TenantID = &tenant.ID
	}
	f.moments[m.ID] = *m
	out := *m
	return &out, nil
}

func (f *fakeStore) CreateMomentWithSession(ctx context.Context, m *models.Moment, sessionID string, sessionMeta models.Metadata) (*models.Moment, error) {
	f.mu.Lock()
	if f.failCreates > 0 {
		f.failCreates--
		f.mu.Unlock()
		return nil, fmt.Errorf("create moment: %w", db.ErrConcurrentModification)
	}
	chunk := m.ChunkIndex()
	for _, existing := range f.moments {
		sameSession := existing.SourceSessionID != nil && *existing.SourceSessionID == sessionID
		if sameSession && existing.MomentType == models.MomentSessionChunk && existing.ChunkIndex() == chunk {
			f.mu.Unlock()
			return nil, fmt.Errorf("create moment: %w", db.ErrConcurrentModification)
		}
	}
	f.mu.Unlock()

	stored, err := f.UpsertMoment(ctx, m, nil)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	if s, ok := f.sessions[sessionID]; ok {
		s.Metadata = sessionMeta
		s.UpdatedAt = f.now()
		f.sessions[sessionID] = s
	}
	f.mu.Unlock()
	return stored, nil
}

func (f *fakeStore) sessionMoments(sessionID string) []models.Moment {
	var out []models.Moment
	for _, m := range f.moments {
		if m.DeletedAt != nil || m.SourceSessionID == nil || *m.SourceSessionID != sessionID {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) LatestChunkMoment(_ context.Context, sessionID string) (*models.Moment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.sessionMoments(sessionID) {
		if m.MomentType == models.MomentSessionChunk {
			out := m
			return &out, nil
		}
	}
	return nil, fmt.Errorf("latest chunk for %s: %w", sessionID, db.ErrNotFound)
}

func (f *fakeStore) RecentMoments(_ context.Context, sessionID string, limit int, _ db.ReadOptions) ([]models.Moment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sessionMoments(sessionID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MomentByName(_ context.Context, name string, _ db.ReadOptions) (*models.Moment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.moments {
		if m.Name == name && m.DeletedAt == nil {
			out := m
			return &out, nil
		}
	}
	return nil, fmt.Errorf("moment %s: %w", name, db.ErrNotFound)
}

func (f *fakeStore) MomentsForOwnerBefore(_ context.Context, ownerID string, before *time.Time, limit int, _ db.ReadOptions) ([]models.Moment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Moment
	for _, m := range f.moments {
		if m.DeletedAt != nil || m.OwnerID == nil || *m.OwnerID != ownerID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DayStatsFor(_ context.Context, ownerID string, dayStart, dayEnd time.Time) (*db.DayStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &db.DayStats{}
	seen := map[string]bool{}
	for _, m := range f.messages {
		if m.DeletedAt != nil || m.OwnerID == nil || *m.OwnerID != ownerID {
			continue
		}
		if m.CreatedAt.Before(dayStart) || !m.CreatedAt.Before(dayEnd) {
			continue
		}
		stats.MessageCount++
		stats.TotalTokens += m.TokenCount
		if !seen[m.SessionID] {
			seen[m.SessionID] = true
			stats.Sessions = append(stats.Sessions, m.SessionID)
		}
	}
	for _, m := range f.moments {
		if m.DeletedAt != nil || m.OwnerID == nil || *m.OwnerID != ownerID {
			continue
		}
		if m.CreatedAt.Before(dayStart) || !m.CreatedAt.Before(dayEnd) {
			continue
		}
		stats.MomentCount++
	}
	sort.Strings(stats.Sessions)
	return stats, nil
}
