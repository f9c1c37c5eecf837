package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mnemolabs/mnemo/internal/models"
)

// momentVars builds the common parameter set for moment writes, running the
// summary through the gateway first.
func (r *Repo) momentVars(ctx context.Context, m *models.Moment, tenant *models.Tenant) (map[string]any, error) {
	stampID(m, m.Name)
	stored, level, err := r.encryptField(ctx, models.TableMoment, "summary", m.Summary, tenant)
	if err != nil {
		return nil, err
	}
	if tenant != nil {
		m.TenantID = &tenant.ID
	}
	return map[string]any{
		"id":                   m.ID,
		"name":                 m.Name,
		"summary":              stored,
		"moment_type":          string(m.MomentType),
		"source_session_id":    m.SourceSessionID,
		"starts":               optTime(m.StartsTimestamp),
		"ends":                 optTime(m.EndsTimestamp),
		"previous_moment_keys": m.PreviousMomentKeys,
		"tenant_id":            m.TenantID,
		"owner_id":             m.OwnerID,
		"level":                string(level),
		"metadata":             m.Metadata,
		"edges":                m.Edges,
		"tags":                 m.Tags,
		"now":                  rfc3339(r.now()),
	}, nil
}

const momentSetClause = `
			name = $name,
			summary = $summary,
			moment_type = $moment_type,
			source_session_id = $source_session_id,
			starts_timestamp = IF $starts THEN type::datetime($starts) ELSE NONE END,
			ends_timestamp = IF $ends THEN type::datetime($ends) ELSE NONE END,
			previous_moment_keys = $previous_moment_keys,
			tenant_id = $tenant_id,
			owner_id = $owner_id,
			encryption_level = $level,
			metadata = $metadata,
			edges = $edges,
			tags = $tags,
			created_at = IF created_at THEN created_at ELSE type::datetime($now) END,
			updated_at = type::datetime($now)`

// UpsertMoment persists a moment outside the builder's transactional path
// (checkpoints, user edits). Same deterministic ID overwrites.
func (r *Repo) UpsertMoment(ctx context.Context, m *models.Moment, tenant *models.Tenant) (*models.Moment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	vars, err := r.momentVars(ctx, m, tenant)
	if err != nil {
		return nil, fmt.Errorf("upsert moment: %w", err)
	}
	sql := `UPSERT type::record("moment", $id) SET` + momentSetClause + `
		RETURN *, record::id(id) AS id`

	results, err := surrealdb.Query[[]models.Moment](ctx, r.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("upsert moment: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("upsert moment: no result returned")
	}
	return out, nil
}

// CreateMomentWithSession writes a new moment and the owning session's
// metadata update as one transaction, so a moment never lands without its
// session bookkeeping or vice versa. A duplicate ID or chunk_key (a racing
// builder) surfaces as ErrConcurrentModification.
func (r *Repo) CreateMomentWithSession(ctx context.Context, m *models.Moment, sessionID string, sessionMeta models.Metadata) (*models.Moment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var tenant *models.Tenant
	if m.TenantID != nil {
		loaded, err := r.GetTenant(ctx, *m.TenantID)
		if err != nil {
			return nil, fmt.Errorf("create moment: %w", err)
		}
		tenant = loaded
	}
	vars, err := r.momentVars(ctx, m, tenant)
	if err != nil {
		return nil, fmt.Errorf("create moment: %w", err)
	}
	vars["session_id"] = sessionID
	vars["session_meta"] = sessionMeta

	sql := `
		BEGIN TRANSACTION;
		CREATE type::record("moment", $id) SET` + momentSetClause + `
		RETURN *, record::id(id) AS id;
		UPDATE type::record("session", $session_id) SET
			metadata = $session_meta,
			updated_at = type::datetime($now);
		COMMIT TRANSACTION;
	`
	results, err := surrealdb.Query[[]models.Moment](ctx, r.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("create moment: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("create moment: no result returned")
	}
	return out, nil
}

// LatestChunkMoment returns the most recent session_chunk moment of a
// session, or ErrNotFound. This is the builder's only durable cursor: the
// window state is re-derived from it on every call.
func (r *Repo) LatestChunkMoment(ctx context.Context, sessionID string) (*models.Moment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	results, err := surrealdb.Query[[]models.Moment](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM moment
		WHERE source_session_id = $session
			AND moment_type = 'session_chunk'
			AND deleted_at = NONE
		ORDER BY created_at DESC LIMIT 1
	`, map[string]any{"session": sessionID})
	if err != nil {
		return nil, fmt.Errorf("latest chunk moment: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("latest chunk moment for %s: %w", sessionID, ErrNotFound)
	}
	return out, nil
}

// RecentMoments returns up to limit most recent moments of a session,
// newest first, decrypted per the read-path policy.
func (r *Repo) RecentMoments(ctx context.Context, sessionID string, limit int, opts ReadOptions) ([]models.Moment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 3
	}

	results, err := surrealdb.Query[[]models.Moment](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM moment
		WHERE source_session_id = $session AND deleted_at = NONE
		ORDER BY created_at DESC LIMIT $limit
	`, map[string]any{"session": sessionID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recent moments: %w", wrapQueryError(err))
	}
	out := rows(results)
	r.decryptBatch(ctx, models.TableMoment, opts, momentRefs(out)...)
	return out, nil
}

// MomentByName resolves a breadcrumb reference back to its moment.
func (r *Repo) MomentByName(ctx context.Context, name string, opts ReadOptions) (*models.Moment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	results, err := surrealdb.Query[[]models.Moment](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM moment
		WHERE name = $name AND deleted_at = NONE
		LIMIT 1
	`, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("moment by name: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("moment %q: %w", name, ErrNotFound)
	}
	r.decryptBatch(ctx, models.TableMoment, opts, momentRef(out))
	return out, nil
}

// MomentsByIDs batch-fetches moments by ID list, decrypted per policy.
func (r *Repo) MomentsByIDs(ctx context.Context, ids []string, opts ReadOptions) ([]models.Moment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	results, err := surrealdb.Query[[]models.Moment](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM moment
		WHERE record::id(id) IN $ids AND deleted_at = NONE
	`, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("moments by ids: %w", wrapQueryError(err))
	}
	out := rows(results)
	r.decryptBatch(ctx, models.TableMoment, opts, momentRefs(out)...)
	return out, nil
}

// MomentsForOwnerBefore pages an owner's moments for the feed: strictly
// older than before (when set), newest first.
func (r *Repo) MomentsForOwnerBefore(ctx context.Context, ownerID string, before *time.Time, limit int, opts ReadOptions) ([]models.Moment, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}

	sql := `
		SELECT *, record::id(id) AS id FROM moment
		WHERE owner_id = $owner AND deleted_at = NONE
	`
	vars := map[string]any{"owner": ownerID, "limit": limit}
	if before != nil {
		sql += ` AND created_at < type::datetime($before)`
		vars["before"] = rfc3339(*before)
	}
	sql += ` ORDER BY created_at DESC LIMIT $limit`

	results, err := surrealdb.Query[[]models.Moment](ctx, r.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("moments for owner: %w", wrapQueryError(err))
	}
	out := rows(results)
	r.decryptBatch(ctx, models.TableMoment, opts, momentRefs(out)...)
	return out, nil
}
