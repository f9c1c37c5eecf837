package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/mnemolabs/mnemo/internal/crypto"
	"github.com/mnemolabs/mnemo/internal/models"
)

// DefaultTimeout bounds every storage round trip that arrives without a
// caller-supplied deadline.
const DefaultTimeout = 10 * time.Second

// Repo is the typed, encryption-aware repository over the mnemo tables.
// Writes compute deterministic IDs, run declared fields through the
// encryption gateway and stamp the resulting encryption_level; reads apply
// the per-row mode policy with one DEK resolution per tenant per batch.
type Repo struct {
	client  *Client
	gateway *crypto.Gateway
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewRepo creates a repository over an open client.
func NewRepo(client *Client, gateway *crypto.Gateway, logger *slog.Logger) *Repo {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{
		client:  client,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
		timeout: DefaultTimeout,
	}
}

// WithNow overrides the clock. Testing only.
func (r *Repo) WithNow(now func() time.Time) *Repo {
	r.now = now
	return r
}

// Gateway exposes the encryption gateway for callers that provision tenants.
func (r *Repo) Gateway() *crypto.Gateway { return r.gateway }

// ReadOptions controls decryption on the read path.
type ReadOptions struct {
	// Tenant is the caller's tenant context. Rows stamped for a different
	// tenant are never decrypted with it.
	Tenant *models.Tenant
	// Decrypt is an explicit, authorized decrypt request. Required for
	// client-mode rows; platform rows decrypt without it. Sealed rows never
	// decrypt regardless.
	Decrypt bool
}

func (r *Repo) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// rfc3339 renders a timestamp for a type::datetime() cast.
func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// optTime renders an optional timestamp parameter, nil for NONE.
func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return rfc3339(*t)
}

// first unwraps the single expected row of a query result.
func first[T any](results *[]surrealdb.QueryResult[[]T]) (*T, bool) {
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, false
	}
	return &(*results)[0].Result[0], true
}

// rows unwraps all rows of a query result.
func rows[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}

// stampID assigns the record identifier: deterministic when the descriptor
// declares a natural key and its value is present, random otherwise.
func stampID(rec models.Record, naturalKey string) {
	base := rec.Meta()
	if base.ID != "" {
		return
	}
	if naturalKey != "" {
		owner := ""
		if base.OwnerID != nil {
			owner = *base.OwnerID
		}
		base.ID = models.DeterministicID(rec.Table(), naturalKey, owner)
		return
	}
	base.ID = models.RandomID()
}

// encryptField runs one declared field through the gateway and returns the
// stored value plus the level to stamp. Fail-closed: key trouble aborts the
// write.
func (r *Repo) encryptField(ctx context.Context, table, field, value string, tenant *models.Tenant) (string, models.EncryptionLevel, error) {
	data := map[string]any{field: value}
	level, err := r.gateway.EncryptFields(ctx, table, data, tenant)
	if err != nil {
		return "", "", err
	}
	stored, _ := data[field].(string)
	return stored, level, nil
}

// =============================================================================
// TENANTS
// =============================================================================

// UpsertTenant persists a tenant record. Tenant rows themselves are never
// field-encrypted; they hold only wrapped key material.
func (r *Repo) UpsertTenant(ctx context.Context, t *models.Tenant) (*models.Tenant, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	stampID(t, "")
	now := rfc3339(r.now())

	sql := `
		UPSERT type::record("tenant", $id) SET
			name = $name,
			mode = $mode,
			key_id = $key_id,
			wrapped_dek = $wrapped_dek,
			sealed_public_key = $sealed_public_key,
			redact_pii = $redact_pii,
			created_at = IF created_at THEN created_at ELSE type::datetime($now) END,
			updated_at = type::datetime($now)
		RETURN *, record::id(id) AS id
	`
	results, err := surrealdb.Query[[]models.Tenant](ctx, r.client.db, sql, map[string]any{
		"id":                t.ID,
		"name":              t.Name,
		"mode":              string(t.Mode),
		"key_id":            t.KeyID,
		"wrapped_dek":       t.WrappedDEK,
		"sealed_public_key": t.SealedPublicKey,
		"redact_pii":        t.RedactPII,
		"now":               now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert tenant: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("upsert tenant: no result returned")
	}
	r.gateway.Invalidate(t.ID)
	return out, nil
}

// GetTenant fetches a tenant by ID.
func (r *Repo) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	results, err := surrealdb.Query[[]models.Tenant](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM type::record("tenant", $id)
		WHERE deleted_at = NONE
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("get tenant %s: %w", id, ErrNotFound)
	}
	return out, nil
}

// =============================================================================
// USERS
// =============================================================================

// UpsertUser persists a user. Email is the natural key, hashed into the ID
// before encryption so the same address always lands on the same row.
func (r *Repo) UpsertUser(ctx context.Context, u *models.User, tenant *models.Tenant) (*models.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	stampID(u, u.Email)
	stored, level, err := r.encryptField(ctx, models.TableUser, "email", u.Email, tenant)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if tenant != nil {
		u.TenantID = &tenant.ID
	}
	now := rfc3339(r.now())

	sql := `
		UPSERT type::record("user", $id) SET
			email = $email,
			display_name = $display_name,
			tenant_id = $tenant_id,
			encryption_level = $level,
			metadata = $metadata,
			tags = $tags,
			created_at = IF created_at THEN created_at ELSE type::datetime($now) END,
			updated_at = type::datetime($now)
		RETURN *, record::id(id) AS id
	`
	results, err := surrealdb.Query[[]models.User](ctx, r.client.db, sql, map[string]any{
		"id":           u.ID,
		"email":        stored,
		"display_name": u.DisplayName,
		"tenant_id":    u.TenantID,
		"level":        string(level),
		"metadata":     u.Metadata,
		"tags":         u.Tags,
		"now":          now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("upsert user: no result returned")
	}
	return out, nil
}

// FindUserByEmail looks a user up by email. For deterministic-encrypting
// tenants the lookup value is encrypted first so it matches stored
// ciphertext.
func (r *Repo) FindUserByEmail(ctx context.Context, email string, tenant *models.Tenant) (*models.User, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	lookup, err := r.gateway.EncryptLookupValue(ctx, models.TableUser, "email", email, tenant)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	results, err := surrealdb.Query[[]models.User](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM user
		WHERE email = $email AND deleted_at = NONE
		LIMIT 1
	`, map[string]any{"email": lookup})
	if err != nil {
		return nil, fmt.Errorf("find user: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("find user by email: %w", ErrNotFound)
	}
	return out, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// UpsertSession persists a session, encrypting the description when the
// tenant mode requires it.
func (r *Repo) UpsertSession(ctx context.Context, s *models.Session, tenant *models.Tenant) (*models.Session, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	stampID(s, "")
	stored, level, err := r.encryptField(ctx, models.TableSession, "description", s.Description, tenant)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	if tenant != nil {
		s.TenantID = &tenant.ID
	}
	now := rfc3339(r.now())

	sql := `
		UPSERT type::record("session", $id) SET
			name = $name,
			description = $description,
			agent = $agent,
			mode = $mode,
			total_tokens = $total_tokens,
			tenant_id = $tenant_id,
			owner_id = $owner_id,
			encryption_level = $level,
			metadata = $metadata,
			edges = $edges,
			tags = $tags,
			created_at = IF created_at THEN created_at ELSE type::datetime($now) END,
			updated_at = type::datetime($now)
		RETURN *, record::id(id) AS id
	`
	results, err := surrealdb.Query[[]models.Session](ctx, r.client.db, sql, map[string]any{
		"id":           s.ID,
		"name":         s.Name,
		"description":  stored,
		"agent":        s.Agent,
		"mode":         string(s.Mode),
		"total_tokens": s.TotalTokens,
		"tenant_id":    s.TenantID,
		"owner_id":     s.OwnerID,
		"level":        string(level),
		"metadata":     s.Metadata,
		"edges":        s.Edges,
		"tags":         s.Tags,
		"now":          now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("upsert session: no result returned")
	}
	return out, nil
}

// GetSession fetches a session by ID, applying the read-path mode policy.
func (r *Repo) GetSession(ctx context.Context, id string, opts ReadOptions) (*models.Session, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	results, err := surrealdb.Query[[]models.Session](ctx, r.client.db, `
		SELECT *, record::id(id) AS id FROM type::record("session", $id)
		WHERE deleted_at = NONE
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	r.decryptBatch(ctx, models.TableSession, opts, sessionRef(out))
	return out, nil
}

// MergeSessionMetadata reads, merges and writes back session metadata in one
// round trip per side. Merge semantics live in models.MergeMetadata.
func (r *Repo) MergeSessionMetadata(ctx context.Context, id string, patch models.Metadata) (*models.Session, error) {
	s, err := r.GetSession(ctx, id, ReadOptions{})
	if err != nil {
		return nil, err
	}
	merged := models.MergeMetadata(s.Metadata, patch)

	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	results, err := surrealdb.Query[[]models.Session](ctx, r.client.db, `
		UPDATE type::record("session", $id) SET
			metadata = $metadata,
			updated_at = type::datetime($now)
		RETURN *, record::id(id) AS id
	`, map[string]any{"id": id, "metadata": merged, "now": rfc3339(r.now())})
	if err != nil {
		return nil, fmt.Errorf("merge session metadata: %w", wrapQueryError(err))
	}
	out, ok := first(results)
	if !ok {
		return nil, fmt.Errorf("merge session metadata %s: %w", id, ErrNotFound)
	}
	return out, nil
}

// AddSessionTokens bumps the session's running token counter.
func (r *Repo) AddSessionTokens(ctx context.Context, id string, n int) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	_, err := surrealdb.Query[any](ctx, r.client.db, `
		UPDATE type::record("session", $id) SET
			total_tokens += $n,
			updated_at = type::datetime($now)
	`, map[string]any{"id": id, "n": n, "now": rfc3339(r.now())})
	if err != nil {
		return fmt.Errorf("add session tokens: %w", wrapQueryError(err))
	}
	return nil
}

// FindSessions returns sessions matching equality filters, newest first.
func (r *Repo) FindSessions(ctx context.Context, ownerID *string, mode models.SessionMode, limit int, opts ReadOptions) ([]models.Session, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 50
	}

	sql := `SELECT *, record::id(id) AS id FROM session WHERE deleted_at = NONE`
	vars := map[string]any{"limit": limit}
	if ownerID != nil {
		sql += ` AND owner_id = $owner`
		vars["owner"] = *ownerID
	}
	if mode != "" {
		sql += ` AND mode = $mode`
		vars["mode"] = string(mode)
	}
	sql += ` ORDER BY created_at DESC LIMIT $limit`

	results, err := surrealdb.Query[[]models.Session](ctx, r.client.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", wrapQueryError(err))
	}
	out := rows(results)
	r.decryptBatch(ctx, models.TableSession, opts, sessionRefs(out)...)
	return out, nil
}

// =============================================================================
// SOFT DELETE
// =============================================================================

// SoftDelete sets the tombstone on a record. Never hard-deletes. Returns
// false when the record was absent or already deleted.
func (r *Repo) SoftDelete(ctx context.Context, table, id string) (bool, error) {
	if _, ok := models.DescriptorFor(table); !ok {
		return false, fmt.Errorf("%w: unknown table %q", ErrMalformedInput, table)
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	sql := fmt.Sprintf(`
		UPDATE type::record("%s", $id) SET
			deleted_at = type::datetime($now),
			updated_at = type::datetime($now)
		WHERE deleted_at = NONE
		RETURN record::id(id) AS id
	`, table)
	results, err := surrealdb.Query[[]struct {
		ID string `json:"id"`
	}](ctx, r.client.db, sql, map[string]any{"id": id, "now": rfc3339(r.now())})
	if err != nil {
		return false, fmt.Errorf("soft delete %s: %w", table, wrapQueryError(err))
	}
	_, ok := first(results)
	return ok, nil
}
