package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/mnemolabs/mnemo/internal/models"
)

// Gateway resolves tenant DEKs and applies field-level encryption per the
// descriptor registry. Stateless given a cached key; safe for concurrent use.
type Gateway struct {
	kms    KMS
	deks   *ristretto.Cache
	group  singleflight.Group
	ttl    time.Duration
	logger *slog.Logger
}

// NewGateway creates a gateway with a TTL-bounded DEK cache.
func NewGateway(kms KMS, ttl time.Duration, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("dek cache: %w", err)
	}
	return &Gateway{kms: kms, deks: cache, ttl: ttl, logger: logger}, nil
}

// Close releases the DEK cache.
func (g *Gateway) Close() {
	g.deks.Close()
}

// KMS exposes the key backend for provisioning flows (tenant
// registration, key rotation).
func (g *Gateway) KMS() KMS {
	return g.kms
}

// DEK returns the tenant's unwrapped data encryption key, resolving it
// through the KMS at most once per tenant per TTL. Concurrent resolutions
// for the same tenant coalesce into a single unwrap.
func (g *Gateway) DEK(ctx context.Context, tenant *models.Tenant) ([]byte, error) {
	if tenant == nil {
		return nil, fmt.Errorf("%w: no tenant context", ErrKeyUnavailable)
	}
	switch tenant.Mode {
	case models.ModePlatform, models.ModeClient:
	case models.ModeSealed:
		return nil, fmt.Errorf("%w: sealed tenant %s has no server-side key", ErrKeyUnavailable, tenant.ID)
	default:
		return nil, fmt.Errorf("%w: tenant %s mode %q has no key", ErrKeyUnavailable, tenant.ID, tenant.Mode)
	}
	if tenant.WrappedDEK == "" {
		// Fail closed: a missing key is never an invitation to store
		// plaintext.
		return nil, fmt.Errorf("%w: tenant %s has no wrapped key", ErrKeyUnavailable, tenant.ID)
	}

	if cached, ok := g.deks.Get(tenant.ID); ok {
		return cached.([]byte), nil
	}

	v, err, _ := g.group.Do(tenant.ID, func() (any, error) {
		wrapped, err := base64.StdEncoding.DecodeString(tenant.WrappedDEK)
		if err != nil {
			return nil, fmt.Errorf("%w: wrapped key encoding: %v", ErrKeyUnavailable, err)
		}
		dek, err := g.kms.Unwrap(ctx, wrapped, tenant.KeyID)
		if err != nil {
			return nil, err
		}
		g.deks.SetWithTTL(tenant.ID, dek, 1, g.ttl)
		g.logger.Debug("resolved tenant dek", "tenant", tenant.ID)
		return dek, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops a tenant's cached DEK (key rotation, tenant delete).
func (g *Gateway) Invalidate(tenantID string) {
	g.deks.Del(tenantID)
}

// ShouldDecryptOnRead implements the mode policy: only platform-mode rows
// are auto-decrypted by the server. Client rows need an explicit authorized
// request; sealed rows can never be opened server-side.
func (g *Gateway) ShouldDecryptOnRead(tenant *models.Tenant) bool {
	return tenant != nil && tenant.Mode == models.ModePlatform
}

// ShouldDecryptLevel applies the same policy to a row's stamped level.
// force represents an explicit, authorized decrypt request and only widens
// the policy for client rows.
func ShouldDecryptLevel(level models.EncryptionLevel, force bool) bool {
	switch level {
	case models.EncryptionPlatform:
		return true
	case models.EncryptionClient:
		return force
	default:
		// sealed, disabled, none: nothing to decrypt server-side
		return false
	}
}

// EncryptFields encrypts the fields declared for table in place and returns
// the encryption level to stamp on the row. Missing or empty fields are
// skipped; a resolvable key is mandatory for encrypting modes (fail closed).
func (g *Gateway) EncryptFields(ctx context.Context, table string, data map[string]any, tenant *models.Tenant) (models.EncryptionLevel, error) {
	level := tenant.Level()
	if level == models.EncryptionNone || level == models.EncryptionDisabled {
		return level, nil
	}
	desc, ok := models.DescriptorFor(table)
	if !ok || len(desc.Encrypted) == 0 {
		return level, nil
	}

	if level == models.EncryptionSealed {
		pub, err := base64.StdEncoding.DecodeString(tenant.SealedPublicKey)
		if err != nil || len(pub) == 0 {
			return "", fmt.Errorf("%w: tenant %s sealed public key missing", ErrKeyUnavailable, tenant.ID)
		}
		for field := range desc.Encrypted {
			plain, ok := plainString(data, field)
			if !ok {
				continue
			}
			ct, err := EncryptSealed(pub, plain)
			if err != nil {
				return "", fmt.Errorf("seal %s.%s: %w", table, field, err)
			}
			data[field] = ct
		}
		return level, nil
	}

	dek, err := g.DEK(ctx, tenant)
	if err != nil {
		return "", err
	}
	for field, discipline := range desc.Encrypted {
		plain, ok := plainString(data, field)
		if !ok {
			continue
		}
		var ct string
		if discipline == models.DisciplineDeterministic {
			ct, err = EncryptDeterministic(dek, plain)
		} else {
			ct, err = EncryptRandomized(dek, plain)
		}
		if err != nil {
			return "", fmt.Errorf("encrypt %s.%s: %w", table, field, err)
		}
		data[field] = ct
	}
	return level, nil
}

// DecryptFieldsWithDEK decrypts the declared fields of one row in place
// using an already-resolved DEK. Batch readers resolve the DEK once per
// tenant and call this per row.
func DecryptFieldsWithDEK(table string, data map[string]any, dek []byte) error {
	desc, ok := models.DescriptorFor(table)
	if !ok {
		return nil
	}
	for field := range desc.Encrypted {
		value, ok := data[field].(string)
		if !ok || !IsEncrypted(value) {
			continue
		}
		plain, err := Decrypt(dek, value)
		if err != nil {
			return fmt.Errorf("decrypt %s.%s: %w", table, field, err)
		}
		data[field] = plain
	}
	return nil
}

// EncryptLookupValue encrypts a single deterministic-discipline field value
// so equality filters can match against stored ciphertext.
func (g *Gateway) EncryptLookupValue(ctx context.Context, table, field, value string, tenant *models.Tenant) (string, error) {
	desc, ok := models.DescriptorFor(table)
	if !ok {
		return value, nil
	}
	if desc.Encrypted[field] != models.DisciplineDeterministic {
		return value, nil
	}
	level := tenant.Level()
	if level == models.EncryptionNone || level == models.EncryptionDisabled {
		return value, nil
	}
	dek, err := g.DEK(ctx, tenant)
	if err != nil {
		return "", err
	}
	return EncryptDeterministic(dek, value)
}

func plainString(data map[string]any, field string) (string, bool) {
	s, ok := data[field].(string)
	if !ok || s == "" || IsEncrypted(s) {
		return "", false
	}
	return s, true
}
