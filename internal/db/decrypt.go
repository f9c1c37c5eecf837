package db

import (
	"context"

	"github.com/mnemolabs/mnemo/internal/crypto"
	"github.com/mnemolabs/mnemo/internal/models"
)

// fieldRef points at the encrypted fields of one loaded row so the batch
// decrypt path can rewrite them in place.
type fieldRef struct {
	level    models.EncryptionLevel
	tenantID string
	fields   map[string]*string
	skipped  *bool
}

func sessionRef(s *models.Session) fieldRef {
	return fieldRef{
		level:    s.EncryptionLevel,
		tenantID: strOrEmpty(s.TenantID),
		fields:   map[string]*string{"description": &s.Description},
		skipped:  &s.DecryptSkipped,
	}
}

func sessionRefs(ss []models.Session) []fieldRef {
	refs := make([]fieldRef, len(ss))
	for i := range ss {
		refs[i] = sessionRef(&ss[i])
	}
	return refs
}

func messageRef(m *models.Message) fieldRef {
	return fieldRef{
		level:    m.EncryptionLevel,
		tenantID: strOrEmpty(m.TenantID),
		fields:   map[string]*string{"content": &m.Content},
		skipped:  &m.DecryptSkipped,
	}
}

func messageRefs(ms []models.Message) []fieldRef {
	refs := make([]fieldRef, len(ms))
	for i := range ms {
		refs[i] = messageRef(&ms[i])
	}
	return refs
}

func momentRef(m *models.Moment) fieldRef {
	return fieldRef{
		level:    m.EncryptionLevel,
		tenantID: strOrEmpty(m.TenantID),
		fields:   map[string]*string{"summary": &m.Summary},
		skipped:  &m.DecryptSkipped,
	}
}

func momentRefs(ms []models.Moment) []fieldRef {
	refs := make([]fieldRef, len(ms))
	for i := range ms {
		refs[i] = momentRef(&ms[i])
	}
	return refs
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// decryptBatch applies the read-path mode policy to a batch of rows,
// resolving each tenant's DEK exactly once. Platform rows decrypt on every
// read path: when the caller brings no tenant context, the row's own tenant
// is resolved from its stamp. Rows that cannot or must not be opened keep
// their ciphertext and get flagged; a bad row never fails the batch.
func (r *Repo) decryptBatch(ctx context.Context, table string, opts ReadOptions, refs ...fieldRef) {
	force := opts.Decrypt && opts.Tenant != nil

	// group rows needing decryption by tenant
	byTenant := make(map[string][]fieldRef)
	for _, ref := range refs {
		if !crypto.ShouldDecryptLevel(ref.level, force) {
			if ref.level == models.EncryptionClient || ref.level == models.EncryptionSealed {
				*ref.skipped = true
			}
			continue
		}
		if ref.tenantID == "" {
			*ref.skipped = true
			continue
		}
		// tenant isolation: a caller tenant only ever opens its own rows
		if opts.Tenant != nil && opts.Tenant.ID != ref.tenantID {
			*ref.skipped = true
			continue
		}
		byTenant[ref.tenantID] = append(byTenant[ref.tenantID], ref)
	}

	for tenantID, group := range byTenant {
		tenant := opts.Tenant
		if tenant == nil {
			loaded, err := r.GetTenant(ctx, tenantID)
			if err != nil {
				r.logger.Warn("tenant unresolvable for decrypt", "tenant", tenantID, "error", err)
				markSkipped(group)
				continue
			}
			tenant = loaded
		}
		dek, err := r.gateway.DEK(ctx, tenant)
		if err != nil {
			r.logger.Warn("dek unavailable, returning ciphertext", "tenant", tenantID, "table", table, "error", err)
			markSkipped(group)
			continue
		}
		for _, ref := range group {
			data := make(map[string]any, len(ref.fields))
			for field, value := range ref.fields {
				data[field] = *value
			}
			if err := crypto.DecryptFieldsWithDEK(table, data, dek); err != nil {
				r.logger.Warn("row decrypt failed", "table", table, "tenant", tenantID, "error", err)
				*ref.skipped = true
				continue
			}
			for field, value := range ref.fields {
				if plain, ok := data[field].(string); ok {
					*value = plain
				}
			}
		}
	}
}

func markSkipped(refs []fieldRef) {
	for _, ref := range refs {
		*ref.skipped = true
	}
}
