// Package models defines data structures for the mnemo memory layer.
package models

import "time"

// EncryptionLevel records, per persisted row, how its sensitive fields were
// stored. It is stamped at write time so readers never have to re-derive the
// tenant's mode from config.
type EncryptionLevel string

const (
	// EncryptionPlatform: encrypted with a platform-resolved tenant key;
	// the server auto-decrypts on read.
	EncryptionPlatform EncryptionLevel = "platform"
	// EncryptionClient: encrypted with a tenant-owned key; reads return
	// ciphertext unless decryption is explicitly requested.
	EncryptionClient EncryptionLevel = "client"
	// EncryptionSealed: encrypted with a key whose private half the server
	// never retained. The server can never decrypt these rows.
	EncryptionSealed EncryptionLevel = "sealed"
	// EncryptionDisabled: tenant exists but opted out; plaintext at rest.
	EncryptionDisabled EncryptionLevel = "disabled"
	// EncryptionNone: no tenant scope at all; plaintext at rest.
	EncryptionNone EncryptionLevel = "none"
)

// Edge is a directed reference to another record for pseudo-graph traversal.
// Targets are opaque record IDs, not enforced foreign keys.
type Edge struct {
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight,omitempty"`
}

// Base carries the fields every persisted record shares. Domain types embed
// it; the repository reads and stamps it through the Record interface.
type Base struct {
	ID              string          `json:"id,omitempty"`
	CreatedAt       time.Time       `json:"created_at,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at,omitempty"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty"`
	TenantID        *string         `json:"tenant_id,omitempty"`
	OwnerID         *string         `json:"owner_id,omitempty"`
	EncryptionLevel EncryptionLevel `json:"encryption_level,omitempty"`
	Metadata        Metadata        `json:"metadata,omitempty"`
	Edges           []Edge          `json:"edges,omitempty"`
	Tags            []string        `json:"tags,omitempty"`

	// DecryptSkipped is set on read when a row's ciphertext could not or
	// must not be opened (sealed/client rows, key failures). The encrypted
	// fields then still hold ciphertext. Never persisted.
	DecryptSkipped bool `json:"-"`
}

// Meta exposes the embedded Base to generic repository code.
func (b *Base) Meta() *Base { return b }

// Record is implemented by every persistable model (via Base embedding plus
// a Table method on the concrete type).
type Record interface {
	Meta() *Base
	Table() string
}
