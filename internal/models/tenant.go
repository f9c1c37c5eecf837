package models

// TableTenant is the storage table for tenants.
const TableTenant = "tenant"

// EncryptionMode is a tenant's configured trust tier. It governs what
// EncryptionLevel gets stamped on every write under that tenant and whether
// reads may auto-decrypt.
type EncryptionMode string

const (
	// ModePlatform: platform-managed key, server decrypts on read.
	ModePlatform EncryptionMode = "platform"
	// ModeClient: tenant-owned key, server returns ciphertext unless the
	// caller explicitly requests decryption with authorized context.
	ModeClient EncryptionMode = "client"
	// ModeSealed: the server generated the keypair, handed over the private
	// half, and did not retain it. Rows are write-only from the server's
	// point of view.
	ModeSealed EncryptionMode = "sealed"
	// ModeDisabled: tenant stores plaintext.
	ModeDisabled EncryptionMode = "disabled"
)

// Tenant holds a tenant's encryption state: its mode and the wrapped data
// encryption key (or, for sealed tenants, only the public key).
type Tenant struct {
	Base

	Name string         `json:"name"`
	Mode EncryptionMode `json:"mode"`

	// KeyID names the KMS master key that wrapped the DEK.
	KeyID string `json:"key_id,omitempty"`
	// WrappedDEK is the base64 ciphertext of the tenant DEK. Empty for
	// sealed and disabled tenants.
	WrappedDEK string `json:"wrapped_dek,omitempty"`
	// SealedPublicKey is the base64 X25519 public key for sealed tenants.
	SealedPublicKey string `json:"sealed_public_key,omitempty"`

	RedactPII bool `json:"redact_pii,omitempty"`
}

// Table implements Record.
func (Tenant) Table() string { return TableTenant }

// Level returns the EncryptionLevel rows written under this tenant get
// stamped with. A nil tenant means EncryptionNone.
func (t *Tenant) Level() EncryptionLevel {
	if t == nil {
		return EncryptionNone
	}
	switch t.Mode {
	case ModePlatform:
		return EncryptionPlatform
	case ModeClient:
		return EncryptionClient
	case ModeSealed:
		return EncryptionSealed
	default:
		return EncryptionDisabled
	}
}
