package cli

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/crypto"
	"github.com/mnemolabs/mnemo/internal/models"
)

var (
	tenantMode      string
	tenantRedactPII bool
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenant encryption registrations",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <tenant-id>",
	Short: "Register a tenant and provision its key material",
	Long: `Register a tenant and provision its key material.

Modes:
  platform  platform-managed key, auto-decrypt on read (default)
  client    tenant-owned key, reads return ciphertext unless --decrypt
  sealed    write-only: the private key is printed ONCE and not retained
  disabled  plaintext at rest

Examples:
  mnemo tenant create acme
  mnemo tenant create acme --mode sealed
  mnemo tenant create acme --mode platform --redact-pii`,
	Args: cobra.ExactArgs(1),
	RunE: runTenantCreate,
}

var tenantShowCmd = &cobra.Command{
	Use:   "show <tenant-id>",
	Short: "Show a tenant's encryption state",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantShow,
}

func init() {
	tenantCreateCmd.Flags().StringVarP(&tenantMode, "mode", "m", "platform", "encryption mode (platform, client, sealed, disabled)")
	tenantCreateCmd.Flags().BoolVar(&tenantRedactPII, "redact-pii", false, "redact emails and phone numbers before encryption")

	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantShowCmd)
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	t := &models.Tenant{
		Name:      args[0],
		Mode:      models.EncryptionMode(tenantMode),
		RedactPII: tenantRedactPII,
	}
	t.ID = args[0]

	switch t.Mode {
	case models.ModePlatform, models.ModeClient:
		dek, err := crypto.NewDEK()
		if err != nil {
			return fmt.Errorf("generate dek: %w", err)
		}
		wrapped, err := gateway.KMS().Wrap(ctx, dek, cfg.KeyID)
		if err != nil {
			return fmt.Errorf("wrap dek: %w", err)
		}
		t.KeyID = cfg.KeyID
		t.WrappedDEK = base64.StdEncoding.EncodeToString(wrapped)

	case models.ModeSealed:
		pub, priv, err := gateway.KMS().GenerateSealed(ctx)
		if err != nil {
			return fmt.Errorf("generate sealed keypair: %w", err)
		}
		t.SealedPublicKey = base64.StdEncoding.EncodeToString(pub)
		fmt.Println("Sealed private key (shown once, the server does not retain it):")
		fmt.Printf("  %s\n\n", base64.StdEncoding.EncodeToString(priv))

	case models.ModeDisabled:
		// plaintext tenant, nothing to provision

	default:
		return fmt.Errorf("unknown mode %q", tenantMode)
	}

	stored, err := repo.UpsertTenant(ctx, t)
	if err != nil {
		return err
	}
	fmt.Printf("Registered tenant %s (mode %s)\n", stored.ID, stored.Mode)
	return nil
}

func runTenantShow(cmd *cobra.Command, args []string) error {
	t, err := repo.GetTenant(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:         %s\n", t.ID)
	fmt.Printf("Name:       %s\n", t.Name)
	fmt.Printf("Mode:       %s\n", t.Mode)
	fmt.Printf("Redact PII: %v\n", t.RedactPII)
	if t.KeyID != "" {
		fmt.Printf("Key ID:     %s\n", t.KeyID)
	}
	if t.WrappedDEK != "" {
		fmt.Println("DEK:        wrapped, resolvable")
	}
	if t.SealedPublicKey != "" {
		fmt.Println("Sealed:     public key only, rows are write-only here")
	}
	return nil
}
