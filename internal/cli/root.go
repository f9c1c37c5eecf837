// Package cli provides the command-line interface for mnemo.
package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemolabs/mnemo/internal/config"
	"github.com/mnemolabs/mnemo/internal/crypto"
	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/internal/models"
	"github.com/mnemolabs/mnemo/internal/service"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	flagTenant string
	flagOwner  string

	// Wired in PersistentPreRunE
	cfg      config.Config
	logClose func() error
	dbClient *db.Client
	gateway  *crypto.Gateway
	repo     *db.Repo
	memory   *service.Memory
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Multi-tenant memory layer for conversational agents",
	Long: `Mnemo stores conversation history, compacts it into addressable
moments, and assembles budgeted context windows for agents.

Sensitive fields are encrypted per tenant before they reach storage;
sealed tenants are write-only from the server's point of view.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		logClose = cleanup

		ctx := context.Background()
		dbClient, err = db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}

		kms, err := buildKMS(cfg)
		if err != nil {
			return err
		}
		gateway, err = crypto.NewGateway(kms, cfg.DEKCacheTTL, logger)
		if err != nil {
			return fmt.Errorf("init encryption gateway: %w", err)
		}

		repo = db.NewRepo(dbClient, gateway, logger)

		summarizer, err := llm.NewSummarizer(cfg)
		if err != nil {
			return fmt.Errorf("init summarizer: %w", err)
		}
		if summarizer != nil {
			memory = service.New(repo, summarizer, logger)
		} else {
			memory = service.New(repo, nil, logger)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if gateway != nil {
			gateway.Close()
		}
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logClose != nil {
			_ = logClose()
		}
	},
}

// buildKMS wires the master key. Without one, encrypted tenants fail
// closed rather than fall back to plaintext.
func buildKMS(cfg config.Config) (crypto.KMS, error) {
	if cfg.MasterKey == "" {
		return crypto.UnavailableKMS{}, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	kms, err := crypto.NewLocalKMS(raw)
	if err != nil {
		return nil, fmt.Errorf("init kms: %w", err)
	}
	return kms, nil
}

// readOpts builds the read policy from the global flags.
func readOpts(ctx context.Context, decrypt bool) (db.ReadOptions, error) {
	opts := db.ReadOptions{Decrypt: decrypt}
	if flagTenant != "" {
		tenant, err := repo.GetTenant(ctx, flagTenant)
		if err != nil {
			return opts, fmt.Errorf("resolve tenant %s: %w", flagTenant, err)
		}
		opts.Tenant = tenant
	}
	return opts, nil
}

func ownerPtr() *string {
	if flagOwner == "" {
		return nil
	}
	return &flagOwner
}

func tenantPtr() *string {
	if flagTenant == "" {
		return nil
	}
	return &flagTenant
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "", "tenant scope for reads and writes")
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", "", "owner (user) the operation acts for")

	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(momentCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(importCmd)
}

// levelBadge marks rows whose content is still ciphertext.
func levelBadge(base models.Base) string {
	if base.DecryptSkipped {
		return fmt.Sprintf(" [%s]", base.EncryptionLevel)
	}
	return ""
}
