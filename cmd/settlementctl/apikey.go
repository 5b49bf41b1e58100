package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/mimanitas/settlement/internal/api/middleware"
	"github.com/mimanitas/settlement/internal/config"
	"github.com/mimanitas/settlement/internal/store"
	"github.com/mimanitas/settlement/pkg/models"
)

const apiKeyPrefix = "stl_"

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage operator API keys",
	}
	cmd.AddCommand(apiKeyCreateCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var (
		databaseURL string
		name        string
		scopes      []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		Long: `Create an operator API key. Only a bcrypt hash is stored; the raw key is printed
once and cannot be recovered.

Examples:
  settlementctl apikey create --name ops --scopes admin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireDatabaseURL(databaseURL); err != nil {
				return err
			}
			raw, key, err := newAPIKey(name, scopes)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := store.Connect(ctx, config.DatabaseConfig{URL: databaseURL, MaxOpenConns: 2, MaxIdleConns: 0})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.NewPostgresStore(pool).CreateAPIKey(ctx, key); err != nil {
				return fmt.Errorf("store api key: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", key.ID)
			fmt.Fprintf(out, "name:   %s\n", key.Name)
			fmt.Fprintf(out, "scopes: %s\n", strings.Join(key.Scopes, ","))
			fmt.Fprintf(out, "key:    %s\n", raw)
			return nil
		},
	}
	databaseURLFlag(cmd, &databaseURL)
	cmd.Flags().StringVar(&name, "name", "", "human-readable key name (required)")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{models.ScopeAdmin}, "comma-separated scopes")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// newAPIKey generates a raw key and the record to store for it.
func newAPIKey(name string, scopes []string) (string, *models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("name is required")
	}
	if len(scopes) == 0 {
		return "", nil, fmt.Errorf("at least one scope is required")
	}
	for _, scope := range scopes {
		if !models.KnownScope(scope) {
			return "", nil, fmt.Errorf("unknown scope %q", scope)
		}
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := apiKeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:mw.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
