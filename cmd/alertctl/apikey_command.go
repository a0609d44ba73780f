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

	mw "github.com/kiranshivaraju/mindalert/internal/api/middleware"
	"github.com/kiranshivaraju/mindalert/internal/store"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

const keyPrefix = "ma_"

func newAPIKeyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage operator API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCommand(ctx))
	cmd.AddCommand(newAPIKeyListCommand(ctx))
	cmd.AddCommand(newAPIKeyRevokeCommand(ctx))
	return cmd
}

func newAPIKeyCreateCommand(ctx *commandContext) *cobra.Command {
	var name string
	var scopes []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an operator key; the raw key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			raw, key, err := newAPIKey(name, scopes)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st *store.PostgresStore) error {
				if err := st.CreateAPIKey(cmd.Context(), key); err != nil {
					return fmt.Errorf("create api key: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:     %s\n", key.ID)
				fmt.Fprintf(out, "scopes: %s\n", strings.Join(key.Scopes, ","))
				fmt.Fprintf(out, "key:    %s\n", raw)
				fmt.Fprintln(out, "Store this key now; it cannot be shown again.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable key name")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{"admin"}, "Scopes granted to the key")
	return cmd
}

func newAPIKeyListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active operator keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st *store.PostgresStore) error {
				keys, err := st.ListAPIKeys(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Prefix", "Scopes", "Last used"},
					apiKeyRows(keys),
				))
				return nil
			})
		},
	}
}

func newAPIKeyRevokeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an operator key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id: %w", err)
			}
			return ctx.withStore(cmd.Context(), func(st *store.PostgresStore) error {
				if err := st.RevokeAPIKey(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
				return nil
			})
		},
	}
}

// newAPIKey generates a raw key and the record that stores its bcrypt hash.
func newAPIKey(name string, scopes []string) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := keyPrefix + hex.EncodeToString(buf)

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

func apiKeyRows(keys []*models.APIKey) [][]string {
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		rows = append(rows, []string{k.ID.String(), k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed})
	}
	return rows
}
