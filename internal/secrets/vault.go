package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/rbeauvoir/transfer-backend/internal/config"
)

// MoncashCredentials are the OAuth2 client credentials for the gateway.
type MoncashCredentials struct {
	ClientID     string
	ClientSecret string
}

// LoadMoncash resolves gateway credentials from Vault KV when VAULT_ADDR is
// configured, otherwise from the environment-backed config. Credentials stay
// server-side either way; nothing here is ever shipped to a client.
func LoadMoncash(ctx context.Context, cfg config.Config) (MoncashCredentials, error) {
	if cfg.VaultAddr == "" {
		return MoncashCredentials{
			ClientID:     cfg.MoncashClientID,
			ClientSecret: cfg.MoncashClientSecret,
		}, nil
	}

	vc := vault.DefaultConfig()
	vc.Address = cfg.VaultAddr
	client, err := vault.NewClient(vc)
	if err != nil {
		return MoncashCredentials{}, fmt.Errorf("vault client: %w", err)
	}

	sec, err := client.KVv2(cfg.VaultMount).Get(ctx, cfg.VaultPath)
	if err != nil {
		return MoncashCredentials{}, fmt.Errorf("vault read %s/%s: %w", cfg.VaultMount, cfg.VaultPath, err)
	}

	creds := MoncashCredentials{
		ClientID:     stringField(sec.Data, "client_id"),
		ClientSecret: stringField(sec.Data, "client_secret"),
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return MoncashCredentials{}, fmt.Errorf("vault secret %s/%s missing client_id/client_secret", cfg.VaultMount, cfg.VaultPath)
	}
	return creds, nil
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}
