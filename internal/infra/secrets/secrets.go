package secrets

import (
	"context"
	"fmt"
	"strings"

	"contractseal/internal/config"
	"contractseal/internal/domain"
	"contractseal/internal/infra/gcpclient"
	"contractseal/internal/infra/vaultclient"
)

type vaultReader interface {
	ReadField(ctx context.Context, path, field string, version int) (vaultclient.SecretField, error)
}

type gcpAccessor interface {
	AccessSecret(ctx context.Context, secretID string) ([]byte, error)
}

// Provider resolves the HMAC secret from the configured source.
type Provider struct {
	cfg   config.Config
	vault vaultReader
	gcp   gcpAccessor
}

func NewProvider(cfg config.Config) (*Provider, error) {
	p := &Provider{cfg: cfg}
	switch cfg.HashingSecretSource {
	case config.SecretSourceEnv, "":
	case config.SecretSourceVault:
		if cfg.VaultAddr == "" || cfg.VaultToken == "" || cfg.VaultSecretPath == "" {
			return nil, fmt.Errorf("%w: VAULT_ADDR, VAULT_TOKEN and VAULT_SECRET_PATH are required", domain.ErrConfiguration)
		}
		if _, err := vaultclient.DataPath(cfg.VaultSecretPath); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		if cfg.VaultSecretVersion < 0 {
			return nil, fmt.Errorf("%w: VAULT_SECRET_VERSION must not be negative", domain.ErrConfiguration)
		}
		p.vault = vaultclient.New(cfg.VaultAddr, cfg.VaultToken)
	case config.SecretSourceGCP:
		if cfg.GCPSecretID == "" {
			return nil, fmt.Errorf("%w: GCP_SECRET_ID is required", domain.ErrConfiguration)
		}
		client, err := gcpclient.NewFromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		p.gcp = client
	default:
		return nil, fmt.Errorf("%w: unknown secret source %q", domain.ErrConfiguration, cfg.HashingSecretSource)
	}
	return p, nil
}

// HashingSecret never returns an empty secret without an error.
func (p *Provider) HashingSecret(ctx context.Context) (string, error) {
	var (
		secret string
		source = p.cfg.HashingSecretSource
	)
	switch {
	case p.vault != nil:
		field, err := p.vault.ReadField(ctx, p.cfg.VaultSecretPath, p.cfg.VaultSecretKey, p.cfg.VaultSecretVersion)
		if err != nil {
			return "", fmt.Errorf("%w: read hashing secret from vault: %v", domain.ErrConfiguration, err)
		}
		secret = field.Value
	case p.gcp != nil:
		raw, err := p.gcp.AccessSecret(ctx, p.cfg.GCPSecretID)
		if err != nil {
			return "", fmt.Errorf("%w: read hashing secret from gcp: %v", domain.ErrConfiguration, err)
		}
		secret = string(raw)
	default:
		source = config.SecretSourceEnv
		secret = p.cfg.HashingSecret
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", fmt.Errorf("%w: hashing secret from %s is empty", domain.ErrConfiguration, source)
	}
	return secret, nil
}
