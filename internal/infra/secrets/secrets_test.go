package secrets

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"contractseal/internal/config"
	"contractseal/internal/domain"
	"contractseal/internal/infra/vaultclient"
)

type stubVault struct {
	data    map[string]string
	err     error
	path    string
	version int
}

func (s *stubVault) ReadField(ctx context.Context, path, field string, version int) (vaultclient.SecretField, error) {
	s.path = path
	s.version = version
	if s.err != nil {
		return vaultclient.SecretField{}, s.err
	}
	value, ok := s.data[field]
	if !ok {
		return vaultclient.SecretField{}, fmt.Errorf("no field %q", field)
	}
	return vaultclient.SecretField{Value: value, Version: 1}, nil
}

type stubGCP struct {
	payload []byte
	err     error
}

func (s stubGCP) AccessSecret(ctx context.Context, secretID string) ([]byte, error) {
	return s.payload, s.err
}

func TestEnvSecret(t *testing.T) {
	p, err := NewProvider(config.Config{HashingSecretSource: config.SecretSourceEnv, HashingSecret: " abc \n"})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	secret, err := p.HashingSecret(context.Background())
	if err != nil || secret != "abc" {
		t.Fatalf("got %q, %v", secret, err)
	}
}

func TestEmptySecretIsConfigurationError(t *testing.T) {
	p, err := NewProvider(config.Config{HashingSecretSource: config.SecretSourceEnv})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	if _, err := p.HashingSecret(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestVaultSecret(t *testing.T) {
	vault := &stubVault{data: map[string]string{"hashing_secret": "from-vault"}}
	p := &Provider{
		cfg:   config.Config{HashingSecretSource: config.SecretSourceVault, VaultSecretPath: "secret/data/contractseal", VaultSecretKey: "hashing_secret"},
		vault: vault,
	}
	secret, err := p.HashingSecret(context.Background())
	if err != nil || secret != "from-vault" {
		t.Fatalf("got %q, %v", secret, err)
	}
	if vault.path != "secret/data/contractseal" {
		t.Fatalf("unexpected path %s", vault.path)
	}

	vault.data = map[string]string{"other": "x"}
	if _, err := p.HashingSecret(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("missing key must fail, got %v", err)
	}

	vault.err = vaultclient.ErrVersionDeleted
	p.cfg.VaultSecretVersion = 3
	if _, err := p.HashingSecret(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("deleted version must fail, got %v", err)
	}
	if vault.version != 3 {
		t.Fatalf("pinned version not forwarded, got %d", vault.version)
	}
}

func TestGCPSecretFailure(t *testing.T) {
	p := &Provider{
		cfg: config.Config{HashingSecretSource: config.SecretSourceGCP, GCPSecretID: "s"},
		gcp: stubGCP{err: errors.New("403")},
	}
	if _, err := p.HashingSecret(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	p.gcp = stubGCP{payload: []byte("from-gcp")}
	if secret, err := p.HashingSecret(context.Background()); err != nil || secret != "from-gcp" {
		t.Fatalf("got %q, %v", secret, err)
	}
}

func TestNewProviderValidates(t *testing.T) {
	cases := []config.Config{
		{HashingSecretSource: config.SecretSourceVault},
		{HashingSecretSource: config.SecretSourceVault, VaultAddr: "https://vault", VaultToken: "t", VaultSecretPath: "contractseal"},
		{HashingSecretSource: config.SecretSourceVault, VaultAddr: "https://vault", VaultToken: "t", VaultSecretPath: "secret/contractseal", VaultSecretVersion: -1},
		{HashingSecretSource: config.SecretSourceGCP},
		{HashingSecretSource: config.SecretSourceGCP, GCPSecretID: "s"},
		{HashingSecretSource: "aws"},
	}
	for _, cfg := range cases {
		if _, err := NewProvider(cfg); !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("%+v: expected configuration error, got %v", cfg, err)
		}
	}
}
