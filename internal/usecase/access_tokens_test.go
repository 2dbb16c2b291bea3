package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"contractseal/internal/domain"
)

type memoryTokenRepo struct {
	tokens map[string]domain.AccessToken
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{tokens: map[string]domain.AccessToken{}}
}

func (r *memoryTokenRepo) Create(ctx context.Context, token domain.AccessToken) error {
	if _, ok := r.tokens[token.TokenHash]; ok {
		return domain.ErrPrecondition
	}
	r.tokens[token.TokenHash] = token
	return nil
}

func (r *memoryTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*domain.AccessToken, error) {
	token, ok := r.tokens[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &token, nil
}

func TestGenerateAccessToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		token, err := GenerateAccessToken()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		raw, err := hex.DecodeString(token)
		if err != nil || len(raw) != 32 || len(token) != 64 {
			t.Fatalf("expected 32 random bytes as hex, got %q", token)
		}
		if seen[token] {
			t.Fatal("duplicate token")
		}
		seen[token] = true
	}
}

func TestHashAccessToken(t *testing.T) {
	if HashAccessToken("abc") != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatal("unexpected sha-256 of abc")
	}
}

func TestIssueStoresOnlyHash(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	repo := newMemoryTokenRepo()
	auditRepo := &auditChainRepoStub{}
	issuer := NewAccessTokenIssuer(repo, NewAuditLogger(auditRepo, fixedClock(now)), fixedClock(now))
	ctx := context.Background()

	plaintext, token, err := issuer.Issue(ctx, "c1", "landlord-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.TokenHash == plaintext || token.TokenHash != HashAccessToken(plaintext) {
		t.Fatal("persisted token must be the hash of the plaintext")
	}
	if _, err := repo.GetByHash(ctx, plaintext); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("plaintext must not be usable as a stored key")
	}
	if token.ExpiresAt == nil || !token.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("unexpected expiry %v", token.ExpiresAt)
	}
	if len(auditRepo.events) != 1 || auditRepo.events[0].EventType != domain.AuditEventAccessTokenIssued {
		t.Fatalf("expected one access_token_issued event, got %+v", auditRepo.events)
	}

	got, err := issuer.Redeem(ctx, plaintext)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.ContractID != "c1" {
		t.Fatalf("unexpected contract %s", got.ContractID)
	}
}

func TestIssueValidatesInput(t *testing.T) {
	issuer := NewAccessTokenIssuer(newMemoryTokenRepo(), nil, nil)
	if _, _, err := issuer.Issue(context.Background(), "", "", time.Hour); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty contract: %v", err)
	}
	if _, _, err := issuer.Issue(context.Background(), "c1", "", -time.Hour); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("negative ttl: %v", err)
	}
}

func TestRedeemRejectsUnknownAndExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	issuer := NewAccessTokenIssuer(newMemoryTokenRepo(), nil, func() time.Time { return now })
	ctx := context.Background()

	if _, err := issuer.Redeem(ctx, "deadbeef"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("unknown token: %v", err)
	}
	if _, err := issuer.Redeem(ctx, ""); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("empty token: %v", err)
	}

	plaintext, _, err := issuer.Issue(ctx, "c1", "", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := issuer.Redeem(ctx, plaintext); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestIssueWithoutTTLNeverExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	issuer := NewAccessTokenIssuer(newMemoryTokenRepo(), nil, func() time.Time { return now })
	plaintext, token, err := issuer.Issue(context.Background(), "c1", "", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.ExpiresAt != nil {
		t.Fatal("zero ttl must not set an expiry")
	}
	now = now.Add(10 * 365 * 24 * time.Hour)
	if _, err := issuer.Redeem(context.Background(), plaintext); err != nil {
		t.Fatalf("redeem: %v", err)
	}
}
