package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"contractseal/internal/domain"
)

const accessTokenBytes = 32

// GenerateAccessToken returns 32 random bytes as 64 lowercase hex chars.
func GenerateAccessToken() (string, error) {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func HashAccessToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type AccessTokenIssuer struct {
	Repo  AccessTokenRepository
	Audit *AuditLogger
	Clock Clock
}

func NewAccessTokenIssuer(repo AccessTokenRepository, audit *AuditLogger, clock Clock) *AccessTokenIssuer {
	return &AccessTokenIssuer{Repo: repo, Audit: audit, Clock: clock}
}

// Issue creates a token for contractID. The plaintext is returned once and
// only its hash is stored. A zero ttl issues a token that never expires.
func (i *AccessTokenIssuer) Issue(ctx context.Context, contractID, actorID string, ttl time.Duration) (string, domain.AccessToken, error) {
	if i == nil || i.Repo == nil {
		return "", domain.AccessToken{}, errors.New("access token repository required")
	}
	if strings.TrimSpace(contractID) == "" {
		return "", domain.AccessToken{}, fmt.Errorf("%w: contract_id is required", domain.ErrInvalidInput)
	}
	if ttl < 0 {
		return "", domain.AccessToken{}, fmt.Errorf("%w: ttl must not be negative", domain.ErrInvalidInput)
	}
	plaintext, err := GenerateAccessToken()
	if err != nil {
		return "", domain.AccessToken{}, err
	}
	now := i.now().UTC()
	token := domain.AccessToken{
		TokenHash:  HashAccessToken(plaintext),
		ContractID: contractID,
		CreatedAt:  now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		token.ExpiresAt = &expires
	}
	if err := i.Repo.Create(ctx, token); err != nil {
		return "", domain.AccessToken{}, fmt.Errorf("store access token: %w", err)
	}
	if i.Audit != nil {
		details := map[string]any{"token_hash_prefix": token.TokenHash[:12]}
		if token.ExpiresAt != nil {
			details["expires_at"] = token.ExpiresAt.Format(time.RFC3339)
		}
		if err := i.Audit.RecordWorkflow(ctx, contractID, domain.AuditActionShare, domain.AuditEventAccessTokenIssued, actorID, domain.AuditResultSuccess, "", details); err != nil {
			return "", domain.AccessToken{}, err
		}
	}
	return plaintext, token, nil
}

// Redeem resolves a presented token. Unknown and expired tokens are both
// reported as domain.ErrTokenInvalid.
func (i *AccessTokenIssuer) Redeem(ctx context.Context, plaintext string) (domain.AccessToken, error) {
	if i == nil || i.Repo == nil {
		return domain.AccessToken{}, errors.New("access token repository required")
	}
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return domain.AccessToken{}, domain.ErrTokenInvalid
	}
	token, err := i.Repo.GetByHash(ctx, HashAccessToken(plaintext))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AccessToken{}, domain.ErrTokenInvalid
		}
		return domain.AccessToken{}, err
	}
	if token == nil || token.Expired(i.now()) {
		return domain.AccessToken{}, domain.ErrTokenInvalid
	}
	if i.Audit != nil {
		details := map[string]any{"token_hash_prefix": token.TokenHash[:12]}
		if err := i.Audit.RecordWorkflow(ctx, token.ContractID, domain.AuditActionShare, domain.AuditEventAccessTokenRedeemed, "", domain.AuditResultSuccess, "", details); err != nil {
			return domain.AccessToken{}, err
		}
	}
	return *token, nil
}

func (i *AccessTokenIssuer) now() time.Time {
	if i.Clock != nil {
		return i.Clock()
	}
	return time.Now()
}
