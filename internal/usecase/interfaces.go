package usecase

import (
	"context"
	"time"

	"contractseal/internal/domain"
)

type Clock func() time.Time

type ContractRepository interface {
	Get(ctx context.Context, contractID string) (*domain.Contract, error)
	// GetForUpdate locks the contract row for the rest of the transaction.
	GetForUpdate(ctx context.Context, contractID string) (*domain.Contract, error)
	Create(ctx context.Context, contract domain.Contract) error
	// Update persists contract only if the stored version still equals
	// expectedVersion. It returns the stored contract with its bumped version,
	// or domain.ErrPrecondition when another writer got there first.
	Update(ctx context.Context, contract domain.Contract, expectedVersion int64) (domain.Contract, error)
}

type SignatureRepository interface {
	Append(ctx context.Context, record domain.SignatureRecord) (domain.SignatureRecord, error)
	FindByHash(ctx context.Context, contractID, hash string) ([]domain.SignatureRecord, error)
	// ListByContract returns records newest first by SignedAt.
	ListByContract(ctx context.Context, contractID string) ([]domain.SignatureRecord, error)
}

type ArtifactRepository interface {
	Append(ctx context.Context, artifact domain.ContractArtifact) (domain.ContractArtifact, error)
	NextVersion(ctx context.Context, contractID string, kind domain.ArtifactKind) (int, error)
	ListByContract(ctx context.Context, contractID string) ([]domain.ContractArtifact, error)
}

// Tx exposes repositories bound to a single open transaction. A Tx is only
// handed out by UnitOfWork.WithTx, so anything that takes one as a parameter
// is guaranteed to commit or roll back together with its caller.
type Tx interface {
	Contracts() ContractRepository
	Signatures() SignatureRepository
	Artifacts() ArtifactRepository
}

// Reader is the non-transactional read side of the store.
type Reader interface {
	GetContract(ctx context.Context, contractID string) (*domain.Contract, error)
	FindSignatures(ctx context.Context, contractID, hash string) ([]domain.SignatureRecord, error)
	ListSignatures(ctx context.Context, contractID string) ([]domain.SignatureRecord, error)
	ListArtifacts(ctx context.Context, contractID string) ([]domain.ContractArtifact, error)
}

type UnitOfWork interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByStream(ctx context.Context, streamID string) ([]domain.AuditEvent, error)
}

type AccessTokenRepository interface {
	Create(ctx context.Context, token domain.AccessToken) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.AccessToken, error)
}

// ArtifactStore persists rendered documents. Locations it returns are opaque
// to callers and only meaningful to the same store.
type ArtifactStore interface {
	Put(ctx context.Context, contractID string, kind domain.ArtifactKind, version int, data []byte) (location string, err error)
	Get(ctx context.Context, contractID, location string) ([]byte, error)
	Remove(ctx context.Context, contractID, location string) error
}

// Renderer turns contract fields into a binary artifact.
type Renderer interface {
	Render(ctx context.Context, contractID string, fields map[string]string) ([]byte, error)
}

// EmbeddedSignature is what a Sealer writes into, and reads back from, a
// signed artifact.
type EmbeddedSignature struct {
	SignerName   string
	SignerEmail  string
	SignerID     string
	Reason       string
	Location     string
	IPAddress    string
	SignedAt     time.Time
	ReferenceID  string
	OriginalHash string
	Seal         string
}

// Sealer embeds signer identity into an artifact and reads it back.
type Sealer interface {
	Embed(ctx context.Context, original []byte, sig EmbeddedSignature) ([]byte, error)
	Extract(ctx context.Context, signed []byte) (*EmbeddedSignature, error)
}

type SigningPolicy interface {
	Evaluate(ctx context.Context, input domain.SigningPolicyInput) (domain.PolicyEvaluation, error)
}
