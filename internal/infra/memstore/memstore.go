package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"contractseal/internal/domain"
	"contractseal/internal/usecase"
)

var (
	_ usecase.UnitOfWork            = (*Store)(nil)
	_ usecase.AuditEventRepository  = (*Store)(nil)
	_ usecase.AccessTokenRepository = (*Store)(nil)
)

// Store keeps contracts, signature records, artifacts, audit events and
// access tokens in process memory. WithTx holds the write lock for the whole
// callback and restores the previous state when the callback fails, so a
// Reader method must not be called from inside a transaction.
type Store struct {
	mu         sync.RWMutex
	contracts  map[string]domain.Contract
	signatures map[string][]domain.SignatureRecord
	artifacts  map[string][]domain.ContractArtifact

	auditMu sync.Mutex
	audit   map[string][]domain.AuditEvent

	tokenMu sync.Mutex
	tokens  map[string]domain.AccessToken

	clock func() time.Time
}

func New() *Store {
	return NewWithClock(time.Now)
}

func NewWithClock(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		contracts:  make(map[string]domain.Contract),
		signatures: make(map[string][]domain.SignatureRecord),
		artifacts:  make(map[string][]domain.ContractArtifact),
		audit:      make(map[string][]domain.AuditEvent),
		tokens:     make(map[string]domain.AccessToken),
		clock:      clock,
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx usecase.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	if err := fn(txState{s: s}); err != nil {
		s.contracts, s.signatures, s.artifacts = snap.contracts, snap.signatures, snap.artifacts
		return err
	}
	return nil
}

func (s *Store) GetContract(ctx context.Context, contractID string) (*domain.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getContractLocked(contractID)
}

func (s *Store) FindSignatures(ctx context.Context, contractID, hash string) ([]domain.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findSignaturesLocked(contractID, hash), nil
}

func (s *Store) ListSignatures(ctx context.Context, contractID string) ([]domain.SignatureRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listSignaturesLocked(contractID), nil
}

func (s *Store) ListArtifacts(ctx context.Context, contractID string) ([]domain.ContractArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.artifacts[contractID]), nil
}

// Append chains event onto the end of its stream.
func (s *Store) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if event.StreamID == "" || event.EventType == "" {
		return domain.AuditEvent{}, fmt.Errorf("%w: stream_id and event_type are required", domain.ErrInvalidInput)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock().UTC()
	}

	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	stream := s.audit[event.StreamID]
	prevHash := usecase.ZeroAuditHash()
	if n := len(stream); n > 0 {
		prevHash = stream[n-1].EventHash
	}
	chained, _, err := usecase.ChainAuditEvent(event, int64(len(stream))+1, prevHash)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	s.audit[event.StreamID] = append(stream, chained)
	return chained, nil
}

func (s *Store) ListByStream(ctx context.Context, streamID string) ([]domain.AuditEvent, error) {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return slices.Clone(s.audit[streamID]), nil
}

func (s *Store) Create(ctx context.Context, token domain.AccessToken) error {
	if token.TokenHash == "" || token.ContractID == "" {
		return fmt.Errorf("%w: token_hash and contract_id are required", domain.ErrInvalidInput)
	}
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if _, ok := s.tokens[token.TokenHash]; ok {
		return fmt.Errorf("%w: access token already exists", domain.ErrPrecondition)
	}
	s.tokens[token.TokenHash] = token
	return nil
}

func (s *Store) GetByHash(ctx context.Context, tokenHash string) (*domain.AccessToken, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	token, ok := s.tokens[tokenHash]
	if !ok {
		return nil, fmt.Errorf("%w: access token", domain.ErrNotFound)
	}
	return &token, nil
}

type snapshot struct {
	contracts  map[string]domain.Contract
	signatures map[string][]domain.SignatureRecord
	artifacts  map[string][]domain.ContractArtifact
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		contracts:  make(map[string]domain.Contract, len(s.contracts)),
		signatures: make(map[string][]domain.SignatureRecord, len(s.signatures)),
		artifacts:  make(map[string][]domain.ContractArtifact, len(s.artifacts)),
	}
	for id, c := range s.contracts {
		snap.contracts[id] = cloneContract(c)
	}
	for id, recs := range s.signatures {
		snap.signatures[id] = slices.Clone(recs)
	}
	for id, arts := range s.artifacts {
		snap.artifacts[id] = slices.Clone(arts)
	}
	return snap
}

func (s *Store) getContractLocked(contractID string) (*domain.Contract, error) {
	c, ok := s.contracts[contractID]
	if !ok {
		return nil, fmt.Errorf("%w: contract %s", domain.ErrNotFound, contractID)
	}
	out := cloneContract(c)
	return &out, nil
}

func (s *Store) findSignaturesLocked(contractID, hash string) []domain.SignatureRecord {
	var out []domain.SignatureRecord
	for _, rec := range s.listSignaturesLocked(contractID) {
		if rec.Hash == hash {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) listSignaturesLocked(contractID string) []domain.SignatureRecord {
	out := slices.Clone(s.signatures[contractID])
	slices.Reverse(out)
	sortNewestFirst(out)
	return out
}

type txState struct {
	s *Store
}

func (t txState) Contracts() usecase.ContractRepository   { return contractRepo{t.s} }
func (t txState) Signatures() usecase.SignatureRepository { return signatureRepo{t.s} }
func (t txState) Artifacts() usecase.ArtifactRepository   { return artifactRepo{t.s} }

type contractRepo struct{ s *Store }

func (r contractRepo) Get(ctx context.Context, contractID string) (*domain.Contract, error) {
	return r.s.getContractLocked(contractID)
}

// GetForUpdate needs no extra locking: the transaction already holds the
// store's write lock.
func (r contractRepo) GetForUpdate(ctx context.Context, contractID string) (*domain.Contract, error) {
	return r.s.getContractLocked(contractID)
}

func (r contractRepo) Create(ctx context.Context, contract domain.Contract) error {
	if contract.ID == "" {
		return fmt.Errorf("%w: contract id is required", domain.ErrInvalidInput)
	}
	if _, ok := r.s.contracts[contract.ID]; ok {
		return fmt.Errorf("%w: contract %s already exists", domain.ErrPrecondition, contract.ID)
	}
	if contract.Status == "" {
		contract.Status = domain.StatusUnsigned
	}
	contract.Version = 1
	contract.UpdatedAt = r.s.clock().UTC()
	r.s.contracts[contract.ID] = cloneContract(contract)
	return nil
}

func (r contractRepo) Update(ctx context.Context, contract domain.Contract, expectedVersion int64) (domain.Contract, error) {
	current, ok := r.s.contracts[contract.ID]
	if !ok {
		return domain.Contract{}, fmt.Errorf("%w: contract %s", domain.ErrNotFound, contract.ID)
	}
	if current.Version != expectedVersion {
		return domain.Contract{}, fmt.Errorf("%w: contract %s version %d, expected %d", domain.ErrPrecondition, contract.ID, current.Version, expectedVersion)
	}
	contract.Version = expectedVersion + 1
	contract.UpdatedAt = r.s.clock().UTC()
	r.s.contracts[contract.ID] = cloneContract(contract)
	return cloneContract(contract), nil
}

type signatureRepo struct{ s *Store }

func (r signatureRepo) Append(ctx context.Context, record domain.SignatureRecord) (domain.SignatureRecord, error) {
	if record.ContractID == "" || record.Hash == "" || record.HMAC == "" {
		return domain.SignatureRecord{}, fmt.Errorf("%w: contract_id, hash and hmac are required", domain.ErrInvalidInput)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	r.s.signatures[record.ContractID] = append(r.s.signatures[record.ContractID], record)
	return record, nil
}

func (r signatureRepo) FindByHash(ctx context.Context, contractID, hash string) ([]domain.SignatureRecord, error) {
	return r.s.findSignaturesLocked(contractID, hash), nil
}

func (r signatureRepo) ListByContract(ctx context.Context, contractID string) ([]domain.SignatureRecord, error) {
	return r.s.listSignaturesLocked(contractID), nil
}

type artifactRepo struct{ s *Store }

func (r artifactRepo) Append(ctx context.Context, artifact domain.ContractArtifact) (domain.ContractArtifact, error) {
	if artifact.ContractID == "" || artifact.Location == "" {
		return domain.ContractArtifact{}, fmt.Errorf("%w: contract_id and location are required", domain.ErrInvalidInput)
	}
	for _, existing := range r.s.artifacts[artifact.ContractID] {
		if existing.Kind == artifact.Kind && existing.Version == artifact.Version {
			return domain.ContractArtifact{}, fmt.Errorf("%w: %s artifact v%d already recorded", domain.ErrPrecondition, artifact.Kind, artifact.Version)
		}
	}
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = r.s.clock().UTC()
	}
	r.s.artifacts[artifact.ContractID] = append(r.s.artifacts[artifact.ContractID], artifact)
	return artifact, nil
}

func (r artifactRepo) NextVersion(ctx context.Context, contractID string, kind domain.ArtifactKind) (int, error) {
	next := 1
	for _, a := range r.s.artifacts[contractID] {
		if a.Kind == kind && a.Version >= next {
			next = a.Version + 1
		}
	}
	return next, nil
}

func (r artifactRepo) ListByContract(ctx context.Context, contractID string) ([]domain.ContractArtifact, error) {
	return slices.Clone(r.s.artifacts[contractID]), nil
}

func cloneContract(c domain.Contract) domain.Contract {
	c.Parties = slices.Clone(c.Parties)
	c.Fields = maps.Clone(c.Fields)
	return c
}

func sortNewestFirst(records []domain.SignatureRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SignedAt.After(records[j].SignedAt)
	})
}
