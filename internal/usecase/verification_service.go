package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"contractseal/internal/domain"
)

const defaultBatchConcurrency = 4

type VerificationService struct {
	Store  Reader
	Engine *HashingEngine
	Audit  *AuditLogger
	Clock  Clock
	Logger *slog.Logger
	// BatchConcurrency bounds VerifyMany; zero means defaultBatchConcurrency.
	BatchConcurrency int
}

type VerifyRequest struct {
	ContractID string
	Content    []byte
	StoredHash string
	StoredHMAC string
	ActorID    string
}

func NewVerificationService(store Reader, engine *HashingEngine, audit *AuditLogger, clock Clock, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		Store:  store,
		Engine: engine,
		Audit:  audit,
		Clock:  clock,
		Logger: logger,
	}
}

// VerifySignature checks content against a stored hash and HMAC and writes
// exactly one verification attempt to the audit log. Integrity failures are
// reported through the result; the error is reserved for store and audit
// failures, and for a missing record (domain.ErrNotFound).
func (s *VerificationService) VerifySignature(ctx context.Context, contractID string, content []byte, storedHash, storedHMAC string) (domain.VerificationResult, error) {
	return s.verify(ctx, VerifyRequest{
		ContractID: contractID,
		Content:    content,
		StoredHash: storedHash,
		StoredHMAC: storedHMAC,
	}, false)
}

// ValidateSignatureWithAudit is VerifySignature attributed to actorID. Any
// outcome other than VALID also produces a security event naming the actor.
func (s *VerificationService) ValidateSignatureWithAudit(ctx context.Context, contractID string, content []byte, storedHash, storedHMAC, actorID string) (domain.VerificationResult, error) {
	return s.verify(ctx, VerifyRequest{
		ContractID: contractID,
		Content:    content,
		StoredHash: storedHash,
		StoredHMAC: storedHMAC,
		ActorID:    actorID,
	}, true)
}

func (s *VerificationService) GetSignatureHistory(ctx context.Context, contractID string) ([]domain.SignatureRecord, error) {
	if contractID == "" {
		return nil, fmt.Errorf("%w: contract_id is required", domain.ErrInvalidInput)
	}
	return s.Store.ListSignatures(ctx, contractID)
}

// VerifyMany runs requests concurrently and returns results in request order.
// The first store or audit failure cancels the remaining work.
func (s *VerificationService) VerifyMany(ctx context.Context, requests []VerifyRequest) ([]domain.VerificationResult, error) {
	results := make([]domain.VerificationResult, len(requests))
	limit := s.BatchConcurrency
	if limit <= 0 {
		limit = defaultBatchConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, req := range requests {
		g.Go(func() error {
			res, err := s.verify(gctx, req, req.ActorID != "")
			results[i] = res
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("verify contract %s: %w", req.ContractID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *VerificationService) verify(ctx context.Context, req VerifyRequest, attributed bool) (domain.VerificationResult, error) {
	if req.ContractID == "" {
		return domain.VerificationResult{}, fmt.Errorf("%w: contract_id is required", domain.ErrInvalidInput)
	}
	now := s.now().UTC()
	result := domain.VerificationResult{
		ContractID: req.ContractID,
		CheckedAt:  now,
	}

	// Stored hashes are lowercase hex; callers may submit either case.
	storedHash := strings.ToLower(strings.TrimSpace(req.StoredHash))
	var lookupErr error
	switch {
	case s.Engine.Hash(req.Content) != storedHash:
		result.Outcome = domain.OutcomeTampered
		result.Reason = domain.ReasonHashMismatch
	default:
		records, err := s.Store.FindSignatures(ctx, req.ContractID, storedHash)
		switch {
		case err != nil:
			result.Outcome = domain.OutcomeError
			result.Reason = domain.ReasonStoreError
			lookupErr = fmt.Errorf("load signature records: %w", err)
		case len(records) == 0:
			result.Outcome = domain.OutcomeError
			result.Reason = domain.ReasonSignatureNotFound
			lookupErr = fmt.Errorf("%w: no signature record for contract %s", domain.ErrNotFound, req.ContractID)
		default:
			record := s.matchRecord(records, req.StoredHMAC)
			switch {
			case record == nil:
				result.Outcome = domain.OutcomeTampered
				result.Reason = domain.ReasonHMACMismatch
			case record.ExpiredAt(now):
				result.Outcome = domain.OutcomeExpired
				result.Reason = domain.ReasonExpired
				result.Record = record
			default:
				result.Outcome = domain.OutcomeValid
				result.Record = record
			}
		}
	}

	attempt := domain.VerificationAttempt{
		ContractID: req.ContractID,
		Timestamp:  now,
		Outcome:    result.Outcome,
		ActorID:    req.ActorID,
	}
	if err := s.Audit.RecordVerificationAttempt(ctx, attempt, result.Reason); err != nil {
		return result, errors.Join(lookupErr, fmt.Errorf("record verification attempt: %w", err))
	}
	if attributed && result.Outcome != domain.OutcomeValid {
		if err := s.Audit.RecordSecurityEvent(ctx, result, req.ActorID); err != nil {
			return result, errors.Join(lookupErr, fmt.Errorf("record security event: %w", err))
		}
	}

	s.logger().Info("signature verified",
		"contract_id", req.ContractID,
		"outcome", string(result.Outcome),
		"reason", result.Reason,
	)
	return result, lookupErr
}

// matchRecord returns the record whose recomputed HMAC equals provided. The
// HMAC binds SignedAt, so each candidate is checked with its own timestamp.
func (s *VerificationService) matchRecord(records []domain.SignatureRecord, provided string) *domain.SignatureRecord {
	for i := range records {
		rec := records[i]
		expected := s.Engine.ComputeHMAC(rec.ContractID, rec.Hash, rec.SignedAt)
		if !s.Engine.EqualHMAC(expected, rec.HMAC) {
			continue
		}
		if s.Engine.EqualHMAC(expected, provided) {
			return &rec
		}
	}
	return nil
}

func (s *VerificationService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *VerificationService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
