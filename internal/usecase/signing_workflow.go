package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"contractseal/internal/domain"
)

// SigningWorkflow drives a contract through generate, sign, verify and edit.
// Status transitions and signature records are written in one transaction
// holding the contract row lock; audit entries are written after commit.
type SigningWorkflow struct {
	Store     UnitOfWork
	Artifacts ArtifactStore
	Renderer  Renderer
	Sealer    Sealer
	Engine    *HashingEngine
	Verifier  *VerificationService
	Audit     *AuditLogger
	Policy    SigningPolicy
	Clock     Clock
	Logger    *slog.Logger
	NewID     func() string
}

type GenerateResult struct {
	ArtifactLocation string
	Hash             string
	Version          int
}

type SignResult struct {
	SignedArtifactLocation string
	Signature              domain.SignatureRecord
	ReferenceID            string
}

type VerifyResult struct {
	Verified  bool
	Status    domain.SignatureStatus
	Signature *domain.SignatureRecord
	Integrity domain.VerificationResult
}

// Register records a new UNSIGNED contract with its parties and fields.
func (w *SigningWorkflow) Register(ctx context.Context, contractID string, parties []string, fields map[string]string) (domain.Contract, error) {
	if err := domain.ValidateContractID(contractID); err != nil {
		return domain.Contract{}, err
	}
	if len(parties) == 0 {
		return domain.Contract{}, fmt.Errorf("%w: at least one party is required", domain.ErrInvalidInput)
	}
	var created domain.Contract
	err := w.Store.WithTx(ctx, func(tx Tx) error {
		if err := tx.Contracts().Create(ctx, domain.Contract{
			ID:      contractID,
			Parties: slices.Clone(parties),
			Fields:  maps.Clone(fields),
			Status:  domain.StatusUnsigned,
		}); err != nil {
			return err
		}
		stored, err := tx.Contracts().Get(ctx, contractID)
		if err != nil {
			return err
		}
		created = *stored
		return nil
	})
	if err != nil {
		return domain.Contract{}, err
	}
	return created, nil
}

func (w *SigningWorkflow) GenerateDocument(ctx context.Context, contractID, actorID string) (GenerateResult, error) {
	if contractID == "" {
		return GenerateResult{}, fmt.Errorf("%w: contract_id is required", domain.ErrInvalidInput)
	}
	var (
		result  GenerateResult
		written string
	)
	err := w.Store.WithTx(ctx, func(tx Tx) error {
		contract, err := tx.Contracts().GetForUpdate(ctx, contractID)
		if err != nil {
			return err
		}
		if contract.Status == domain.StatusSigned || contract.Status == domain.StatusVerified {
			return fmt.Errorf("%w: contract %s is %s; edit it before regenerating the document", domain.ErrPrecondition, contractID, contract.Status)
		}
		artifact, err := w.writeOriginal(ctx, tx, contract)
		written = artifact.Location
		if err != nil {
			return err
		}
		contract.OriginalHash = artifact.Hash
		contract.OriginalLocation = artifact.Location
		if err := w.transition(ctx, tx, contract, domain.StatusPendingSignature); err != nil {
			return err
		}
		result = GenerateResult{ArtifactLocation: artifact.Location, Hash: artifact.Hash, Version: artifact.Version}
		return nil
	})
	if err != nil {
		w.discard(ctx, contractID, written)
		return GenerateResult{}, w.auditFailure(ctx, contractID, domain.AuditActionGenerate, domain.AuditEventDocumentGenerated, actorID, err)
	}

	w.logger().Info("contract document generated", "contract_id", contractID, "version", result.Version, "hash_prefix", result.Hash[:12])
	details := map[string]any{
		"location": result.ArtifactLocation,
		"hash":     result.Hash,
		"version":  result.Version,
	}
	if err := w.Audit.RecordWorkflow(ctx, contractID, domain.AuditActionGenerate, domain.AuditEventDocumentGenerated, actorID, domain.AuditResultSuccess, "", details); err != nil {
		return result, err
	}
	return result, nil
}

func (w *SigningWorkflow) Sign(ctx context.Context, contractID string, signer domain.SignerInfo, sctx domain.SigningContext) (SignResult, error) {
	if contractID == "" {
		return SignResult{}, fmt.Errorf("%w: contract_id is required", domain.ErrInvalidInput)
	}
	if signer.UserID == "" {
		return SignResult{}, fmt.Errorf("%w: signer user_id is required", domain.ErrInvalidInput)
	}
	var (
		result  SignResult
		written string
	)
	err := w.Store.WithTx(ctx, func(tx Tx) error {
		contract, err := tx.Contracts().GetForUpdate(ctx, contractID)
		if err != nil {
			return err
		}
		switch contract.Status {
		case domain.StatusPendingSignature:
		case domain.StatusSigned, domain.StatusVerified:
			return fmt.Errorf("%w: contract %s already signed", domain.ErrPrecondition, contractID)
		default:
			return fmt.Errorf("%w: contract %s is %s; generate the document first", domain.ErrPrecondition, contractID, contract.Status)
		}
		if contract.OriginalLocation == "" {
			return fmt.Errorf("%w: contract %s has no original artifact", domain.ErrPrecondition, contractID)
		}
		if err := w.authorize(ctx, contract, signer); err != nil {
			return err
		}

		original, err := w.Artifacts.Get(ctx, contractID, contract.OriginalLocation)
		if err != nil {
			return err
		}
		if w.Engine.Hash(original) != contract.OriginalHash {
			return fmt.Errorf("%w: original artifact of contract %s does not match its recorded hash", domain.ErrPrecondition, contractID)
		}

		embedded := EmbeddedSignature{
			SignerName:   signer.Name,
			SignerEmail:  signer.Email,
			SignerID:     signer.UserID,
			Reason:       signer.Reason,
			Location:     signer.Location,
			IPAddress:    sctx.IPAddress,
			SignedAt:     w.now().UTC().Truncate(time.Millisecond),
			ReferenceID:  w.newID(),
			OriginalHash: contract.OriginalHash,
		}
		embedded.Seal = w.Engine.Seal(sealFields(contractID, embedded))
		signed, err := w.Sealer.Embed(ctx, original, embedded)
		if err != nil {
			return fmt.Errorf("embed signature: %w", err)
		}

		version, err := tx.Artifacts().NextVersion(ctx, contractID, domain.ArtifactSigned)
		if err != nil {
			return err
		}
		location, err := w.Artifacts.Put(ctx, contractID, domain.ArtifactSigned, version, signed)
		if err != nil {
			return err
		}
		written = location

		record, err := w.Engine.GenerateSignature(ctx, tx, contractID, signed, &domain.SignerMetadata{
			SignerID:    signer.UserID,
			SignerEmail: signer.Email,
			Location:    signer.Location,
			IPAddress:   sctx.IPAddress,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Artifacts().Append(ctx, domain.ContractArtifact{
			ContractID: contractID,
			Kind:       domain.ArtifactSigned,
			Location:   location,
			Hash:       record.Hash,
			Size:       int64(len(signed)),
			Version:    version,
		}); err != nil {
			return err
		}
		contract.SignedLocation = location
		if err := w.transition(ctx, tx, contract, domain.StatusSigned); err != nil {
			return err
		}
		result = SignResult{SignedArtifactLocation: location, Signature: record, ReferenceID: embedded.ReferenceID}
		return nil
	})
	if err != nil {
		w.discard(ctx, contractID, written)
		return SignResult{}, w.auditFailure(ctx, contractID, domain.AuditActionSign, domain.AuditEventContractSigned, signer.UserID, err)
	}

	w.logger().Info("contract signed",
		"contract_id", contractID,
		"signature_id", result.Signature.ID,
		"hash_prefix", result.Signature.Hash[:12],
	)
	details := map[string]any{
		"location":     result.SignedArtifactLocation,
		"signature_id": result.Signature.ID,
		"hash":         result.Signature.Hash,
		"reference_id": result.ReferenceID,
		"ip_address":   sctx.IPAddress,
		"user_agent":   sctx.UserAgent,
	}
	if sctx.DeviceInfo != "" {
		details["device_info"] = sctx.DeviceInfo
	}
	if err := w.Audit.RecordWorkflow(ctx, contractID, domain.AuditActionSign, domain.AuditEventContractSigned, signer.UserID, domain.AuditResultSuccess, "", details); err != nil {
		return result, err
	}
	return result, nil
}

// Verify checks the signed artifact's embedded seal and its stored signature
// record. A passing check moves SIGNED to VERIFIED; a failing one leaves the
// status untouched and is reported through VerifyResult, not as an error.
func (w *SigningWorkflow) Verify(ctx context.Context, contractID, actorID string) (VerifyResult, error) {
	contract, err := w.Store.GetContract(ctx, contractID)
	if err != nil {
		return VerifyResult{}, err
	}
	if contract.SignedLocation == "" {
		return VerifyResult{}, fmt.Errorf("%w: contract %s has no signed artifact", domain.ErrNotFound, contractID)
	}
	signed, err := w.Artifacts.Get(ctx, contractID, contract.SignedLocation)
	if err != nil {
		return VerifyResult{}, err
	}
	records, err := w.Store.ListSignatures(ctx, contractID)
	if err != nil {
		return VerifyResult{}, err
	}
	if len(records) == 0 {
		return VerifyResult{}, fmt.Errorf("%w: contract %s has no signature record", domain.ErrNotFound, contractID)
	}
	latest := records[0]

	integrity, err := w.checkEmbedded(ctx, contract, signed, actorID)
	if err != nil {
		return VerifyResult{}, err
	}
	if integrity == nil {
		res, err := w.Verifier.ValidateSignatureWithAudit(ctx, contractID, signed, latest.Hash, latest.HMAC, actorID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return VerifyResult{}, err
		}
		integrity = &res
	}

	out := VerifyResult{Integrity: *integrity, Status: contract.Status}
	if !integrity.Valid() {
		w.logger().Warn("contract verification failed",
			"contract_id", contractID,
			"outcome", string(integrity.Outcome),
			"reason", integrity.Reason,
		)
		details := map[string]any{"outcome": string(integrity.Outcome)}
		if err := w.Audit.RecordWorkflow(ctx, contractID, domain.AuditActionVerify, domain.AuditEventContractVerified, actorID, domain.AuditResultFailure, integrity.Reason, details); err != nil {
			return out, err
		}
		return out, nil
	}

	err = w.Store.WithTx(ctx, func(tx Tx) error {
		locked, err := tx.Contracts().GetForUpdate(ctx, contractID)
		if err != nil {
			return err
		}
		if locked.SignedLocation != contract.SignedLocation {
			return fmt.Errorf("%w: contract %s changed during verification", domain.ErrPrecondition, contractID)
		}
		if locked.Status == domain.StatusVerified {
			out.Status = locked.Status
			return nil
		}
		if err := w.transition(ctx, tx, locked, domain.StatusVerified); err != nil {
			return err
		}
		out.Status = domain.StatusVerified
		return nil
	})
	if err != nil {
		return VerifyResult{}, w.auditFailure(ctx, contractID, domain.AuditActionVerify, domain.AuditEventContractVerified, actorID, err)
	}
	out.Verified = true
	out.Signature = integrity.Record

	details := map[string]any{"outcome": string(integrity.Outcome)}
	if integrity.Record != nil {
		details["signature_id"] = integrity.Record.ID
	}
	if err := w.Audit.RecordWorkflow(ctx, contractID, domain.AuditActionVerify, domain.AuditEventContractVerified, actorID, domain.AuditResultSuccess, "", details); err != nil {
		return out, err
	}
	return out, nil
}

// Edit replaces contract fields. A signed or verified contract goes back to
// PENDING_SIGNATURE with a freshly rendered original; earlier artifacts and
// signature records are kept.
func (w *SigningWorkflow) Edit(ctx context.Context, contractID string, fields map[string]string, actorID string) (domain.Contract, error) {
	if contractID == "" {
		return domain.Contract{}, fmt.Errorf("%w: contract_id is required", domain.ErrInvalidInput)
	}
	var (
		updated  domain.Contract
		previous domain.SignatureStatus
		written  string
	)
	err := w.Store.WithTx(ctx, func(tx Tx) error {
		contract, err := tx.Contracts().GetForUpdate(ctx, contractID)
		if err != nil {
			return err
		}
		previous = contract.Status
		contract.Fields = maps.Clone(fields)
		if contract.Status == domain.StatusUnsigned {
			stored, err := tx.Contracts().Update(ctx, *contract, contract.Version)
			if err != nil {
				return err
			}
			updated = stored
			return nil
		}

		artifact, err := w.writeOriginal(ctx, tx, contract)
		written = artifact.Location
		if err != nil {
			return err
		}
		contract.OriginalHash = artifact.Hash
		contract.OriginalLocation = artifact.Location
		contract.SignedLocation = ""
		if err := w.transition(ctx, tx, contract, domain.StatusPendingSignature); err != nil {
			return err
		}
		updated = *contract
		return nil
	})
	if err != nil {
		w.discard(ctx, contractID, written)
		return domain.Contract{}, w.auditFailure(ctx, contractID, domain.AuditActionEdit, domain.AuditEventContractEdited, actorID, err)
	}

	details := map[string]any{
		"previous_status": string(previous),
		"status":          string(updated.Status),
		"fields":          slices.Sorted(maps.Keys(fields)),
	}
	if updated.OriginalHash != "" {
		details["original_hash"] = updated.OriginalHash
	}
	if err := w.Audit.RecordWorkflow(ctx, contractID, domain.AuditActionEdit, domain.AuditEventContractEdited, actorID, domain.AuditResultSuccess, "", details); err != nil {
		return updated, err
	}
	return updated, nil
}

// DownloadSigned returns the current signed artifact and a file name for it.
func (w *SigningWorkflow) DownloadSigned(ctx context.Context, contractID string) ([]byte, string, error) {
	contract, err := w.Store.GetContract(ctx, contractID)
	if err != nil {
		return nil, "", err
	}
	if contract.SignedLocation == "" {
		return nil, "", fmt.Errorf("%w: contract %s has no signed artifact", domain.ErrNotFound, contractID)
	}
	data, err := w.Artifacts.Get(ctx, contractID, contract.SignedLocation)
	if err != nil {
		return nil, "", err
	}
	return data, "contract-" + contractID + "-signed.pdf", nil
}

func (w *SigningWorkflow) writeOriginal(ctx context.Context, tx Tx, contract *domain.Contract) (domain.ContractArtifact, error) {
	rendered, err := w.Renderer.Render(ctx, contract.ID, contract.Fields)
	if err != nil {
		return domain.ContractArtifact{}, fmt.Errorf("render contract %s: %w", contract.ID, err)
	}
	version, err := tx.Artifacts().NextVersion(ctx, contract.ID, domain.ArtifactOriginal)
	if err != nil {
		return domain.ContractArtifact{}, err
	}
	location, err := w.Artifacts.Put(ctx, contract.ID, domain.ArtifactOriginal, version, rendered)
	if err != nil {
		return domain.ContractArtifact{}, err
	}
	artifact := domain.ContractArtifact{
		ContractID: contract.ID,
		Kind:       domain.ArtifactOriginal,
		Location:   location,
		Hash:       w.Engine.Hash(rendered),
		Size:       int64(len(rendered)),
		Version:    version,
	}
	stored, err := tx.Artifacts().Append(ctx, artifact)
	if err != nil {
		return artifact, err
	}
	return stored, nil
}

func (w *SigningWorkflow) transition(ctx context.Context, tx Tx, contract *domain.Contract, to domain.SignatureStatus) error {
	if !domain.CanTransition(contract.Status, to) {
		return fmt.Errorf("%w: contract %s cannot move from %s to %s", domain.ErrPrecondition, contract.ID, contract.Status, to)
	}
	contract.Status = to
	stored, err := tx.Contracts().Update(ctx, *contract, contract.Version)
	if err != nil {
		return err
	}
	*contract = stored
	return nil
}

func (w *SigningWorkflow) authorize(ctx context.Context, contract *domain.Contract, signer domain.SignerInfo) error {
	if w.Policy == nil {
		if slices.Contains(contract.Parties, signer.UserID) {
			return nil
		}
		return fmt.Errorf("%w: user %s on contract %s", domain.ErrSignerNotParty, signer.UserID, contract.ID)
	}
	eval, err := w.Policy.Evaluate(ctx, domain.SigningPolicyInput{
		ContractID: contract.ID,
		Status:     contract.Status,
		Parties:    contract.Parties,
		Signer:     domain.PolicySigner{UserID: signer.UserID, Email: signer.Email},
		HasOrigin:  contract.OriginalLocation != "",
	})
	if err != nil {
		return fmt.Errorf("evaluate signing policy: %w", err)
	}
	if eval.Result.Allow {
		return nil
	}
	for _, deny := range eval.Result.Deny {
		if deny.Code == domain.DenySignerNotParty {
			return fmt.Errorf("%w: user %s on contract %s", domain.ErrSignerNotParty, signer.UserID, contract.ID)
		}
	}
	code := "policy_denied"
	if len(eval.Result.Deny) > 0 {
		code = eval.Result.Deny[0].Code
	}
	return fmt.Errorf("%w: signing denied by policy (%s)", domain.ErrPrecondition, code)
}

// checkEmbedded returns a non-nil result when the signed artifact's embedded
// signature is missing, forged, or bound to a different original.
func (w *SigningWorkflow) checkEmbedded(ctx context.Context, contract *domain.Contract, signed []byte, actorID string) (*domain.VerificationResult, error) {
	reason := ""
	embedded, err := w.Sealer.Extract(ctx, signed)
	switch {
	case err != nil || embedded == nil:
		reason = domain.ReasonSealInvalid
	case !VerifySeal(w.Engine, contract.ID, *embedded):
		reason = domain.ReasonSealInvalid
	case embedded.OriginalHash != contract.OriginalHash:
		reason = domain.ReasonOriginalMismatch
	}
	if reason == "" {
		return nil, nil
	}
	res := domain.VerificationResult{
		ContractID: contract.ID,
		Outcome:    domain.OutcomeTampered,
		Reason:     reason,
		CheckedAt:  w.now().UTC(),
	}
	attempt := domain.VerificationAttempt{
		ContractID: contract.ID,
		Timestamp:  res.CheckedAt,
		Outcome:    res.Outcome,
		ActorID:    actorID,
	}
	if err := w.Audit.RecordVerificationAttempt(ctx, attempt, reason); err != nil {
		return nil, err
	}
	if err := w.Audit.RecordSecurityEvent(ctx, res, actorID); err != nil {
		return nil, err
	}
	return &res, nil
}

func (w *SigningWorkflow) auditFailure(ctx context.Context, contractID string, action domain.AuditAction, eventType domain.AuditEventType, actorID string, cause error) error {
	if errors.Is(cause, domain.ErrNotFound) || errors.Is(cause, domain.ErrInvalidInput) {
		return cause
	}
	details := map[string]any{"error": cause.Error()}
	if err := w.Audit.RecordWorkflow(ctx, contractID, action, eventType, actorID, domain.AuditResultFailure, errorCode(cause), details); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// discard removes an artifact that was written but never committed.
func (w *SigningWorkflow) discard(ctx context.Context, contractID, location string) {
	if location == "" {
		return
	}
	if err := w.Artifacts.Remove(context.WithoutCancel(ctx), contractID, location); err != nil {
		w.logger().Warn("orphaned artifact left behind", "contract_id", contractID, "location", location, "error", err)
	}
}

func (w *SigningWorkflow) newID() string {
	if w.NewID != nil {
		return w.NewID()
	}
	return uuid.NewString()
}

func (w *SigningWorkflow) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

func (w *SigningWorkflow) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// VerifySeal reports whether sig carries a seal engine produced for contractID.
func VerifySeal(engine *HashingEngine, contractID string, sig EmbeddedSignature) bool {
	return engine.EqualHMAC(engine.Seal(sealFields(contractID, sig)), sig.Seal)
}

func sealFields(contractID string, sig EmbeddedSignature) map[string]string {
	return map[string]string{
		"contract_id":   contractID,
		"signer_name":   sig.SignerName,
		"signer_email":  sig.SignerEmail,
		"signer_id":     sig.SignerID,
		"reason":        sig.Reason,
		"location":      sig.Location,
		"ip_address":    sig.IPAddress,
		"signed_at":     strconv.FormatInt(sig.SignedAt.UnixMilli(), 10),
		"reference_id":  sig.ReferenceID,
		"original_hash": sig.OriginalHash,
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrSignerNotParty):
		return "signer_not_party"
	case errors.Is(err, domain.ErrPrecondition):
		return "precondition_failed"
	case errors.Is(err, domain.ErrStorage):
		return "storage_unavailable"
	case errors.Is(err, domain.ErrTransientIO):
		return "artifact_io"
	default:
		return "internal"
	}
}
