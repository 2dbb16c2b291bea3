package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contractseal/internal/domain"
)

// AuditLogger appends workflow and verification events to the per-contract
// audit stream. Write failures are always returned to the caller.
type AuditLogger struct {
	Repo  AuditEventRepository
	Clock Clock
}

func NewAuditLogger(repo AuditEventRepository, clock Clock) *AuditLogger {
	return &AuditLogger{
		Repo:  repo,
		Clock: clock,
	}
}

func (l *AuditLogger) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if l == nil || l.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.StreamID == "" || event.EventType == "" || event.Result == "" || event.ActorType == "" {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.ActorID != "" && event.ActorIDHash == "" {
		event.ActorIDHash = hashString(event.ActorID)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)
	stored, err := l.Repo.Append(ctx, event)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("append audit event %s: %w", event.EventType, err)
	}
	return stored, nil
}

// RecordVerificationAttempt persists one attempt. reason is empty for VALID.
func (l *AuditLogger) RecordVerificationAttempt(ctx context.Context, attempt domain.VerificationAttempt, reason string) error {
	payload := map[string]any{
		"contract_id": attempt.ContractID,
		"outcome":     string(attempt.Outcome),
		"timestamp":   attempt.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	result := domain.AuditResultSuccess
	if attempt.Outcome != domain.OutcomeValid {
		result = domain.AuditResultFailure
	}
	_, err := l.Emit(ctx, domain.AuditEvent{
		StreamID:  attempt.ContractID,
		EventType: domain.AuditEventSignatureVerified,
		Action:    domain.AuditActionVerify,
		Payload:   payload,
		ActorType: actorTypeFor(attempt.ActorID),
		ActorID:   attempt.ActorID,
		Result:    result,
		Outcome:   attempt.Outcome,
		ErrorCode: reason,
		CreatedAt: attempt.Timestamp,
	})
	return err
}

// RecordSecurityEvent attributes a failed verification to the acting user.
func (l *AuditLogger) RecordSecurityEvent(ctx context.Context, result domain.VerificationResult, actorID string) error {
	eventType := domain.AuditEventTamperSuspected
	if result.Outcome == domain.OutcomeExpired {
		eventType = domain.AuditEventSignatureExpired
	}
	payload := map[string]any{
		"contract_id": result.ContractID,
		"outcome":     string(result.Outcome),
		"reason":      result.Reason,
	}
	if result.Record != nil {
		payload["signature_id"] = result.Record.ID
		payload["signed_at"] = result.Record.SignedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := l.Emit(ctx, domain.AuditEvent{
		StreamID:  result.ContractID,
		EventType: eventType,
		Action:    domain.AuditActionVerify,
		Payload:   payload,
		ActorType: actorTypeFor(actorID),
		ActorID:   actorID,
		Result:    domain.AuditResultFailure,
		Outcome:   result.Outcome,
		ErrorCode: result.Reason,
		CreatedAt: result.CheckedAt,
	})
	return err
}

// RecordWorkflow logs a GENERATE/SIGN/VERIFY/EDIT/SHARE step.
func (l *AuditLogger) RecordWorkflow(ctx context.Context, contractID string, action domain.AuditAction, eventType domain.AuditEventType, actorID string, result domain.AuditResult, errorCode string, details map[string]any) error {
	payload := map[string]any{
		"contract_id": contractID,
	}
	for k, v := range details {
		payload[k] = v
	}
	_, err := l.Emit(ctx, domain.AuditEvent{
		StreamID:  contractID,
		EventType: eventType,
		Action:    action,
		Payload:   payload,
		ActorType: actorTypeFor(actorID),
		ActorID:   actorID,
		Result:    result,
		ErrorCode: errorCode,
	})
	return err
}

func (l *AuditLogger) Trail(ctx context.Context, contractID string) ([]domain.AuditEvent, error) {
	if l == nil || l.Repo == nil {
		return nil, errors.New("audit repository required")
	}
	return l.Repo.ListByStream(ctx, contractID)
}

func (l *AuditLogger) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

func actorTypeFor(actorID string) domain.AuditActorType {
	if actorID == "" {
		return domain.AuditActorSystem
	}
	return domain.AuditActorUser
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	return sha256Hex([]byte(value))
}
