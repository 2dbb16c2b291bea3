package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contractseal/internal/domain"
	"contractseal/pkg/canonjson"
)

// VerifyContractAuditChain walks the audit stream of one contract and checks
// sequence continuity, payload hashes and the prev-hash links.
func VerifyContractAuditChain(ctx context.Context, repo AuditEventRepository, contractID string) error {
	if repo == nil {
		return errors.New("audit repository required")
	}
	if contractID == "" {
		return fmt.Errorf("%w: contract_id is required", domain.ErrInvalidInput)
	}
	events, err := repo.ListByStream(ctx, contractID)
	if err != nil {
		return err
	}
	return VerifyAuditEvents(contractID, events)
}

func VerifyAuditEvents(streamID string, events []domain.AuditEvent) error {
	expectedSeq := int64(1)
	prevHash := ZeroAuditHash()
	for _, event := range events {
		if event.StreamID != streamID {
			return fmt.Errorf("audit chain stream mismatch at seq %d", event.Seq)
		}
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, event.Seq)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", event.Seq)
		}
		payloadJSON, err := payloadBytes(event.Payload)
		if err != nil {
			return fmt.Errorf("audit chain payload decode failed at seq %d: %w", event.Seq, err)
		}
		if sha256Hex(payloadJSON) != event.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d", event.Seq)
		}
		if event.CreatedAt.IsZero() {
			return fmt.Errorf("audit chain missing created_at at seq %d", event.Seq)
		}
		expectedHash, err := ComputeAuditEventHash(event)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", event.Seq, err)
		}
		if expectedHash != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", event.Seq)
		}
		prevHash = event.EventHash
		expectedSeq++
	}
	return nil
}

// CanonicalAuditPayload returns the stored byte form of an audit payload and
// its SHA-256. The bytes are RFC 8785 canonical JSON.
func CanonicalAuditPayload(payload any) ([]byte, string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	canonical, err := canonjson.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("audit payload: %w", err)
	}
	return canonical, sha256Hex(canonical), nil
}

// ChainAuditEvent fills the chain fields of event given the position it will
// occupy in its stream. Callers must hold whatever lock makes seq unique.
func ChainAuditEvent(event domain.AuditEvent, seq int64, prevHash string) (domain.AuditEvent, []byte, error) {
	payloadJSON, payloadHash, err := CanonicalAuditPayload(event.Payload)
	if err != nil {
		return domain.AuditEvent{}, nil, err
	}
	event.Payload = payloadJSON
	event.PayloadHash = payloadHash
	event.Seq = seq
	event.PrevEventHash = prevHash
	eventHash, err := ComputeAuditEventHash(event)
	if err != nil {
		return domain.AuditEvent{}, nil, err
	}
	event.EventHash = eventHash
	return event, payloadJSON, nil
}

func payloadBytes(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("payload must be canonical json bytes")
	}
}

func ComputeAuditEventHash(event domain.AuditEvent) (string, error) {
	if event.StreamID == "" || event.EventType == "" {
		return "", errors.New("audit event missing stream_id or event_type")
	}
	if event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("audit event missing payload_hash or prev_event_hash")
	}
	payload := chainPayload{
		Version:       domain.AuditChainVersion,
		StreamID:      event.StreamID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		Action:        string(event.Action),
		Result:        string(event.Result),
		Outcome:       string(event.Outcome),
		ActorIDHash:   event.ActorIDHash,
		PayloadHash:   event.PayloadHash,
		PrevEventHash: event.PrevEventHash,
		CreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	canonical, err := canonjson.Marshal(payload)
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

func ZeroAuditHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

type chainPayload struct {
	Version       string `json:"v"`
	StreamID      string `json:"stream_id"`
	Seq           int64  `json:"seq"`
	EventType     string `json:"event_type"`
	Action        string `json:"action"`
	Result        string `json:"result"`
	Outcome       string `json:"outcome"`
	ActorIDHash   string `json:"actor_id_hash"`
	PayloadHash   string `json:"payload_hash"`
	PrevEventHash string `json:"prev_event_hash"`
	CreatedAt     string `json:"created_at"`
}
