package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contractseal/internal/domain"
	"contractseal/internal/usecase"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var _ usecase.AuditEventRepository = (*AuditEventRepository)(nil)

type AuditEventRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db, clock: time.Now}
}

// Append chains event onto its stream in its own transaction, so an audit
// row is never rolled back together with the operation it describes.
func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if event.StreamID == "" || event.EventType == "" {
		return domain.AuditEvent{}, fmt.Errorf("%w: stream_id and event_type are required", domain.ErrInvalidInput)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.clock()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)

	var out domain.AuditEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextAuditSeq(ctx, tx, event.StreamID)
		if err != nil {
			return err
		}
		chained, payloadJSON, err := usecase.ChainAuditEvent(event, seq, prevHash)
		if err != nil {
			return err
		}
		model := auditEventModelFromDomain(chained, payloadJSON)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = chained
		return nil
	})
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return out, nil
}

func (r *AuditEventRepository) ListByStream(ctx context.Context, streamID string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("stream_id = ?", streamID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		out = append(out, auditEventFromModel(model, model.PayloadJSON))
	}
	return out, nil
}

func auditEventModelFromDomain(event domain.AuditEvent, payloadJSON []byte) AuditEventModel {
	return AuditEventModel{
		ID:            event.ID,
		StreamID:      event.StreamID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		Action:        stringPtrIfNotEmpty(string(event.Action)),
		PayloadJSON:   payloadJSON,
		PayloadHash:   event.PayloadHash,
		ActorType:     string(event.ActorType),
		ActorID:       stringPtrIfNotEmpty(event.ActorID),
		ActorIDHash:   stringPtrIfNotEmpty(event.ActorIDHash),
		Result:        string(event.Result),
		Outcome:       stringPtrIfNotEmpty(string(event.Outcome)),
		ErrorCode:     stringPtrIfNotEmpty(event.ErrorCode),
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC(),
	}
}

func auditEventFromModel(model AuditEventModel, payloadJSON []byte) domain.AuditEvent {
	return domain.AuditEvent{
		ID:            model.ID,
		StreamID:      model.StreamID,
		Seq:           model.Seq,
		EventType:     domain.AuditEventType(model.EventType),
		Action:        domain.AuditAction(stringValue(model.Action)),
		Payload:       payloadJSON,
		PayloadHash:   model.PayloadHash,
		ActorType:     domain.AuditActorType(model.ActorType),
		ActorID:       stringValue(model.ActorID),
		ActorIDHash:   stringValue(model.ActorIDHash),
		Result:        domain.AuditResult(model.Result),
		Outcome:       domain.VerificationOutcome(stringValue(model.Outcome)),
		ErrorCode:     stringValue(model.ErrorCode),
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}
}

func nextAuditSeq(ctx context.Context, tx *gorm.DB, streamID string) (int64, string, error) {
	if streamID == "" {
		return 0, "", errors.New("stream_id is required")
	}
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO contract_audit_seq (stream_id, seq) VALUES (?, 0) ON CONFLICT (stream_id) DO NOTHING",
		streamID,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM contract_audit_seq WHERE stream_id = ? FOR UPDATE",
		streamID,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE contract_audit_seq SET seq = ? WHERE stream_id = ?",
		nextSeq,
		streamID,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := usecase.ZeroAuditHash()
	if currentSeq > 0 {
		var prev AuditEventModel
		if err := tx.WithContext(ctx).
			Where("stream_id = ? AND seq = ?", streamID, currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.EventHash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash for stream %s", streamID)
	}
	return nextSeq, prevHash, nil
}
