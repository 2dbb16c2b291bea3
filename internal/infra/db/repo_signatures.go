package db

import (
	"context"
	"fmt"

	"contractseal/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type signatureRepo struct {
	db *gorm.DB
}

func (r signatureRepo) Append(ctx context.Context, record domain.SignatureRecord) (domain.SignatureRecord, error) {
	if record.ContractID == "" || record.Hash == "" || record.HMAC == "" {
		return domain.SignatureRecord{}, fmt.Errorf("%w: contract_id, hash and hmac are required", domain.ErrInvalidInput)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	model := signatureModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.SignatureRecord{}, mapError(err, "signature record "+record.ID)
	}
	return record, nil
}

func (r signatureRepo) FindByHash(ctx context.Context, contractID, hash string) ([]domain.SignatureRecord, error) {
	return r.list(ctx, r.db.Where("contract_id = ? AND hash = ?", contractID, hash))
}

func (r signatureRepo) ListByContract(ctx context.Context, contractID string) ([]domain.SignatureRecord, error) {
	return r.list(ctx, r.db.Where("contract_id = ?", contractID))
}

func (r signatureRepo) list(ctx context.Context, q *gorm.DB) ([]domain.SignatureRecord, error) {
	var models []SignatureRecordModel
	if err := q.WithContext(ctx).Order("signed_at DESC").Order("seq DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SignatureRecord, 0, len(models))
	for _, m := range models {
		out = append(out, signatureFromModel(m))
	}
	return out, nil
}

func signatureModelFromDomain(r domain.SignatureRecord) SignatureRecordModel {
	return SignatureRecordModel{
		ID:          r.ID,
		ContractID:  r.ContractID,
		Hash:        r.Hash,
		HMAC:        r.HMAC,
		QRCode:      r.QRCode,
		SignedAt:    r.SignedAt.UTC(),
		ExpiresAt:   r.ExpiresAt.UTC(),
		SignerID:    stringPtrIfNotEmpty(r.SignerID),
		SignerEmail: stringPtrIfNotEmpty(r.SignerEmail),
		Location:    stringPtrIfNotEmpty(r.Location),
		IPAddress:   stringPtrIfNotEmpty(r.IPAddress),
	}
}

func signatureFromModel(m SignatureRecordModel) domain.SignatureRecord {
	return domain.SignatureRecord{
		ID:          m.ID,
		ContractID:  m.ContractID,
		Hash:        m.Hash,
		HMAC:        m.HMAC,
		QRCode:      m.QRCode,
		SignedAt:    m.SignedAt.UTC(),
		ExpiresAt:   m.ExpiresAt.UTC(),
		SignerID:    stringValue(m.SignerID),
		SignerEmail: stringValue(m.SignerEmail),
		Location:    stringValue(m.Location),
		IPAddress:   stringValue(m.IPAddress),
	}
}
