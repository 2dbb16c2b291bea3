package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contractseal/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contractRepo struct {
	db    *gorm.DB
	clock func() time.Time
}

func (r contractRepo) Get(ctx context.Context, contractID string) (*domain.Contract, error) {
	var model ContractModel
	err := r.db.WithContext(ctx).Where("id = ?", contractID).Take(&model).Error
	if err != nil {
		return nil, mapError(err, "contract "+contractID)
	}
	return contractFromModel(model)
}

func (r contractRepo) GetForUpdate(ctx context.Context, contractID string) (*domain.Contract, error) {
	var model ContractModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", contractID).
		Take(&model).Error
	if err != nil {
		return nil, mapError(err, "contract "+contractID)
	}
	return contractFromModel(model)
}

func (r contractRepo) Create(ctx context.Context, contract domain.Contract) error {
	if contract.ID == "" {
		return fmt.Errorf("%w: contract id is required", domain.ErrInvalidInput)
	}
	if contract.Status == "" {
		contract.Status = domain.StatusUnsigned
	}
	contract.Version = 1
	contract.UpdatedAt = r.clock().UTC()
	model, err := contractModelFromDomain(contract)
	if err != nil {
		return err
	}
	return mapError(r.db.WithContext(ctx).Create(&model).Error, "contract "+contract.ID)
}

// Update is a compare-and-set on version; the row lock taken by
// GetForUpdate makes the predicate redundant for callers that hold it.
func (r contractRepo) Update(ctx context.Context, contract domain.Contract, expectedVersion int64) (domain.Contract, error) {
	contract.Version = expectedVersion + 1
	contract.UpdatedAt = r.clock().UTC()
	model, err := contractModelFromDomain(contract)
	if err != nil {
		return domain.Contract{}, err
	}
	res := r.db.WithContext(ctx).
		Model(&ContractModel{}).
		Where("id = ? AND version = ?", contract.ID, expectedVersion).
		Updates(map[string]any{
			"parties_json":      model.PartiesJSON,
			"fields_json":       model.FieldsJSON,
			"status":            model.Status,
			"original_hash":     model.OriginalHash,
			"original_location": model.OriginalLocation,
			"signed_location":   model.SignedLocation,
			"version":           model.Version,
			"updated_at":        model.UpdatedAt,
		})
	if res.Error != nil {
		return domain.Contract{}, res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&ContractModel{}).Where("id = ?", contract.ID).Count(&count).Error; err != nil {
			return domain.Contract{}, err
		}
		if count == 0 {
			return domain.Contract{}, fmt.Errorf("%w: contract %s", domain.ErrNotFound, contract.ID)
		}
		return domain.Contract{}, fmt.Errorf("%w: contract %s changed since version %d", domain.ErrPrecondition, contract.ID, expectedVersion)
	}
	return contract, nil
}

func contractModelFromDomain(c domain.Contract) (ContractModel, error) {
	parties := c.Parties
	if parties == nil {
		parties = []string{}
	}
	fields := c.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	partiesJSON, err := json.Marshal(parties)
	if err != nil {
		return ContractModel{}, err
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return ContractModel{}, err
	}
	return ContractModel{
		ID:               c.ID,
		PartiesJSON:      partiesJSON,
		FieldsJSON:       fieldsJSON,
		Status:           string(c.Status),
		OriginalHash:     stringPtrIfNotEmpty(c.OriginalHash),
		OriginalLocation: stringPtrIfNotEmpty(c.OriginalLocation),
		SignedLocation:   stringPtrIfNotEmpty(c.SignedLocation),
		Version:          c.Version,
		UpdatedAt:        c.UpdatedAt.UTC(),
	}, nil
}

func contractFromModel(m ContractModel) (*domain.Contract, error) {
	c := &domain.Contract{
		ID:               m.ID,
		Status:           domain.SignatureStatus(m.Status),
		OriginalHash:     stringValue(m.OriginalHash),
		OriginalLocation: stringValue(m.OriginalLocation),
		SignedLocation:   stringValue(m.SignedLocation),
		Version:          m.Version,
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(m.PartiesJSON, &c.Parties); err != nil {
		return nil, errors.Join(fmt.Errorf("decode parties of contract %s", m.ID), err)
	}
	if err := json.Unmarshal(m.FieldsJSON, &c.Fields); err != nil {
		return nil, errors.Join(fmt.Errorf("decode fields of contract %s", m.ID), err)
	}
	return c, nil
}
