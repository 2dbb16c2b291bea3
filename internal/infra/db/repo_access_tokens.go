package db

import (
	"context"
	"fmt"

	"contractseal/internal/domain"
	"contractseal/internal/usecase"

	"gorm.io/gorm"
)

var _ usecase.AccessTokenRepository = (*AccessTokenRepository)(nil)

type AccessTokenRepository struct {
	db *gorm.DB
}

func NewAccessTokenRepository(db *gorm.DB) *AccessTokenRepository {
	return &AccessTokenRepository{db: db}
}

func (r *AccessTokenRepository) Create(ctx context.Context, token domain.AccessToken) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if token.TokenHash == "" || token.ContractID == "" {
		return fmt.Errorf("%w: token_hash and contract_id are required", domain.ErrInvalidInput)
	}
	model := AccessTokenModel{
		TokenHash:  token.TokenHash,
		ContractID: token.ContractID,
		CreatedAt:  token.CreatedAt.UTC(),
		ExpiresAt:  token.ExpiresAt,
	}
	return mapError(r.db.WithContext(ctx).Create(&model).Error, "access token")
}

func (r *AccessTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.AccessToken, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model AccessTokenModel
	if err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&model).Error; err != nil {
		return nil, mapError(err, "access token")
	}
	token := &domain.AccessToken{
		TokenHash:  model.TokenHash,
		ContractID: model.ContractID,
		CreatedAt:  model.CreatedAt.UTC(),
	}
	if model.ExpiresAt != nil {
		expires := model.ExpiresAt.UTC()
		token.ExpiresAt = &expires
	}
	return token, nil
}
