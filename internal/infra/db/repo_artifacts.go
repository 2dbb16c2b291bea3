package db

import (
	"context"
	"fmt"
	"time"

	"contractseal/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type artifactRepo struct {
	db    *gorm.DB
	clock func() time.Time
}

func (r artifactRepo) Append(ctx context.Context, artifact domain.ContractArtifact) (domain.ContractArtifact, error) {
	if artifact.ContractID == "" || artifact.Location == "" {
		return domain.ContractArtifact{}, fmt.Errorf("%w: contract_id and location are required", domain.ErrInvalidInput)
	}
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = r.clock().UTC()
	}
	model := ContractArtifactModel{
		ID:         artifact.ID,
		ContractID: artifact.ContractID,
		Kind:       string(artifact.Kind),
		Location:   artifact.Location,
		Hash:       artifact.Hash,
		Size:       artifact.Size,
		Version:    artifact.Version,
		CreatedAt:  artifact.CreatedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.ContractArtifact{}, mapError(err, fmt.Sprintf("%s artifact v%d", artifact.Kind, artifact.Version))
	}
	return artifact, nil
}

func (r artifactRepo) NextVersion(ctx context.Context, contractID string, kind domain.ArtifactKind) (int, error) {
	var current int
	err := r.db.WithContext(ctx).
		Model(&ContractArtifactModel{}).
		Select("COALESCE(MAX(version), 0)").
		Where("contract_id = ? AND kind = ?", contractID, string(kind)).
		Scan(&current).Error
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func (r artifactRepo) ListByContract(ctx context.Context, contractID string) ([]domain.ContractArtifact, error) {
	var models []ContractArtifactModel
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at ASC").
		Order("kind ASC").
		Order("version ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ContractArtifact, 0, len(models))
	for _, m := range models {
		out = append(out, domain.ContractArtifact{
			ID:         m.ID,
			ContractID: m.ContractID,
			Kind:       domain.ArtifactKind(m.Kind),
			Location:   m.Location,
			Hash:       m.Hash,
			Size:       m.Size,
			Version:    m.Version,
			CreatedAt:  m.CreatedAt.UTC(),
		})
	}
	return out, nil
}
