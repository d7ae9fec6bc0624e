package repository

import (
	"context"
	"sort"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EquipmentRepository interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Equipment, error)
	// LockForUpdate serializes stock decisions on the given equipment until the
	// surrounding transaction ends.
	LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]model.Equipment, error)
}

type equipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepository(db *gorm.DB) EquipmentRepository {
	return &equipmentRepository{db: db}
}

func (r *equipmentRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Equipment, error) {
	var items []model.Equipment
	if len(ids) == 0 {
		return items, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *equipmentRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]model.Equipment, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	db := GetDB(ctx, r.db)

	// Advisory lock per equipment id, taken in a fixed order so two approvals sharing
	// equipment cannot deadlock. It holds even for rows a concurrent tx is inserting.
	for _, id := range sorted {
		if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "equipment:"+id.String()).Error; err != nil {
			return nil, err
		}
	}

	var items []model.Equipment
	if len(sorted) == 0 {
		return items, nil
	}
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", sorted).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
