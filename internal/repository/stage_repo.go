package repository

import (
	"context"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StageRepository interface {
	Create(ctx context.Context, stage *model.ApprovalStage) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalStage, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalStage, error)
	FindByRequestRole(ctx context.Context, requestType string, requestID uuid.UUID, role string) (*model.ApprovalStage, error)
	ListByRequest(ctx context.Context, requestType string, requestID uuid.UUID) ([]model.ApprovalStage, error)
	ListPendingByRole(ctx context.Context, role string, page, limit int) ([]model.ApprovalStage, int64, error)
	Update(ctx context.Context, stage *model.ApprovalStage) error
	DeleteAfterIndex(ctx context.Context, requestType string, requestID uuid.UUID, index int) (int64, error)
	// DeletePending removes the request's open stages so no approver queue keeps them.
	DeletePending(ctx context.Context, requestType string, requestID uuid.UUID) (int64, error)
}

type stageRepository struct {
	db *gorm.DB
}

func NewStageRepository(db *gorm.DB) StageRepository {
	return &stageRepository{db: db}
}

func (r *stageRepository) Create(ctx context.Context, stage *model.ApprovalStage) error {
	return GetDB(ctx, r.db).Create(stage).Error
}

func (r *stageRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ApprovalStage, error) {
	var stage model.ApprovalStage
	if err := GetDB(ctx, r.db).First(&stage, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *stageRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ApprovalStage, error) {
	var stage model.ApprovalStage
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&stage).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *stageRepository) FindByRequestRole(ctx context.Context, requestType string, requestID uuid.UUID, role string) (*model.ApprovalStage, error) {
	var stage model.ApprovalStage
	if err := GetDB(ctx, r.db).
		Where("request_type = ? AND request_id = ? AND approver_role = ?", requestType, requestID, role).
		First(&stage).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

func (r *stageRepository) ListByRequest(ctx context.Context, requestType string, requestID uuid.UUID) ([]model.ApprovalStage, error) {
	var stages []model.ApprovalStage
	if err := GetDB(ctx, r.db).
		Where("request_type = ? AND request_id = ?", requestType, requestID).
		Order("stage_index ASC").Find(&stages).Error; err != nil {
		return nil, err
	}
	return stages, nil
}

func (r *stageRepository) ListPendingByRole(ctx context.Context, role string, page, limit int) ([]model.ApprovalStage, int64, error) {
	var stages []model.ApprovalStage
	var total int64

	db := GetDB(ctx, r.db).Model(&model.ApprovalStage{}).
		Where("approver_role = ? AND status = ?", role, model.StageStatusPending)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at ASC").Offset(offset).Limit(limit).Find(&stages).Error; err != nil {
		return nil, 0, err
	}

	return stages, total, nil
}

func (r *stageRepository) Update(ctx context.Context, stage *model.ApprovalStage) error {
	return GetDB(ctx, r.db).Save(stage).Error
}

func (r *stageRepository) DeleteAfterIndex(ctx context.Context, requestType string, requestID uuid.UUID, index int) (int64, error) {
	res := GetDB(ctx, r.db).
		Where("request_type = ? AND request_id = ? AND stage_index > ?", requestType, requestID, index).
		Delete(&model.ApprovalStage{})
	return res.RowsAffected, res.Error
}

func (r *stageRepository) DeletePending(ctx context.Context, requestType string, requestID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).
		Where("request_type = ? AND request_id = ? AND status = ?", requestType, requestID, model.StageStatusPending).
		Delete(&model.ApprovalStage{})
	return res.RowsAffected, res.Error
}
