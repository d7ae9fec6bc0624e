package repository

import (
	"context"
	"fmt"
	"time"

	"portal/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RequestRepository reads and writes the three request tables. The workflow engine
// goes through the envelope methods and never needs to know which variant it holds.
type RequestRepository interface {
	FindEnvelope(ctx context.Context, requestType string, id uuid.UUID) (*model.Envelope, error)
	FindEnvelopeForUpdate(ctx context.Context, requestType string, id uuid.UUID) (*model.Envelope, error)
	UpdateProgress(ctx context.Context, env *model.Envelope) error
	ApplyEdits(ctx context.Context, requestType string, id uuid.UUID, fields map[string]interface{}) error
	UpdateDocumentRef(ctx context.Context, requestType string, id uuid.UUID, ref string) error

	CreateEquipmentRequest(ctx context.Context, req *model.EquipmentRequest) error
	CreateActivityPlan(ctx context.Context, plan *model.ActivityPlan) error
	CreateBudgetRequest(ctx context.Context, req *model.BudgetRequest) error

	FindEquipmentRequest(ctx context.Context, id uuid.UUID) (*model.EquipmentRequest, error)
	FindActivityPlan(ctx context.Context, id uuid.UUID) (*model.ActivityPlan, error)
	ReplaceEquipmentItems(ctx context.Context, requestID uuid.UUID, items []model.EquipmentRequestItem) error
	SummarizeEquipmentRequests(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.RequestSummary, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func tableFor(requestType string) (string, error) {
	table := model.TableFor(requestType)
	if table == "" {
		return "", fmt.Errorf("unknown request type %q", requestType)
	}
	return table, nil
}

func (r *requestRepository) findEnvelope(ctx context.Context, requestType string, id uuid.UUID, lock bool) (*model.Envelope, error) {
	table, err := tableFor(requestType)
	if err != nil {
		return nil, err
	}

	query := GetDB(ctx, r.db).Table(table)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var header model.RequestHeader
	if err := query.Where("id = ?", id).Take(&header).Error; err != nil {
		return nil, err
	}
	return &model.Envelope{Type: requestType, RequestHeader: header}, nil
}

func (r *requestRepository) FindEnvelope(ctx context.Context, requestType string, id uuid.UUID) (*model.Envelope, error) {
	return r.findEnvelope(ctx, requestType, id, false)
}

func (r *requestRepository) FindEnvelopeForUpdate(ctx context.Context, requestType string, id uuid.UUID) (*model.Envelope, error) {
	return r.findEnvelope(ctx, requestType, id, true)
}

func (r *requestRepository) UpdateProgress(ctx context.Context, env *model.Envelope) error {
	table, err := tableFor(env.Type)
	if err != nil {
		return err
	}
	env.UpdatedAt = time.Now()
	return GetDB(ctx, r.db).Table(table).Where("id = ?", env.ID).Updates(map[string]interface{}{
		"status":        env.Status,
		"current_stage": env.CurrentStage,
		"updated_at":    env.UpdatedAt,
	}).Error
}

func (r *requestRepository) ApplyEdits(ctx context.Context, requestType string, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	table, err := tableFor(requestType)
	if err != nil {
		return err
	}
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_at"] = time.Now()
	return GetDB(ctx, r.db).Table(table).Where("id = ?", id).Updates(updates).Error
}

func (r *requestRepository) UpdateDocumentRef(ctx context.Context, requestType string, id uuid.UUID, ref string) error {
	table, err := tableFor(requestType)
	if err != nil {
		return err
	}
	return GetDB(ctx, r.db).Table(table).Where("id = ?", id).Update("document_ref", ref).Error
}

func (r *requestRepository) CreateEquipmentRequest(ctx context.Context, req *model.EquipmentRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) CreateActivityPlan(ctx context.Context, plan *model.ActivityPlan) error {
	return GetDB(ctx, r.db).Create(plan).Error
}

func (r *requestRepository) CreateBudgetRequest(ctx context.Context, req *model.BudgetRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindEquipmentRequest(ctx context.Context, id uuid.UUID) (*model.EquipmentRequest, error) {
	var req model.EquipmentRequest
	if err := GetDB(ctx, r.db).Preload("Items").First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindActivityPlan(ctx context.Context, id uuid.UUID) (*model.ActivityPlan, error) {
	var plan model.ActivityPlan
	if err := GetDB(ctx, r.db).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *requestRepository) ReplaceEquipmentItems(ctx context.Context, requestID uuid.UUID, items []model.EquipmentRequestItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", requestID).Delete(&model.EquipmentRequestItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].RequestID = requestID
	}
	return db.Create(&items).Error
}

func (r *requestRepository) SummarizeEquipmentRequests(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.RequestSummary, error) {
	out := make(map[uuid.UUID]model.RequestSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		ID            uuid.UUID
		Purpose       string
		RequesterName string
	}
	if err := GetDB(ctx, r.db).Table("equipment_requests AS er").
		Select("er.id AS id, er.purpose AS purpose, COALESCE(u.username, '') AS requester_name").
		Joins("LEFT JOIN users u ON u.id = er.owner_id").
		Where("er.id IN ?", ids).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.ID] = model.RequestSummary{ID: row.ID, Purpose: row.Purpose, RequesterName: row.RequesterName}
	}
	return out, nil
}
