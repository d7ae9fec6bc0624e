package repository

import (
	"context"

	"portal/internal/model"
	"portal/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservationRepository is the interval-indexed ledger of equipment holds.
type ReservationRepository interface {
	Create(ctx context.Context, reservations []model.Reservation) error
	ReplaceForRequest(ctx context.Context, requestID uuid.UUID, reservations []model.Reservation) error
	SyncStatus(ctx context.Context, requestID uuid.UUID, status string) error
	// FindTouching returns active reservations on equipmentID, other than excludeRequestID,
	// whose window intersects or touches w. Callers refine with a workflow.Boundary.
	FindTouching(ctx context.Context, equipmentID uuid.UUID, w workflow.Window, statuses []string, excludeRequestID *uuid.UUID) ([]model.Reservation, error)
}

type reservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, reservations []model.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&reservations).Error
}

func (r *reservationRepository) ReplaceForRequest(ctx context.Context, requestID uuid.UUID, reservations []model.Reservation) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("request_id = ?", requestID).Delete(&model.Reservation{}).Error; err != nil {
		return err
	}
	if len(reservations) == 0 {
		return nil
	}
	return db.Create(&reservations).Error
}

func (r *reservationRepository) SyncStatus(ctx context.Context, requestID uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.Reservation{}).
		Where("request_id = ?", requestID).
		Update("status", status).Error
}

func (r *reservationRepository) FindTouching(ctx context.Context, equipmentID uuid.UUID, w workflow.Window, statuses []string, excludeRequestID *uuid.UUID) ([]model.Reservation, error) {
	query := GetDB(ctx, r.db).
		Where("equipment_id = ?", equipmentID).
		Where("status IN ?", statuses).
		Where("start_time <= ? AND end_time >= ?", w.End, w.Start)
	if excludeRequestID != nil {
		query = query.Where("request_id <> ?", *excludeRequestID)
	}

	var out []model.Reservation
	if err := query.Order("start_time ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
