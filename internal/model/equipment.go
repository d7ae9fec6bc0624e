package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Equipment is a loanable item with a fixed physical stock.
type Equipment struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code          string         `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	TotalQuantity int            `gorm:"type:int;default:0;not null" json:"total_quantity"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Equipment) TableName() string {
	return "equipment"
}

// EquipmentRequest asks to borrow one or more equipment items for a time window.
type EquipmentRequest struct {
	RequestHeader `gorm:"embedded"`
	Purpose       string                 `gorm:"type:text;not null" json:"purpose"`
	StartTime     time.Time              `gorm:"not null" json:"start_time"`
	EndTime       time.Time              `gorm:"not null" json:"end_time"`
	Items         []EquipmentRequestItem `gorm:"foreignKey:RequestID" json:"items"`
}

// EquipmentRequestItem is one line of an EquipmentRequest
type EquipmentRequestItem struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null;index" json:"request_id"`
	EquipmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"equipment_id"`
	Quantity    int       `gorm:"type:int;not null" json:"quantity"`
}

// Reservation is the ledger row holding stock for one item of an equipment request.
// Status mirrors the owning request so the conflict query never has to join it.
type Reservation struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reservation_request_equipment" json:"request_id"`
	EquipmentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reservation_request_equipment;index:idx_reservation_window,priority:1" json:"equipment_id"`
	RequesterID uuid.UUID `gorm:"type:uuid;not null" json:"requester_id"`
	Quantity    int       `gorm:"type:int;not null" json:"quantity"`
	StartTime   time.Time `gorm:"not null;index:idx_reservation_window,priority:2" json:"start_time"`
	EndTime     time.Time `gorm:"not null;index:idx_reservation_window,priority:3" json:"end_time"`
	Status      string    `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActiveReservationStatuses are the request statuses whose reservations hold stock.
var ActiveReservationStatuses = []string{
	RequestStatusPending,
	RequestStatusApproved,
	RequestStatusCheckedOut,
}

// RequestSummary is the descriptive data a conflict report shows for a reserving request.
type RequestSummary struct {
	ID            uuid.UUID
	Purpose       string
	RequesterName string
}
