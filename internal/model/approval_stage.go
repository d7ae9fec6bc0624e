package model

import (
	"time"

	"github.com/google/uuid"
)

// Stage statuses
const (
	StageStatusPending           = "pending"
	StageStatusApproved          = "approved"
	StageStatusRevisionRequested = "revision_requested"
)

// ApprovalStage is one role's turn in a request's chain. At most one row exists per
// (request_type, request_id, approver_role).
type ApprovalStage struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	RequestType  string     `gorm:"type:varchar(30);not null;uniqueIndex:idx_stage_request_role,priority:1" json:"request_type"`
	RequestID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_stage_request_role,priority:2" json:"request_id"`
	ApproverRole string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_stage_request_role,priority:3;index" json:"approver_role"`
	StageIndex   int        `gorm:"type:int;not null" json:"stage_index"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ApproverID   *uuid.UUID `gorm:"type:uuid" json:"approver_id"`
	Remarks      *string    `gorm:"type:text" json:"remarks"`
	ViewedAt     *time.Time `json:"viewed_at"`
	ActedAt      *time.Time `json:"acted_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
