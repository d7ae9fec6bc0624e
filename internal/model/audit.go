package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionSubmitRequest   = "SUBMIT_REQUEST"
	ActionApproveStage    = "APPROVE_STAGE"
	ActionRequestRevision = "REQUEST_REVISION"
	ActionResubmitRequest = "RESUBMIT_REQUEST"
	ActionCancelRequest   = "CANCEL_REQUEST"
	ActionResignDocument  = "RESIGN_DOCUMENT"
)

// AuditLog is the append-only history of the approval workflow. Stage rows are reset
// on resubmission; this table keeps what they used to say.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system actions
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(30);index" json:"entity_type"` // request type
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`   // request id
	Details    string     `gorm:"type:jsonb" json:"details"`                 // serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
