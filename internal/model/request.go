package model

import (
	"time"

	"github.com/google/uuid"
)

// Request types. Each maps to its own table and approval chain.
const (
	RequestTypeEquipment     = "equipment"
	RequestTypeActivityPlan  = "activity_plan"
	RequestTypeBudgetRequest = "budget_request"
)

// Request lifecycle statuses
const (
	RequestStatusPending       = "pending"
	RequestStatusUnderRevision = "under_revision"
	RequestStatusApproved      = "approved"
	RequestStatusCompleted     = "completed"
	RequestStatusCancelled     = "cancelled"
	RequestStatusDenied        = "denied"

	// Equipment only
	RequestStatusCheckedOut = "checked_out"
	RequestStatusReturned   = "returned"
	RequestStatusOverdue    = "overdue"
)

// RequestHeader is the part every request variant shares. The workflow engine only
// ever reads and writes these columns.
type RequestHeader struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CurrentStage int        `gorm:"type:int;not null;default:0" json:"current_stage"` // index into the type's chain
	DocumentRef  string     `gorm:"type:varchar(255)" json:"document_ref"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsTerminal reports whether no further approval stage can follow.
func (h RequestHeader) IsTerminal() bool {
	return h.Status == RequestStatusApproved || h.Status == RequestStatusCompleted
}

// Envelope identifies a request by (type, id) together with its header.
type Envelope struct {
	Type string
	RequestHeader
}

// TableFor returns the table holding requests of the given type, or "" if unknown.
func TableFor(requestType string) string {
	switch requestType {
	case RequestTypeEquipment:
		return "equipment_requests"
	case RequestTypeActivityPlan:
		return "activity_plans"
	case RequestTypeBudgetRequest:
		return "budget_requests"
	default:
		return ""
	}
}
