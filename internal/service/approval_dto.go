package service

import (
	"time"

	"portal/internal/model"
	"portal/internal/workflow"

	"github.com/shopspring/decimal"
)

// --- Requests ---

type EquipmentItemRequest struct {
	EquipmentID string `json:"equipment_id" binding:"required"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
}

type SubmitEquipmentRequest struct {
	Purpose   string                 `json:"purpose" binding:"required"`
	StartTime time.Time              `json:"start_time" binding:"required"`
	EndTime   time.Time              `json:"end_time" binding:"required"`
	Items     []EquipmentItemRequest `json:"items" binding:"required,min=1,dive"`
}

type SubmitActivityPlanRequest struct {
	Title       string    `json:"title" binding:"required"`
	Category    string    `json:"category"`
	Priority    string    `json:"priority"`
	Venue       string    `json:"venue"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date" binding:"required"`
	EndDate     time.Time `json:"end_date" binding:"required"`
}

type SubmitBudgetRequest struct {
	Title         string          `json:"title" binding:"required"`
	Category      string          `json:"category"`
	Priority      string          `json:"priority"`
	Justification string          `json:"justification"`
	Amount        decimal.Decimal `json:"amount" swaggertype:"string"`
}

// ResubmitRequest carries the owner's edits. Only fields that belong to the request's
// type may be set; start/end map to the loan window or the activity dates.
type ResubmitRequest struct {
	Title         *string                `json:"title,omitempty"`
	Category      *string                `json:"category,omitempty"`
	Priority      *string                `json:"priority,omitempty"`
	Venue         *string                `json:"venue,omitempty"`
	Description   *string                `json:"description,omitempty"`
	Justification *string                `json:"justification,omitempty"`
	Purpose       *string                `json:"purpose,omitempty"`
	Amount        *decimal.Decimal       `json:"amount,omitempty" swaggertype:"string"`
	Start         *time.Time             `json:"start,omitempty"`
	End           *time.Time             `json:"end,omitempty"`
	Items         []EquipmentItemRequest `json:"items,omitempty"`
}

type RevisionRequestDTO struct {
	Remarks string `json:"remarks" binding:"required"`
}

type BatchApproveRequest struct {
	StageIDs []string `json:"stage_ids" binding:"required,min=1"`
}

// --- Responses ---

type StageResponse struct {
	ID           string  `json:"id"`
	RequestType  string  `json:"request_type"`
	RequestID    string  `json:"request_id"`
	ApproverRole string  `json:"approver_role"`
	StageIndex   int     `json:"stage_index"`
	Status       string  `json:"status"`
	ApproverID   *string `json:"approver_id"`
	Remarks      *string `json:"remarks"`
	ViewedAt     *string `json:"viewed_at"`
	ActedAt      *string `json:"acted_at"`
	CreatedAt    string  `json:"created_at"`
}

type HistoryEntry struct {
	Action    string  `json:"action"`
	UserID    *string `json:"user_id"`
	Details   string  `json:"details"`
	CreatedAt string  `json:"created_at"`
}

type RequestProgressResponse struct {
	RequestType  string          `json:"request_type"`
	RequestID    string          `json:"request_id"`
	Status       string          `json:"status"`
	CurrentStage int             `json:"current_stage"`
	CurrentRole  string          `json:"current_role,omitempty"`
	Chain        []string        `json:"chain"`
	DocumentRef  string          `json:"document_ref,omitempty"`
	Stages       []StageResponse `json:"stages"`
	History      []HistoryEntry  `json:"history,omitempty"`
}

type SubmissionResponse struct {
	RequestType string        `json:"request_type"`
	RequestID   string        `json:"request_id"`
	Status      string        `json:"status"`
	FirstStage  StageResponse `json:"first_stage"`
	// Stock is the advisory availability at submission time (equipment only).
	Stock *StockReport `json:"stock,omitempty"`
}

type BatchFailure struct {
	StageID   string          `json:"stage_id"`
	Code      string          `json:"code"`
	Reason    string          `json:"reason"`
	Conflicts []StockConflict `json:"conflicts,omitempty"`
}

type BatchResult struct {
	Successful []StageResponse `json:"successful"`
	Failed     []BatchFailure  `json:"failed"`
}

// --- Stock report ---

type ConflictingRequest struct {
	RequestID     string `json:"request_id"`
	RequesterName string `json:"requester_name"`
	Status        string `json:"status"`
	Purpose       string `json:"purpose"`
	Quantity      int    `json:"quantity"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

type StockConflict struct {
	EquipmentID         string               `json:"equipment_id"`
	EquipmentName       string               `json:"equipment_name"`
	TotalQuantity       int                  `json:"total_quantity"`
	RequestedQuantity   int                  `json:"requested_quantity"`
	AvailableQuantity   int                  `json:"available_quantity"`
	Shortage            int                  `json:"shortage"`
	ConflictingRequests []ConflictingRequest `json:"conflicting_requests"`
}

type StockItemStatus struct {
	EquipmentID       string `json:"equipment_id"`
	EquipmentName     string `json:"equipment_name"`
	TotalQuantity     int    `json:"total_quantity"`
	RequestedQuantity int    `json:"requested_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
}

type StockReport struct {
	CanApprove bool              `json:"can_approve"`
	Items      []StockItemStatus `json:"items"`
	Conflicts  []StockConflict   `json:"conflicts"`
	Suggestion string            `json:"suggestion,omitempty"`
	Boundary   string            `json:"boundary"`
}

// --- Helpers ---

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func toStageResponse(st model.ApprovalStage) StageResponse {
	resp := StageResponse{
		ID:           st.ID.String(),
		RequestType:  st.RequestType,
		RequestID:    st.RequestID.String(),
		ApproverRole: st.ApproverRole,
		StageIndex:   st.StageIndex,
		Status:       st.Status,
		Remarks:      st.Remarks,
		ViewedAt:     formatTime(st.ViewedAt),
		ActedAt:      formatTime(st.ActedAt),
		CreatedAt:    st.CreatedAt.Format(time.RFC3339),
	}
	if st.ApproverID != nil {
		s := st.ApproverID.String()
		resp.ApproverID = &s
	}
	return resp
}

func toProgressResponse(env model.Envelope, stages []model.ApprovalStage, history []model.AuditLog) RequestProgressResponse {
	resp := RequestProgressResponse{
		RequestType:  env.Type,
		RequestID:    env.ID.String(),
		Status:       env.Status,
		CurrentStage: env.CurrentStage,
		Chain:        workflow.ChainFor(env.Type),
		DocumentRef:  env.DocumentRef,
		Stages:       make([]StageResponse, 0, len(stages)),
	}
	if !env.IsTerminal() && env.Status != model.RequestStatusCancelled {
		if role, ok := workflow.RoleAt(env.Type, env.CurrentStage); ok {
			resp.CurrentRole = role
		}
	}
	for _, st := range stages {
		resp.Stages = append(resp.Stages, toStageResponse(st))
	}
	for _, h := range history {
		entry := HistoryEntry{
			Action:    h.Action,
			Details:   h.Details,
			CreatedAt: h.CreatedAt.Format(time.RFC3339),
		}
		if h.UserID != nil {
			s := h.UserID.String()
			entry.UserID = &s
		}
		resp.History = append(resp.History, entry)
	}
	return resp
}
