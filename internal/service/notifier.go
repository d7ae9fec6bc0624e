package service

import (
	"context"

	"github.com/google/uuid"
)

// Notification kinds
const (
	NotifySubmitted         = "submitted"
	NotifyStageAdvanced     = "stage_advanced"
	NotifyStageApproved     = "stage_approved"
	NotifyRequestApproved   = "request_approved"
	NotifyRevisionRequested = "revision_requested"
	NotifyResubmitted       = "resubmitted"
	NotifyCancelled         = "cancelled"
)

// Recipient selects who receives a notification: everyone holding Role, or one user.
type Recipient struct {
	Role   string     `json:"role,omitempty"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

func ToRole(role string) Recipient {
	return Recipient{Role: role}
}

func ToUser(id uuid.UUID) Recipient {
	return Recipient{UserID: &id}
}

// Notification is the message the engine hands to a Notifier. Formatting and
// transport are the Notifier's business.
type Notification struct {
	Kind         string    `json:"kind"`
	Recipient    Recipient `json:"recipient"`
	RequestType  string    `json:"request_type"`
	RequestID    uuid.UUID `json:"request_id"`
	StageID      uuid.UUID `json:"stage_id,omitempty"`
	ActorRole    string    `json:"actor_role,omitempty"`
	ActorName    string    `json:"actor_name,omitempty"`
	NextRole     string    `json:"next_role,omitempty"`
	Remarks      string    `json:"remarks,omitempty"`
	RequestState string    `json:"request_status"`
}

// Notifier delivers notifications. Errors are logged by the engine and otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Resigner re-embeds approver signatures into a request's stored document and
// returns the new document reference.
type Resigner interface {
	ResignDocument(ctx context.Context, requestType string, requestID uuid.UUID) (string, error)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// NopResigner keeps the current document.
type NopResigner struct{}

func (NopResigner) ResignDocument(context.Context, string, uuid.UUID) (string, error) {
	return "", nil
}
