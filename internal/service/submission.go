package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"portal/internal/metrics"
	"portal/internal/model"
	"portal/internal/workflow"

	"github.com/google/uuid"
)

func (s *approvalService) SubmitEquipment(ctx context.Context, ownerID string, req SubmitEquipmentRequest) (SubmissionResponse, error) {
	owner, err := parseActor(ownerID)
	if err != nil {
		return SubmissionResponse{}, err
	}
	if strings.TrimSpace(req.Purpose) == "" {
		return SubmissionResponse{}, fmt.Errorf("purpose is required: %w", ErrValidation)
	}
	window := workflow.Window{Start: req.StartTime, End: req.EndTime}
	if !window.Valid() {
		return SubmissionResponse{}, fmt.Errorf("end_time must be after start_time: %w", ErrValidation)
	}
	lines, items, err := parseItems(req.Items)
	if err != nil {
		return SubmissionResponse{}, err
	}
	if err := s.requireEquipment(ctx, lines); err != nil {
		return SubmissionResponse{}, err
	}

	header := s.newHeader(owner)
	for i := range items {
		items[i].ID = uuid.New()
		items[i].RequestID = header.ID
	}
	er := &model.EquipmentRequest{
		RequestHeader: header,
		Purpose:       strings.TrimSpace(req.Purpose),
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Items:         items,
	}

	first, err := s.submit(ctx, model.RequestTypeEquipment, header, func(txCtx context.Context) error {
		if err := s.requests.CreateEquipmentRequest(txCtx, er); err != nil {
			return fmt.Errorf("failed to create equipment request: %w", err)
		}
		reservations := reservationsFor(header.ID, owner, header.Status, window, lines)
		if err := s.reservations.Create(txCtx, reservations); err != nil {
			return fmt.Errorf("failed to reserve equipment: %w", err)
		}
		return nil
	})
	if err != nil {
		return SubmissionResponse{}, err
	}

	resp := submissionResponse(model.RequestTypeEquipment, header, first)

	// Advisory only. Submission never fails on stock; the check that binds runs at approval.
	report, err := s.checker.evaluate(ctx, lines, window, &header.ID, false)
	if err != nil {
		s.log.WithError(err).WithField("request_id", header.ID.String()).Warn("advisory stock check failed")
	} else {
		metrics.RecordStockCheck("submit", report.CanApprove)
		resp.Stock = &report
	}
	return resp, nil
}

func (s *approvalService) SubmitActivityPlan(ctx context.Context, ownerID string, req SubmitActivityPlanRequest) (SubmissionResponse, error) {
	owner, err := parseActor(ownerID)
	if err != nil {
		return SubmissionResponse{}, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return SubmissionResponse{}, fmt.Errorf("title is required: %w", ErrValidation)
	}
	if req.EndDate.Before(req.StartDate) {
		return SubmissionResponse{}, fmt.Errorf("end_date must not precede start_date: %w", ErrValidation)
	}

	header := s.newHeader(owner)
	plan := &model.ActivityPlan{
		RequestHeader: header,
		Title:         strings.TrimSpace(req.Title),
		Category:      req.Category,
		Priority:      req.Priority,
		Venue:         req.Venue,
		Description:   req.Description,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
	}

	first, err := s.submit(ctx, model.RequestTypeActivityPlan, header, func(txCtx context.Context) error {
		if err := s.requests.CreateActivityPlan(txCtx, plan); err != nil {
			return fmt.Errorf("failed to create activity plan: %w", err)
		}
		return nil
	})
	if err != nil {
		return SubmissionResponse{}, err
	}
	return submissionResponse(model.RequestTypeActivityPlan, header, first), nil
}

func (s *approvalService) SubmitBudgetRequest(ctx context.Context, ownerID string, req SubmitBudgetRequest) (SubmissionResponse, error) {
	owner, err := parseActor(ownerID)
	if err != nil {
		return SubmissionResponse{}, err
	}
	if strings.TrimSpace(req.Title) == "" {
		return SubmissionResponse{}, fmt.Errorf("title is required: %w", ErrValidation)
	}
	if !req.Amount.IsPositive() {
		return SubmissionResponse{}, fmt.Errorf("amount must be positive: %w", ErrValidation)
	}

	header := s.newHeader(owner)
	br := &model.BudgetRequest{
		RequestHeader: header,
		Title:         strings.TrimSpace(req.Title),
		Category:      req.Category,
		Priority:      req.Priority,
		Justification: req.Justification,
		Amount:        req.Amount,
	}

	first, err := s.submit(ctx, model.RequestTypeBudgetRequest, header, func(txCtx context.Context) error {
		if err := s.requests.CreateBudgetRequest(txCtx, br); err != nil {
			return fmt.Errorf("failed to create budget request: %w", err)
		}
		return nil
	})
	if err != nil {
		return SubmissionResponse{}, err
	}
	return submissionResponse(model.RequestTypeBudgetRequest, header, first), nil
}

// submit persists a new request through persist, opens its first stage and records the
// submission, all in one transaction. The first approver is notified after commit.
func (s *approvalService) submit(ctx context.Context, requestType string, header model.RequestHeader, persist func(txCtx context.Context) error) (model.ApprovalStage, error) {
	first := model.ApprovalStage{
		ID:           uuid.New(),
		RequestType:  requestType,
		RequestID:    header.ID,
		ApproverRole: workflow.FirstRole(requestType),
		StageIndex:   0,
		Status:       model.StageStatusPending,
		CreatedAt:    header.CreatedAt,
		UpdatedAt:    header.CreatedAt,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := persist(txCtx); err != nil {
			return err
		}
		if err := s.stages.Create(txCtx, &first); err != nil {
			return conflictOr(err, first.ApproverRole+" stage")
		}
		return s.writeAudit(txCtx, &header.OwnerID, model.ActionSubmitRequest, requestType, header.ID, map[string]interface{}{
			"first_role": first.ApproverRole,
		})
	})
	if err != nil {
		metrics.RecordDecision(requestType, "submit", ErrorCode(err))
		return model.ApprovalStage{}, err
	}
	metrics.RecordDecision(requestType, "submit", "ok")

	s.notify(ctx, Notification{
		Kind:         NotifySubmitted,
		Recipient:    ToRole(first.ApproverRole),
		RequestType:  requestType,
		RequestID:    header.ID,
		StageID:      first.ID,
		RequestState: header.Status,
	})
	return first, nil
}

func (s *approvalService) newHeader(owner uuid.UUID) model.RequestHeader {
	now := s.now()
	return model.RequestHeader{
		ID:           uuid.New(),
		OwnerID:      owner,
		Status:       model.RequestStatusPending,
		CurrentStage: 0,
		SubmittedAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// requireEquipment fails with ErrNotFound if any line names unknown equipment.
func (s *approvalService) requireEquipment(ctx context.Context, lines []stockLine) error {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.EquipmentID)
	}
	found, err := s.equipment.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load equipment: %w", err)
	}
	known := make(map[uuid.UUID]bool, len(found))
	for _, e := range found {
		known[e.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return fmt.Errorf("equipment %s: %w", id, ErrNotFound)
		}
	}
	return nil
}

func submissionResponse(requestType string, header model.RequestHeader, first model.ApprovalStage) SubmissionResponse {
	return SubmissionResponse{
		RequestType: requestType,
		RequestID:   header.ID.String(),
		Status:      header.Status,
		FirstStage:  toStageResponse(first),
	}
}

// parseItems validates item input and returns the merged stock lines alongside the
// item rows to store.
func parseItems(in []EquipmentItemRequest) ([]stockLine, []model.EquipmentRequestItem, error) {
	if len(in) == 0 {
		return nil, nil, fmt.Errorf("at least one item is required: %w", ErrValidation)
	}
	lines := make([]stockLine, 0, len(in))
	items := make([]model.EquipmentRequestItem, 0, len(in))
	for i, it := range in {
		id, err := uuid.Parse(it.EquipmentID)
		if err != nil {
			return nil, nil, fmt.Errorf("items[%d]: invalid equipment id %q: %w", i, it.EquipmentID, ErrValidation)
		}
		if it.Quantity <= 0 {
			return nil, nil, fmt.Errorf("items[%d]: quantity must be positive: %w", i, ErrValidation)
		}
		lines = append(lines, stockLine{EquipmentID: id, Quantity: it.Quantity})
		items = append(items, model.EquipmentRequestItem{EquipmentID: id, Quantity: it.Quantity})
	}
	return mergeLines(lines), items, nil
}

func reservationsFor(requestID, requesterID uuid.UUID, status string, w workflow.Window, lines []stockLine) []model.Reservation {
	lines = mergeLines(lines)
	out := make([]model.Reservation, 0, len(lines))
	for _, l := range lines {
		out = append(out, model.Reservation{
			ID:          uuid.New(),
			RequestID:   requestID,
			EquipmentID: l.EquipmentID,
			RequesterID: requesterID,
			Quantity:    l.Quantity,
			StartTime:   w.Start,
			EndTime:     w.End,
			Status:      status,
		})
	}
	return out
}

// editsFor turns resubmission edits into column updates for the request's table,
// rejecting fields that do not belong to its type.
func editsFor(requestType string, e ResubmitRequest) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	type field struct {
		name string
		set  bool
	}

	var rejected []field
	switch requestType {
	case model.RequestTypeEquipment:
		rejected = []field{
			{"title", e.Title != nil}, {"category", e.Category != nil}, {"priority", e.Priority != nil},
			{"venue", e.Venue != nil}, {"description", e.Description != nil},
			{"justification", e.Justification != nil}, {"amount", e.Amount != nil},
		}
	case model.RequestTypeActivityPlan:
		rejected = []field{
			{"purpose", e.Purpose != nil}, {"justification", e.Justification != nil},
			{"amount", e.Amount != nil}, {"items", len(e.Items) > 0},
		}
	case model.RequestTypeBudgetRequest:
		rejected = []field{
			{"purpose", e.Purpose != nil}, {"venue", e.Venue != nil}, {"description", e.Description != nil},
			{"start", e.Start != nil}, {"end", e.End != nil}, {"items", len(e.Items) > 0},
		}
	}
	for _, f := range rejected {
		if f.set {
			return nil, fmt.Errorf("%s cannot be edited on a %s request: %w", f.name, requestType, ErrValidation)
		}
	}

	switch requestType {
	case model.RequestTypeEquipment:
		if err := setRequired(fields, "purpose", e.Purpose); err != nil {
			return nil, err
		}
		setTimes(fields, "start_time", "end_time", e.Start, e.End)
	case model.RequestTypeActivityPlan:
		if err := setRequired(fields, "title", e.Title); err != nil {
			return nil, err
		}
		for col, v := range map[string]*string{"category": e.Category, "priority": e.Priority, "venue": e.Venue, "description": e.Description} {
			setOptional(fields, col, v)
		}
		setTimes(fields, "start_date", "end_date", e.Start, e.End)
	case model.RequestTypeBudgetRequest:
		if err := setRequired(fields, "title", e.Title); err != nil {
			return nil, err
		}
		for col, v := range map[string]*string{"category": e.Category, "priority": e.Priority, "justification": e.Justification} {
			setOptional(fields, col, v)
		}
		if e.Amount != nil {
			if !e.Amount.IsPositive() {
				return nil, fmt.Errorf("amount must be positive: %w", ErrValidation)
			}
			fields["amount"] = *e.Amount
		}
	}
	return fields, nil
}

// setOptional records a trimmed edit; blank values are allowed.
func setOptional(fields map[string]interface{}, column string, v *string) {
	if v != nil {
		fields[column] = strings.TrimSpace(*v)
	}
}

func setRequired(fields map[string]interface{}, column string, v *string) error {
	if v != nil && strings.TrimSpace(*v) == "" {
		return fmt.Errorf("%s must not be empty: %w", column, ErrValidation)
	}
	setOptional(fields, column, v)
	return nil
}

func setTimes(fields map[string]interface{}, startCol, endCol string, start, end *time.Time) {
	if start != nil {
		fields[startCol] = *start
	}
	if end != nil {
		fields[endCol] = *end
	}
}
