package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"portal/internal/metrics"
	"portal/internal/model"
	"portal/internal/repository"
	"portal/internal/workflow"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- Interface ---

type ApprovalService interface {
	SubmitEquipment(ctx context.Context, ownerID string, req SubmitEquipmentRequest) (SubmissionResponse, error)
	SubmitActivityPlan(ctx context.Context, ownerID string, req SubmitActivityPlanRequest) (SubmissionResponse, error)
	SubmitBudgetRequest(ctx context.Context, ownerID string, req SubmitBudgetRequest) (SubmissionResponse, error)

	Approve(ctx context.Context, stageID, actingRole, actingUserID string) (StageResponse, error)
	RequestRevision(ctx context.Context, stageID, actingRole, actingUserID, remarks string) (StageResponse, error)
	Resubmit(ctx context.Context, requestType, requestID, actingUserID string, edits ResubmitRequest) (RequestProgressResponse, error)
	Cancel(ctx context.Context, requestType, requestID, actingUserID string) (RequestProgressResponse, error)
	MarkViewed(ctx context.Context, stageID, actingRole string) (StageResponse, error)
	BatchApprove(ctx context.Context, stageIDs []string, actingRole, actingUserID string) (BatchResult, error)

	CheckStock(ctx context.Context, equipmentRequestID string) (StockReport, error)
	ListPendingStages(ctx context.Context, role string, page, limit int) ([]StageResponse, int64, error)
	GetRequestProgress(ctx context.Context, requestType, requestID string) (RequestProgressResponse, error)
}

// Dependencies wires the approval service. Notifier, Resigner, Logger and Now are optional.
type Dependencies struct {
	Stages       repository.StageRepository
	Requests     repository.RequestRepository
	Equipment    repository.EquipmentRepository
	Reservations repository.ReservationRepository
	Audit        repository.AuditRepository
	Users        repository.UserRepository
	TxManager    repository.TransactionManager

	Notifier Notifier
	Resigner Resigner
	Logger   logrus.FieldLogger
	Boundary workflow.Boundary
	Now      func() time.Time
}

type approvalService struct {
	stages       repository.StageRepository
	requests     repository.RequestRepository
	equipment    repository.EquipmentRepository
	reservations repository.ReservationRepository
	audit        repository.AuditRepository
	users        repository.UserRepository
	txManager    repository.TransactionManager
	checker      *conflictChecker

	notifier Notifier
	resigner Resigner
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewApprovalService(deps Dependencies) ApprovalService {
	s := &approvalService{
		stages:       deps.Stages,
		requests:     deps.Requests,
		equipment:    deps.Equipment,
		reservations: deps.Reservations,
		audit:        deps.Audit,
		users:        deps.Users,
		txManager:    deps.TxManager,
		notifier:     deps.Notifier,
		resigner:     deps.Resigner,
		log:          deps.Logger,
		now:          deps.Now,
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.resigner == nil {
		s.resigner = NopResigner{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	boundary := deps.Boundary
	if boundary == "" {
		boundary = workflow.BoundaryInclusive
	}
	s.checker = &conflictChecker{
		equipment:    deps.Equipment,
		reservations: deps.Reservations,
		requests:     deps.Requests,
		boundary:     boundary,
	}
	return s
}

// stageOutcome is what one successful approval wrote. Notifications are derived
// from it once the transaction has committed.
type stageOutcome struct {
	stage      model.ApprovalStage
	envelope   model.Envelope
	next       *model.ApprovalStage
	final      bool
	approverID uuid.UUID
}

// --- Approve ---

func (s *approvalService) Approve(ctx context.Context, stageID, actingRole, actingUserID string) (StageResponse, error) {
	id, err := parseID(stageID, "stage id")
	if err != nil {
		return StageResponse{}, err
	}
	approverID, err := parseActor(actingUserID)
	if err != nil {
		return StageResponse{}, err
	}

	var outcome *stageOutcome
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		o, err := s.approveStage(txCtx, id, actingRole, approverID)
		outcome = o
		return err
	})
	if err != nil {
		metrics.RecordDecision("", "approve", ErrorCode(err))
		return StageResponse{}, err
	}
	metrics.RecordDecision(outcome.envelope.Type, "approve", "ok")

	s.afterApproval(ctx, outcome)
	return toStageResponse(outcome.stage), nil
}

// approveStage applies one approval inside the caller's transaction. Every check runs
// before the first write, so an error leaves the stage and request as they were.
func (s *approvalService) approveStage(ctx context.Context, stageID uuid.UUID, role string, approverID uuid.UUID) (*stageOutcome, error) {
	stage, env, err := s.lockActionable(ctx, stageID, role)
	if err != nil {
		return nil, err
	}

	if env.Type == model.RequestTypeEquipment {
		if err := s.admitEquipment(ctx, env); err != nil {
			return nil, err
		}
	}

	now := s.now()
	stage.Status = model.StageStatusApproved
	stage.ApproverID = &approverID
	stage.ActedAt = &now
	stage.UpdatedAt = now
	if err := s.stages.Update(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to update approval stage: %w", err)
	}

	outcome := &stageOutcome{approverID: approverID}
	if workflow.IsLast(env.Type, stage.ApproverRole) {
		env.Status = model.RequestStatusApproved
		outcome.final = true
	} else {
		nextRole, ok := workflow.NextRole(env.Type, stage.ApproverRole)
		if !ok {
			return nil, fmt.Errorf("%s is not in the %s chain: %w", stage.ApproverRole, env.Type, ErrInvalidState)
		}
		next, err := s.ensureStage(ctx, env, nextRole, stage.StageIndex+1)
		if err != nil {
			return nil, err
		}
		env.CurrentStage = next.StageIndex
		outcome.next = next
	}

	if err := s.requests.UpdateProgress(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	if env.Type == model.RequestTypeEquipment {
		if err := s.reservations.SyncStatus(ctx, env.ID, env.Status); err != nil {
			return nil, fmt.Errorf("failed to update reservations: %w", err)
		}
	}

	details := map[string]interface{}{
		"stage_id": stage.ID.String(),
		"role":     stage.ApproverRole,
		"final":    outcome.final,
	}
	if outcome.next != nil {
		details["next_role"] = outcome.next.ApproverRole
	}
	if err := s.writeAudit(ctx, &approverID, model.ActionApproveStage, env.Type, env.ID, details); err != nil {
		return nil, err
	}

	outcome.stage = *stage
	outcome.envelope = *env
	return outcome, nil
}

// lockActionable locks the request, then re-reads the stage under that lock and checks
// that role may act on it now. Requests are always locked before stages.
func (s *approvalService) lockActionable(ctx context.Context, stageID uuid.UUID, role string) (*model.ApprovalStage, *model.Envelope, error) {
	peek, err := s.stages.FindByID(ctx, stageID)
	if err != nil {
		return nil, nil, notFoundOr(err, "approval stage")
	}

	env, err := s.requests.FindEnvelopeForUpdate(ctx, peek.RequestType, peek.RequestID)
	if err != nil {
		return nil, nil, notFoundOr(err, "request")
	}

	stage, err := s.stages.FindByIDForUpdate(ctx, stageID)
	if err != nil {
		return nil, nil, notFoundOr(err, "approval stage")
	}

	if stage.ApproverRole != role {
		return nil, nil, fmt.Errorf("stage belongs to %s, caller acts as %s: %w", stage.ApproverRole, role, ErrUnauthorized)
	}
	if stage.Status != model.StageStatusPending {
		return nil, nil, fmt.Errorf("stage is already %s: %w", stage.Status, ErrInvalidState)
	}
	if env.Status != model.RequestStatusPending {
		return nil, nil, fmt.Errorf("request is %s: %w", env.Status, ErrInvalidState)
	}
	if env.CurrentStage != stage.StageIndex {
		return nil, nil, fmt.Errorf("request is at stage %d, not %d: %w", env.CurrentStage, stage.StageIndex, ErrInvalidState)
	}
	return stage, env, nil
}

func (s *approvalService) admitEquipment(ctx context.Context, env *model.Envelope) error {
	req, err := s.requests.FindEquipmentRequest(ctx, env.ID)
	if err != nil {
		return notFoundOr(err, "equipment request")
	}

	window := workflow.Window{Start: req.StartTime, End: req.EndTime}
	report, err := s.checker.evaluate(ctx, linesFromItems(req.Items), window, &env.ID, true)
	if err != nil {
		return err
	}
	metrics.RecordStockCheck("approve", report.CanApprove)
	if !report.CanApprove {
		return &ResourceConflictError{Report: report}
	}
	return nil
}

// ensureStage returns the pending stage for role, creating it on first arrival.
func (s *approvalService) ensureStage(ctx context.Context, env *model.Envelope, role string, index int) (*model.ApprovalStage, error) {
	existing, err := s.stages.FindByRequestRole(ctx, env.Type, env.ID, role)
	if err == nil {
		if existing.Status != model.StageStatusPending {
			resetStage(existing, s.now())
			if err := s.stages.Update(ctx, existing); err != nil {
				return nil, fmt.Errorf("failed to reset approval stage: %w", err)
			}
		}
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up %s stage: %w", role, err)
	}

	now := s.now()
	stage := &model.ApprovalStage{
		ID:           uuid.New(),
		RequestType:  env.Type,
		RequestID:    env.ID,
		ApproverRole: role,
		StageIndex:   index,
		Status:       model.StageStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.stages.Create(ctx, stage); err != nil {
		return nil, conflictOr(err, role+" stage")
	}
	return stage, nil
}

func resetStage(stage *model.ApprovalStage, now time.Time) {
	stage.Status = model.StageStatusPending
	stage.ApproverID = nil
	stage.Remarks = nil
	stage.ActedAt = nil
	stage.UpdatedAt = now
}

func (s *approvalService) afterApproval(ctx context.Context, o *stageOutcome) {
	env := o.envelope
	actorName := s.displayName(ctx, o.approverID)

	if o.next != nil {
		s.notify(ctx, Notification{
			Kind:         NotifyStageAdvanced,
			Recipient:    ToRole(o.next.ApproverRole),
			RequestType:  env.Type,
			RequestID:    env.ID,
			StageID:      o.next.ID,
			ActorRole:    o.stage.ApproverRole,
			ActorName:    actorName,
			RequestState: env.Status,
		})
	}

	ownerNote := Notification{
		Kind:         NotifyStageApproved,
		Recipient:    ToUser(env.OwnerID),
		RequestType:  env.Type,
		RequestID:    env.ID,
		StageID:      o.stage.ID,
		ActorRole:    o.stage.ApproverRole,
		ActorName:    actorName,
		RequestState: env.Status,
	}
	if o.next != nil {
		ownerNote.NextRole = o.next.ApproverRole
	}
	s.notify(ctx, ownerNote)

	if !o.final {
		return
	}
	s.notify(ctx, Notification{
		Kind:         NotifyRequestApproved,
		Recipient:    ToUser(env.OwnerID),
		RequestType:  env.Type,
		RequestID:    env.ID,
		ActorRole:    o.stage.ApproverRole,
		ActorName:    actorName,
		RequestState: env.Status,
	})
	if env.Type != model.RequestTypeEquipment {
		s.resign(ctx, env)
	}
}

// --- Revision ---

func (s *approvalService) RequestRevision(ctx context.Context, stageID, actingRole, actingUserID, remarks string) (StageResponse, error) {
	id, err := parseID(stageID, "stage id")
	if err != nil {
		return StageResponse{}, err
	}
	approverID, err := parseActor(actingUserID)
	if err != nil {
		return StageResponse{}, err
	}
	remarks = strings.TrimSpace(remarks)
	if remarks == "" {
		return StageResponse{}, fmt.Errorf("remarks are required: %w", ErrValidation)
	}

	var stage model.ApprovalStage
	var env model.Envelope
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		st, e, err := s.lockActionable(txCtx, id, actingRole)
		if err != nil {
			return err
		}

		now := s.now()
		st.Status = model.StageStatusRevisionRequested
		st.Remarks = &remarks
		st.ApproverID = &approverID
		st.ActedAt = &now
		st.UpdatedAt = now
		if err := s.stages.Update(txCtx, st); err != nil {
			return fmt.Errorf("failed to update approval stage: %w", err)
		}

		e.Status = model.RequestStatusUnderRevision
		if err := s.requests.UpdateProgress(txCtx, e); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		if e.Type == model.RequestTypeEquipment {
			if err := s.reservations.SyncStatus(txCtx, e.ID, e.Status); err != nil {
				return fmt.Errorf("failed to update reservations: %w", err)
			}
		}

		if err := s.writeAudit(txCtx, &approverID, model.ActionRequestRevision, e.Type, e.ID, map[string]interface{}{
			"stage_id": st.ID.String(),
			"role":     st.ApproverRole,
			"remarks":  remarks,
		}); err != nil {
			return err
		}

		stage, env = *st, *e
		return nil
	})
	if err != nil {
		metrics.RecordDecision("", "revision", ErrorCode(err))
		return StageResponse{}, err
	}
	metrics.RecordDecision(env.Type, "revision", "ok")

	s.notify(ctx, Notification{
		Kind:         NotifyRevisionRequested,
		Recipient:    ToUser(env.OwnerID),
		RequestType:  env.Type,
		RequestID:    env.ID,
		StageID:      stage.ID,
		ActorRole:    stage.ApproverRole,
		ActorName:    s.displayName(ctx, approverID),
		Remarks:      remarks,
		RequestState: env.Status,
	})

	return toStageResponse(stage), nil
}

// --- Resubmit ---

func (s *approvalService) Resubmit(ctx context.Context, requestType, requestID, actingUserID string, edits ResubmitRequest) (RequestProgressResponse, error) {
	typ, err := parseType(requestType)
	if err != nil {
		return RequestProgressResponse{}, err
	}
	id, err := parseID(requestID, "request id")
	if err != nil {
		return RequestProgressResponse{}, err
	}
	ownerID, err := parseActor(actingUserID)
	if err != nil {
		return RequestProgressResponse{}, err
	}
	fields, err := editsFor(typ, edits)
	if err != nil {
		return RequestProgressResponse{}, err
	}

	firstRole := workflow.FirstRole(typ)
	var env *model.Envelope
	var stages []model.ApprovalStage
	var first *model.ApprovalStage

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		env, err = s.requests.FindEnvelopeForUpdate(txCtx, typ, id)
		if err != nil {
			return notFoundOr(err, "request")
		}
		if env.OwnerID != ownerID {
			return fmt.Errorf("only the owner may resubmit: %w", ErrUnauthorized)
		}
		if env.Status != model.RequestStatusUnderRevision {
			return fmt.Errorf("request is %s, not under revision: %w", env.Status, ErrInvalidState)
		}

		if typ == model.RequestTypeActivityPlan {
			if err := s.checkPlanDates(txCtx, id, edits); err != nil {
				return err
			}
		}
		if err := s.requests.ApplyEdits(txCtx, typ, id, fields); err != nil {
			return fmt.Errorf("failed to apply edits: %w", err)
		}

		now := s.now()
		first, err = s.stages.FindByRequestRole(txCtx, typ, id, firstRole)
		switch {
		case err == nil:
			resetStage(first, now)
			if err := s.stages.Update(txCtx, first); err != nil {
				return fmt.Errorf("failed to reset approval stage: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			first = &model.ApprovalStage{
				ID:           uuid.New(),
				RequestType:  typ,
				RequestID:    id,
				ApproverRole: firstRole,
				StageIndex:   0,
				Status:       model.StageStatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.stages.Create(txCtx, first); err != nil {
				return conflictOr(err, firstRole+" stage")
			}
		default:
			return fmt.Errorf("failed to look up %s stage: %w", firstRole, err)
		}

		discarded, err := s.stages.DeleteAfterIndex(txCtx, typ, id, 0)
		if err != nil {
			return fmt.Errorf("failed to discard forward stages: %w", err)
		}

		env.Status = model.RequestStatusPending
		env.CurrentStage = 0
		if err := s.requests.UpdateProgress(txCtx, env); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}

		if typ == model.RequestTypeEquipment {
			if err := s.rebuildReservations(txCtx, env, edits.Items); err != nil {
				return err
			}
		}

		edited := make([]string, 0, len(fields))
		for k := range fields {
			edited = append(edited, k)
		}
		if len(edits.Items) > 0 {
			edited = append(edited, "items")
		}
		if err := s.writeAudit(txCtx, &ownerID, model.ActionResubmitRequest, typ, id, map[string]interface{}{
			"edited":           edited,
			"discarded_stages": discarded,
		}); err != nil {
			return err
		}

		stages, err = s.stages.ListByRequest(txCtx, typ, id)
		if err != nil {
			return fmt.Errorf("failed to list approval stages: %w", err)
		}
		return nil
	})
	if err != nil {
		return RequestProgressResponse{}, err
	}

	s.notify(ctx, Notification{
		Kind:         NotifyResubmitted,
		Recipient:    ToRole(firstRole),
		RequestType:  typ,
		RequestID:    id,
		StageID:      first.ID,
		RequestState: env.Status,
	})

	return toProgressResponse(*env, stages, nil), nil
}

// checkPlanDates validates the activity dates as they will be after the edits,
// falling back to the stored value for whichever end is not edited.
func (s *approvalService) checkPlanDates(ctx context.Context, id uuid.UUID, edits ResubmitRequest) error {
	if edits.Start == nil && edits.End == nil {
		return nil
	}
	plan, err := s.requests.FindActivityPlan(ctx, id)
	if err != nil {
		return notFoundOr(err, "activity plan")
	}
	start, end := plan.StartDate, plan.EndDate
	if edits.Start != nil {
		start = *edits.Start
	}
	if edits.End != nil {
		end = *edits.End
	}
	if end.Before(start) {
		return fmt.Errorf("end_date must not precede start_date: %w", ErrValidation)
	}
	return nil
}

// rebuildReservations rewrites the ledger rows of an equipment request from its
// current window and items, replacing the items first when new ones are given.
func (s *approvalService) rebuildReservations(ctx context.Context, env *model.Envelope, items []EquipmentItemRequest) error {
	if len(items) > 0 {
		lines, rows, err := parseItems(items)
		if err != nil {
			return err
		}
		if err := s.requireEquipment(ctx, lines); err != nil {
			return err
		}
		if err := s.requests.ReplaceEquipmentItems(ctx, env.ID, rows); err != nil {
			return fmt.Errorf("failed to replace items: %w", err)
		}
	}

	req, err := s.requests.FindEquipmentRequest(ctx, env.ID)
	if err != nil {
		return notFoundOr(err, "equipment request")
	}
	window := workflow.Window{Start: req.StartTime, End: req.EndTime}
	if !window.Valid() {
		return fmt.Errorf("end_time must be after start_time: %w", ErrValidation)
	}

	reservations := reservationsFor(req.ID, env.OwnerID, env.Status, window, linesFromItems(req.Items))
	if err := s.reservations.ReplaceForRequest(ctx, env.ID, reservations); err != nil {
		return fmt.Errorf("failed to rewrite reservations: %w", err)
	}
	return nil
}

// --- Cancel ---

func (s *approvalService) Cancel(ctx context.Context, requestType, requestID, actingUserID string) (RequestProgressResponse, error) {
	typ, err := parseType(requestType)
	if err != nil {
		return RequestProgressResponse{}, err
	}
	id, err := parseID(requestID, "request id")
	if err != nil {
		return RequestProgressResponse{}, err
	}
	ownerID, err := parseActor(actingUserID)
	if err != nil {
		return RequestProgressResponse{}, err
	}

	var env *model.Envelope
	var stages []model.ApprovalStage
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		env, err = s.requests.FindEnvelopeForUpdate(txCtx, typ, id)
		if err != nil {
			return notFoundOr(err, "request")
		}
		if env.OwnerID != ownerID {
			return fmt.Errorf("only the owner may cancel: %w", ErrUnauthorized)
		}
		if env.Status != model.RequestStatusPending && env.Status != model.RequestStatusUnderRevision {
			return fmt.Errorf("request is %s and can no longer be cancelled: %w", env.Status, ErrInvalidState)
		}

		env.Status = model.RequestStatusCancelled
		if err := s.requests.UpdateProgress(txCtx, env); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		if typ == model.RequestTypeEquipment {
			if err := s.reservations.SyncStatus(txCtx, id, env.Status); err != nil {
				return fmt.Errorf("failed to release reservations: %w", err)
			}
		}
		closed, err := s.stages.DeletePending(txCtx, typ, id)
		if err != nil {
			return fmt.Errorf("failed to close open stages: %w", err)
		}
		if err := s.writeAudit(txCtx, &ownerID, model.ActionCancelRequest, typ, id, map[string]interface{}{
			"closed_stages": closed,
		}); err != nil {
			return err
		}

		stages, err = s.stages.ListByRequest(txCtx, typ, id)
		if err != nil {
			return fmt.Errorf("failed to list approval stages: %w", err)
		}
		return nil
	})
	if err != nil {
		return RequestProgressResponse{}, err
	}

	if role, ok := workflow.RoleAt(typ, env.CurrentStage); ok {
		s.notify(ctx, Notification{
			Kind:         NotifyCancelled,
			Recipient:    ToRole(role),
			RequestType:  typ,
			RequestID:    id,
			RequestState: env.Status,
		})
	}

	return toProgressResponse(*env, stages, nil), nil
}

// --- Viewed ---

func (s *approvalService) MarkViewed(ctx context.Context, stageID, actingRole string) (StageResponse, error) {
	id, err := parseID(stageID, "stage id")
	if err != nil {
		return StageResponse{}, err
	}

	var stage *model.ApprovalStage
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		stage, err = s.stages.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return notFoundOr(err, "approval stage")
		}
		if stage.ApproverRole != actingRole {
			return fmt.Errorf("stage belongs to %s: %w", stage.ApproverRole, ErrUnauthorized)
		}
		if stage.ViewedAt != nil {
			return nil
		}
		now := s.now()
		stage.ViewedAt = &now
		return s.stages.Update(txCtx, stage)
	})
	if err != nil {
		return StageResponse{}, err
	}
	return toStageResponse(*stage), nil
}

// --- Queries ---

func (s *approvalService) CheckStock(ctx context.Context, equipmentRequestID string) (StockReport, error) {
	id, err := parseID(equipmentRequestID, "request id")
	if err != nil {
		return StockReport{}, err
	}

	req, err := s.requests.FindEquipmentRequest(ctx, id)
	if err != nil {
		return StockReport{}, notFoundOr(err, "equipment request")
	}

	window := workflow.Window{Start: req.StartTime, End: req.EndTime}
	report, err := s.checker.evaluate(ctx, linesFromItems(req.Items), window, &req.ID, false)
	if err != nil {
		return StockReport{}, err
	}
	metrics.RecordStockCheck("check", report.CanApprove)
	return report, nil
}

func (s *approvalService) ListPendingStages(ctx context.Context, role string, page, limit int) ([]StageResponse, int64, error) {
	if !workflow.IsApproverRole(role) {
		return nil, 0, fmt.Errorf("role %q approves nothing: %w", role, ErrUnauthorized)
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	stages, total, err := s.stages.ListPendingByRole(ctx, role, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending stages: %w", err)
	}

	res := make([]StageResponse, 0, len(stages))
	for _, st := range stages {
		res = append(res, toStageResponse(st))
	}
	return res, total, nil
}

func (s *approvalService) GetRequestProgress(ctx context.Context, requestType, requestID string) (RequestProgressResponse, error) {
	typ, err := parseType(requestType)
	if err != nil {
		return RequestProgressResponse{}, err
	}
	id, err := parseID(requestID, "request id")
	if err != nil {
		return RequestProgressResponse{}, err
	}

	env, err := s.requests.FindEnvelope(ctx, typ, id)
	if err != nil {
		return RequestProgressResponse{}, notFoundOr(err, "request")
	}
	stages, err := s.stages.ListByRequest(ctx, typ, id)
	if err != nil {
		return RequestProgressResponse{}, fmt.Errorf("failed to list approval stages: %w", err)
	}
	history, err := s.audit.ListByEntity(ctx, typ, id.String())
	if err != nil {
		return RequestProgressResponse{}, fmt.Errorf("failed to load history: %w", err)
	}
	return toProgressResponse(*env, stages, history), nil
}

// --- Side effects ---

// notify hands n to the notifier. Nothing it does, including panicking, reaches the caller.
func (s *approvalService) notify(ctx context.Context, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.sideEffectFailed("notify", fmt.Errorf("notifier panicked: %v", r), n.RequestType, n.RequestID)
		}
	}()
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.sideEffectFailed("notify", err, n.RequestType, n.RequestID)
	}
}

func (s *approvalService) resign(ctx context.Context, env model.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			s.sideEffectFailed("resign_document", fmt.Errorf("resigner panicked: %v", r), env.Type, env.ID)
		}
	}()

	ref, err := s.resigner.ResignDocument(ctx, env.Type, env.ID)
	if err != nil {
		s.sideEffectFailed("resign_document", err, env.Type, env.ID)
		return
	}
	if ref == "" {
		return
	}
	if err := s.requests.UpdateDocumentRef(ctx, env.Type, env.ID, ref); err != nil {
		s.sideEffectFailed("store_document_ref", err, env.Type, env.ID)
		return
	}
	if err := s.writeAudit(ctx, nil, model.ActionResignDocument, env.Type, env.ID, map[string]interface{}{
		"document_ref": ref,
	}); err != nil {
		s.sideEffectFailed("audit_document_ref", err, env.Type, env.ID)
	}
}

func (s *approvalService) sideEffectFailed(op string, err error, requestType string, requestID uuid.UUID) {
	metrics.RecordSideEffectFailure(op)
	s.log.WithError(&SideEffectError{Op: op, Err: err}).WithFields(logrus.Fields{
		"op":           op,
		"request_type": requestType,
		"request_id":   requestID.String(),
	}).Warn("approval side effect failed")
}

func (s *approvalService) displayName(ctx context.Context, id uuid.UUID) string {
	if s.users == nil {
		return ""
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("user_id", id.String()).Debug("approver name unavailable")
		return ""
	}
	return user.Username
}

// --- Helpers ---

func (s *approvalService) writeAudit(ctx context.Context, userID *uuid.UUID, action, requestType string, requestID uuid.UUID, details map[string]interface{}) error {
	payload := "{}"
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		payload = string(raw)
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: requestType,
		EntityID:   requestID.String(),
		Details:    payload,
		CreatedAt:  s.now(),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", what, raw, ErrValidation)
	}
	return id, nil
}

func parseActor(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("caller has no valid user id: %w", ErrUnauthorized)
	}
	return id, nil
}

func parseType(raw string) (string, error) {
	typ, err := workflow.ParseRequestType(raw)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrValidation)
	}
	return typ, nil
}
