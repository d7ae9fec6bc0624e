package service

import (
	"context"
	"errors"
	"fmt"

	"portal/internal/metrics"
	"portal/internal/repository"

	"github.com/google/uuid"
)

// BatchApprove approves each stage independently. Items run in one transaction, each
// behind its own savepoint, so a failed item leaves no writes while the others commit.
// Notifications for the successful items go out after the commit.
func (s *approvalService) BatchApprove(ctx context.Context, stageIDs []string, actingRole, actingUserID string) (BatchResult, error) {
	approverID, err := parseActor(actingUserID)
	if err != nil {
		return BatchResult{}, err
	}
	if len(stageIDs) == 0 {
		return BatchResult{}, fmt.Errorf("stage_ids must not be empty: %w", ErrValidation)
	}
	metrics.ObserveBatch(len(stageIDs))

	result := BatchResult{
		Successful: make([]StageResponse, 0, len(stageIDs)),
		Failed:     make([]BatchFailure, 0),
	}
	var outcomes []*stageOutcome

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seen := make(map[uuid.UUID]bool, len(stageIDs))
		for i, raw := range stageIDs {
			id, err := parseID(raw, "stage id")
			if err != nil {
				result.Failed = append(result.Failed, batchFailure(raw, err))
				continue
			}
			if seen[id] {
				result.Failed = append(result.Failed, batchFailure(raw, fmt.Errorf("stage listed twice: %w", ErrInvalidState)))
				continue
			}
			seen[id] = true

			var outcome *stageOutcome
			err = s.txManager.RunInSavepoint(txCtx, fmt.Sprintf("batch_item_%d", i), func(spCtx context.Context) error {
				o, err := s.approveStage(spCtx, id, actingRole, approverID)
				outcome = o
				return err
			})
			if err != nil {
				if errors.Is(err, repository.ErrSavepointRollback) {
					return err
				}
				result.Failed = append(result.Failed, batchFailure(raw, err))
				continue
			}
			outcomes = append(outcomes, outcome)
			result.Successful = append(result.Successful, toStageResponse(outcome.stage))
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	for range result.Successful {
		metrics.RecordBatchItem("ok")
	}
	for _, f := range result.Failed {
		metrics.RecordBatchItem(f.Code)
	}

	for _, o := range outcomes {
		metrics.RecordDecision(o.envelope.Type, "approve", "ok")
		s.afterApproval(ctx, o)
	}

	s.log.WithField("role", actingRole).
		WithField("successful", len(result.Successful)).
		WithField("failed", len(result.Failed)).
		Info("batch approval finished")

	return result, nil
}

func batchFailure(stageID string, err error) BatchFailure {
	f := BatchFailure{
		StageID: stageID,
		Code:    ErrorCode(err),
		Reason:  err.Error(),
	}
	var conflict *ResourceConflictError
	if errors.As(err, &conflict) {
		f.Conflicts = conflict.Report.Conflicts
	}
	return f
}
