package service

import (
	"context"
	"testing"

	"portal/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planAtDean submits an activity plan and walks it to the dean's stage.
func planAtDean(t *testing.T, f *fixture) (requestID string, stage model.ApprovalStage) {
	t.Helper()
	resp := f.submitPlan(t)
	for _, u := range []model.User{f.assistant, f.moderator, f.coordinator} {
		f.approveCurrent(t, model.RequestTypeActivityPlan, resp.RequestID, u)
	}
	return resp.RequestID, f.currentStage(t, model.RequestTypeActivityPlan, resp.RequestID)
}

func TestBatchApprove_MixedResults(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	id1, s1 := planAtDean(t, f)
	id2, s2 := planAtDean(t, f)
	id3, s3 := planAtDean(t, f)

	// Another dean got to the third one first.
	_, err := f.svc.Approve(ctx, s3.ID.String(), model.RoleDean, f.dean.ID.String())
	require.NoError(t, err)
	auditBefore := len(f.store.auditActions(uuid.MustParse(id3)))
	f.notifier.reset()

	result, err := f.svc.BatchApprove(ctx, []string{s1.ID.String(), s2.ID.String(), s3.ID.String()}, model.RoleDean, f.dean.ID.String())
	require.NoError(t, err)

	require.Len(t, result.Successful, 2)
	assert.Equal(t, s1.ID.String(), result.Successful[0].ID)
	assert.Equal(t, s2.ID.String(), result.Successful[1].ID)

	require.Len(t, result.Failed, 1)
	assert.Equal(t, s3.ID.String(), result.Failed[0].StageID)
	assert.Equal(t, CodeInvalidState, result.Failed[0].Code)
	assert.NotEmpty(t, result.Failed[0].Reason)

	for _, id := range []string{id1, id2, id3} {
		assert.Equal(t, model.RequestStatusApproved, f.store.header(model.RequestTypeActivityPlan, uuid.MustParse(id)).Status)
	}
	assert.Len(t, f.store.auditActions(uuid.MustParse(id3)), auditBefore)
	assert.Contains(t, f.notifier.kinds(), NotifyRequestApproved)
}

func TestBatchApprove_ConflictRollsBackOnlyThatItem(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	cameras := f.store.addEquipment("Camera", 5)
	lights := f.store.addEquipment("Light", 3)

	held := f.submitLoan(t, f.other, cameras, 3, 10, 12)
	f.approveCurrent(t, model.RequestTypeEquipment, held.RequestID, f.assistant)

	short := f.submitLoan(t, f.student, cameras, 3, 11, 13)
	fine := f.submitLoan(t, f.student, lights, 1, 11, 13)
	shortStage := f.currentStage(t, model.RequestTypeEquipment, short.RequestID)
	fineStage := f.currentStage(t, model.RequestTypeEquipment, fine.RequestID)

	result, err := f.svc.BatchApprove(ctx,
		[]string{shortStage.ID.String(), "garbage", fineStage.ID.String(), fineStage.ID.String()},
		model.RoleAdminAssistant, f.assistant.ID.String())
	require.NoError(t, err)

	require.Len(t, result.Successful, 1)
	assert.Equal(t, fineStage.ID.String(), result.Successful[0].ID)

	require.Len(t, result.Failed, 3)
	assert.Equal(t, CodeResourceConflict, result.Failed[0].Code)
	require.Len(t, result.Failed[0].Conflicts, 1)
	assert.Equal(t, 1, result.Failed[0].Conflicts[0].Shortage)
	assert.Equal(t, CodeValidation, result.Failed[1].Code)
	assert.Equal(t, CodeInvalidState, result.Failed[2].Code)

	shortID := uuid.MustParse(short.RequestID)
	assert.Equal(t, model.RequestStatusPending, f.store.header(model.RequestTypeEquipment, shortID).Status)
	assert.Equal(t, model.StageStatusPending, f.currentStage(t, model.RequestTypeEquipment, short.RequestID).Status)
	assert.Equal(t, model.RequestStatusApproved, f.store.header(model.RequestTypeEquipment, uuid.MustParse(fine.RequestID)).Status)
}

func TestBatchApprove_WrongRoleFailsEachItem(t *testing.T) {
	f := newFixture(t, "")
	resp := f.submitPlan(t)
	st := f.currentStage(t, model.RequestTypeActivityPlan, resp.RequestID)

	result, err := f.svc.BatchApprove(context.Background(), []string{st.ID.String()}, model.RoleDean, f.dean.ID.String())
	require.NoError(t, err)
	assert.Empty(t, result.Successful)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, CodeUnauthorized, result.Failed[0].Code)

	_, err = f.svc.BatchApprove(context.Background(), nil, model.RoleDean, f.dean.ID.String())
	assert.ErrorIs(t, err, ErrValidation)
}
