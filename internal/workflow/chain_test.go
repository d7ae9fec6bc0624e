package workflow

import (
	"testing"

	"portal/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainFor_NonEmptyAndUnique(t *testing.T) {
	for _, typ := range RequestTypes() {
		chain := ChainFor(typ)
		require.NotEmpty(t, chain, typ)

		seen := map[string]bool{}
		for _, role := range chain {
			assert.False(t, seen[role], "duplicate role %s in %s chain", role, typ)
			seen[role] = true
		}
	}
}

func TestChainFor_Order(t *testing.T) {
	assert.Equal(t, []string{model.RoleAdminAssistant}, ChainFor(model.RequestTypeEquipment))
	assert.Equal(t, []string{
		model.RoleAdminAssistant, model.RoleModerator, model.RoleAcademicCoordinator, model.RoleDean,
	}, ChainFor(model.RequestTypeActivityPlan))
	assert.Equal(t, []string{
		model.RoleAdminAssistant, model.RoleModerator, model.RoleAcademicCoordinator, model.RoleDean, model.RoleVPFinance,
	}, ChainFor(model.RequestTypeBudgetRequest))
}

func TestChainFor_ReturnsCopy(t *testing.T) {
	chain := ChainFor(model.RequestTypeActivityPlan)
	chain[0] = "tampered"
	assert.Equal(t, model.RoleAdminAssistant, FirstRole(model.RequestTypeActivityPlan))
}

func TestChainFor_UnknownTypePanics(t *testing.T) {
	assert.Panics(t, func() { ChainFor("announcement") })
}

func TestParseRequestType(t *testing.T) {
	typ, err := ParseRequestType("budget_request")
	require.NoError(t, err)
	assert.Equal(t, model.RequestTypeBudgetRequest, typ)

	_, err = ParseRequestType("announcement")
	assert.Error(t, err)
}

func TestNextRole(t *testing.T) {
	next, ok := NextRole(model.RequestTypeActivityPlan, model.RoleModerator)
	require.True(t, ok)
	assert.Equal(t, model.RoleAcademicCoordinator, next)

	_, ok = NextRole(model.RequestTypeActivityPlan, model.RoleDean)
	assert.False(t, ok, "dean closes the activity plan chain")

	next, ok = NextRole(model.RequestTypeBudgetRequest, model.RoleDean)
	require.True(t, ok)
	assert.Equal(t, model.RoleVPFinance, next)

	_, ok = NextRole(model.RequestTypeEquipment, model.RoleAdminAssistant)
	assert.False(t, ok)

	_, ok = NextRole(model.RequestTypeEquipment, model.RoleDean)
	assert.False(t, ok)
}

func TestIsLastAndIndexOf(t *testing.T) {
	assert.True(t, IsLast(model.RequestTypeEquipment, model.RoleAdminAssistant))
	assert.False(t, IsLast(model.RequestTypeBudgetRequest, model.RoleDean))
	assert.Equal(t, 3, IndexOf(model.RequestTypeActivityPlan, model.RoleDean))
	assert.Equal(t, -1, IndexOf(model.RequestTypeActivityPlan, model.RoleVPFinance))

	role, ok := RoleAt(model.RequestTypeBudgetRequest, 4)
	require.True(t, ok)
	assert.Equal(t, model.RoleVPFinance, role)
	_, ok = RoleAt(model.RequestTypeBudgetRequest, 5)
	assert.False(t, ok)
}

func TestIsApproverRole(t *testing.T) {
	assert.True(t, IsApproverRole(model.RoleVPFinance))
	assert.False(t, IsApproverRole(model.RoleStudent))
}

func TestApproverRoles(t *testing.T) {
	assert.Equal(t, []string{
		model.RoleAdminAssistant,
		model.RoleModerator,
		model.RoleAcademicCoordinator,
		model.RoleDean,
		model.RoleVPFinance,
	}, ApproverRoles())
}
