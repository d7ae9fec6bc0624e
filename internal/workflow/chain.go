// Package workflow holds the static approval chains and the reservation window
// arithmetic. Nothing in here touches storage.
package workflow

import (
	"fmt"

	"portal/internal/model"
)

var chains = map[string][]string{
	model.RequestTypeEquipment: {
		model.RoleAdminAssistant,
	},
	model.RequestTypeActivityPlan: {
		model.RoleAdminAssistant,
		model.RoleModerator,
		model.RoleAcademicCoordinator,
		model.RoleDean,
	},
	model.RequestTypeBudgetRequest: {
		model.RoleAdminAssistant,
		model.RoleModerator,
		model.RoleAcademicCoordinator,
		model.RoleDean,
		model.RoleVPFinance,
	},
}

// ChainFor returns the ordered approver roles for a request type. An unknown type is a
// programming error and panics; parse user input with ParseRequestType first.
func ChainFor(requestType string) []string {
	chain, ok := chains[requestType]
	if !ok {
		panic(fmt.Sprintf("workflow: no approval chain for request type %q", requestType))
	}
	out := make([]string, len(chain))
	copy(out, chain)
	return out
}

// ParseRequestType validates a request type coming from outside the engine.
func ParseRequestType(raw string) (string, error) {
	if _, ok := chains[raw]; !ok {
		return "", fmt.Errorf("unknown request type %q", raw)
	}
	return raw, nil
}

// RequestTypes lists every type that has a chain.
func RequestTypes() []string {
	return []string{
		model.RequestTypeEquipment,
		model.RequestTypeActivityPlan,
		model.RequestTypeBudgetRequest,
	}
}

// FirstRole is the role every submission and resubmission starts at.
func FirstRole(requestType string) string {
	return ChainFor(requestType)[0]
}

// IndexOf returns the position of role in the chain, or -1.
func IndexOf(requestType, role string) int {
	for i, r := range ChainFor(requestType) {
		if r == role {
			return i
		}
	}
	return -1
}

// RoleAt returns the role at index, ok=false when index is past either end.
func RoleAt(requestType string, index int) (string, bool) {
	chain := ChainFor(requestType)
	if index < 0 || index >= len(chain) {
		return "", false
	}
	return chain[index], true
}

// NextRole returns the role after role, ok=false when role is last or not in the chain.
func NextRole(requestType, role string) (string, bool) {
	i := IndexOf(requestType, role)
	if i < 0 {
		return "", false
	}
	return RoleAt(requestType, i+1)
}

// IsLast reports whether role closes the chain.
func IsLast(requestType, role string) bool {
	chain := ChainFor(requestType)
	return chain[len(chain)-1] == role
}

// IsApproverRole reports whether role appears in any chain.
func IsApproverRole(role string) bool {
	for _, t := range RequestTypes() {
		if IndexOf(t, role) >= 0 {
			return true
		}
	}
	return false
}

// ApproverRoles lists every role that appears in some chain, in first-seen order.
func ApproverRoles() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range RequestTypes() {
		for _, r := range ChainFor(t) {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}
