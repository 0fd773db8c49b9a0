package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is an ordered access level. A higher role includes every capability of
// the roles below it: operator-manager > operator > client.
type Role int

// Known roles, lowest first. RoleUnknown never satisfies any requirement.
const (
	RoleUnknown Role = iota
	RoleClient
	RoleOperator
	RoleOperatorManager
)

var roleNames = map[Role]string{
	RoleClient:          "client",
	RoleOperator:        "operator",
	RoleOperatorManager: "operator-manager",
}

// ErrUnknownRole is returned by ParseRole for unrecognized role names.
var ErrUnknownRole = fmt.Errorf("%w: unknown role", ErrValidation)

// ParseRole accepts the canonical names plus the underscore spelling used by
// older tokens ("operator_manager").
func ParseRole(s string) (Role, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for role, name := range roleNames {
		if name == normalized {
			return role, nil
		}
	}
	return RoleUnknown, ErrUnknownRole
}

// String returns the canonical role name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Includes reports whether r grants at least the capabilities of required.
func (r Role) Includes(required Role) bool {
	return r != RoleUnknown && required != RoleUnknown && r >= required
}

// Identity is the authenticated caller as handed over by the identity provider.
type Identity struct {
	AccountID uuid.UUID
	Role      Role
	// Label is the human-readable identity recorded in audit fields.
	Label string
}
