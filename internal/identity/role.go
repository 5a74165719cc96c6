package identity

import (
	"context"
	"fmt"
)

// Role is one of the four roles the identity provider can assert.
type Role string

const (
	RoleStaff          Role = "staff"
	RoleApproverLevel1 Role = "approver_level_1"
	RoleApproverLevel2 Role = "approver_level_2"
	RoleFinance        Role = "finance"
)

// Roles lists every known role.
var Roles = []Role{RoleStaff, RoleApproverLevel1, RoleApproverLevel2, RoleFinance}

// ParseRole accepts only the exact role names.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	switch r {
	case RoleStaff, RoleApproverLevel1, RoleApproverLevel2, RoleFinance:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	switch r {
	case RoleStaff, RoleApproverLevel1, RoleApproverLevel2, RoleFinance:
		return true
	}
	return false
}

// IsApprover reports whether the role may record approval decisions.
func (r Role) IsApprover() bool {
	switch r {
	case RoleApproverLevel1, RoleApproverLevel2:
		return true
	case RoleStaff, RoleFinance:
		return false
	}
	return false
}

// ApprovalLevel returns 1 or 2 for approver roles.
func (r Role) ApprovalLevel() (int, bool) {
	switch r {
	case RoleApproverLevel1:
		return 1, true
	case RoleApproverLevel2:
		return 2, true
	case RoleStaff, RoleFinance:
		return 0, false
	}
	return 0, false
}

// CanCreateRequests reports whether the role may open purchase requests.
func (r Role) CanCreateRequests() bool {
	switch r {
	case RoleStaff:
		return true
	case RoleApproverLevel1, RoleApproverLevel2, RoleFinance:
		return false
	}
	return false
}

// SeesAllRequests reports whether the role can read requests it did not create.
func (r Role) SeesAllRequests() bool {
	switch r {
	case RoleApproverLevel1, RoleApproverLevel2, RoleFinance:
		return true
	case RoleStaff:
		return false
	}
	return false
}

// Actor is an authenticated caller.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanSee applies the visibility rule: staff see their own requests, everyone else sees all.
func (a Actor) CanSee(ownerID string) bool {
	if a.Role.SeesAllRequests() {
		return true
	}
	return a.Role.Valid() && a.ID != "" && a.ID == ownerID
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
