package scope

import (
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
)

// Role is the kind of caller asking for data.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleSchool  Role = "school"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
	RoleVendor  Role = "vendor"
)

var (
	Roles = []Role{RoleAdmin, RoleSchool, RoleTeacher, RoleStudent, RoleParent, RoleVendor}

	ErrUnknownRole = errors.New("unknown role")
)

// ParseRole converts a raw role name (e.g. from a token claim) into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(core.CleanString(s, true /* lower */))
	for _, role := range Roles {
		if r == role {
			return role, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownRole, "%q", s)
}

func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// Principal identifies who is asking.
type Principal struct {
	Role   Role   `json:"role"`
	UserID string `json:"user_id"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Target is an optional narrowing requested by the caller.
// An empty Target asks for everything the caller may see. Every organization listed
// must be visible and on the same branch (a region and one of its schools, say); the
// subject, when set, must be located inside all of them.
type Target struct {
	OrganizationIDs []string `json:"organization_ids,omitempty"`
	SubjectID       string   `json:"subject_id,omitempty"`
}

// OrgTarget targets the given organizations. Empty ids are dropped.
func OrgTarget(ids ...string) Target {
	var t Target
	for _, id := range ids {
		if id != "" {
			t.OrganizationIDs = append(t.OrganizationIDs, id)
		}
	}
	return t
}

func (t Target) IsZero() bool { return len(t.OrganizationIDs) == 0 && t.SubjectID == "" }
