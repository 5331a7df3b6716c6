package model

import "fmt"

// Role is a tenant-scoped role a user can hold within a school.
type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleSchoolAdmin Role = "school_admin"
	RoleTeacher     Role = "teacher"
	RoleParent      Role = "parent"
	RoleStudent     Role = "student"
)

// rolePriority is the fixed resolution order: the first role a user holds in
// this sequence becomes their primary role.
var rolePriority = []Role{
	RoleSuperAdmin,
	RoleSchoolAdmin,
	RoleTeacher,
	RoleParent,
	RoleStudent,
}

// ProvisionableRoles are the roles a school admin may assign through the
// provisioning endpoint. Admin roles are excluded so they cannot be
// self-granted via that path.
var ProvisionableRoles = []Role{RoleTeacher, RoleParent, RoleStudent}

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleSuperAdmin, RoleSchoolAdmin, RoleTeacher, RoleParent, RoleStudent:
		return Role(raw), nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

func (r Role) Provisionable() bool {
	for _, role := range ProvisionableRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Dashboard returns the dashboard variant the role maps to.
func (r Role) Dashboard() string {
	switch r {
	case RoleSuperAdmin:
		return "platform"
	case RoleSchoolAdmin:
		return "school"
	case RoleTeacher:
		return "teacher"
	case RoleParent:
		return "parent"
	case RoleStudent:
		return "student"
	default:
		return ""
	}
}

// PrimaryRole resolves the single role that drives which dashboard a user
// sees. Resolution is deterministic: roles are evaluated in the fixed
// priority order and the first one held, across any school, wins. Returns
// the empty role when the user holds no roles.
func PrimaryRole(roles []UserRole) Role {
	for _, candidate := range rolePriority {
		for _, held := range roles {
			if held.Role == candidate {
				return candidate
			}
		}
	}
	return ""
}

// HasRole reports whether any role row matches the given role, and, when
// schoolID is non-empty, that school too.
func HasRole(roles []UserRole, role Role, schoolID string) bool {
	for _, held := range roles {
		if held.Role != role {
			continue
		}
		if schoolID != "" && held.SchoolID != schoolID {
			continue
		}
		return true
	}
	return false
}
