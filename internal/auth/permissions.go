package auth

// Permission represents a named capability.
type Permission string

// Permission constants.
const (
	PermEntityRead   Permission = "entity:read"
	PermDisplayWrite Permission = "display:write"
	PermEntryManage  Permission = "entry:manage"
)

// rolePermissions is the whole authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermEntityRead,
	},
	RoleOperator: {
		PermEntityRead,
		PermDisplayWrite,
	},
	RoleAdmin: {
		PermEntityRead,
		PermDisplayWrite,
		PermEntryManage,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
