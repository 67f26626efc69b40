package auth

// Role names. Every authenticated account carries exactly one of these;
// unauthenticated callers are treated as public.
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RolePublic = "public"
)

// Permission keys guarding service operations.
const (
	PermEventsWrite         = "events.write"
	PermRegistrationsReview = "registrations.review"
	PermAttendanceScan      = "attendance.scan"
	PermAttendanceRead      = "attendance.read"
	PermBankUpdate          = "attendance.bank.update"
)

// rolePermissions maps a role to its capability set. Admins hold every
// capability; staff only what the door workflow needs.
var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermEventsWrite,
		PermRegistrationsReview,
		PermAttendanceScan,
		PermAttendanceRead,
		PermBankUpdate,
	},
	RoleStaff: {
		PermAttendanceScan,
		PermAttendanceRead,
		PermBankUpdate,
	},
	RolePublic: {},
}

// HasPermission reports whether any of the roles grants the permission.
func HasPermission(roles []string, perm string) bool {
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			if p == perm {
				return true
			}
		}
	}
	return false
}

// PermissionsForRoles resolves the union capability set for a role list.
func PermissionsForRoles(roles []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range rolePermissions[role] {
			set[p] = struct{}{}
		}
	}
	return set
}
