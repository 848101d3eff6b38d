package auth

import "context"

const (
	PermPayrollRead = "payroll.read"
	PermPayrollRun  = "payroll.run"
	PermAuditRead   = "audit.read"

	RoleViewer  = "viewer"
	RolePayroll = "payroll"
	RoleAdmin   = "admin"
)

var RolePermissions = map[string][]string{
	RoleViewer:  {PermPayrollRead},
	RolePayroll: {PermPayrollRead, PermPayrollRun},
	RoleAdmin:   {PermPayrollRead, PermPayrollRun, PermAuditRead},
}

func HasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// StaticPermissions resolves permissions from RolePermissions.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	return HasPermission(role, permission), nil
}
