package shared

// Core platform permissions.
const (
	PermPermissionsView = "permissions.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermPermissionsView,
	}
}

// AllScopes lists every permission the service checks.
func AllScopes() []string {
	return append(CoreScopes(), SalesScopes()...)
}
