package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleAgent      = "agent"
	RoleVendor     = "vendor"
	RoleAnalyst    = "analyst"
	RoleSuperAdmin = "super_admin"

	// RoleMarketOperator is a hidden internal-ops role; it must be explicitly
	// allowed on a route to gain access.
	RoleMarketOperator = "market_operator"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleMarketOperator }
