package model

// Roles stored in users.role and carried in the access token "role" claim.
const (
	RoleUser      = "USER"
	RoleModerator = "MODERATOR"
	RoleAdmin     = "ADMIN"
)

// Capability names a protected operation. Routes check capabilities
// rather than role names so that the role table below is the only place
// that decides who may do what.
type Capability string

const (
	CapBrowseCatalog  Capability = "browse_catalog"
	CapPurchase       Capability = "purchase"
	CapManageProfile  Capability = "manage_own_profile"
	CapManageCatalog  Capability = "manage_catalog"
	CapViewAllOrders  Capability = "view_all_orders"
	CapManageUsers    Capability = "manage_users"
	CapRefundPayments Capability = "refund_payments"
)

var userCapabilities = []Capability{CapBrowseCatalog, CapPurchase, CapManageProfile}

var moderatorCapabilities = append(append([]Capability{}, userCapabilities...),
	CapManageCatalog, CapViewAllOrders)

var adminCapabilities = append(append([]Capability{}, moderatorCapabilities...),
	CapManageUsers, CapRefundPayments)

var capabilities = map[string]map[Capability]bool{
	RoleUser:      capabilitySet(userCapabilities),
	RoleModerator: capabilitySet(moderatorCapabilities),
	RoleAdmin:     capabilitySet(adminCapabilities),
}

func capabilitySet(caps []Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// Can reports whether role grants the capability. Unknown roles grant nothing.
func Can(role string, c Capability) bool {
	return capabilities[role][c]
}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	_, ok := capabilities[r]
	return ok
}
