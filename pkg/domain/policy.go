package domain

// Role is the acting role of a lifecycle request. Authorization is role only;
// the acting user label is used for history attribution.
type Role string

// Closed role set.
const (
	RoleAdmin              Role = "admin"
	RoleProjectManager     Role = "project_manager"
	RoleDataEntry          Role = "data_entry"
	RoleProductionEngineer Role = "production_engineer"
	RoleQCFactory          Role = "qc_factory"
	RoleStoreSite          Role = "store_site"
	RoleQCSite             Role = "qc_site"
	RoleForemanSite        Role = "foreman_site"
	RoleSiteEngineer       Role = "site_engineer"
)

// Roles returns the closed role set.
func Roles() []Role {
	return []Role{
		RoleAdmin, RoleProjectManager, RoleDataEntry, RoleProductionEngineer,
		RoleQCFactory, RoleStoreSite, RoleQCSite, RoleForemanSite, RoleSiteEngineer,
	}
}

// Valid reports whether r is in the closed role set.
func (r Role) Valid() bool {
	for _, known := range Roles() {
		if r == known {
			return true
		}
	}
	return false
}

// adminSuccessors follows the physical workflow. manufactured is a legacy
// entry point and jumps straight to issued or delivered.
var adminSuccessors = map[Status]map[Status]struct{}{
	StatusIssued:           toStatusSet(StatusProduced, StatusOnHold, StatusCancelled),
	StatusProduced:         toStatusSet(StatusProceedDelivery, StatusBrokenFactory, StatusOnHold),
	StatusManufactured:     toStatusSet(StatusIssued, StatusDelivered),
	StatusProceedDelivery:  toStatusSet(StatusDelivered, StatusBrokenFactory),
	StatusDelivered:        toStatusSet(StatusApprovedMaterial, StatusRejectedMaterial),
	StatusApprovedMaterial: toStatusSet(StatusInstalled, StatusBrokenSite),
	StatusInstalled:        toStatusSet(StatusChecked),
	StatusChecked:          toStatusSet(StatusInspected),
	StatusInspected:        toStatusSet(StatusApprovedFinal),
	StatusOnHold:           toStatusSet(StatusIssued, StatusProduced, StatusCancelled),
	StatusBrokenFactory:    toStatusSet(StatusProduced, StatusCancelled),
}

// rolePermissions lists what each non-admin role may set, whatever the current status.
var rolePermissions = map[Role]map[Status]struct{}{
	RoleProjectManager:     toStatusSet(StatusOnHold, StatusCancelled, StatusApprovedFinal),
	RoleDataEntry:          toStatusSet(StatusIssued, StatusManufactured),
	RoleProductionEngineer: toStatusSet(StatusIssued, StatusProduced, StatusProceedDelivery),
	RoleQCFactory:          toStatusSet(StatusProduced, StatusBrokenFactory),
	RoleStoreSite:          toStatusSet(StatusDelivered, StatusBrokenSite),
	RoleQCSite:             toStatusSet(StatusApprovedMaterial, StatusRejectedMaterial),
	RoleForemanSite:        toStatusSet(StatusInstalled),
	RoleSiteEngineer:       toStatusSet(StatusChecked, StatusInspected, StatusApprovedFinal),
}

// AllowedNextStates returns the statuses role may move a panel in current
// status to, in catalog order. Terminal statuses and unknown roles yield an
// empty set.
func AllowedNextStates(current Status, role Role) []Status {
	if current.Terminal() {
		return []Status{}
	}
	var set map[Status]struct{}
	if role == RoleAdmin {
		set = adminSuccessors[current]
	} else {
		set = rolePermissions[role]
	}
	return sortByCatalog(set)
}

// CanTransition reports whether next is in AllowedNextStates(current, role).
func CanTransition(current, next Status, role Role) bool {
	if current.Terminal() {
		return false
	}
	if role == RoleAdmin {
		_, ok := adminSuccessors[current][next]
		return ok
	}
	_, ok := rolePermissions[role][next]
	return ok
}

// SettableStatuses returns every status role can ever set.
func SettableStatuses(role Role) []Status {
	if role == RoleAdmin {
		set := make(map[Status]struct{})
		for _, next := range adminSuccessors {
			for s := range next {
				set[s] = struct{}{}
			}
		}
		return sortByCatalog(set)
	}
	return sortByCatalog(rolePermissions[role])
}

func toStatusSet(values ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
