package domain

// Status is a lifecycle stage a panel occupies.
type Status string

// Lifecycle statuses in catalog order.
const (
	StatusIssued           Status = "issued"
	StatusProduced         Status = "produced"
	StatusManufactured     Status = "manufactured"
	StatusProceedDelivery  Status = "proceed_delivery"
	StatusDelivered        Status = "delivered"
	StatusApprovedMaterial Status = "approved_material"
	StatusRejectedMaterial Status = "rejected_material"
	StatusInstalled        Status = "installed"
	StatusChecked          Status = "checked"
	StatusInspected        Status = "inspected"
	StatusApprovedFinal    Status = "approved_final"
	StatusOnHold           Status = "on_hold"
	StatusBrokenFactory    Status = "broken_factory"
	StatusBrokenSite       Status = "broken_site"
	StatusCancelled        Status = "cancelled"
)

// DefaultStatus is assigned to panels created without a recognised status.
const DefaultStatus = StatusManufactured

// StatusInfo carries the display metadata of a catalog entry.
type StatusInfo struct {
	Status   Status `json:"status"`
	Label    string `json:"label"`
	Color    string `json:"color"`
	Terminal bool   `json:"terminal"`
}

var statusCatalog = []StatusInfo{
	{Status: StatusIssued, Label: "Issued for Production", Color: "#64748b"},
	{Status: StatusProduced, Label: "Produced", Color: "#0ea5e9"},
	{Status: StatusManufactured, Label: "Manufactured", Color: "#3b82f6"},
	{Status: StatusProceedDelivery, Label: "Proceed to Delivery", Color: "#6366f1"},
	{Status: StatusDelivered, Label: "Delivered", Color: "#8b5cf6"},
	{Status: StatusApprovedMaterial, Label: "Approved Material", Color: "#22c55e"},
	{Status: StatusRejectedMaterial, Label: "Rejected Material", Color: "#ef4444", Terminal: true},
	{Status: StatusInstalled, Label: "Installed", Color: "#14b8a6"},
	{Status: StatusChecked, Label: "Checked", Color: "#84cc16"},
	{Status: StatusInspected, Label: "Inspected", Color: "#10b981"},
	{Status: StatusApprovedFinal, Label: "Approved Final", Color: "#15803d", Terminal: true},
	{Status: StatusOnHold, Label: "On Hold", Color: "#f59e0b"},
	{Status: StatusBrokenFactory, Label: "Broken at Factory", Color: "#f97316"},
	{Status: StatusBrokenSite, Label: "Broken at Site", Color: "#dc2626", Terminal: true},
	{Status: StatusCancelled, Label: "Cancelled", Color: "#6b7280", Terminal: true},
}

var (
	statusIndex = func() map[Status]int {
		idx := make(map[Status]int, len(statusCatalog))
		for i, info := range statusCatalog {
			idx[info.Status] = i
		}
		return idx
	}()
	statusByLabel = func() map[string]Status {
		m := make(map[string]Status, 2*len(statusCatalog))
		for _, info := range statusCatalog {
			m[foldLabel(string(info.Status))] = info.Status
			m[foldLabel(info.Label)] = info.Status
		}
		return m
	}()
)

// StatusCatalog returns the catalog entries in lifecycle order.
func StatusCatalog() []StatusInfo {
	return append([]StatusInfo(nil), statusCatalog...)
}

// Valid reports whether s is a catalog member.
func (s Status) Valid() bool {
	_, ok := statusIndex[s]
	return ok
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	i, ok := statusIndex[s]
	return ok && statusCatalog[i].Terminal
}

// Info returns the display metadata of s.
func (s Status) Info() (StatusInfo, bool) {
	i, ok := statusIndex[s]
	if !ok {
		return StatusInfo{}, false
	}
	return statusCatalog[i], true
}

// Label returns the human readable name, or the raw code for unknown statuses.
func (s Status) Label() string {
	if info, ok := s.Info(); ok {
		return info.Label
	}
	return string(s)
}

// ParseStatus resolves a code or display label, ignoring case, spaces,
// underscores and dashes.
func ParseStatus(raw string) (Status, bool) {
	s, ok := statusByLabel[foldLabel(raw)]
	return s, ok
}

// TerminalStatuses lists the terminal catalog entries.
func TerminalStatuses() []Status {
	var out []Status
	for _, info := range statusCatalog {
		if info.Terminal {
			out = append(out, info.Status)
		}
	}
	return out
}

func sortByCatalog(set map[Status]struct{}) []Status {
	out := make([]Status, 0, len(set))
	for _, info := range statusCatalog {
		if _, ok := set[info.Status]; ok {
			out = append(out, info.Status)
		}
	}
	return out
}
