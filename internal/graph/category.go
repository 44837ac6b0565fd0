package graph

import "strings"

// Category names used when a line item carries no explicit category.
const (
	CategoryITEquipment    = "IT Equipment"
	CategoryOfficeSupplies = "Office Supplies"
	CategoryManufacturing  = "Manufacturing"
	CategoryServices       = "Services"
	CategoryOther          = "Other"
)

// categoryKeywords is checked in order; the first match wins.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{CategoryITEquipment, []string{"laptop", "computer", "monitor", "keyboard", "mouse", "software"}},
	{CategoryOfficeSupplies, []string{"paper", "pen", "pencil", "sticky", "folder", "binder"}},
	{CategoryManufacturing, []string{"printer", "cnc", "industrial", "equipment", "machine"}},
	{CategoryServices, []string{"consulting", "training", "service", "support", "maintenance"}},
}

// InferCategory returns explicit when set, otherwise the category whose
// keywords appear in the description.
func InferCategory(explicit, description string) string {
	if c := strings.TrimSpace(explicit); c != "" {
		return c
	}
	desc := strings.ToLower(description)
	for _, entry := range categoryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(desc, kw) {
				return entry.category
			}
		}
	}
	return CategoryOther
}
