package models

// Categories lists every category a product may belong to, in display order.
var Categories = []string{
	"Electronics",
	"Clothing",
	"Food",
	"Books",
	"Home",
	"Sports",
	"Other",
}

// CategoryAll is the list filter value meaning "no category filter".
const CategoryAll = "all"

// IsValidCategory reports whether name is one of Categories. Matching is exact.
func IsValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}
