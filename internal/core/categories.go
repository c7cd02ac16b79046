package core

import "strings"

// Recognized categories offered to users. The ledger itself accepts any
// label; only request parsing at the edge checks against these lists.
var (
	ExpenseCategories = []string{"Food", "Transport", "Shopping", "Entertainment", "Bills", "Other"}
	IncomeCategories  = []string{"Salary", "Gift", "Other"}
)

// CategoriesFor returns the recognized categories for a kind.
func CategoriesFor(k Kind) []string {
	switch k {
	case KindExpense:
		return ExpenseCategories
	case KindIncome:
		return IncomeCategories
	default:
		return nil
	}
}

// IsRecognizedCategory reports whether category is offered for kind.
// Matching ignores case and surrounding spaces.
func IsRecognizedCategory(k Kind, category string) bool {
	category = strings.TrimSpace(category)
	for _, c := range CategoriesFor(k) {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// CanonicalCategory returns the recognized spelling of category, or the
// trimmed input when it isn't recognized.
func CanonicalCategory(k Kind, category string) string {
	category = strings.TrimSpace(category)
	for _, c := range CategoriesFor(k) {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return category
}
