package policy

import "strings"

// Dispute categories recognised from the free-text dispute type.
const (
	CategoryEmployment = "employment"
	CategoryLandlord   = "landlord"
	CategoryConsumer   = "consumer"
	CategoryParking    = "parking"
	CategoryDebt       = "debt"
	CategoryContract   = "contract"
	CategoryGeneral    = "general"
)

type categoryRule struct {
	category string
	keywords []string
}

// Order matters: the first category with a matching keyword wins.
var categoryRules = []categoryRule{
	{CategoryEmployment, []string{"employment", "employer", "wage", "salary", "dismiss", "redundan", "holiday pay", "tribunal"}},
	{CategoryLandlord, []string{"landlord", "tenan", "deposit", "rent", "letting", "eviction", "housing"}},
	{CategoryParking, []string{"parking", "pcn", "penalty charge", "clamp"}},
	{CategoryConsumer, []string{"consumer", "faulty", "refund", "retailer", "purchase", "goods", "warranty"}},
	{CategoryDebt, []string{"debt", "loan", "owed", "invoice", "unpaid", "payment", "repay"}},
	{CategoryContract, []string{"contract", "agreement", "builder", "trader", "service"}},
}

// Categorize maps a free-text dispute type to a known category.
func Categorize(disputeType string) string {
	t := strings.ToLower(strings.TrimSpace(disputeType))
	if t == "" {
		return CategoryGeneral
	}
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}
