package domain

import "strings"

// Classification is the intent category assigned to a turn's text.
type Classification string

const (
	UpdateShoppingCart Classification = "UPDATE_SHOPPING_CART"
	ViewShoppingCart   Classification = "VIEW_SHOPPING_CART"
	PlaceOrder         Classification = "PLACE_ORDER"
	SearchForProducts  Classification = "SEARCH_FOR_PRODUCTS"
	SomethingElse      Classification = "SOMETHING_ELSE"
)

// Classifications lists every known tag in prompt order.
var Classifications = []Classification{
	UpdateShoppingCart,
	ViewShoppingCart,
	PlaceOrder,
	SearchForProducts,
	SomethingElse,
}

// ParseClassification maps a label to a known tag. Unknown or empty labels
// become SomethingElse.
func ParseClassification(label string) Classification {
	label = strings.ToUpper(strings.TrimSpace(label))
	label = strings.ReplaceAll(label, " ", "_")
	for _, c := range Classifications {
		if string(c) == label {
			return c
		}
	}
	return SomethingElse
}

// DPResponse is the result of a classifier, completion or cart call.
type DPResponse struct {
	Classification Classification
	ResponseText   string
	ProductIDs     []string
}
