package domain

// SessionInfo carries the pet-store session bound to a conversation and the
// text of the current turn.
type SessionInfo struct {
	SessionID string
	CSRFToken string
	Text      string
}

// Valid reports whether both identifiers are present.
func (s SessionInfo) Valid() bool {
	return s.SessionID != "" && s.CSRFToken != ""
}

// CartUpdate is the outcome of adding a product to a shopper's cart.
type CartUpdate struct {
	ProductID   string
	ProductName string
	Quantity    int
}
