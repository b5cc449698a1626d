package domain

// SubscriptionPhase is one state of the per-symbol subscription machine.
type SubscriptionPhase string

const (
	PhaseUnsubscribed       SubscriptionPhase = "UNSUBSCRIBED"
	PhasePendingSubscribe   SubscriptionPhase = "PENDING_SUBSCRIBE"
	PhaseSubscribed         SubscriptionPhase = "SUBSCRIBED"
	PhasePendingUnsubscribe SubscriptionPhase = "PENDING_UNSUBSCRIBE"
)

// Streams selects which market-data streams a subscription carries.
type Streams struct {
	Trades bool `json:"trades"`
	Quotes bool `json:"quotes"`
	Bars   bool `json:"bars"`
}

// Any reports whether at least one stream is selected.
func (s Streams) Any() bool {
	return s.Trades || s.Quotes || s.Bars
}

// SymbolSubscription is the local state of one symbol.
type SymbolSubscription struct {
	Symbol  string            `json:"symbol"`
	Phase   SubscriptionPhase `json:"phase"`
	Streams Streams           `json:"streams"`
	Adopted bool              `json:"adopted,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// SubscriptionState is the connection flag plus the symbols considered
// active (Subscribed).
type SubscriptionState struct {
	Connected     bool                 `json:"connected"`
	ActiveSymbols []string             `json:"active_symbols"`
	Symbols       []SymbolSubscription `json:"symbols"`
}
