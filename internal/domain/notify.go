package domain

// Event names emitted by the feed layer and order service.
const (
	EventConnectionLost     = "connection_lost"
	EventConnectionRestored = "connection_restored"
	EventOrderSubmitted     = "order_submitted"
	EventOrderFilled        = "order_filled"
	EventOrderRejected      = "order_rejected"
	EventOrderCancelled     = "order_cancelled"
	EventSubscribed         = "subscribed"
	EventSubscribeFailed    = "subscribe_failed"
	EventUnsubscribed       = "unsubscribed"
)
