// Package chat models inbound events from a live-streaming chat platform
// and adapts concrete platforms onto a neutral event stream.
package chat

import "context"

// Kind discriminates inbound event types.
type Kind string

const (
	KindChat Kind = "chat"
	KindJoin Kind = "join"
	KindGift Kind = "gift"
)

// Event is a platform-neutral chat event. The orchestrator consumes the
// identity, the free-text answer and the profile reference; everything
// else is cosmetic.
type Event struct {
	Kind         Kind
	Username     string
	ProfileImage string
	Text         string
	GiftName     string
	GiftCount    int
}

// Handler consumes one event. Handlers must not block: the orchestrator
// decides accept/reject synchronously so answer order is deterministic
// relative to arrival order.
type Handler func(Event)

// Source is a running connection to a chat platform that feeds a Handler.
type Source interface {
	Run(ctx context.Context) error
}
