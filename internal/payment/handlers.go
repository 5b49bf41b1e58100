package payment

import "github.com/mimanitas/settlement/internal/webhook"

// EventHandlers bundles the services that consume gateway events.
type EventHandlers struct {
	*Coordinator
	*Compensator
	*PayoutTracker
	*AccountSync
}

var _ webhook.Handlers = EventHandlers{}
