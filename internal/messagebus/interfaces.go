package messagebus

import "github.com/jordanhubbard/venueflow/pkg/messages"

// Bus is the outbound surface the service publishes workflow events on.
// NatsMessageBus is the production implementation; NoopBus serves single-node
// runs without a broker.
type Bus interface {
	PublishInbound(msg *messages.InboundMessage) error
	PublishDraft(draft *messages.DraftMessage) error
	PublishHilRequest(req *messages.HilRequestMessage) error
	PublishHilDecision(decision *messages.HilDecisionMessage) error
	Health() error
	Close() error
}

// NoopBus discards everything. Used when no NATS URL is configured.
type NoopBus struct{}

func (NoopBus) PublishInbound(*messages.InboundMessage) error { return nil }

func (NoopBus) PublishDraft(*messages.DraftMessage) error { return nil }

func (NoopBus) PublishHilRequest(*messages.HilRequestMessage) error { return nil }

func (NoopBus) PublishHilDecision(*messages.HilDecisionMessage) error { return nil }

func (NoopBus) Health() error { return nil }

func (NoopBus) Close() error { return nil }
