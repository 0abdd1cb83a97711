// Package messagebus connects the workflow core to NATS JetStream. Inbound
// client messages, released drafts and HIL traffic each get their own subject
// space under one durable stream.
package messagebus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jordanhubbard/venueflow/pkg/messages"
)

// NatsMessageBus implements the bus over NATS with JetStream.
type NatsMessageBus struct {
	conn           *nats.Conn
	js             nats.JetStreamContext
	subscriptions  map[string]*nats.Subscription
	streamName     string
	url            string
	consumerPrefix string
}

// Config holds NATS configuration.
type Config struct {
	URL            string        // NATS server URL (e.g., "nats://nats:4222")
	StreamName     string        // JetStream stream name (default: "VENUEFLOW")
	Timeout        time.Duration // Connection timeout
	ConsumerPrefix string        // Prefix for durable consumer names (for test isolation)
}

// NewNatsMessageBus connects and ensures the stream exists.
func NewNatsMessageBus(cfg Config) (*NatsMessageBus, error) {
	if cfg.URL == "" {
		cfg.URL = "nats://localhost:4222"
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "VENUEFLOW"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	mb := &NatsMessageBus{
		conn:           nc,
		js:             js,
		subscriptions:  make(map[string]*nats.Subscription),
		streamName:     cfg.StreamName,
		url:            cfg.URL,
		consumerPrefix: cfg.ConsumerPrefix,
	}

	if err := mb.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	log.Printf("Connected to NATS at %s with JetStream stream %s", cfg.URL, cfg.StreamName)
	return mb, nil
}

// ensureStream creates or updates the JetStream stream. LimitsPolicy (not
// WorkQueue) so multiple consumers can observe draft and HIL subjects.
func (mb *NatsMessageBus) ensureStream() error {
	streamConfig := &nats.StreamConfig{
		Name:      mb.streamName,
		Subjects:  []string{"venueflow.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024, // 1GB
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}

	_, err := mb.js.StreamInfo(mb.streamName)
	if err != nil {
		if _, err = mb.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		log.Printf("Created JetStream stream: %s", mb.streamName)
		return nil
	}
	if _, err = mb.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("failed to update stream: %w", err)
	}
	return nil
}

// PublishInbound publishes a client message for processing.
func (mb *NatsMessageBus) PublishInbound(msg *messages.InboundMessage) error {
	subject := fmt.Sprintf("venueflow.messages.%s", msg.ConversationID)
	return mb.publish(subject, msg)
}

// PublishDraft publishes a released client-facing draft.
func (mb *NatsMessageBus) PublishDraft(draft *messages.DraftMessage) error {
	subject := fmt.Sprintf("venueflow.drafts.%s", draft.ConversationID)
	return mb.publish(subject, draft)
}

// PublishHilRequest announces a draft parked for approval.
func (mb *NatsMessageBus) PublishHilRequest(req *messages.HilRequestMessage) error {
	return mb.publish("venueflow.hil.requests", req)
}

// PublishHilDecision publishes an approve/reject decision.
func (mb *NatsMessageBus) PublishHilDecision(decision *messages.HilDecisionMessage) error {
	return mb.publish("venueflow.hil.decisions", decision)
}

func (mb *NatsMessageBus) publish(subject string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err = mb.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message to %s: %w", subject, err)
	}
	return nil
}

// SubscribeInbound subscribes to client messages across all conversations.
func (mb *NatsMessageBus) SubscribeInbound(handler func(*messages.InboundMessage)) error {
	return mb.subscribe("venueflow.messages.*", "messages-all", func(msg *nats.Msg) {
		var inbound messages.InboundMessage
		if err := json.Unmarshal(msg.Data, &inbound); err != nil {
			log.Printf("Failed to unmarshal inbound message: %v", err)
			msg.Nak()
			return
		}
		handler(&inbound)
		msg.Ack()
	})
}

// SubscribeDrafts subscribes to released drafts for one conversation.
func (mb *NatsMessageBus) SubscribeDrafts(conversationID string, handler func(*messages.DraftMessage)) error {
	subject := fmt.Sprintf("venueflow.drafts.%s", conversationID)
	consumerName := fmt.Sprintf("drafts-%s", conversationID)

	return mb.subscribe(subject, consumerName, func(msg *nats.Msg) {
		var draft messages.DraftMessage
		if err := json.Unmarshal(msg.Data, &draft); err != nil {
			log.Printf("Failed to unmarshal draft message: %v", err)
			msg.Nak()
			return
		}
		handler(&draft)
		msg.Ack()
	})
}

// SubscribeHilRequests subscribes to parked-draft announcements, e.g. for a
// manager notification channel.
func (mb *NatsMessageBus) SubscribeHilRequests(handler func(*messages.HilRequestMessage)) error {
	return mb.subscribe("venueflow.hil.requests", "hil-requests", func(msg *nats.Msg) {
		var req messages.HilRequestMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("Failed to unmarshal hil request: %v", err)
			msg.Nak()
			return
		}
		handler(&req)
		msg.Ack()
	})
}

// SubscribeHilDecisions subscribes to approve/reject decisions.
func (mb *NatsMessageBus) SubscribeHilDecisions(handler func(*messages.HilDecisionMessage)) error {
	return mb.subscribe("venueflow.hil.decisions", "hil-decisions", func(msg *nats.Msg) {
		var decision messages.HilDecisionMessage
		if err := json.Unmarshal(msg.Data, &decision); err != nil {
			log.Printf("Failed to unmarshal hil decision: %v", err)
			msg.Nak()
			return
		}
		handler(&decision)
		msg.Ack()
	})
}

// Conn returns the underlying NATS connection for advanced use.
func (mb *NatsMessageBus) Conn() *nats.Conn {
	return mb.conn
}

func (mb *NatsMessageBus) prefixConsumer(name string) string {
	if mb.consumerPrefix != "" {
		return mb.consumerPrefix + "-" + name
	}
	return name
}

func (mb *NatsMessageBus) subscribe(subject, consumerName string, handler nats.MsgHandler) error {
	prefixed := mb.prefixConsumer(consumerName)
	sub, err := mb.js.Subscribe(subject, handler,
		nats.Durable(prefixed),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	mb.subscriptions[subject] = sub
	log.Printf("Subscribed to %s with consumer %s", subject, prefixed)
	return nil
}

// Unsubscribe removes a subscription.
func (mb *NatsMessageBus) Unsubscribe(subject string) error {
	sub, ok := mb.subscriptions[subject]
	if !ok {
		return fmt.Errorf("no subscription found for %s", subject)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
	}
	delete(mb.subscriptions, subject)
	return nil
}

// Close closes all subscriptions and the NATS connection.
func (mb *NatsMessageBus) Close() error {
	for subject := range mb.subscriptions {
		_ = mb.Unsubscribe(subject)
	}
	mb.conn.Close()
	log.Printf("Closed NATS connection")
	return nil
}

// Health reports connection and stream health.
func (mb *NatsMessageBus) Health() error {
	if mb.conn.IsClosed() {
		return fmt.Errorf("NATS connection is closed")
	}
	if !mb.conn.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}
	if _, err := mb.js.StreamInfo(mb.streamName); err != nil {
		return fmt.Errorf("JetStream stream %s is unhealthy: %w", mb.streamName, err)
	}
	return nil
}

// Stats returns statistics about the message bus.
func (mb *NatsMessageBus) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	stats["url"] = mb.url
	stats["stream"] = mb.streamName
	stats["connected"] = mb.conn.IsConnected()
	stats["subscriptions"] = len(mb.subscriptions)

	streamInfo, err := mb.js.StreamInfo(mb.streamName)
	if err == nil {
		stats["stream_messages"] = streamInfo.State.Msgs
		stats["stream_bytes"] = streamInfo.State.Bytes
		stats["stream_consumers"] = streamInfo.State.Consumers
	}
	return stats
}
