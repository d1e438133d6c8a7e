package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"feedworks/pkg/models"
)

// Change event types as emitted by the source CRUD services.
const (
	ChangeCreated  = "created"
	ChangeModified = "modified"
	ChangeRemoved  = "removed"
)

// Change event sources, identifying the originating table/stream.
const (
	SourcePosts         = "posts"
	SourceRelationships = "relationships"
)

// ChangeEvent is the envelope carried on the change topics. Exactly one of
// Post or Relationship is set, matching Source.
type ChangeEvent struct {
	EventID      string               `json:"event_id"`
	EventType    string               `json:"event_type"`
	Source       string               `json:"source"`
	Timestamp    time.Time            `json:"timestamp"`
	Post         *models.Post         `json:"post,omitempty"`
	Relationship *models.Relationship `json:"relationship,omitempty"`
}

// MalformedEventError marks an event that can never be processed. Such
// events are quarantined rather than retried.
type MalformedEventError struct {
	Reason string
}

func (e *MalformedEventError) Error() string {
	return "malformed change event: " + e.Reason
}

// Validate checks the envelope carries everything a handler needs.
func (e *ChangeEvent) Validate() error {
	switch e.EventType {
	case ChangeCreated, ChangeModified, ChangeRemoved:
	default:
		return &MalformedEventError{Reason: fmt.Sprintf("unknown event_type %q", e.EventType)}
	}

	switch e.Source {
	case SourcePosts:
		if e.Post == nil {
			return &MalformedEventError{Reason: "post event without post image"}
		}
		if e.Post.ID == "" || e.Post.Creator == "" {
			return &MalformedEventError{Reason: "post image missing id or creator"}
		}
	case SourceRelationships:
		if e.Relationship == nil {
			return &MalformedEventError{Reason: "relationship event without relationship image"}
		}
		rel := e.Relationship
		if rel.FollowerID == "" || rel.FolloweeID == "" || rel.SortKey == "" {
			return &MalformedEventError{Reason: "relationship image missing follower_id, followee_id or sk"}
		}
	default:
		return &MalformedEventError{Reason: fmt.Sprintf("unknown source %q", e.Source)}
	}

	return nil
}

// DLQPublisher publishes quarantined messages. *Producer satisfies it.
type DLQPublisher interface {
	ProduceMessage(topic string, key []byte, value []byte, headers map[string]string) error
}

// ChangeEventHandler decodes raw messages into ChangeEvents and forwards
// them. Undecodable or invalid messages are quarantined to the DLQ and
// skipped so a single poison record cannot block sibling events on the
// partition. Handler errors propagate, which blocks the partition's commit
// and lets the broker redeliver the event.
type ChangeEventHandler struct {
	handler  func(ctx context.Context, event ChangeEvent) error
	dlq      DLQPublisher
	dlqTopic string
	consumer string
	logger   *logrus.Logger
}

// NewChangeEventHandler creates a handler for change events. dlq may be nil,
// in which case quarantined messages are only logged.
func NewChangeEventHandler(handler func(ctx context.Context, event ChangeEvent) error, dlq DLQPublisher, dlqTopic, consumer string, logger *logrus.Logger) *ChangeEventHandler {
	return &ChangeEventHandler{
		handler:  handler,
		dlq:      dlq,
		dlqTopic: dlqTopic,
		consumer: consumer,
		logger:   logger,
	}
}

// HandleMessage implements the consumer Handler signature.
func (h *ChangeEventHandler) HandleMessage(ctx context.Context, msg Message) error {
	var event ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.quarantine(msg, fmt.Errorf("decode change event: %w", err))
		return nil
	}

	if err := event.Validate(); err != nil {
		h.quarantine(msg, err)
		return nil
	}

	return h.handler(ctx, event)
}

func (h *ChangeEventHandler) quarantine(msg Message, cause error) {
	h.logger.WithError(cause).WithFields(logrus.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}).Warn("Quarantining malformed change event")

	if h.dlq == nil {
		return
	}

	payload, err := EncodeDLQMessage(msg, cause, h.consumer)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode DLQ payload")
		return
	}

	if err := h.dlq.ProduceMessage(h.dlqTopic, msg.Key, payload, nil); err != nil {
		h.logger.WithError(err).Error("Failed to publish to DLQ")
	}
}
