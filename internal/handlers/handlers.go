package handlers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"feedworks/internal/fanout"
	"feedworks/pkg/kafka"
	"feedworks/pkg/logging"
)

// FanoutMetrics holds all Prometheus metrics for the fan-out service
type FanoutMetrics struct {
	ChangeEvents   *prometheus.CounterVec
	FanoutDuration *prometheus.HistogramVec
	KafkaMessages  *prometheus.CounterVec
	KafkaDuration  *prometheus.HistogramVec
	KafkaLag       *prometheus.GaugeVec
}

// FanoutHandler routes change events into the fan-out engine
type FanoutHandler struct {
	engine  *fanout.Engine
	logger  logging.Logger
	metrics *FanoutMetrics
}

// NewFanoutHandler creates a new fan-out handler
func NewFanoutHandler(engine *fanout.Engine, logger logging.Logger, metrics *FanoutMetrics) *FanoutHandler {
	return &FanoutHandler{
		engine:  engine,
		logger:  logger,
		metrics: metrics,
	}
}

// HandleChangeEvent classifies one change event and drives the matching
// fan-out policy. A returned error marks the event unprocessed so the
// consumer redelivers it; no work is dropped silently.
func (h *FanoutHandler) HandleChangeEvent(ctx context.Context, event kafka.ChangeEvent) error {
	start := time.Now()

	if h.metrics != nil {
		h.metrics.ChangeEvents.WithLabelValues(event.Source, event.EventType, "received").Inc()
	}

	var err error
	status := "processed"

	switch event.Source {
	case kafka.SourcePosts:
		err = h.handlePostEvent(ctx, event)
	case kafka.SourceRelationships:
		status, err = h.handleRelationshipEvent(ctx, event)
	}

	if h.metrics != nil {
		if err != nil {
			status = "error"
		}
		h.metrics.ChangeEvents.WithLabelValues(event.Source, event.EventType, status).Inc()
		h.metrics.FanoutDuration.WithLabelValues(event.Source).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		h.logger.WithError(err).WithFields(logging.Fields{
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"source":     event.Source,
		}).Error("Failed to process change event")
	}

	return err
}

func (h *FanoutHandler) handlePostEvent(ctx context.Context, event kafka.ChangeEvent) error {
	post := *event.Post

	switch event.EventType {
	case kafka.ChangeCreated:
		return h.engine.HandlePostCreated(ctx, post)
	case kafka.ChangeRemoved:
		return h.engine.HandlePostRemoved(ctx, post)
	case kafka.ChangeModified:
		// Timeline rows copy immutable linkage only; counter updates on the
		// post need no re-materialization.
		h.logger.WithField("post_id", post.ID).Debug("Ignoring post modification")
		return nil
	}
	return nil
}

func (h *FanoutHandler) handleRelationshipEvent(ctx context.Context, event kafka.ChangeEvent) (string, error) {
	rel := *event.Relationship

	if !rel.IsFollows() {
		h.logger.WithFields(logging.Fields{
			"follower": rel.FollowerID,
			"sk":       rel.SortKey,
		}).Debug("Ignoring non-FOLLOWS relationship event")
		return "skipped", nil
	}

	switch event.EventType {
	case kafka.ChangeCreated:
		return "processed", h.engine.HandleFollowCreated(ctx, rel)
	case kafka.ChangeRemoved:
		return "processed", h.engine.HandleFollowRemoved(ctx, rel)
	case kafka.ChangeModified:
		// Follow edges carry no mutable attributes this service reads.
		return "skipped", nil
	}
	return "skipped", nil
}
