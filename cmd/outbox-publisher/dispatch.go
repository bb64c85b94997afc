package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox/registry"
)

// processBatch publishes one locked batch and reports whether any row was
// settled, either published or dead-lettered.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	progressed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}

		waiting := map[uuid.UUID]struct{}{}
		for _, event := range events {
			settled, err := s.dispatch(ctx, tx, event, waiting)
			if err != nil {
				return err
			}
			progressed = progressed || settled
		}
		return nil
	})
	return progressed, err
}

// dispatch handles one row. waiting holds the sales with an event left for
// retry in this batch; their later events stay unpublished until the
// earlier one goes out.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, waiting map[uuid.UUID]struct{}) (bool, error) {
	msg, err := s.registry.Resolve(event)
	if err != nil {
		reason, ok := registry.RejectReason(err)
		if !ok {
			reason = enums.OutboxDLQReasonMalformedPayload
		}
		return true, s.deadLetter(s.logg.WithFields(ctx, rowFields(event)), tx, event, reason, err)
	}

	ctx = s.logg.WithFields(ctx, messageFields(event, msg))
	if _, blocked := waiting[msg.SaleID]; blocked {
		s.metrics.IncHeldBack(string(event.EventType))
		s.logg.Debug(ctx, "outbox event held behind an earlier event of its sale")
		return false, nil
	}

	err = s.publish(ctx, event, msg)
	if err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return false, fmt.Errorf("mark outbox event %s published: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(ctx, "outbox event published")
		return true, nil
	}

	if reason, rejected := registry.RejectReason(err); rejected {
		return true, s.deadLetter(ctx, tx, event, reason, err)
	}
	attempt := event.AttemptCount + 1
	if attempt >= s.maxAttempts {
		return true, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
	}

	waiting[msg.SaleID] = struct{}{}
	if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
		return false, fmt.Errorf("mark outbox event %s failed: %w", event.ID, err)
	}
	s.metrics.IncFailed(string(event.EventType))
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"attempt": attempt, "error": err.Error()}), "outbox publish failed; will retry")
	return false, nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, msg *registry.Message) error {
	topic := msg.Route.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.Reject(enums.OutboxDLQReasonUnroutable, fmt.Errorf("no publisher for topic %s", topic))
	}

	key := msg.OrderingKey()
	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: key,
		Attributes:  messageAttributes(event, msg),
	})
	if _, err := result.Get(publishCtx); err != nil {
		// A failed publish pauses its ordering key until resumed.
		pub.ResumePublish(key)
		if status.Code(err) == codes.InvalidArgument {
			return registry.Reject(enums.OutboxDLQReasonBrokerRejected, err)
		}
		return err
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if err := s.repo.DeadLetterTx(tx, event, reason, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("dead-letter outbox event %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"dlq_reason": reason,
		"error":      cause.Error(),
	}), "outbox event dead-lettered")
	return nil
}

// messageAttributes combines the envelope metadata with what the body
// contributes, such as the sale kind or the reconciliation reason.
func messageAttributes(event models.OutboxEvent, msg *registry.Message) map[string]string {
	attrs := msg.Body.Attributes()
	attrs["event_id"] = msg.Envelope.EventID
	attrs["event_type"] = string(event.EventType)
	attrs["aggregate_type"] = string(event.AggregateType)
	attrs["aggregate_id"] = event.AggregateID.String()
	attrs["sale_id"] = msg.SaleID.String()
	attrs["schema_version"] = strconv.Itoa(msg.Envelope.Version)
	attrs["occurred_at"] = msg.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	if actor := msg.Envelope.Actor; actor != nil {
		attrs["actor_id"] = actor.UserID.String()
		if actor.Role != "" {
			attrs["actor_role"] = actor.Role
		}
	}
	return attrs
}

func rowFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func messageFields(event models.OutboxEvent, msg *registry.Message) map[string]any {
	fields := rowFields(event)
	fields["sale_id"] = msg.SaleID.String()
	fields["topic"] = msg.Route.Topic
	fields["event_id"] = msg.Envelope.EventID
	return fields
}
