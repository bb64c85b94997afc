package enums

// OutboxDLQErrorReason explains why an outbox row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonUnknownEvent: no route is registered for the event type.
	OutboxDLQReasonUnknownEvent OutboxDLQErrorReason = "unknown_event"
	// OutboxDLQReasonMalformedPayload: the envelope or body does not decode,
	// or names a different sale or entry than its row.
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
	// OutboxDLQReasonUnroutable: no publisher could be opened for the topic.
	OutboxDLQReasonUnroutable OutboxDLQErrorReason = "unroutable"
	// OutboxDLQReasonBrokerRejected: Pub/Sub refused the message outright.
	OutboxDLQReasonBrokerRejected OutboxDLQErrorReason = "broker_rejected"
	// OutboxDLQReasonMaxAttempts: transient failures used up every attempt.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonUnknownEvent,
	OutboxDLQReasonMalformedPayload,
	OutboxDLQReasonUnroutable,
	OutboxDLQReasonBrokerRejected,
	OutboxDLQReasonMaxAttempts,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
