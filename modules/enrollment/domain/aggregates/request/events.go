package request

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
)

// Outbox topics consumed by the notification dispatcher.
const (
	TopicStatusChanged        = "enrollment.status_changed"
	TopicCancellationOccurred = "enrollment.cancellation_occurred"
)

type CreatedEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	RequestID  uuid.UUID       `json:"request_id"`
	SubjectID  uuid.UUID       `json:"subject_id"`
	OfferingID uuid.UUID       `json:"offering_id"`
	Domain     workflow.Domain `json:"domain"`
	Status     workflow.State  `json:"status"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type StatusChangedEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	RequestID  uuid.UUID       `json:"request_id"`
	SubjectID  uuid.UUID       `json:"subject_id"`
	Domain     workflow.Domain `json:"domain"`
	Action     workflow.Action `json:"action"`
	From       workflow.State  `json:"from"`
	To         workflow.State  `json:"to"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type CancellationOccurredEvent struct {
	EventID         uuid.UUID       `json:"event_id"`
	RequestID       uuid.UUID       `json:"request_id"`
	SubjectID       uuid.UUID       `json:"subject_id"`
	Reason          string          `json:"reason"`
	WasAutoRefunded bool            `json:"was_auto_refunded"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

func NewCreatedEvent(r WorkflowRequest, now time.Time) CreatedEvent {
	return CreatedEvent{
		EventID:    uuid.New(),
		RequestID:  r.ID(),
		SubjectID:  r.SubjectID(),
		OfferingID: r.OfferingID(),
		Domain:     r.Domain(),
		Status:     r.Status(),
		OccurredAt: now,
	}
}

func NewStatusChangedEvent(r WorkflowRequest, action workflow.Action, from workflow.State, now time.Time) StatusChangedEvent {
	return StatusChangedEvent{
		EventID:    uuid.New(),
		RequestID:  r.ID(),
		SubjectID:  r.SubjectID(),
		Domain:     r.Domain(),
		Action:     action,
		From:       from,
		To:         r.Status(),
		OccurredAt: now,
	}
}

func NewCancellationOccurredEvent(r WorkflowRequest, rec CancellationRecord) CancellationOccurredEvent {
	return CancellationOccurredEvent{
		EventID:         uuid.New(),
		RequestID:       rec.RequestID,
		SubjectID:       r.SubjectID(),
		Reason:          rec.Reason,
		WasAutoRefunded: rec.WasAutoRefunded,
		RefundAmount:    rec.RefundAmount,
		OccurredAt:      rec.OccurredAt,
	}
}
