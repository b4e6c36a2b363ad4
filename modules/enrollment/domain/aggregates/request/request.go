package request

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/workflow"
	"github.com/alumnet-hq/alumnet/pkg/serrors"
)

// PaymentState is orthogonal to the workflow status but gates some
// transitions and drives the refund decision on cancellation.
type PaymentState string

const (
	PaymentUnpaid        PaymentState = "unpaid"
	PaymentPaid          PaymentState = "paid"
	PaymentRefundPending PaymentState = "refund_pending"
	PaymentRefunded      PaymentState = "refunded"
)

var (
	ErrNotFound            = serrors.NewError("REQUEST_NOT_FOUND", "workflow request not found", "Enrollment.Errors.NotFound")
	ErrConcurrencyConflict = serrors.NewError("CONCURRENCY_CONFLICT", "workflow request was modified concurrently", "Enrollment.Errors.ConcurrencyConflict")
	// ErrDuplicateActive is the storage-level backstop for the
	// one-active-request-per-(subject, offering) rule: Create fails with it
	// when a racing insert got there first.
	ErrDuplicateActive = serrors.NewError("DUPLICATE_REGISTRATION", "an active request already exists for this subject and offering", "Enrollment.Errors.DuplicateRegistration")
)

// WorkflowRequest is one subject's lifecycle against one offering. It is
// mutated only through the workflow engine; copies returned by the With*
// methods carry the change, the receiver stays untouched.
type WorkflowRequest struct {
	id               uuid.UUID
	subjectID        uuid.UUID
	offeringID       uuid.UUID
	slotID           uuid.UUID
	domain           workflow.Domain
	status           workflow.State
	paymentState     PaymentState
	delivery         workflow.DeliveryMethod
	amount           decimal.Decimal
	adminNotes       string
	rejectionReason  string
	version          int64
	createdAt        time.Time
	lastTransitionAt time.Time
}

func New(
	subjectID uuid.UUID,
	offeringID uuid.UUID,
	slotID uuid.UUID,
	domain workflow.Domain,
	initial workflow.State,
	delivery workflow.DeliveryMethod,
	amount decimal.Decimal,
	now time.Time,
) WorkflowRequest {
	return WorkflowRequest{
		id:               uuid.New(),
		subjectID:        subjectID,
		offeringID:       offeringID,
		slotID:           slotID,
		domain:           domain,
		status:           initial,
		paymentState:     PaymentUnpaid,
		delivery:         delivery,
		amount:           amount,
		version:          1,
		createdAt:        now,
		lastTransitionAt: now,
	}
}

func Hydrate(
	id uuid.UUID,
	subjectID uuid.UUID,
	offeringID uuid.UUID,
	slotID uuid.UUID,
	domain workflow.Domain,
	status workflow.State,
	paymentState PaymentState,
	delivery workflow.DeliveryMethod,
	amount decimal.Decimal,
	adminNotes string,
	rejectionReason string,
	version int64,
	createdAt time.Time,
	lastTransitionAt time.Time,
) WorkflowRequest {
	return WorkflowRequest{
		id:               id,
		subjectID:        subjectID,
		offeringID:       offeringID,
		slotID:           slotID,
		domain:           domain,
		status:           status,
		paymentState:     paymentState,
		delivery:         delivery,
		amount:           amount,
		adminNotes:       adminNotes,
		rejectionReason:  rejectionReason,
		version:          version,
		createdAt:        createdAt,
		lastTransitionAt: lastTransitionAt,
	}
}

func (r WorkflowRequest) ID() uuid.UUID                      { return r.id }
func (r WorkflowRequest) SubjectID() uuid.UUID               { return r.subjectID }
func (r WorkflowRequest) OfferingID() uuid.UUID              { return r.offeringID }
func (r WorkflowRequest) SlotID() uuid.UUID                  { return r.slotID }
func (r WorkflowRequest) Domain() workflow.Domain            { return r.domain }
func (r WorkflowRequest) Status() workflow.State             { return r.status }
func (r WorkflowRequest) PaymentState() PaymentState         { return r.paymentState }
func (r WorkflowRequest) Delivery() workflow.DeliveryMethod  { return r.delivery }
func (r WorkflowRequest) Amount() decimal.Decimal            { return r.amount }
func (r WorkflowRequest) AdminNotes() string                 { return r.adminNotes }
func (r WorkflowRequest) RejectionReason() string            { return r.rejectionReason }
func (r WorkflowRequest) Version() int64                     { return r.version }
func (r WorkflowRequest) CreatedAt() time.Time               { return r.createdAt }
func (r WorkflowRequest) LastTransitionAt() time.Time        { return r.lastTransitionAt }
func (r WorkflowRequest) IsZero() bool                       { return r.id == uuid.Nil }
func (r WorkflowRequest) SlotBound() bool                    { return r.slotID != uuid.Nil }

// GuardContext projects the attributes transition guards inspect.
func (r WorkflowRequest) GuardContext() workflow.GuardContext {
	return workflow.GuardContext{
		Paid:     r.paymentState == PaymentPaid,
		Delivery: r.delivery,
	}
}

// WithTransition returns a copy moved to the next state. Reason and notes
// are recorded when present; timestamps are owned by the engine.
func (r WorkflowRequest) WithTransition(next workflow.State, reason, notes string, now time.Time) WorkflowRequest {
	out := r
	out.status = next
	out.lastTransitionAt = now
	if reason = strings.TrimSpace(reason); reason != "" {
		out.rejectionReason = reason
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		out.adminNotes = notes
	}
	return out
}

func (r WorkflowRequest) WithPaymentState(ps PaymentState) WorkflowRequest {
	out := r
	out.paymentState = ps
	return out
}

// CancellationRecord is the coordinator's account of one forced removal.
type CancellationRecord struct {
	RequestID       uuid.UUID
	Reason          string
	WasAutoRefunded bool
	RefundAmount    decimal.Decimal
	OccurredAt      time.Time
}
