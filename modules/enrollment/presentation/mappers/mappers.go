package mappers

import (
	"time"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/request"
)

type RequestListItem struct {
	ID               string    `json:"id"`
	SubjectID        string    `json:"subject_id"`
	OfferingID       string    `json:"offering_id"`
	SlotID           string    `json:"slot_id,omitempty"`
	Domain           string    `json:"domain"`
	Status           string    `json:"status"`
	PaymentState     string    `json:"payment_state"`
	Delivery         string    `json:"delivery,omitempty"`
	Amount           string    `json:"amount"`
	AdminNotes       string    `json:"admin_notes,omitempty"`
	RejectionReason  string    `json:"rejection_reason,omitempty"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
}

func RequestToListItem(r request.WorkflowRequest) RequestListItem {
	item := RequestListItem{
		ID:               r.ID().String(),
		SubjectID:        r.SubjectID().String(),
		OfferingID:       r.OfferingID().String(),
		Domain:           string(r.Domain()),
		Status:           string(r.Status()),
		PaymentState:     string(r.PaymentState()),
		Delivery:         string(r.Delivery()),
		Amount:           r.Amount().String(),
		AdminNotes:       r.AdminNotes(),
		RejectionReason:  r.RejectionReason(),
		Version:          r.Version(),
		CreatedAt:        r.CreatedAt(),
		LastTransitionAt: r.LastTransitionAt(),
	}
	if r.SlotBound() {
		item.SlotID = r.SlotID().String()
	}
	return item
}

type CancellationResult struct {
	RequestID       string    `json:"request_id"`
	Reason          string    `json:"reason"`
	WasAutoRefunded bool      `json:"was_auto_refunded"`
	RefundAmount    string    `json:"refund_amount"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func CancellationToResult(rec request.CancellationRecord) CancellationResult {
	return CancellationResult{
		RequestID:       rec.RequestID.String(),
		Reason:          rec.Reason,
		WasAutoRefunded: rec.WasAutoRefunded,
		RefundAmount:    rec.RefundAmount.String(),
		OccurredAt:      rec.OccurredAt,
	}
}
