package workflow

import "fmt"

// States shared across domain tables.
const (
	StatePending        State = "pending"
	StateApproved       State = "approved"
	StatePaid           State = "paid"
	StateRejected       State = "rejected"
	StateCancelled      State = "cancelled"
	StateDraft          State = "draft"
	StateReviewing      State = "reviewing"
	StateCardReady      State = "card_ready"
	StateReceived       State = "received"
	StatePendingPayment State = "pending_payment"
	StateProcessing     State = "processing"
	StateReadyForPickup State = "ready_for_pickup"
	StateOutForDelivery State = "out_for_delivery"
	StateDelivered      State = "delivered"
	StateCompleted      State = "completed"
	StateRegistered     State = "registered"
	StateAttended       State = "attended"
)

const (
	ActionSubmit               Action = "submit"
	ActionApprove              Action = "approve"
	ActionReject               Action = "reject"
	ActionCancel               Action = "cancel"
	ActionMarkAsPaid           Action = "mark_as_paid"
	ActionMarkAsInProgress     Action = "mark_as_in_progress"
	ActionMarkAsCardReady      Action = "mark_as_card_ready"
	ActionMarkAsReceived       Action = "mark_as_received"
	ActionStartProcessing      Action = "start_processing"
	ActionMarkAsReadyForPickup Action = "mark_as_ready_for_pickup"
	ActionShipForDelivery      Action = "ship_for_delivery"
	ActionDeliver              Action = "deliver"
	ActionMarkCompleted        Action = "mark_completed"
	ActionMarkAttended         Action = "mark_attended"
)

func requirePaid(gc GuardContext) error {
	if !gc.Paid {
		return fmt.Errorf("%w: payment required", ErrInvalidTransition)
	}
	return nil
}

func requireDelivery(m DeliveryMethod) Guard {
	return func(gc GuardContext) error {
		if gc.Delivery != m {
			return fmt.Errorf("%w: delivery method is %s", ErrInvalidTransition, gc.Delivery)
		}
		return nil
	}
}

func requireTicketVerified(gc GuardContext) error {
	if !gc.TicketVerified {
		return fmt.Errorf("%w: ticket not verified", ErrInvalidTransition)
	}
	return nil
}

// MembershipTable: Pending -> Approved -> Paid | Rejected.
func MembershipTable() Table {
	return NewTable(DomainMembership, StatePending,
		Transition{From: StatePending, Action: ActionApprove, To: StateApproved},
		Transition{From: StatePending, Action: ActionReject, To: StateRejected, RequiresReason: true},
		Transition{From: StateApproved, Action: ActionMarkAsPaid, To: StatePaid},
		Transition{From: StateApproved, Action: ActionReject, To: StateRejected, RequiresReason: true},
	)
}

// SyndicateTable: Draft -> Pending -> Reviewing -> CardReady -> Received | Rejected.
// Moving into review requires the subscription fee to be paid; a received
// card can no longer be rejected.
func SyndicateTable() Table {
	return NewTable(DomainSyndicate, StateDraft,
		Transition{From: StateDraft, Action: ActionSubmit, To: StatePending},
		Transition{From: StatePending, Action: ActionMarkAsInProgress, To: StateReviewing, Guard: requirePaid},
		Transition{From: StatePending, Action: ActionReject, To: StateRejected, RequiresReason: true},
		Transition{From: StateReviewing, Action: ActionMarkAsCardReady, To: StateCardReady},
		Transition{From: StateReviewing, Action: ActionReject, To: StateRejected, RequiresReason: true},
		Transition{From: StateCardReady, Action: ActionMarkAsReceived, To: StateReceived},
		Transition{From: StateCardReady, Action: ActionReject, To: StateRejected, RequiresReason: true},
	)
}

// CertificateTable: PendingPayment -> Processing -> ReadyForPickup | OutForDelivery
// -> Delivered | Rejected. The fulfillment branch is fixed by the delivery
// method chosen at creation.
func CertificateTable() Table {
	return NewTable(DomainCertificate, StatePendingPayment,
		Transition{From: StatePendingPayment, Action: ActionStartProcessing, To: StateProcessing, Guard: requirePaid},
		Transition{From: StatePendingPayment, Action: ActionReject, To: StateRejected, RequiresReason: true},
		Transition{From: StateProcessing, Action: ActionMarkAsReadyForPickup, To: StateReadyForPickup, Guard: requireDelivery(DeliveryPickup)},
		Transition{From: StateProcessing, Action: ActionShipForDelivery, To: StateOutForDelivery, Guard: requireDelivery(DeliveryCourier)},
		Transition{From: StateProcessing, Action: ActionReject, To: StateRejected, RequiresReason: true},
		Transition{From: StateReadyForPickup, Action: ActionDeliver, To: StateDelivered},
		Transition{From: StateReadyForPickup, Action: ActionReject, To: StateRejected, RequiresReason: true},
		Transition{From: StateOutForDelivery, Action: ActionDeliver, To: StateDelivered},
		Transition{From: StateOutForDelivery, Action: ActionReject, To: StateRejected, RequiresReason: true},
	)
}

// AdvisingTable: Pending -> Approved -> Completed | Rejected | Cancelled.
// Reject is only available before approval; an approved session is
// cancelled, not rejected.
func AdvisingTable() Table {
	return NewTable(DomainAdvising, StatePending,
		Transition{From: StatePending, Action: ActionApprove, To: StateApproved},
		Transition{From: StatePending, Action: ActionReject, To: StateRejected, RequiresReason: true},
		Transition{From: StateApproved, Action: ActionMarkCompleted, To: StateCompleted},
		Transition{From: StateApproved, Action: ActionCancel, To: StateCancelled, RequiresReason: true},
	)
}

// RegistrationTable: Registered -> Attended | Cancelled. Attendance is set
// only through ticket verification and is one-way.
func RegistrationTable() Table {
	return NewTable(DomainRegistration, StateRegistered,
		Transition{From: StateRegistered, Action: ActionMarkAttended, To: StateAttended, Guard: requireTicketVerified},
		Transition{From: StateRegistered, Action: ActionCancel, To: StateCancelled, RequiresReason: true},
	)
}

var tableFactories = map[Domain]func() Table{
	DomainMembership:   MembershipTable,
	DomainSyndicate:    SyndicateTable,
	DomainCertificate:  CertificateTable,
	DomainAdvising:     AdvisingTable,
	DomainRegistration: RegistrationTable,
}

// TableFor resolves the transition table of a domain.
func TableFor(domain Domain) (Table, error) {
	factory, ok := tableFactories[domain]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return factory(), nil
}
