package workflow

import (
	"fmt"
	"strings"

	"github.com/alumnet-hq/alumnet/pkg/serrors"
)

// Domain identifies which lifecycle a request follows. Each domain owns a
// transition table; the engine itself is shared.
type Domain string

const (
	DomainMembership   Domain = "membership"
	DomainSyndicate    Domain = "syndicate"
	DomainCertificate  Domain = "certificate"
	DomainAdvising     Domain = "advising"
	DomainRegistration Domain = "registration"
)

type State string

type Action string

// DeliveryMethod selects the fulfillment branch of the certificate lifecycle.
// It is fixed at creation time.
type DeliveryMethod string

const (
	DeliveryPickup  DeliveryMethod = "pickup"
	DeliveryCourier DeliveryMethod = "courier"
)

var (
	ErrInvalidTransition = serrors.NewError("INVALID_TRANSITION", "transition not permitted from current state", "Enrollment.Errors.InvalidTransition")
	ErrAlreadyFinalized  = serrors.NewError("ALREADY_FINALIZED", "request is in a terminal state", "Enrollment.Errors.AlreadyFinalized")
	ErrMissingReason     = serrors.NewError("MISSING_REASON", "a non-empty reason is required", "Enrollment.Errors.MissingReason")
	ErrUnknownDomain     = serrors.NewError("UNKNOWN_DOMAIN", "no transition table for domain", "Enrollment.Errors.UnknownDomain")
)

// GuardContext carries the request attributes transition guards may inspect.
type GuardContext struct {
	Paid           bool
	Delivery       DeliveryMethod
	TicketVerified bool
}

type Guard func(gc GuardContext) error

// Transition is one permitted edge of a domain's lifecycle graph.
type Transition struct {
	From           State
	Action         Action
	To             State
	RequiresReason bool
	Guard          Guard
}

// Table is the guarded transition graph for one domain. A state with no
// outgoing edges is terminal.
type Table struct {
	domain  Domain
	initial State
	edges   map[State]map[Action]Transition
}

func NewTable(domain Domain, initial State, transitions ...Transition) Table {
	edges := make(map[State]map[Action]Transition, len(transitions))
	for _, tr := range transitions {
		byAction, ok := edges[tr.From]
		if !ok {
			byAction = make(map[Action]Transition)
			edges[tr.From] = byAction
		}
		if _, dup := byAction[tr.Action]; dup {
			panic(fmt.Sprintf("workflow: duplicate transition (%s, %s) in %s table", tr.From, tr.Action, domain))
		}
		byAction[tr.Action] = tr
	}
	return Table{domain: domain, initial: initial, edges: edges}
}

func (t Table) Domain() Domain { return t.domain }

func (t Table) Initial() State { return t.initial }

// Terminal reports whether no action can move a request out of s.
func (t Table) Terminal(s State) bool {
	return len(t.edges[s]) == 0
}

// Next resolves the state reached by applying action in state current.
// Terminal states refuse every action, including repeats of the one that
// got them there.
func (t Table) Next(current State, action Action, gc GuardContext, reason string) (State, error) {
	if t.Terminal(current) {
		return "", ErrAlreadyFinalized
	}

	tr, ok := t.edges[current][action]
	if !ok {
		return "", fmt.Errorf("%w: (%s, %s)", ErrInvalidTransition, current, action)
	}
	if tr.RequiresReason && strings.TrimSpace(reason) == "" {
		return "", ErrMissingReason
	}
	if tr.Guard != nil {
		if err := tr.Guard(gc); err != nil {
			return "", err
		}
	}
	return tr.To, nil
}

// Cancel is the forced-removal path used by the cancellation coordinator.
// It bypasses the per-domain edges but never a terminal state, and demands
// a reason like any other destructive action.
func (t Table) Cancel(current State, reason string) (State, error) {
	if t.Terminal(current) {
		return "", ErrAlreadyFinalized
	}
	if strings.TrimSpace(reason) == "" {
		return "", ErrMissingReason
	}
	return StateCancelled, nil
}
