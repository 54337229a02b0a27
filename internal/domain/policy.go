package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Edge is one legal move out of a status, tagged with the roles allowed to
// trigger it.
type Edge struct {
	Target Status
	Roles  []Role
	// RequiresPayment gates the edge on the payment subsystem having verified
	// the payment for the stage the case is waiting on.
	RequiresPayment bool
}

func (e Edge) Allows(role Role) bool {
	for _, r := range e.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Policy is the immutable transition table. Build it once at startup with
// NewPolicy and share it by reference.
type Policy struct {
	edges map[Status][]Edge
}

var (
	clientOrAdmin   = []Role{RoleClient, RoleAdmin}
	designerOrAdmin = []Role{RoleDesigner, RoleAdmin}
	adminOrSystem   = []Role{RoleAdmin, RoleSystem}
	clientOrSystem  = []Role{RoleClient, RoleSystem}
	clientOnly      = []Role{RoleClient}
	adminOnly       = []Role{RoleAdmin}
)

func cancel() Edge { return Edge{Target: StatusCancelled, Roles: clientOrAdmin} }

// DefaultTransitionTable returns a fresh copy of the business policy table.
func DefaultTransitionTable() map[Status][]Edge {
	return map[Status][]Edge{
		StatusSubmitted: {
			{Target: StatusPendingStudyPaymentVerification, Roles: clientOrSystem},
			{Target: StatusQuotePending, Roles: designerOrAdmin},
			cancel(),
		},
		StatusPendingStudyPaymentVerification: {
			{Target: StatusStudyInProgress, Roles: adminOrSystem, RequiresPayment: true},
			{Target: StatusRefundRequested, Roles: clientOnly},
			cancel(),
		},
		StatusStudyInProgress: {
			{Target: StatusStudyCompleted, Roles: designerOrAdmin},
			{Target: StatusRefundRequested, Roles: clientOnly},
			cancel(),
		},
		StatusStudyCompleted: {
			{Target: StatusQuotePending, Roles: designerOrAdmin},
			{Target: StatusCompleted, Roles: clientOrAdmin},
			cancel(),
		},
		StatusQuotePending: {
			{Target: StatusQuoteSent, Roles: designerOrAdmin},
			cancel(),
		},
		StatusQuoteSent: {
			{Target: StatusQuoteAccepted, Roles: clientOnly},
			{Target: StatusQuoteRejected, Roles: clientOnly},
			{Target: StatusQuotePending, Roles: designerOrAdmin},
			cancel(),
		},
		StatusQuoteAccepted: {
			{Target: StatusPendingProductionPaymentVerification, Roles: clientOrSystem},
			cancel(),
		},
		StatusQuoteRejected: {
			{Target: StatusQuotePending, Roles: designerOrAdmin},
			cancel(),
		},
		StatusPendingProductionPaymentVerification: {
			{Target: StatusInProduction, Roles: adminOrSystem, RequiresPayment: true},
			{Target: StatusRefundRequested, Roles: clientOnly},
			cancel(),
		},
		StatusInProduction: {
			{Target: StatusPendingResponse, Roles: designerOrAdmin},
			{Target: StatusProductionCompleted, Roles: designerOrAdmin},
			{Target: StatusRefundRequested, Roles: clientOnly},
			cancel(),
		},
		StatusPendingResponse: {
			{Target: StatusInProduction, Roles: clientOrAdmin},
			cancel(),
		},
		StatusProductionCompleted: {
			{Target: StatusReadyForPickup, Roles: adminOnly},
			{Target: StatusOutForDelivery, Roles: adminOnly},
			cancel(),
		},
		StatusReadyForPickup: {
			{Target: StatusCompleted, Roles: clientOrAdmin},
			cancel(),
		},
		StatusOutForDelivery: {
			{Target: StatusDelivered, Roles: adminOrSystem},
			cancel(),
		},
		StatusRefundRequested: {
			{Target: StatusRefunded, Roles: adminOnly},
			cancel(),
		},
	}
}

// DefaultPolicy builds the policy from DefaultTransitionTable.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultTransitionTable())
	if err != nil {
		panic(fmt.Sprintf("default transition table is invalid: %v", err))
	}
	return p
}

// NewPolicy validates table and returns an immutable Policy holding a deep
// copy of it.
func NewPolicy(table map[Status][]Edge) (*Policy, error) {
	var errs []error
	edges := make(map[Status][]Edge, len(table))

	for from, list := range table {
		if !from.Valid() {
			errs = append(errs, fmt.Errorf("unknown source status %q", from))
			continue
		}
		if from.IsTerminal() && len(list) > 0 {
			errs = append(errs, fmt.Errorf("terminal status %q has outgoing edges", from))
			continue
		}

		seen := make(map[Status]bool, len(list))
		copied := make([]Edge, 0, len(list))
		for _, e := range list {
			switch {
			case !e.Target.Valid():
				errs = append(errs, fmt.Errorf("%s: unknown target status %q", from, e.Target))
				continue
			case e.Target == from:
				errs = append(errs, fmt.Errorf("%s: self transition is not allowed", from))
				continue
			case seen[e.Target]:
				errs = append(errs, fmt.Errorf("%s: duplicate edge to %s", from, e.Target))
				continue
			case len(e.Roles) == 0:
				errs = append(errs, fmt.Errorf("%s -> %s: edge has no roles", from, e.Target))
				continue
			}
			for _, r := range e.Roles {
				if !r.Valid() {
					errs = append(errs, fmt.Errorf("%s -> %s: unknown role %q", from, e.Target, r))
				}
			}
			seen[e.Target] = true
			roles := make([]Role, len(e.Roles))
			copy(roles, e.Roles)
			copied = append(copied, Edge{Target: e.Target, Roles: roles, RequiresPayment: e.RequiresPayment})
		}
		sortEdges(copied)
		edges[from] = copied
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Policy{edges: edges}, nil
}

// Edge returns the edge from -> to if the table contains it.
func (p *Policy) Edge(from, to Status) (Edge, bool) {
	for _, e := range p.edges[from] {
		if e.Target == to {
			return e, true
		}
	}
	return Edge{}, false
}

// CanTransition reports whether role may move a case from -> to through the
// normal flow.
func (p *Policy) CanTransition(from, to Status, role Role) bool {
	e, ok := p.Edge(from, to)
	return ok && e.Allows(role)
}

// Targets returns every status reachable from `from` by any role.
func (p *Policy) Targets(from Status) []Status {
	out := make([]Status, 0, len(p.edges[from]))
	for _, e := range p.edges[from] {
		out = append(out, e.Target)
	}
	return out
}

// TargetsFor returns the statuses role may reach from `from`.
func (p *Policy) TargetsFor(from Status, role Role) []Status {
	out := make([]Status, 0, len(p.edges[from]))
	for _, e := range p.edges[from] {
		if e.Allows(role) {
			out = append(out, e.Target)
		}
	}
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		return statusOrder[edges[i].Target] < statusOrder[edges[j].Target]
	})
}
