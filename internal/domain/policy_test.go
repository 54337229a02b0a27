package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_TerminalStatusesHaveNoTargets(t *testing.T) {
	p := DefaultPolicy()

	for _, s := range AllStatuses() {
		if !s.IsTerminal() {
			continue
		}
		assert.Empty(t, p.Targets(s), "terminal status %s", s)
		for _, r := range []Role{RoleClient, RoleDesigner, RoleAdmin, RoleSystem} {
			assert.Empty(t, p.TargetsFor(s, r), "terminal status %s role %s", s, r)
		}
	}
}

func TestDefaultPolicy_NoSelfTransitions(t *testing.T) {
	p := DefaultPolicy()

	for _, s := range AllStatuses() {
		for _, r := range []Role{RoleClient, RoleDesigner, RoleAdmin, RoleSystem} {
			assert.False(t, p.CanTransition(s, s, r), "%s -> %s allowed for %s", s, s, r)
		}
	}
}

func TestDefaultPolicy_EveryNonTerminalStatusCanBeCancelled(t *testing.T) {
	p := DefaultPolicy()

	for _, s := range AllStatuses() {
		if s.IsTerminal() {
			continue
		}
		assert.True(t, p.CanTransition(s, StatusCancelled, RoleClient), "client cancel from %s", s)
		assert.True(t, p.CanTransition(s, StatusCancelled, RoleAdmin), "admin cancel from %s", s)
		assert.False(t, p.CanTransition(s, StatusCancelled, RoleDesigner), "designer cancel from %s", s)
	}
}

func TestDefaultPolicy_RoleGates(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name string
		from Status
		to   Status
		role Role
		want bool
	}{
		{"client accepts quote", StatusQuoteSent, StatusQuoteAccepted, RoleClient, true},
		{"designer cannot accept quote", StatusQuoteSent, StatusQuoteAccepted, RoleDesigner, false},
		{"admin cannot accept quote", StatusQuoteSent, StatusQuoteAccepted, RoleAdmin, false},
		{"admin verifies study payment", StatusPendingStudyPaymentVerification, StatusStudyInProgress, RoleAdmin, true},
		{"system verifies study payment", StatusPendingStudyPaymentVerification, StatusStudyInProgress, RoleSystem, true},
		{"client cannot verify study payment", StatusPendingStudyPaymentVerification, StatusStudyInProgress, RoleClient, false},
		{"only admin refunds", StatusRefundRequested, StatusRefunded, RoleAdmin, true},
		{"designer cannot refund", StatusRefundRequested, StatusRefunded, RoleDesigner, false},
		{"admin dispatches", StatusProductionCompleted, StatusOutForDelivery, RoleAdmin, true},
		{"system marks delivered", StatusOutForDelivery, StatusDelivered, RoleSystem, true},
		{"no skipping production", StatusQuoteAccepted, StatusInProduction, RoleAdmin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.CanTransition(tt.from, tt.to, tt.role))
		})
	}
}

func TestPolicy_TargetsAreSortedInPipelineOrder(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, []Status{
		StatusQuoteAccepted,
		StatusQuoteRejected,
		StatusCancelled,
	}, p.TargetsFor(StatusQuoteSent, RoleClient))

	assert.Equal(t, []Status{
		StatusQuotePending,
		StatusQuoteAccepted,
		StatusQuoteRejected,
		StatusCancelled,
	}, p.Targets(StatusQuoteSent))
}

func TestPolicy_PaymentGatedEdges(t *testing.T) {
	p := DefaultPolicy()

	e, ok := p.Edge(StatusPendingStudyPaymentVerification, StatusStudyInProgress)
	require.True(t, ok)
	assert.True(t, e.RequiresPayment)

	e, ok = p.Edge(StatusPendingProductionPaymentVerification, StatusInProduction)
	require.True(t, ok)
	assert.True(t, e.RequiresPayment)

	e, ok = p.Edge(StatusSubmitted, StatusQuotePending)
	require.True(t, ok)
	assert.False(t, e.RequiresPayment)
}

func TestNewPolicy_RejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name  string
		table map[Status][]Edge
	}{
		{"unknown source", map[Status][]Edge{"archived": {{Target: StatusCancelled, Roles: adminOnly}}}},
		{"unknown target", map[Status][]Edge{StatusSubmitted: {{Target: "archived", Roles: adminOnly}}}},
		{"self loop", map[Status][]Edge{StatusSubmitted: {{Target: StatusSubmitted, Roles: adminOnly}}}},
		{"terminal source", map[Status][]Edge{StatusCancelled: {{Target: StatusSubmitted, Roles: adminOnly}}}},
		{"no roles", map[Status][]Edge{StatusSubmitted: {{Target: StatusCancelled}}}},
		{"unknown role", map[Status][]Edge{StatusSubmitted: {{Target: StatusCancelled, Roles: []Role{"guest"}}}}},
		{"duplicate edge", map[Status][]Edge{StatusSubmitted: {
			{Target: StatusCancelled, Roles: adminOnly},
			{Target: StatusCancelled, Roles: clientOnly},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPolicy(tt.table)
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestNewPolicy_CopiesTable(t *testing.T) {
	roles := []Role{RoleAdmin}
	table := map[Status][]Edge{
		StatusSubmitted: {{Target: StatusQuotePending, Roles: roles}},
	}

	p, err := NewPolicy(table)
	require.NoError(t, err)

	roles[0] = RoleClient
	table[StatusSubmitted] = append(table[StatusSubmitted], Edge{Target: StatusCancelled, Roles: clientOnly})

	assert.True(t, p.CanTransition(StatusSubmitted, StatusQuotePending, RoleAdmin))
	assert.False(t, p.CanTransition(StatusSubmitted, StatusQuotePending, RoleClient))
	assert.False(t, p.CanTransition(StatusSubmitted, StatusCancelled, RoleClient))
}
