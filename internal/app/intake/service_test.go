package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/adapter/memory"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

type stubDispatcher struct {
	events    []interfaces.StatusChangedEvent
	deadlines []time.Time
	err       error
}

func (d *stubDispatcher) PublishStatusChanged(ctx context.Context, evt interfaces.StatusChangedEvent) error {
	d.events = append(d.events, evt)
	deadline, _ := ctx.Deadline()
	d.deadlines = append(d.deadlines, deadline)
	return d.err
}

func validCommand() interfaces.SubmitCaseCommand {
	return interfaces.SubmitCaseCommand{
		ProcedureCategory: " implant ",
		GuideType:         "tooth_supported",
		ServiceTier:       "full_solution",
		PatientRef:        "P-1042",
		SelectedTeeth:     []int{36, 37},
		DeliveryMethod:    "pickup",
		Attachments: []interfaces.SubmitAttachmentCommand{
			{FileName: "scan.stl", ContentType: "model/stl", SizeBytes: 1024, StorageKey: "uploads/scan.stl"},
		},
	}
}

func TestSubmitCase(t *testing.T) {
	repo := memory.NewCaseRepository()
	dispatcher := &stubDispatcher{}
	svc := NewService(repo, dispatcher, logger.Nop())
	client := domain.Actor{ID: "client-7", Role: domain.RoleClient}

	created, err := svc.SubmitCase(context.Background(), validCommand(), client)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Regexp(t, `^SG_\d{8}_001$`, created.Number)
	assert.Equal(t, "client-7", created.ClientID)
	assert.Equal(t, "implant", created.ProcedureCategory)
	assert.Equal(t, domain.StatusSubmitted, created.Status)
	assert.Equal(t, 1, created.Version)
	require.Len(t, created.Attachments, 1)
	assert.NotEmpty(t, created.Attachments[0].ID)

	history, err := repo.GetStatusHistory(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, domain.RoleClient, history[0].ChangedBy)

	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, created.Number, dispatcher.events[0].CaseNumber)
	assert.Equal(t, domain.EntryKindCreated, dispatcher.events[0].Kind)

	second, err := svc.SubmitCase(context.Background(), validCommand(), client)
	require.NoError(t, err)
	assert.Regexp(t, `^SG_\d{8}_002$`, second.Number)
	assert.NotEqual(t, created.ID, second.ID)
}

func TestSubmitCase_OnlyClients(t *testing.T) {
	svc := NewService(memory.NewCaseRepository(), nil, logger.Nop())

	for _, role := range []domain.Role{domain.RoleDesigner, domain.RoleAdmin, domain.RoleSystem} {
		_, err := svc.SubmitCase(context.Background(), validCommand(), domain.Actor{ID: "x", Role: role})
		assert.True(t, domain.IsKind(err, domain.KindForbidden), "role %s: %v", role, err)
	}
}

func TestSubmitCase_Validation(t *testing.T) {
	svc := NewService(memory.NewCaseRepository(), nil, logger.Nop())
	client := domain.Actor{ID: "client-7", Role: domain.RoleClient}

	tests := []struct {
		name   string
		mutate func(*interfaces.SubmitCaseCommand)
	}{
		{"unknown tier", func(c *interfaces.SubmitCaseCommand) { c.ServiceTier = "premium" }},
		{"no teeth", func(c *interfaces.SubmitCaseCommand) { c.SelectedTeeth = nil }},
		{"invalid tooth", func(c *interfaces.SubmitCaseCommand) { c.SelectedTeeth = []int{19} }},
		{"delivery without address", func(c *interfaces.SubmitCaseCommand) { c.DeliveryMethod = "delivery" }},
		{"attachment without name", func(c *interfaces.SubmitCaseCommand) { c.Attachments[0].FileName = " " }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validCommand()
			tt.mutate(&cmd)
			_, err := svc.SubmitCase(context.Background(), cmd, client)
			assert.True(t, domain.IsKind(err, domain.KindValidation), "%v", err)
		})
	}
}

func TestSubmitCase_NotificationFailureKeepsCase(t *testing.T) {
	repo := memory.NewCaseRepository()
	svc := NewService(repo, &stubDispatcher{err: errors.New("broker down")}, logger.Nop())

	created, err := svc.SubmitCase(context.Background(), validCommand(), domain.Actor{ID: "client-7", Role: domain.RoleClient})
	require.NoError(t, err)

	_, err = repo.FindByID(context.Background(), created.ID)
	assert.NoError(t, err)
}

func TestSubmitCase_NotifyTimeout(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		timeout time.Duration
	}{
		{"default", nil, defaultNotifyTimeout},
		{"configured", []Option{WithNotifyTimeout(250 * time.Millisecond)}, 250 * time.Millisecond},
		{"zero keeps default", []Option{WithNotifyTimeout(0)}, defaultNotifyTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &stubDispatcher{}
			svc := NewService(memory.NewCaseRepository(), dispatcher, logger.Nop(), tt.opts...)

			start := time.Now()
			_, err := svc.SubmitCase(context.Background(), validCommand(), domain.Actor{ID: "client-7", Role: domain.RoleClient})
			require.NoError(t, err)

			require.Len(t, dispatcher.deadlines, 1)
			remaining := dispatcher.deadlines[0].Sub(start)
			assert.LessOrEqual(t, remaining, tt.timeout)
			assert.Greater(t, remaining, tt.timeout-time.Second/10)
		})
	}
}
