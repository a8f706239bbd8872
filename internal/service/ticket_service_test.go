package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukund1606/taxmann-project/internal/domain"
	"github.com/mukund1606/taxmann-project/internal/events"
	"github.com/mukund1606/taxmann-project/internal/repository"
	apperrors "github.com/mukund1606/taxmann-project/pkg/util/errorutil"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.ToDomainError(err).Code, "got %v", err)
}

func TestCreate_AdminForbidden(t *testing.T) {
	f := newTicketFixture(t)
	_, err := f.svc.Create(context.Background(), admin, CreateTicketInput{Title: "Help", Description: "desc", Category: "Other"})
	requireCode(t, err, apperrors.CodeForbidden)

	all, err := f.tickets.List(context.Background(), repository.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_UserDefaults(t *testing.T) {
	f := newTicketFixture(t)
	ticket, err := f.svc.Create(context.Background(), alice, CreateTicketInput{
		Title: "  VPN down  ", Description: "cannot connect", Category: "Network",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, "VPN down", ticket.Title)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityLow, ticket.Priority)
	assert.Equal(t, alice.ID, ticket.OwnerUserID)
	require.Len(t, ticket.Content, 1)
	assert.Equal(t, domain.ContentEntry{AuthorID: alice.ID, Description: "cannot connect"}, ticket.Content[0])
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, f.recorded.types())
}

func TestCreate_Validation(t *testing.T) {
	f := newTicketFixture(t)
	_, err := f.svc.Create(context.Background(), alice, CreateTicketInput{Title: "ab", Description: "ok!", Category: "Net"})
	requireCode(t, err, apperrors.CodeValidation)
	assert.Contains(t, apperrors.ToDomainError(err).Details, "title")
}

func TestList_ScopedByRole(t *testing.T) {
	f := newTicketFixture(t)
	f.open(t, alice, "Alice one")
	f.open(t, bob, "Bob one")
	f.open(t, alice, "Alice two")
	ctx := context.Background()

	mine, err := f.svc.List(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Alice one", mine[0].Title)
	assert.Equal(t, "Alice two", mine[1].Title)

	all, err := f.svc.List(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bobs, err := f.svc.List(ctx, admin, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, bob.ID, bobs[0].OwnerUserID)

	_, err = f.svc.List(ctx, alice, bob.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	same, err := f.svc.List(ctx, alice, alice.ID)
	require.NoError(t, err)
	assert.Len(t, same, 2)
}

func TestReply_AppendsOneEntryPreservingOrder(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()

	first, err := f.svc.Reply(ctx, admin, ReplyInput{TicketID: ticket.ID, Description: "try turning it off"})
	require.NoError(t, err)
	require.Len(t, first.Content, 2)
	assert.True(t, first.UpdatedAt.After(ticket.UpdatedAt))

	second, err := f.svc.Reply(ctx, alice, ReplyInput{TicketID: ticket.ID, Description: "did not help"})
	require.NoError(t, err)
	require.Len(t, second.Content, 3)
	assert.Equal(t, first.Content, second.Content[:2])
	assert.Equal(t, domain.ContentEntry{AuthorID: alice.ID, Description: "did not help"}, second.Content[2])
	assert.Equal(t, ticket.Content[0], second.Content[0])

	stored, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, second.Content, stored.Content)
}

func TestReply_ClosedTicketConflict(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()

	_, err := f.svc.ChangeTicketStatus(ctx, admin, ChangeStatusInput{TicketID: ticket.ID, Status: domain.TicketStatusClosed})
	require.NoError(t, err)

	for _, caller := range []domain.Identity{alice, admin} {
		_, err = f.svc.Reply(ctx, caller, ReplyInput{TicketID: ticket.ID, Description: "hello?"})
		requireCode(t, err, apperrors.CodeConflict)
	}

	stored, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Content, 1)
}

func TestReply_NotFoundAndOwnership(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()

	_, err := f.svc.Reply(ctx, alice, ReplyInput{TicketID: "missing", Description: "hi"})
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.Reply(ctx, bob, ReplyInput{TicketID: ticket.ID, Description: "hi"})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.Reply(ctx, alice, ReplyInput{TicketID: ticket.ID, Description: ""})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestChangeTicketStatus_UserForbidden(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")

	_, err := f.svc.ChangeTicketStatus(context.Background(), alice, ChangeStatusInput{TicketID: ticket.ID, Status: domain.TicketStatusClosed})
	requireCode(t, err, apperrors.CodeForbidden)

	// Role is checked before the ticket is looked up.
	_, err = f.svc.ChangeTicketStatus(context.Background(), alice, ChangeStatusInput{TicketID: "missing", Status: domain.TicketStatusClosed})
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestChangeTicketStatus_AdminIdempotent(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()

	closed, err := f.svc.ChangeTicketStatus(ctx, admin, ChangeStatusInput{TicketID: ticket.ID, Status: domain.TicketStatusClosed})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)

	again, err := f.svc.ChangeTicketStatus(ctx, admin, ChangeStatusInput{TicketID: ticket.ID, Status: domain.TicketStatusClosed})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, again.Status)
	assert.Equal(t, closed.UpdatedAt, again.UpdatedAt)

	entries, err := f.svc.History(ctx, admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ChangeTypeStatus, entries[0].ChangeType)
	assert.Equal(t, admin.ID, entries[0].ChangedByID)
	assert.Equal(t, domain.RoleAdmin, entries[0].ChangedByRole)

	assert.Equal(t, []events.EventType{events.EventTicketCreated, events.EventTicketStatusChanged}, f.recorded.types())

	reopened, err := f.svc.ChangeTicketStatus(ctx, admin, ChangeStatusInput{TicketID: ticket.ID, Status: domain.TicketStatusOpen})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, reopened.Status)

	_, err = f.svc.Reply(ctx, alice, ReplyInput{TicketID: ticket.ID, Description: "thanks"})
	assert.NoError(t, err)
}

func TestChangeTicketStatus_Errors(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")

	_, err := f.svc.ChangeTicketStatus(context.Background(), admin, ChangeStatusInput{TicketID: "missing", Status: domain.TicketStatusClosed})
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.ChangeTicketStatus(context.Background(), admin, ChangeStatusInput{TicketID: ticket.ID, Status: "PENDING"})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestChangePriority_ClosedConflictForBothRoles(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()
	_, err := f.svc.ChangeTicketStatus(ctx, admin, ChangeStatusInput{TicketID: ticket.ID, Status: domain.TicketStatusClosed})
	require.NoError(t, err)

	for _, caller := range []domain.Identity{alice, admin} {
		_, err := f.svc.ChangePriority(ctx, caller, ChangePriorityInput{TicketID: ticket.ID, Priority: domain.TicketPriorityHigh})
		requireCode(t, err, apperrors.CodeConflict)
	}
}

func TestClosedForeignTicket_OwnershipCheckedFirst(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()
	_, err := f.svc.ChangeTicketStatus(ctx, admin, ChangeStatusInput{TicketID: ticket.ID, Status: domain.TicketStatusClosed})
	require.NoError(t, err)

	_, err = f.svc.ChangePriority(ctx, bob, ChangePriorityInput{TicketID: ticket.ID, Priority: domain.TicketPriorityHigh})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.Reply(ctx, bob, ReplyInput{TicketID: ticket.ID, Description: "me too"})
	requireCode(t, err, apperrors.CodeForbidden)
}

// Malformed ids behave like unknown ones.
func TestMalformedTicketIDIsNotFound(t *testing.T) {
	f := newTicketFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, admin, "not-a-uuid")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.ChangePriority(ctx, admin, ChangePriorityInput{TicketID: "not-a-uuid", Priority: domain.TicketPriorityHigh})
	requireCode(t, err, apperrors.CodeNotFound)

	listed, err := f.svc.List(ctx, admin, "abc")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestChangePriority_OpenTicket(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()

	updated, err := f.svc.ChangePriority(ctx, alice, ChangePriorityInput{TicketID: ticket.ID, Priority: domain.TicketPriorityCritical})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityCritical, updated.Priority)

	updated, err = f.svc.ChangePriority(ctx, admin, ChangePriorityInput{TicketID: ticket.ID, Priority: domain.TicketPriorityMedium})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, updated.Priority)

	_, err = f.svc.ChangePriority(ctx, bob, ChangePriorityInput{TicketID: ticket.ID, Priority: domain.TicketPriorityHigh})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.ChangePriority(ctx, admin, ChangePriorityInput{TicketID: ticket.ID, Priority: "URGENT"})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.svc.ChangePriority(ctx, admin, ChangePriorityInput{TicketID: "missing", Priority: domain.TicketPriorityHigh})
	requireCode(t, err, apperrors.CodeNotFound)

	entries, err := f.svc.History(ctx, admin, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, map[string]any{"priority": domain.TicketPriorityLow}, entries[0].OldValue)
	assert.Equal(t, map[string]any{"priority": domain.TicketPriorityMedium}, entries[1].NewValue)
}

func TestGet_Ownership(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")
	ctx := context.Background()

	got, err := f.svc.Get(ctx, alice, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)

	_, err = f.svc.Get(ctx, admin, ticket.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, bob, ticket.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.svc.Get(ctx, bob, "missing")
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestHistory_AdminOnly(t *testing.T) {
	f := newTicketFixture(t)
	ticket := f.open(t, alice, "Printer")

	_, err := f.svc.History(context.Background(), alice, ticket.ID)
	requireCode(t, err, apperrors.CodeForbidden)

	entries, err := f.svc.History(context.Background(), admin, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingTickets struct {
	repository.TicketRepository
}

func (failingTickets) GetByID(context.Context, string) (*domain.Ticket, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsInternal(t *testing.T) {
	svc := NewTicketService(TicketDependencies{TicketRepo: failingTickets{repository.NewMemoryTicketRepository()}})
	_, err := svc.Get(context.Background(), admin, "any")
	requireCode(t, err, apperrors.CodeInternal)
}

func TestHandlerFailureDoesNotFailProcedure(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		return errors.New("broker down")
	})
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repository.NewMemoryTicketRepository(),
		Dispatcher: dispatcher,
	})

	ticket, err := svc.Create(context.Background(), alice, CreateTicketInput{Title: "Help", Description: "desc", Category: "Other"})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.ID)
}
