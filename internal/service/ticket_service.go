package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mukund1606/taxmann-project/internal/domain"
	"github.com/mukund1606/taxmann-project/internal/events"
	"github.com/mukund1606/taxmann-project/internal/observability"
	"github.com/mukund1606/taxmann-project/internal/repository"
	apperrors "github.com/mukund1606/taxmann-project/pkg/util/errorutil"
)

// Operation names reported to metrics.
const (
	OpList           = "list"
	OpCreate         = "create"
	OpGet            = "get"
	OpReply          = "reply"
	OpChangeStatus   = "change_status"
	OpChangePriority = "change_priority"
	OpHistory        = "history"
)

const replyPreviewLength = 80

// TicketService coordinates ticket workflows. Every procedure authorizes the
// caller first and then performs a single read-then-write against the store.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	validate   *validator.Validate
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// CreateTicketInput describes ticket creation payload. Priority and status are
// never caller supplied.
type CreateTicketInput struct {
	Title       string `json:"title" validate:"min=3,max=255"`
	Description string `json:"description" validate:"min=3,max=5000"`
	Category    string `json:"category" validate:"min=3,max=255"`
}

// ReplyInput appends a message to a ticket thread.
type ReplyInput struct {
	TicketID    string `json:"ticketID" validate:"required"`
	Description string `json:"description" validate:"min=1,max=5000"`
}

// ChangeStatusInput sets the ticket status.
type ChangeStatusInput struct {
	TicketID string              `json:"ticketId" validate:"required"`
	Status   domain.TicketStatus `json:"status" validate:"oneof=OPEN CLOSED"`
}

// ChangePriorityInput sets the ticket priority.
type ChangePriorityInput struct {
	TicketID string                `json:"ticketId" validate:"required"`
	Priority domain.TicketPriority `json:"priority" validate:"oneof=LOW MEDIUM HIGH CRITICAL"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		validate:   newValidator(),
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns every ticket for an ADMIN, optionally narrowed to userID, and
// only the caller's own tickets for a USER.
func (s *TicketService) List(ctx context.Context, caller domain.Identity, userID string) (tickets []domain.Ticket, err error) {
	defer func() { s.record(OpList, err) }()

	filter := repository.TicketFilter{}
	switch {
	case caller.IsAdmin():
		if userID != "" {
			filter.OwnerUserID = &userID
		}
	default:
		if userID != "" && userID != caller.ID {
			return nil, apperrors.NewForbidden("cannot list tickets of another user")
		}
		owner := caller.ID
		filter.OwnerUserID = &owner
	}

	tickets, err = s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return tickets, nil
}

// Create opens a ticket owned by the calling USER.
func (s *TicketService) Create(ctx context.Context, caller domain.Identity, input CreateTicketInput) (ticket *domain.Ticket, err error) {
	defer func() { s.record(OpCreate, err) }()

	if caller.IsAdmin() {
		return nil, apperrors.NewForbidden("admins cannot create tickets")
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}

	ticket = &domain.Ticket{
		Title:       input.Title,
		Category:    input.Category,
		Priority:    domain.TicketPriorityLow,
		Status:      domain.TicketStatusOpen,
		Content:     []domain.ContentEntry{{AuthorID: caller.ID, Description: input.Description}},
		OwnerUserID: caller.ID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.ActorFromIdentity(caller),
		Payload: events.TicketCreatedPayload{
			OwnerUserID: ticket.OwnerUserID,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			Title:       ticket.Title,
		},
	})
	return ticket, nil
}

// Get fetches a single ticket the caller may see.
func (s *TicketService) Get(ctx context.Context, caller domain.Identity, ticketID string) (ticket *domain.Ticket, err error) {
	defer func() { s.record(OpGet, err) }()
	return s.loadForCaller(ctx, caller, ticketID)
}

// Reply appends one content entry authored by the caller. Closed tickets are frozen.
// Checks run in order: validation, existence, ownership for USER callers, then
// the closed state, so a USER replying to someone else's closed ticket gets
// FORBIDDEN rather than CONFLICT.
func (s *TicketService) Reply(ctx context.Context, caller domain.Identity, input ReplyInput) (ticket *domain.Ticket, err error) {
	defer func() { s.record(OpReply, err) }()

	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	ticket, err = s.loadForCaller(ctx, caller, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, apperrors.NewConflict("cannot reply to a closed ticket", map[string]any{"ticket_id": ticket.ID})
	}

	ticket.Content = append(ticket.Content, domain.ContentEntry{AuthorID: caller.ID, Description: input.Description})
	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReplied,
		TicketID: ticket.ID,
		Actor:    events.ActorFromIdentity(caller),
		Payload: events.TicketRepliedPayload{
			EntryIndex:  len(ticket.Content) - 1,
			BodyPreview: preview(input.Description),
		},
	})
	return ticket, nil
}

// ChangeTicketStatus sets the status of a ticket. ADMIN only. Setting the
// current status succeeds without writing anything.
func (s *TicketService) ChangeTicketStatus(ctx context.Context, caller domain.Identity, input ChangeStatusInput) (ticket *domain.Ticket, err error) {
	defer func() { s.record(OpChangeStatus, err) }()

	if !caller.IsAdmin() {
		return nil, apperrors.NewForbidden("only admins can change ticket status")
	}
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	ticket, err = s.load(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == input.Status {
		return ticket, nil
	}

	oldStatus := ticket.Status
	ticket.Status = input.Status
	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, caller, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus}, map[string]any{"status": input.Status}); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    events.ActorFromIdentity(caller),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: input.Status,
		},
	})
	return ticket, nil
}

// ChangePriority sets the priority of an open ticket. USER callers may only
// touch their own tickets. Ownership is checked before the closed state: a USER
// on someone else's closed ticket gets FORBIDDEN, while the owner or an ADMIN
// gets CONFLICT. Setting the current priority on an open ticket is a no-op.
func (s *TicketService) ChangePriority(ctx context.Context, caller domain.Identity, input ChangePriorityInput) (ticket *domain.Ticket, err error) {
	defer func() { s.record(OpChangePriority, err) }()

	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	ticket, err = s.loadForCaller(ctx, caller, input.TicketID)
	if err != nil {
		return nil, err
	}
	if ticket.IsClosed() {
		return nil, apperrors.NewConflict("cannot change priority of a closed ticket", map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.Priority == input.Priority {
		return ticket, nil
	}

	oldPriority := ticket.Priority
	ticket.Priority = input.Priority
	if err := s.update(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, caller, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority}, map[string]any{"priority": input.Priority}); err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    events.ActorFromIdentity(caller),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: input.Priority,
		},
	})
	return ticket, nil
}

// History returns the audit trail of a ticket. ADMIN only.
func (s *TicketService) History(ctx context.Context, caller domain.Identity, ticketID string) (entries []domain.TicketHistory, err error) {
	defer func() { s.record(OpHistory, err) }()

	if !caller.IsAdmin() {
		return nil, apperrors.NewForbidden("only admins can view ticket history")
	}
	if _, err := s.load(ctx, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err = s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

func (s *TicketService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if strings.TrimSpace(ticketID) == "" {
		return nil, apperrors.NewValidationError("ticket id is required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return ticket, nil
}

// loadForCaller fetches the ticket and enforces USER ownership. Existence is
// checked before ownership.
func (s *TicketService) loadForCaller(ctx context.Context, caller domain.Identity, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !ticket.OwnedBy(caller.ID) {
		return nil, apperrors.NewForbidden("ticket belongs to another user")
	}
	return ticket, nil
}

func (s *TicketService) update(ctx context.Context, ticket *domain.Ticket) error {
	err := s.tickets.Update(ctx, ticket)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

func (s *TicketService) recordChange(ctx context.Context, caller domain.Identity, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) error {
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByRole: caller.Role,
		ChangedByID:   caller.ID,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// publishEvent runs subscribers synchronously. Their failures are logged and
// never change the outcome of the procedure.
func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func (s *TicketService) record(operation string, err error) {
	if err == nil {
		s.metrics.RecordTicketOperation(operation, "ok")
		return
	}
	s.metrics.RecordTicketOperation(operation, apperrors.ToDomainError(err).Code)
}

func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= replyPreviewLength {
		return body
	}
	return string(runes[:replyPreviewLength]) + "…"
}
