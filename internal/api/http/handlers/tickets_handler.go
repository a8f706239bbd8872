package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/mukund1606/taxmann-project/internal/api/dto"
	"github.com/mukund1606/taxmann-project/internal/auth"
	"github.com/mukund1606/taxmann-project/internal/classifier"
	"github.com/mukund1606/taxmann-project/internal/domain"
	"github.com/mukund1606/taxmann-project/internal/service"
	apperrors "github.com/mukund1606/taxmann-project/pkg/util/errorutil"
)

// CategoryPredictor suggests a ticket category for free text.
type CategoryPredictor interface {
	Predict(ctx context.Context, text string) (string, error)
}

// TicketsHandler manages ticket endpoints for both roles.
type TicketsHandler struct {
	service    *service.TicketService
	classifier CategoryPredictor
}

// NewTicketsHandler constructs handler. predictor may be nil.
func NewTicketsHandler(ticketService *service.TicketService, predictor CategoryPredictor) *TicketsHandler {
	return &TicketsHandler{service: ticketService, classifier: predictor}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}

	tickets, err := h.service.List(c.UserContext(), identity, c.Query("user_id"))
	if err != nil {
		return err
	}

	page := service.ApplyTicketQuery(tickets, query)
	items := make([]dto.TicketResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewTicketResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		Rows:       page.Rows,
		TotalPages: page.TotalPages,
	}})
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Create(c.UserContext(), identity, service.CreateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Get(c.UserContext(), identity, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Reply POST /tickets/:id/replies.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Reply(c.UserContext(), identity, service.ReplyInput{
		TicketID:    c.Params("id"),
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ChangeStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.ChangeTicketStatus(c.UserContext(), identity, service.ChangeStatusInput{
		TicketID: c.Params("id"),
		Status:   req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ChangePriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) ChangePriority(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	var req dto.ChangePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.ChangePriority(c.UserContext(), identity, service.ChangePriorityInput{
		TicketID: c.Params("id"),
		Priority: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	identity, err := callerIdentity(c)
	if err != nil {
		return err
	}
	entries, err := h.service.History(c.UserContext(), identity, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewTicketHistoryResponse(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// SuggestCategory POST /tickets/category-suggestion.
func (h *TicketsHandler) SuggestCategory(c *fiber.Ctx) error {
	if h.classifier == nil {
		return apperrors.NewNotFound("category suggestion", nil)
	}
	var req dto.CategorySuggestionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	text := strings.TrimSpace(req.Text)
	if n := utf8.RuneCountInString(text); n < 3 || n > 5000 {
		return apperrors.NewValidationError("invalid input", map[string]any{"text": "text must be between 3 and 5000 characters"})
	}

	category, err := h.classifier.Predict(c.UserContext(), text)
	if errors.Is(err, classifier.ErrNoPrediction) {
		return apperrors.NewNotFound("category suggestion", nil)
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"category": category}})
}

func callerIdentity(c *fiber.Ctx) (domain.Identity, error) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return domain.Identity{}, apperrors.NewUnauthorized("authentication required")
	}
	return identity, nil
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketQuery, error) {
	query := service.TicketQuery{
		Search: c.Query("search"),
		SortBy: c.Query("sort"),
	}
	if !service.ValidSortColumn(query.SortBy) {
		return query, apperrors.NewValidationError("invalid sort column", map[string]any{"sort": query.SortBy})
	}
	switch strings.ToLower(c.Query("order", "asc")) {
	case "asc":
	case "desc":
		query.Descending = true
	default:
		return query, apperrors.NewValidationError("order must be asc or desc", nil)
	}

	for _, part := range splitList(c.Query("status")) {
		status := domain.TicketStatus(strings.ToUpper(part))
		if !status.Valid() {
			return query, apperrors.NewValidationError("invalid status filter", map[string]any{"status": part})
		}
		query.Statuses = append(query.Statuses, status)
	}
	for _, part := range splitList(c.Query("priority")) {
		priority := domain.TicketPriority(strings.ToUpper(part))
		if !priority.Valid() {
			return query, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": part})
		}
		query.Priorities = append(query.Priorities, priority)
	}

	if c.Query("page") != "" || c.Query("rows") != "" {
		query.Paginate = true
		query.Page = parseInt(c.Query("page"), 1)
		query.Rows = parseInt(c.Query("rows"), 10)
	}
	return query, nil
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}
