package dto

import (
	"time"

	"github.com/mukund1606/taxmann-project/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	Description string `json:"description"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// CategorySuggestionRequest payload.
type CategorySuggestionRequest struct {
	Text string `json:"text"`
}

// ContentEntryResponse is one message of the thread.
type ContentEntryResponse struct {
	AuthorID    string `json:"author_id"`
	Description string `json:"description"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Category    string                 `json:"category"`
	Priority    domain.TicketPriority  `json:"priority"`
	Status      domain.TicketStatus    `json:"status"`
	Content     []ContentEntryResponse `json:"content"`
	OwnerUserID string                 `json:"owner_user_id"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// TicketListResponse wraps a processed ticket listing.
type TicketListResponse struct {
	Items      []TicketResponse `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Rows       int              `json:"rows"`
	TotalPages int              `json:"total_pages"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangedByRole domain.Role             `json:"changed_by_role"`
	ChangedByID   string                  `json:"changed_by_id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// NewTicketResponse maps a ticket for output.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	content := make([]ContentEntryResponse, 0, len(t.Content))
	for _, entry := range t.Content {
		content = append(content, ContentEntryResponse{AuthorID: entry.AuthorID, Description: entry.Description})
	}
	return TicketResponse{
		ID:          t.ID,
		Title:       t.Title,
		Category:    t.Category,
		Priority:    t.Priority,
		Status:      t.Status,
		Content:     content,
		OwnerUserID: t.OwnerUserID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// NewTicketHistoryResponse maps an audit entry for output.
func NewTicketHistoryResponse(h domain.TicketHistory) TicketHistoryResponse {
	return TicketHistoryResponse{
		ID:            h.ID,
		ChangedByRole: h.ChangedByRole,
		ChangedByID:   h.ChangedByID,
		ChangeType:    h.ChangeType,
		OldValue:      h.OldValue,
		NewValue:      h.NewValue,
		CreatedAt:     h.CreatedAt,
	}
}
