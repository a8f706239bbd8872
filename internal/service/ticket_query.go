package service

import (
	"slices"
	"sort"
	"strings"

	"github.com/mukund1606/taxmann-project/internal/domain"
)

// Sortable ticket columns.
const (
	SortByTitle     = "title"
	SortByCategory  = "category"
	SortByPriority  = "priority"
	SortByStatus    = "status"
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
)

const defaultPageRows = 10

var allowedPageRows = []int{10, 25, 50, 100}

// TicketQuery describes the optional search, filter, sort and paging applied to
// a ticket listing after authorization.
type TicketQuery struct {
	Search     string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SortBy     string
	Descending bool
	// Page and Rows are ignored unless Paginate is set.
	Paginate bool
	Page     int
	Rows     int
}

// TicketPage is one window of a processed listing.
type TicketPage struct {
	Items      []domain.Ticket
	Total      int
	Page       int
	Rows       int
	TotalPages int
}

// ApplyTicketQuery filters, sorts and pages tickets without touching the input slice.
func ApplyTicketQuery(tickets []domain.Ticket, q TicketQuery) TicketPage {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	filtered := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, t.Status) {
			continue
		}
		if len(q.Priorities) > 0 && !slices.Contains(q.Priorities, t.Priority) {
			continue
		}
		filtered = append(filtered, t)
	}

	less := ticketLess(q.SortBy)
	sort.SliceStable(filtered, func(i, j int) bool {
		if q.Descending {
			return less(filtered[j], filtered[i])
		}
		return less(filtered[i], filtered[j])
	})

	page := TicketPage{Items: filtered, Total: len(filtered), Page: 1, Rows: len(filtered), TotalPages: 1}
	if !q.Paginate {
		return page
	}

	rows := q.Rows
	if !slices.Contains(allowedPageRows, rows) {
		rows = defaultPageRows
	}
	current := q.Page
	if current < 1 {
		current = 1
	}
	page.Rows = rows
	page.Page = current
	page.TotalPages = (len(filtered) + rows - 1) / rows

	start := (current - 1) * rows
	if start >= len(filtered) {
		page.Items = []domain.Ticket{}
		return page
	}
	end := min(start+rows, len(filtered))
	page.Items = filtered[start:end]
	return page
}

func ticketLess(column string) func(a, b domain.Ticket) bool {
	switch column {
	case SortByCategory:
		return func(a, b domain.Ticket) bool { return a.Category < b.Category }
	case SortByPriority:
		return func(a, b domain.Ticket) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case SortByStatus:
		return func(a, b domain.Ticket) bool { return a.Status < b.Status }
	case SortByCreatedAt:
		return func(a, b domain.Ticket) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortByUpdatedAt:
		return func(a, b domain.Ticket) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	default:
		return func(a, b domain.Ticket) bool { return a.Title < b.Title }
	}
}

// ValidSortColumn reports whether column is one ApplyTicketQuery understands.
func ValidSortColumn(column string) bool {
	switch column {
	case "", SortByTitle, SortByCategory, SortByPriority, SortByStatus, SortByCreatedAt, SortByUpdatedAt:
		return true
	}
	return false
}
