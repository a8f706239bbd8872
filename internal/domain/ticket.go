package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// Valid reports whether s is OPEN or CLOSED.
func (s TicketStatus) Valid() bool {
	return s == TicketStatusOpen || s == TicketStatusClosed
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:      0,
	TicketPriorityMedium:   1,
	TicketPriorityHigh:     2,
	TicketPriorityCritical: 3,
}

// Valid reports whether p is one of the four levels.
func (p TicketPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank orders priorities by severity, LOW first.
func (p TicketPriority) Rank() int {
	if rank, ok := priorityRank[p]; ok {
		return rank
	}
	return -1
}

// ContentEntry is one message in a ticket's reply thread.
type ContentEntry struct {
	AuthorID    string `json:"author_id"`
	Description string `json:"description"`
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	Title       string
	Category    string
	Priority    TicketPriority
	Status      TicketStatus
	Content     []ContentEntry
	OwnerUserID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsClosed reports whether the ticket is frozen.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// OwnedBy reports whether userID opened the ticket.
func (t *Ticket) OwnedBy(userID string) bool {
	return t.OwnerUserID == userID
}

// Clone returns a deep copy so callers cannot alias the content slice.
func (t *Ticket) Clone() *Ticket {
	cp := *t
	cp.Content = append([]ContentEntry(nil), t.Content...)
	return &cp
}
