package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mukund1606/taxmann-project/internal/domain"
)

// In-memory implementations back the service when no database is configured
// and in tests. They copy on every read and write so callers never share state.

type memoryAccounts struct {
	mu       sync.RWMutex
	role     domain.Role
	accounts []domain.Account
}

// NewMemoryAccountStores returns two empty, disjoint in-memory stores.
func NewMemoryAccountStores() AccountStores {
	return AccountStores{
		Admins: &memoryAccounts{role: domain.RoleAdmin},
		Users:  &memoryAccounts{role: domain.RoleUser},
	}
}

func (m *memoryAccounts) Create(_ context.Context, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Email == account.Email {
			return ErrDuplicateEmail
		}
	}
	now := time.Now().UTC()
	account.ID = uuid.NewString()
	account.Role = m.role
	account.CreatedAt = now
	account.UpdatedAt = now
	m.accounts = append(m.accounts, *account)
	return nil
}

func (m *memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, account := range m.accounts {
		if account.ID == id {
			found := account
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryAccounts) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, account := range m.accounts {
		if account.Email == email {
			found := account
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

type memoryTickets struct {
	mu      sync.RWMutex
	seq     int
	tickets map[string]*domain.Ticket
	order   map[string]int
	now     func() time.Time
}

// NewMemoryTicketRepository returns an empty in-memory ticket store.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTickets{
		tickets: make(map[string]*domain.Ticket),
		order:   make(map[string]int),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	m.seq++
	m.order[ticket.ID] = m.seq
	m.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (m *memoryTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	updated := ticket.Clone()
	updated.OwnerUserID = stored.OwnerUserID
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = m.now()
	if !updated.UpdatedAt.After(stored.UpdatedAt) {
		updated.UpdatedAt = stored.UpdatedAt.Add(time.Microsecond)
	}
	m.tickets[ticket.ID] = updated
	ticket.UpdatedAt = updated.UpdatedAt
	return nil
}

func (m *memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ticket.Clone(), nil
}

func (m *memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []domain.Ticket{}
	for _, ticket := range m.tickets {
		if filter.OwnerUserID != nil && ticket.OwnerUserID != *filter.OwnerUserID {
			continue
		}
		result = append(result, *ticket.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return m.order[result[i].ID] < m.order[result[j].ID]
	})
	return result, nil
}

type memoryHistory struct {
	mu      sync.RWMutex
	entries []domain.TicketHistory
}

// NewMemoryTicketHistoryRepository returns an empty in-memory audit trail.
func NewMemoryTicketHistoryRepository() TicketHistoryRepository {
	return &memoryHistory{}
}

func (m *memoryHistory) Create(_ context.Context, history *domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = time.Now().UTC()
	m.entries = append(m.entries, *history)
	return nil
}

func (m *memoryHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []domain.TicketHistory{}
	for _, entry := range m.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}
