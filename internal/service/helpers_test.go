package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mukund1606/taxmann-project/internal/auth"
	"github.com/mukund1606/taxmann-project/internal/config"
	"github.com/mukund1606/taxmann-project/internal/domain"
	"github.com/mukund1606/taxmann-project/internal/events"
	"github.com/mukund1606/taxmann-project/internal/repository"
)

var testKey = bytes.Repeat([]byte{7}, config.EncryptionKeySize)

type authFixture struct {
	svc    *AuthService
	stores repository.AccountStores
	cipher auth.PasswordCipher
	tokens *auth.TokenManager
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	cipher, err := auth.NewCTRCipher(testKey)
	require.NoError(t, err)
	stores := repository.NewMemoryAccountStores()
	tokens := auth.NewTokenManager("session-secret", time.Hour)
	return &authFixture{
		svc:    NewAuthService(AuthDependencies{Accounts: stores, Cipher: cipher, Tokens: tokens}),
		stores: stores,
		cipher: cipher,
		tokens: tokens,
	}
}

func (f *authFixture) seed(t *testing.T, store repository.AccountRepository, name, email, password string) *domain.Account {
	t.Helper()
	encrypted, err := f.cipher.Encrypt(password)
	require.NoError(t, err)
	account := &domain.Account{Name: name, Email: email, EncryptedPassword: encrypted}
	require.NoError(t, store.Create(context.Background(), account))
	return account
}

type recordedEvents struct {
	events []events.Event
}

func (r *recordedEvents) handler(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type ticketFixture struct {
	svc      *TicketService
	tickets  repository.TicketRepository
	history  repository.TicketHistoryRepository
	recorded *recordedEvents
}

func newTicketFixture(t *testing.T) *ticketFixture {
	t.Helper()
	dispatcher := events.NewInMemoryDispatcher()
	rec := &recordedEvents{}
	for _, et := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketReplied,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
	} {
		dispatcher.Subscribe(et, rec.handler)
	}
	tickets := repository.NewMemoryTicketRepository()
	history := repository.NewMemoryTicketHistoryRepository()
	return &ticketFixture{
		svc: NewTicketService(TicketDependencies{
			TicketRepo:  tickets,
			HistoryRepo: history,
			Dispatcher:  dispatcher,
		}),
		tickets:  tickets,
		history:  history,
		recorded: rec,
	}
}

var (
	alice = domain.Identity{ID: "user-alice", Email: "alice@example.com", Name: "Alice", Role: domain.RoleUser}
	bob   = domain.Identity{ID: "user-bob", Email: "bob@example.com", Name: "Bob", Role: domain.RoleUser}
	admin = domain.Identity{ID: "admin-1", Email: "ops@example.com", Name: "Ops", Role: domain.RoleAdmin}
)

func (f *ticketFixture) open(t *testing.T, caller domain.Identity, title string) *domain.Ticket {
	t.Helper()
	ticket, err := f.svc.Create(context.Background(), caller, CreateTicketInput{
		Title:       title,
		Description: "it is broken",
		Category:    "Hardware",
	})
	require.NoError(t, err)
	return ticket
}
