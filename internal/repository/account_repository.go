package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mukund1606/taxmann-project/internal/domain"
)

// ErrDuplicateEmail is returned when an email already exists in the target store.
var ErrDuplicateEmail = errors.New("email already registered")

// AccountRepository defines persistence access for one account store.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// AccountStores holds the two disjoint account namespaces.
type AccountStores struct {
	Admins AccountRepository
	Users  AccountRepository
}

// ForRole selects the store that defines role membership.
func (s AccountStores) ForRole(role domain.Role) (AccountRepository, error) {
	switch role {
	case domain.RoleAdmin:
		return s.Admins, nil
	case domain.RoleUser:
		return s.Users, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

type accountRepository struct {
	db   DB
	role domain.Role
	// one of the fixed table names below, never caller supplied
	table string
}

const (
	adminsTable = "admins"
	usersTable  = "users"
)

// NewAdminRepository returns the Postgres-backed admin store.
func NewAdminRepository(db DB) AccountRepository {
	return &accountRepository{db: db, role: domain.RoleAdmin, table: adminsTable}
}

// NewUserRepository returns the Postgres-backed user store.
func NewUserRepository(db DB) AccountRepository {
	return &accountRepository{db: db, role: domain.RoleUser, table: usersTable}
}

// NewAccountStores wires both Postgres stores on the same pool.
func NewAccountStores(db DB) AccountStores {
	return AccountStores{Admins: NewAdminRepository(db), Users: NewUserRepository(db)}
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
        INSERT INTO ` + r.table + ` (name, email, password)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		account.Name,
		account.Email,
		account.EncryptedPassword,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return err
	}
	account.Role = r.role
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `
        SELECT id, name, email, password, created_at, updated_at
        FROM ` + r.table + ` WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
        SELECT id, name, email, password, created_at, updated_at
        FROM ` + r.table + ` WHERE email=$1
        ORDER BY created_at ASC LIMIT 1`
	return r.fetchSingle(ctx, query, email)
}

func (r *accountRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.EncryptedPassword,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	account.Role = r.role
	return &account, nil
}
