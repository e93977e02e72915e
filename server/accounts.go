package server

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
)

// Account is a registered user with a password
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Accounts stores registered users
type Accounts interface {
	CreateAccount(ctx context.Context, a Account) error
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
}

// PostgresAccounts keeps accounts in the accounts table
type PostgresAccounts struct {
	db *sql.DB
}

func NewPostgresAccounts(db *sql.DB) *PostgresAccounts {
	return &PostgresAccounts{db: db}
}

func (p *PostgresAccounts) CreateAccount(ctx context.Context, a Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Email, a.Name, a.PasswordHash, a.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (p *PostgresAccounts) AccountByEmail(ctx context.Context, email string) (Account, error) {
	return p.account(ctx, `WHERE email = $1`, strings.ToLower(email))
}

func (p *PostgresAccounts) AccountByID(ctx context.Context, id string) (Account, error) {
	return p.account(ctx, `WHERE id = $1`, id)
}

func (p *PostgresAccounts) account(ctx context.Context, where string, arg string) (Account, error) {
	var a Account
	err := p.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at FROM accounts `+where, arg,
	).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

// MemoryAccounts is an in-process Accounts for tests and the in-memory
// development server
type MemoryAccounts struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

func (m *MemoryAccounts) CreateAccount(ctx context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(a.Email)
	if _, ok := m.byEmail[email]; ok {
		return ErrEmailTaken
	}
	a.Email = email
	m.byID[a.ID] = a
	m.byEmail[email] = a.ID
	return nil
}

func (m *MemoryAccounts) AccountByEmail(ctx context.Context, email string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryAccounts) AccountByID(ctx context.Context, id string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}
