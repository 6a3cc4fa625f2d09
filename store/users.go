package store

import (
	"database/sql"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bhargavap21/tradeforge/errs"
)

// UserStore user account storage. Authentication middleware is out of scope
// for the core; the table exists because every other row is scoped by
// user_id and the transport layer needs somewhere to resolve ownership.
type UserStore struct {
	db *sql.DB
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *UserStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// HashPassword derives the bcrypt hash stored in password_hash.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash.
func (u *User) VerifyPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// Create create a user
func (s *UserStore) Create(u *User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash)
	if err != nil {
		return errs.Repository("failed to create user", err)
	}
	return nil
}

// Get get a user by id
func (s *UserStore) Get(id string) (*User, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT id, email, password_hash, created_at FROM users WHERE id = ?
	`, id))
}

// GetByEmail get a user by email
func (s *UserStore) GetByEmail(email string) (*User, error) {
	return s.scanOne(s.db.QueryRow(`
		SELECT id, email, password_hash, created_at FROM users WHERE email = ?
	`, email))
}

func (s *UserStore) scanOne(row *sql.Row) (*User, error) {
	var u User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errs.Repository("user not found", err)
	}
	if err != nil {
		return nil, errs.Repository("failed to read user", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}
