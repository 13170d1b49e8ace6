package domain

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnusablePassword marks an account that must go through password reset before signing in
const UnusablePassword = "!unusable"

// User is the slice of the account store this service reads and writes
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewImportedUser creates an account with an unusable password
func NewImportedUser(email, username, firstName, lastName string, now time.Time) *User {
	return &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: UnusablePassword,
		CreatedAt:    now,
	}
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasUsablePassword is false for imported accounts
func (u *User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, "!")
}

// NormalizeEmail lower-cases and validates a bare address
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return email, nil
}

// SplitName splits "First Rest Of Name" at the first space
func SplitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

// UsernameBase is the email local part
func UsernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// UsernameCandidate is base for attempt 0, then base1, base2, ...
func UsernameCandidate(base string, attempt int) string {
	if attempt == 0 {
		return base
	}
	return base + strconv.Itoa(attempt)
}
