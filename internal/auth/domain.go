package auth

import "time"

// User is the credential view of an account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may sign in.
func (u *User) Active() bool {
	return u.DeletedAt == nil
}
