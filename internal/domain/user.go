package domain

import "time"

// UserStatus represents lifecycle states for a directory entry.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is a directory entry: the portal account behind a memo address.
type User struct {
	ID          string
	Email       string
	Name        string
	Department  string
	Designation string
	Status      UserStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Identity snapshots the user for denormalized storage.
func (u *User) Identity() Identity {
	return Identity{
		Email:       NormalizeAddress(u.Email),
		Name:        u.Name,
		Department:  u.Department,
		Designation: u.Designation,
	}
}
