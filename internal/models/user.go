package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u *User) IsActive() bool { return u.Status == UserStatusActive }

// UserSummary is the admin directory row.
type UserSummary struct {
	User
	ActiveBookings int `json:"activeBookings"`
}

func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAdmin
}

func ValidUserStatus(s string) bool {
	return s == UserStatusActive || s == UserStatusSuspended
}
