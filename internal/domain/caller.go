package domain

import "urbanharvest/internal/models"

// Caller is the verified identity behind a request. A nil *Caller is a guest.
type Caller struct {
	UserID int64
	Role   string
}

func (c *Caller) IsAdmin() bool {
	return c != nil && c.Role == models.RoleAdmin
}

// RequireAdmin returns ErrForbidden unless the caller is an admin.
func RequireAdmin(c *Caller) error {
	if c == nil {
		return ErrUnauthorized
	}
	if !c.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
