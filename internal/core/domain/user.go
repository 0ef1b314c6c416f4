package domain

import "time"

// Role is the closed set of roles a principal can hold.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps a stored role string onto the closed enumeration.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	}
	return "", false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// User models a registered account together with its key material.
//
// WrappedPrivateKey is only recoverable with the current password; the
// service never stores the private key in any other form.
type User struct {
	ID                        string    `json:"id"`
	Name                      string    `json:"name"`
	PasswordHash              string    `json:"-"`
	PublicKey                 string    `json:"-"`
	WrappedPrivateKey         []byte    `json:"-"`
	SecondFactorSecret        []byte    `json:"-"`
	// PendingSecondFactorSecret is a generated secret not yet confirmed
	// with a code. It never authenticates.
	PendingSecondFactorSecret []byte    `json:"-"`
	SecondFactorEnabled       bool      `json:"two_factor_enabled"`
	Role                      Role      `json:"role"`
	CreatedAt                 time.Time `json:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot alias stored byte slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.WrappedPrivateKey = append([]byte(nil), u.WrappedPrivateKey...)
	c.SecondFactorSecret = append([]byte(nil), u.SecondFactorSecret...)
	c.PendingSecondFactorSecret = append([]byte(nil), u.PendingSecondFactorSecret...)
	return &c
}
