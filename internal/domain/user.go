package domain

import "time"

// User represents an account known to the identity provider.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Caller identifies who issued a service call. The zero value is anonymous.
type Caller struct {
	UserID string
}

// Anonymous is the caller of a request without valid credentials.
var Anonymous = Caller{}

// AsUser returns a caller for the given user id.
func AsUser(userID string) Caller {
	return Caller{UserID: userID}
}

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool {
	return c.UserID != ""
}
