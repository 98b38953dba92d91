package types

import "time"

// User represents an account in the system.
// Its ID is the owner identity attached to problems and testcase sets.
type User struct {
	// ID is the unique identifier of the user (a UUID string).
	ID string `json:"id" bson:"_id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" bson:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" bson:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" bson:"name" db:"name"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" bson:"passwordHash" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}
