package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column in the
// database. The json tags are omitted here because these structs
// are used by the repository and service layers; handlers define
// their own response types.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – USER, MODERATOR or ADMIN.
//  IsActive     – false until the activation token is consumed.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// Profile is the optional personal data attached to a user. Every user
// gets an empty profile row at registration so updates never need to
// check for existence.
type Profile struct {
	UserID      uint64     `json:"user_id"`                 // profiles.user_id
	FirstName   string     `json:"first_name"`              // profiles.first_name
	LastName    string     `json:"last_name"`               // profiles.last_name
	Gender      string     `json:"gender,omitempty"`        // profiles.gender ("man", "woman" or empty)
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"` // profiles.date_of_birth (nullable)
	Info        string     `json:"info"`                    // profiles.info
	UpdatedAt   time.Time  `json:"updated_at"`              // profiles.updated_at
}
