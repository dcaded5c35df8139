package models

import (
	"errors"
	"time"
)

// ErrDuplicateUser is returned by stores when a unique index rejects a user.
var ErrDuplicateUser = errors.New("duplicate user")

// ErrUserNotFound is returned by stores when no user has the given username.
var ErrUserNotFound = errors.New("user not found")

// Roles known to the application.
const (
	RoleUser      = "USER"
	RoleAdmin     = "ADMIN"
	RoleModerator = "MODERATOR"
)

// AuditDateTime holds the audit timestamps embedded in a user document.
type AuditDateTime struct {
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
}

// User represents a document of the User collection.
type User struct {
	ID            string        `json:"id,omitempty" bson:"_id,omitempty" db:"id"`               // Store generated id
	UserID        string        `json:"userId" bson:"userId" db:"user_id"`                       // "<username>:<email>"
	Username      string        `json:"username" bson:"username" db:"username"`                  // Unique username
	Email         string        `json:"email" bson:"email" db:"email"`                           // Unique email
	Password      string        `json:"-" bson:"password" db:"password"`                         // Hashed password
	Roles         []string      `json:"roles" bson:"roles" db:"-"`                               // Granted roles
	ProfilePicURL *string       `json:"profilePicUrl" bson:"profilePicUrl" db:"profile_pic_url"` // Optional picture reference
	CreatedAt     time.Time     `json:"createdAt" bson:"createdAt" db:"created_at"`              // Creation timestamp
	UpdatedAt     time.Time     `json:"updatedAt" bson:"updatedAt" db:"updated_at"`              // Last update timestamp
	AuditDateTime AuditDateTime `json:"auditDateTime" bson:"auditDateTime" db:"-"`               // Audit sub-record
	CreatedBy     string        `json:"createdBy" bson:"createdBy" db:"created_by"`              // Who created the record
	UpdatedBy     string        `json:"updatedBy" bson:"updatedBy" db:"updated_by"`              // Who last updated the record
	DeletedBy     *string       `json:"deletedBy" bson:"deletedBy" db:"deleted_by"`              // Who deleted the record, null while alive
}

// NewUserID builds the composite user id stored alongside the document id.
func NewUserID(username, email string) string {
	return username + ":" + email
}
