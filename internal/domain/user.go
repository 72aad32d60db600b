package domain

import "time"

// AuthProvider identifies how an account authenticates.
type AuthProvider string

const (
	AuthProviderLocal  AuthProvider = "LOCAL"
	AuthProviderGoogle AuthProvider = "GOOGLE"
	AuthProviderGitHub AuthProvider = "GITHUB"
)

// OAuthPasswordSentinel is stored in place of a password hash for accounts
// created through an OAuth provider. It is not a valid bcrypt hash, so a
// password login against such an account always fails verification.
const OAuthPasswordSentinel = "OAUTH_USER_NO_PASSWORD"

// User represents one account. Email is unique (stored lowercased) and is
// the only key linking local and federated identities: an OAuth login whose
// email matches an existing row updates that row instead of creating a
// second one.
type User struct {
	ID           int64        `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Email        string       `json:"email" db:"email"`
	PasswordHash string       `json:"-" db:"password_hash"`
	Provider     AuthProvider `json:"provider" db:"auth_provider"`
	ProviderID   *string      `json:"provider_id,omitempty" db:"provider_id"`
	PictureURL   *string      `json:"picture_url,omitempty" db:"picture_url"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// Principal is the authenticated caller handed to the task service. It is
// valid only for the request that produced it.
type Principal struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
