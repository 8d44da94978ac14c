package model

import "time"

// Error codes returned with 401 responses. Clients branch on these
// strings, never on message text.
const (
	CodeAccessTokenMissing  = "ACCESS_TOKEN_MISSING"
	CodeAccessTokenExpired  = "ACCESS_TOKEN_EXPIRED"
	CodeAccessTokenInvalid  = "ACCESS_TOKEN_INVALID"
	CodeRefreshTokenMissing = "REFRESH_TOKEN_MISSING"
	CodeRefreshTokenExpired = "REFRESH_TOKEN_EXPIRED"
	CodeRefreshTokenInvalid = "REFRESH_TOKEN_INVALID"
	CodeRefreshTokenRevoked = "REFRESH_TOKEN_REVOKED"
	CodeUserNotFound        = "USER_NOT_FOUND"

	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
)

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SafeUser is the projection that crosses the service boundary.
// PasswordHash never leaves the auth service.
type SafeUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (u *User) Safe() *SafeUser {
	return &SafeUser{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Session binds a refresh token to its owner. The row is the
// authoritative revocation mechanism: a refresh token with no matching
// session is invalid regardless of its embedded expiry.
type Session struct {
	ID           string
	UserID       string
	RefreshToken string
	UserAgent    string
	IPAddress    string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=1"`
	Email *string `json:"email" binding:"omitempty,email"`
}

// Response is the envelope for successful responses.
type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorResponse carries a machine-readable code alongside the message.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
