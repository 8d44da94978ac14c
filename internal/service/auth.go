package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/taskhive/backend/internal/db"
	"github.com/taskhive/backend/internal/model"
	"github.com/taskhive/backend/internal/token"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// AuthError is the closed error type that crosses the HTTP boundary.
// Handlers map it to a status plus a machine-readable code; clients
// branch on the code, never on the message.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func unauthorized(code, message string) *AuthError {
	return &AuthError{Status: http.StatusUnauthorized, Code: code, Message: message}
}

func badRequest(code, message string) *AuthError {
	return &AuthError{Status: http.StatusBadRequest, Code: code, Message: message}
}

type UserStore interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	UpdateUser(ctx context.Context, userID string, name, email *string) (*model.User, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, userID, refreshToken, userAgent, ipAddress string, expiresAt time.Time) (*model.Session, error)
	GetSessionByToken(ctx context.Context, refreshToken string) (*model.Session, error)
	DeleteSession(ctx context.Context, refreshToken string) error
	DeleteAllUserSessions(ctx context.Context, userID string) error
	DeleteExpiredSessions(ctx context.Context) error
}

type AuthService struct {
	users    UserStore
	sessions SessionStore
	codec    *token.Codec
	log      *logrus.Logger
}

func NewAuthService(users UserStore, sessions SessionStore, codec *token.Codec, log *logrus.Logger) *AuthService {
	return &AuthService{users: users, sessions: sessions, codec: codec, log: log}
}

func (s *AuthService) Codec() *token.Codec {
	return s.codec
}

// Register creates the user, issues a credential pair and persists the
// session bound to the refresh token.
func (s *AuthService) Register(ctx context.Context, email, name, password, userAgent, ipAddress string) (*model.SafeUser, model.TokenPair, error) {
	s.log.WithField("email", email).Info("user registration")

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil && !db.IsNoRows(err) {
		return nil, model.TokenPair{}, err
	}
	if existing != nil {
		return nil, model.TokenPair{}, badRequest(model.CodeDuplicateEmail, "User with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, model.TokenPair{}, err
	}

	user, err := s.users.CreateUser(ctx, email, name, string(hash))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, model.TokenPair{}, badRequest(model.CodeDuplicateEmail, "User with this email already exists")
		}
		return nil, model.TokenPair{}, err
	}

	pair, err := s.issueSession(ctx, user.ID, user.Email, userAgent, ipAddress)
	if err != nil {
		return nil, model.TokenPair{}, err
	}

	s.log.WithField("user_id", user.ID).Info("user registered")
	return user.Safe(), pair, nil
}

// Login returns the identical error for unknown email and wrong
// password so neither case can be distinguished from outside.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*model.SafeUser, model.TokenPair, error) {
	s.log.WithField("email", email).Info("user login")

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, model.TokenPair{}, unauthorized(model.CodeInvalidCredentials, "Invalid email or password")
		}
		return nil, model.TokenPair{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.TokenPair{}, unauthorized(model.CodeInvalidCredentials, "Invalid email or password")
	}

	pair, err := s.issueSession(ctx, user.ID, user.Email, userAgent, ipAddress)
	if err != nil {
		return nil, model.TokenPair{}, err
	}

	s.log.WithField("user_id", user.ID).Info("user logged in")
	return user.Safe(), pair, nil
}

// Refresh rotates the presented refresh token: the old session is
// deleted and a brand-new pair plus session is created, so every
// refresh token is single-use. The two store calls are deliberately
// not wrapped in one transaction; a crash between them denies that one
// session chain and nothing else.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, userAgent, ipAddress string) (model.TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken, token.Refresh)
	if err != nil {
		if err == token.ErrTokenExpired {
			return model.TokenPair{}, unauthorized(model.CodeRefreshTokenExpired, "Refresh token has expired")
		}
		return model.TokenPair{}, unauthorized(model.CodeRefreshTokenInvalid, "Invalid refresh token")
	}

	session, err := s.sessions.GetSessionByToken(ctx, refreshToken)
	if err != nil {
		if db.IsNoRows(err) {
			return model.TokenPair{}, unauthorized(model.CodeRefreshTokenInvalid, "Session not found or expired")
		}
		return model.TokenPair{}, err
	}

	// Session expiry is the authoritative revocation boundary, checked
	// independently of the token's embedded exp.
	if session.ExpiresAt.Before(time.Now()) {
		if err := s.sessions.DeleteSession(ctx, refreshToken); err != nil {
			return model.TokenPair{}, err
		}
		return model.TokenPair{}, unauthorized(model.CodeRefreshTokenExpired, "Session expired")
	}

	if err := s.sessions.DeleteSession(ctx, refreshToken); err != nil {
		return model.TokenPair{}, err
	}

	pair, err := s.issueSession(ctx, claims.Subject, claims.Email, userAgent, ipAddress)
	if err != nil {
		return model.TokenPair{}, err
	}

	s.log.WithField("user_id", claims.Subject).Info("tokens refreshed")
	return pair, nil
}

// Logout always succeeds; deleting an absent session is a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, refreshToken)
}

// LogoutAll revokes every session the user owns ("sign out everywhere").
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	s.log.WithField("user_id", userID).Info("logout all sessions")
	return s.sessions.DeleteAllUserSessions(ctx, userID)
}

// AuthenticateAccessToken classifies an access token and resolves its
// subject. Used by the request gate and the realtime channel gate.
func (s *AuthService) AuthenticateAccessToken(ctx context.Context, accessToken string) (*model.SafeUser, error) {
	claims, err := s.codec.Verify(accessToken, token.Access)
	if err != nil {
		if err == token.ErrTokenExpired {
			return nil, unauthorized(model.CodeAccessTokenExpired, "Access token has expired")
		}
		return nil, unauthorized(model.CodeAccessTokenInvalid, "Invalid access token")
	}

	user, err := s.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, unauthorized(model.CodeUserNotFound, "User not found")
		}
		return nil, err
	}
	return user.Safe(), nil
}

// UpdateProfile changes name and/or email. Existing sessions stay
// valid: a profile change is not a credential change.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, name, email *string) (*model.SafeUser, error) {
	if email != nil {
		existing, err := s.users.GetUserByEmail(ctx, *email)
		if err != nil && !db.IsNoRows(err) {
			return nil, err
		}
		if existing != nil && existing.ID != userID {
			return nil, badRequest(model.CodeEmailTaken, "Email is already in use by another account")
		}
	}

	// The uniqueness check above can lose a race; the column constraint
	// is the authority.
	user, err := s.users.UpdateUser(ctx, userID, name, email)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, badRequest(model.CodeEmailTaken, "Email is already in use by another account")
		}
		return nil, err
	}

	s.log.WithField("user_id", userID).Info("profile updated")
	return user.Safe(), nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.SafeUser, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, unauthorized(model.CodeUserNotFound, "User not found")
		}
		return nil, err
	}
	return user.Safe(), nil
}

// SweepExpiredSessions removes sessions past their expiry.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) error {
	return s.sessions.DeleteExpiredSessions(ctx)
}

func (s *AuthService) issueSession(ctx context.Context, userID, email, userAgent, ipAddress string) (model.TokenPair, error) {
	accessToken, refreshToken, err := s.codec.IssuePair(userID, email)
	if err != nil {
		return model.TokenPair{}, err
	}

	expiresAt := time.Now().Add(s.codec.RefreshTTL())
	if _, err := s.sessions.CreateSession(ctx, userID, refreshToken, userAgent, ipAddress, expiresAt); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
