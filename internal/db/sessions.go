package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskhive/backend/internal/model"
)

func (db *Postgres) CreateSession(ctx context.Context, userID, refreshToken, userAgent, ipAddress string, expiresAt time.Time) (*model.Session, error) {
	query := `
		INSERT INTO sessions (id, user_id, refresh_token, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6)
		RETURNING id, user_id, refresh_token, user_agent, ip_address, created_at, expires_at
	`
	var s model.Session
	err := db.Pool.QueryRow(ctx, query, uuid.NewString(), userID, refreshToken, userAgent, ipAddress, expiresAt).Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshToken,
		&s.UserAgent,
		&s.IPAddress,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *Postgres) GetSessionByToken(ctx context.Context, refreshToken string) (*model.Session, error) {
	query := `
		SELECT id, user_id, refresh_token, user_agent, ip_address, created_at, expires_at
		FROM sessions
		WHERE refresh_token = $1
	`
	var s model.Session
	err := db.Pool.QueryRow(ctx, query, refreshToken).Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshToken,
		&s.UserAgent,
		&s.IPAddress,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession is a no-op when the token has no matching row.
func (db *Postgres) DeleteSession(ctx context.Context, refreshToken string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, refreshToken)
	return err
}

func (db *Postgres) DeleteAllUserSessions(ctx context.Context, userID string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (db *Postgres) DeleteExpiredSessions(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	return err
}
