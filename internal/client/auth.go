package client

import (
	"context"
	"net/http"

	"github.com/taskhive/backend/internal/model"
)

func (c *Client) Register(ctx context.Context, email, name, password string) (*model.SafeUser, error) {
	var user model.SafeUser
	err := c.do(ctx, http.MethodPost, "/auth/register", model.RegisterRequest{
		Email:    email,
		Name:     name,
		Password: password,
	}, &user)
	if err != nil {
		return nil, err
	}
	c.sessionRestored()
	return &user, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*model.SafeUser, error) {
	var user model.SafeUser
	err := c.do(ctx, http.MethodPost, "/auth/login", model.LoginRequest{
		Email:    email,
		Password: password,
	}, &user)
	if err != nil {
		return nil, err
	}
	c.sessionRestored()
	return &user, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) LogoutAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout-all", nil, nil)
}

// Refresh exchanges the refresh cookie explicitly. Transparent
// refreshes happen inside the coordinator; this is for callers that
// want to warm the credential, e.g. before opening a realtime
// connection.
func (c *Client) Refresh(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, refreshPath, nil, nil)
	if err != nil {
		return err
	}
	c.sessionRestored()
	return nil
}

func (c *Client) Me(ctx context.Context) (*model.SafeUser, error) {
	var user model.SafeUser
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, name, email *string) (*model.SafeUser, error) {
	var user model.SafeUser
	err := c.do(ctx, http.MethodPatch, "/auth/me", model.UpdateProfileRequest{
		Name:  name,
		Email: email,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
