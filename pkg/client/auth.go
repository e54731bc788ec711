package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/presencepro-api/internal/models"
)

// ErrNoToken is returned when an authenticated call is made without a token.
var ErrNoToken = errors.New("not signed in")

// Login exchanges credentials for a bearer token and keeps it in the store.
// The identifier may be a username or an email address.
func (c *Client) Login(ctx context.Context, identifier, password string) (*models.LoginResponse, error) {
	var res models.LoginResponse
	payload := models.LoginRequest{Identifier: identifier, Password: password}
	if _, err := c.do(ctx, http.MethodPost, "/login", nil, payload, &res); err != nil {
		return nil, err
	}
	if c.tokens != nil {
		if err := c.tokens.SetToken(res.AccessToken); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// Logout revokes the token server-side and always drops it locally.
func (c *Client) Logout(ctx context.Context) error {
	if !c.Authenticated() {
		return nil
	}
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, nil, nil)
	if clearErr := c.tokens.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

// Register creates a student account.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	var user models.UserInfo
	if _, err := c.do(ctx, http.MethodPost, "/register", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile fetches the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (*models.Profile, error) {
	if !c.Authenticated() {
		return nil, ErrNoToken
	}
	var profile models.Profile
	if _, err := c.do(ctx, http.MethodGet, "/my-profile", nil, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile changes the signed-in user's email or password.
func (c *Client) UpdateProfile(ctx context.Context, req models.UpdateProfileRequest) (*models.UserInfo, error) {
	var user models.UserInfo
	if _, err := c.do(ctx, http.MethodPut, "/my-profile", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
