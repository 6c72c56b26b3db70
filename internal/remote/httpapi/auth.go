package httpapi

import (
	"context"
	"net/http"

	"github.com/and161185/fitsync/internal/model"
)

const (
	pathLogin   = "/auth/login"
	pathSignUp  = "/auth/signup"
	pathRefresh = "/auth/refresh"
	pathLogout  = "/auth/logout"
	pathMe      = "/auth/me"
)

// sessionResponse is the login and sign-up answer. Missing parts are left for the caller
// to reject.
type sessionResponse struct {
	model.AuthTokens
	User *model.User `json:"user"`
}

func (r sessionResponse) session() *model.Session {
	s := &model.Session{Tokens: r.AuthTokens}
	if r.User != nil {
		s.User = *r.User
	}
	return s
}

// Login implements auth.API.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, pathLogin, nil, "", creds, &resp); err != nil {
		return nil, err
	}
	return resp.session(), nil
}

// SignUp implements auth.API.
func (c *Client) SignUp(ctx context.Context, req model.SignUp) (*model.Session, error) {
	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, pathSignUp, nil, "", req, &resp); err != nil {
		return nil, err
	}
	return resp.session(), nil
}

// Refresh implements auth.API. The server may omit refreshToken when it does not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*model.AuthTokens, error) {
	var out model.AuthTokens
	in := map[string]string{"refreshToken": refreshToken}
	if err := c.do(ctx, http.MethodPost, pathRefresh, nil, "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout implements auth.API.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, pathLogout, nil, accessToken, nil, nil)
}

// CurrentUser fetches the signed-in account through a.
func (c *Client) CurrentUser(ctx context.Context, a Authorizer) (model.User, error) {
	var u model.User
	err := a.Do(ctx, func(ctx context.Context, token string) error {
		return c.do(ctx, http.MethodGet, pathMe, nil, token, nil, &u)
	})
	return u, err
}
