// Package gotrue talks to a GoTrue-compatible identity service and adapts it
// to auth.Provider.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
)

// ErrInvalidToken is returned by ParseAccessToken for a token that does not
// verify.
var ErrInvalidToken = errors.New("invalid access token")

// Claims are the access token claims the storefront reads.
type Claims struct {
	jwt.RegisteredClaims
	Email        string        `json:"email"`
	Role         string        `json:"role"`
	UserMetadata auth.Metadata `json:"user_metadata"`
}

// Client calls the identity service REST API.
type Client struct {
	baseURL string
	anonKey string
	secret  []byte
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a Client. jwtSecret verifies access tokens locally; when
// empty, ParseAccessToken always fails.
func NewClient(baseURL, anonKey, jwtSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		secret:  []byte(jwtSecret),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now: time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	UserMetadata auth.Metadata `json:"user_metadata"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

// APIError is a non-2xx answer from the identity service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gotrue: %d %s: %s", e.Status, e.Code, e.Message)
}

// PasswordGrant signs in with email and password. Rejected credentials yield
// auth.ErrInvalidCredentials.
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*auth.Session, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return nil, errors.Wrap(auth.ErrInvalidCredentials, apiErr.Message)
		}
		return nil, err
	}
	return c.session(out), nil
}

// RefreshGrant exchanges a refresh token for a new session.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*auth.Session, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": refreshToken}, &out)
	if err != nil {
		return nil, err
	}
	return c.session(out), nil
}

// Logout revokes the session of accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// User fetches the identity behind accessToken.
func (c *Client) User(ctx context.Context, accessToken string) (auth.User, error) {
	var out userResponse
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &out); err != nil {
		return auth.User{}, err
	}
	return auth.User{ID: out.ID, Email: out.Email, Metadata: out.UserMetadata}, nil
}

// ParseAccessToken verifies an HS256 access token and returns its claims.
func (c *Client) ParseAccessToken(token string) (*Claims, error) {
	if len(c.secret) == 0 {
		return nil, errors.Wrap(ErrInvalidToken, "no signing secret configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SessionFromToken builds a session from a verified access token. The
// session carries no refresh token.
func (c *Client) SessionFromToken(token string) (*auth.Session, error) {
	claims, err := c.ParseAccessToken(token)
	if err != nil {
		return nil, err
	}
	s := &auth.Session{
		AccessToken: token,
		User:        auth.User{ID: claims.Subject, Email: claims.Email, Metadata: claims.UserMetadata},
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

func (c *Client) session(t tokenResponse) *auth.Session {
	s := &auth.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		User:         auth.User{ID: t.User.ID, Email: t.User.Email, Metadata: t.User.UserMetadata},
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = c.now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return s
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		code := e.ErrorCode
		if code == "" {
			code = e.Error
		}
		return &APIError{Status: resp.StatusCode, Code: code, Message: e.text()}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
