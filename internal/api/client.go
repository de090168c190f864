// Package api is the REST client for the soldier-health portal backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"vitalsops/internal/metrics"
	"vitalsops/internal/session"
	"vitalsops/internal/telemetry"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Client talks to the portal backend. Requests are never retried; the push
// feed is the only component that reconnects.
type Client struct {
	http       *resty.Client
	credential func() string
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCredential sets the source of the bearer token for authorized calls.
func WithCredential(fn func() string) Option {
	return func(c *Client) { c.credential = fn }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// New returns a client for the backend rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(15*time.Second).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
		credential: func() string { return "" },
		log:        slog.Default(),
	}
	c.http.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if r.Header.Get(RequestIDHeader) == "" {
			r.SetHeader(RequestIDHeader, uuid.NewString())
		}
		return nil
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	r := c.http.R().SetContext(ctx)
	if token != "" {
		r.SetAuthToken(token)
	}
	return r
}

// do executes r and decodes a 2xx body into out. Non-2xx responses become
// *ServerError; the caller maps specific statuses to sentinels.
func (c *Client) do(op, method, path string, r *resty.Request, out any) (*resty.Response, error) {
	start := time.Now()
	resp, err := r.Execute(method, path)
	if err != nil {
		c.log.Warn("[API] request failed", "op", op, "path", path, "error", err)
		return resp, &NetworkError{Op: op, Err: err}
	}
	c.log.Debug("[API] response", "op", op, "path", path, "status", resp.StatusCode(), "elapsed", time.Since(start))
	if !resp.IsSuccess() {
		return resp, &ServerError{Op: op, Status: resp.StatusCode(), Message: serverMessage(resp.Body())}
	}
	if out == nil {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return resp, &ServerError{Op: op, Status: resp.StatusCode(), Message: fmt.Sprintf("decode: %v", err)}
	}
	return resp, nil
}

func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return payload.Message
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string            `json:"token"`
	User     *session.Identity `json:"user"`
	UserData *session.Identity `json:"userData"`
}

// Login exchanges email and password for a credential and identity.
func (c *Client) Login(ctx context.Context, email, password string) (string, session.Identity, error) {
	var out loginResponse
	r := c.request(ctx, "").SetBody(loginRequest{Email: email, Password: password})
	_, err := c.do("login", http.MethodPost, "/auth/login", r, &out)
	if err != nil {
		var se *ServerError
		if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden) {
			return "", session.Identity{}, ErrAuth
		}
		return "", session.Identity{}, err
	}
	id := out.User
	if id == nil {
		id = out.UserData
	}
	if out.Token == "" || id == nil {
		return "", session.Identity{}, &ServerError{Op: "login", Status: http.StatusOK, Message: "response missing token or user"}
	}
	return out.Token, *id, nil
}

// Me verifies credential and returns the identity it belongs to.
func (c *Client) Me(ctx context.Context, credential string) (session.Identity, error) {
	var id session.Identity
	_, err := c.do("me", http.MethodGet, "/auth/me", c.request(ctx, credential), &id)
	if err != nil {
		var se *ServerError
		if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
			return session.Identity{}, ErrSessionVerify
		}
		return session.Identity{}, err
	}
	return id, nil
}

// LoadLatest returns the latest reading per soldier in server order.
func (c *Client) LoadLatest(ctx context.Context) ([]telemetry.SoldierReading, error) {
	start := time.Now()
	var rows []telemetry.SoldierReading
	_, err := c.do("load latest", http.MethodGet, "/vitals", c.request(ctx, c.credential()), &rows)
	metrics.ObserveSnapshot("latest", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LoadHistory returns recent readings of one soldier, oldest first. The
// backend serves them newest first.
func (c *Client) LoadHistory(ctx context.Context, soldierID string) ([]telemetry.SoldierReading, error) {
	start := time.Now()
	var rows []telemetry.SoldierReading
	path := "/vitals/" + url.PathEscape(soldierID)
	_, err := c.do("load history", http.MethodGet, path, c.request(ctx, c.credential()), &rows)
	metrics.ObserveSnapshot("history", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// LoadProfile returns the registered profile of soldierID. A soldier
// without a profile is not an error.
func (c *Client) LoadProfile(ctx context.Context, soldierID string) (telemetry.SoldierProfile, bool, error) {
	start := time.Now()
	profiles, err := c.soldiers(ctx, "load profile")
	metrics.ObserveSnapshot("profile", time.Since(start), err)
	if err != nil {
		return telemetry.SoldierProfile{}, false, err
	}
	for _, p := range profiles {
		if p.SoldierID == soldierID {
			return p, true, nil
		}
	}
	return telemetry.SoldierProfile{}, false, nil
}

// Soldiers returns the registered roster.
func (c *Client) Soldiers(ctx context.Context) ([]telemetry.SoldierProfile, error) {
	return c.soldiers(ctx, "soldiers")
}

func (c *Client) soldiers(ctx context.Context, op string) ([]telemetry.SoldierProfile, error) {
	var profiles []telemetry.SoldierProfile
	if _, err := c.do(op, http.MethodGet, "/soldiers", c.request(ctx, c.credential()), &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// RegisterSoldier enrolls a soldier and links the hardware id.
func (c *Client) RegisterSoldier(ctx context.Context, p telemetry.SoldierProfile) error {
	if !telemetry.ValidRank(p.Rank) {
		return fmt.Errorf("register soldier: unknown rank %q", p.Rank)
	}
	r := c.request(ctx, c.credential()).SetBody(p)
	_, err := c.do("register soldier", http.MethodPost, "/soldiers/register", r, nil)
	return err
}

// Commanders lists commander accounts.
func (c *Client) Commanders(ctx context.Context) ([]telemetry.Commander, error) {
	var out []telemetry.Commander
	if _, err := c.do("commanders", http.MethodGet, "/admin/commanders", c.request(ctx, c.credential()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewCommander is the create-commander form.
type NewCommander struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Region   string `json:"region"`
}

// CreateCommander provisions a commander account.
func (c *Client) CreateCommander(ctx context.Context, nc NewCommander) error {
	r := c.request(ctx, c.credential()).SetBody(nc)
	_, err := c.do("create commander", http.MethodPost, "/admin/create-commander", r, nil)
	return err
}
