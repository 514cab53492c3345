package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
	PanelType  string `json:"panelType,omitempty"`
}

// User is the account returned by a successful login
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	ProfileID string `json:"profile_id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
}

// License is the license summary of an account
type License struct {
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at"`
	TimeRemainingMS *int64     `json:"time_remaining_ms"`
}

// TimeRemaining returns the remaining validity; ok is false for licenses without expiry
func (l License) TimeRemaining() (d time.Duration, ok bool) {
	if l.TimeRemainingMS == nil {
		return 0, false
	}
	return time.Duration(*l.TimeRemainingMS) * time.Millisecond, true
}

// Session holds the tokens of a login
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse is a successful login
type LoginResponse struct {
	User    User     `json:"user"`
	License *License `json:"license"`
	Session Session  `json:"session"`
}

// APIError is a failure reported by the server
type APIError struct {
	Status   int
	Code     string
	Message  string
	License  *License
	Category Category
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// NetworkError wraps transport failures
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// Client talks to the login API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the API at baseURL
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Login submits credentials. Failures are *APIError or *NetworkError.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the session behind refreshToken
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", "", map[string]string{"refresh_token": refreshToken}, nil)
}

// MeResponse describes the signed-in account
type MeResponse struct {
	User    User     `json:"user"`
	Panel   string   `json:"panel"`
	License *License `json:"license"`
}

// Me returns the account behind accessToken
func (c *Client) Me(ctx context.Context, accessToken string) (*MeResponse, error) {
	var out MeResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type errorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	License *License `json:"license"`
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &APIError{
			Status:   resp.StatusCode,
			Code:     eb.Code,
			Message:  eb.Error,
			License:  eb.License,
			Category: Classify(resp.StatusCode, eb.Code, eb.Error),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CategoryOf classifies any error returned by the client
func CategoryOf(err error) Category {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	return CategoryServer
}
