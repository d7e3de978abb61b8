// Package api is a client for the oeee.cafe REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
	"github.com/oeee-cafe/oeee-client/internal/models"
)

const maxErrorBody = 64 << 10

// ErrEmptyPassword is returned before any request when a password confirmation is empty.
var ErrEmptyPassword = errors.New("password is required")

// Client calls the API through an *http.Client whose cookie jar carries the session.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL *url.URL
	metrics *metrics.Metrics
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(log *slog.Logger, httpClient *http.Client, baseURL string, m *metrics.Metrics) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url %q: %w", baseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	return &Client{
		log:     log.With(slog.String("op", "api.Client")),
		http:    httpClient,
		baseURL: parsed,
		metrics: m,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

type userResponse struct {
	User models.User `json:"user"`
}

// Login authenticates with credentials; the session cookie lands in the jar.
func (c *Client) Login(ctx context.Context, creds models.Credentials) (models.User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodPost, "login", creds, &resp); err != nil {
		return models.User{}, err
	}

	return resp.User, nil
}

// Signup creates an account and logs into it.
func (c *Client) Signup(ctx context.Context, req models.SignupRequest) (models.User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodPost, "signup", req, &resp); err != nil {
		return models.User{}, err
	}

	return resp.User, nil
}

type logoutRequest struct {
	DeviceToken string `json:"device_token,omitempty"`
}

// Logout ends the server session and unregisters deviceToken when it is set.
func (c *Client) Logout(ctx context.Context, deviceToken string) error {
	return c.do(ctx, http.MethodPost, "logout", logoutRequest{DeviceToken: deviceToken}, nil)
}

// Me returns the user of the current session.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, "me", nil, &resp); err != nil {
		return models.User{}, err
	}

	return resp.User, nil
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

// DeleteAccount deletes the current account after password confirmation.
func (c *Client) DeleteAccount(ctx context.Context, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}

	return c.do(ctx, http.MethodDelete, "account", deleteAccountRequest{Password: password}, nil)
}

// DeletePushToken unregisters a device from push notifications.
func (c *Client) DeletePushToken(ctx context.Context, deviceToken string) error {
	return c.do(ctx, http.MethodDelete, "push-tokens/"+url.PathEscape(deviceToken), nil, nil)
}

// NotificationPage is one page of the notification feed.
type NotificationPage struct {
	Notifications []models.Notification
	HasMore       bool
}

type notificationsResponse struct {
	Notifications []json.RawMessage `json:"notifications"`
	HasMore       bool              `json:"has_more"`
}

// Notifications fetches a page of the notification feed. Payloads of unknown
// kinds come back as models.UnknownNotification.
func (c *Client) Notifications(ctx context.Context, limit, offset int) (NotificationPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	var resp notificationsResponse
	if err := c.do(ctx, http.MethodGet, "notifications?"+query.Encode(), nil, &resp); err != nil {
		return NotificationPage{}, err
	}

	page := NotificationPage{HasMore: resp.HasMore}
	for _, raw := range resp.Notifications {
		notification, err := models.DecodeNotification(raw)
		if err != nil {
			c.log.WarnContext(ctx, "Skipping undecodable notification", sl.Err(err))
			continue
		}
		page.Notifications = append(page.Notifications, notification)
	}

	return page, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("failed to parse endpoint %s: %w", endpoint, err)
	}
	target := c.baseURL.ResolveReference(ref)
	name := strings.SplitN(endpoint, "?", 2)[0]
	if strings.HasPrefix(name, "push-tokens/") {
		name = "push-tokens"
	}

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode %s request: %w", name, marshalErr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create new request %s: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", models.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.metrics != nil {
		c.metrics.APIRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := newError(resp.StatusCode, resp.Header.Get("Content-Type"), raw)
		c.log.DebugContext(ctx, "API request failed", "endpoint", name, "status", resp.StatusCode)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}

	return nil
}
