// Package mailinglist is a client for the remote mailing-list service that
// owns list members and list subscriptions.
package mailinglist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Member is a person known to the mailing-list service.
type Member struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	EmailSub string `json:"email_sub,omitempty"`
}

type memberList struct {
	Members []Member `json:"members"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailing-list API %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks JSON over HTTP to the mailing-list service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func NewClient(baseURL, apiKey string, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// FindOrCreateMember returns the id of the member matching all three fields,
// creating the member when none exists.
func (c *Client) FindOrCreateMember(ctx context.Context, name, email, emailSub string) (int64, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("email", email)
	q.Set("email_sub", emailSub)

	var found memberList
	if err := c.do(ctx, http.MethodGet, "/members?"+q.Encode(), nil, &found); err != nil {
		return 0, err
	}
	if len(found.Members) > 0 {
		return found.Members[0].ID, nil
	}

	var created Member
	req := Member{Name: name, Email: email, EmailSub: emailSub}
	if err := c.do(ctx, http.MethodPost, "/members", req, &created); err != nil {
		return 0, err
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("mailing-list API returned member without id")
	}
	c.logger.Infow("mailing-list member created", "member_id", created.ID, "email", email)
	return created.ID, nil
}

// AddMember subscribes memberID to listID.
func (c *Client) AddMember(ctx context.Context, listID, memberID int64) error {
	q := url.Values{}
	q.Set("member_id", strconv.FormatInt(memberID, 10))
	path := fmt.Sprintf("/lists/%d/add_member?%s", listID, q.Encode())
	return c.do(ctx, http.MethodGet, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	c.logger.Debugw("mailing-list request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailing-list request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("unmarshal response body: %w", err)
		}
	}
	return nil
}
