// Package jira is a thin client for the Jira REST API v2 operations the
// bridge needs: remote links and comments. Attachment uploads are streamed by
// the transfer engine straight to the attachments endpoint.
package jira

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

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

// Client is the issue-tracker surface consumed by the event workflows.
type Client interface {
	// AddLink creates a remote link on the issue and returns its id.
	AddLink(ctx context.Context, issueID, linkURL, title, iconURL, iconTitle string) (string, error)
	UpdateLink(ctx context.Context, issueID, linkID, linkURL, title string) error
	// RemoveLink deletes a remote link; a link that is already gone is not
	// an error.
	RemoveLink(ctx context.Context, issueID, linkID string) error
	// ValidateLink reports whether the remote link still exists.
	ValidateLink(ctx context.Context, issueID, linkID string) (bool, error)
	AddComment(ctx context.Context, issueID, body string) (string, error)
}

type Config struct {
	ServerURL string
	Token     string
}

type HTTPClient struct {
	base  string
	token string
	http  *http.Client
	log   logx.Logger
}

func New(cfg Config, log logx.Logger) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, errors.New("jira: server url is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("jira: token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPClient{
		base:  strings.TrimRight(cfg.ServerURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: 30 * time.Second},
		log:   log,
	}, nil
}

// ServerURL and Token feed the transfer engine's attachment uploads.
func (c *HTTPClient) ServerURL() string { return c.base }
func (c *HTTPClient) Token() string     { return c.token }

type linkIcon struct {
	URL16 string `json:"url16x16,omitempty"`
	Title string `json:"title,omitempty"`
}

type remoteLinkBody struct {
	Object struct {
		URL   string    `json:"url"`
		Title string    `json:"title"`
		Icon  *linkIcon `json:"icon,omitempty"`
	} `json:"object"`
}

func (c *HTTPClient) AddLink(ctx context.Context, issueID, linkURL, title, iconURL, iconTitle string) (string, error) {
	var body remoteLinkBody
	body.Object.URL = linkURL
	body.Object.Title = title
	if iconURL != "" || iconTitle != "" {
		body.Object.Icon = &linkIcon{URL16: iconURL, Title: iconTitle}
	}

	var out struct {
		ID json.Number `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/rest/api/2/issue/%s/remotelink", issueID), body, &out)
	if err != nil {
		return "", err
	}
	return out.ID.String(), nil
}

func (c *HTTPClient) UpdateLink(ctx context.Context, issueID, linkID, linkURL, title string) error {
	var body remoteLinkBody
	body.Object.URL = linkURL
	body.Object.Title = title
	return c.do(ctx, http.MethodPut,
		fmt.Sprintf("/rest/api/2/issue/%s/remotelink/%s", issueID, linkID), body, nil)
}

func (c *HTTPClient) RemoveLink(ctx context.Context, issueID, linkID string) error {
	err := c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/rest/api/2/issue/%s/remotelink/%s", issueID, linkID), nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

func (c *HTTPClient) ValidateLink(ctx context.Context, issueID, linkID string) (bool, error) {
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/rest/api/2/issue/%s/remotelink/%s", issueID, linkID), nil, nil)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *HTTPClient) AddComment(ctx context.Context, issueID, body string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/rest/api/2/issue/%s/comment", issueID),
		map[string]string{"body": body}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// statusError is a non-2xx Jira response.
type statusError struct {
	code int
	path string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("jira: %s: status %d", e.path, e.code)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

const (
	callAttempts = 3
	callBackoff  = time.Second
)

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("jira: marshal: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= callAttempts; attempt++ {
		body, retryable, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			if out != nil && len(body) > 0 {
				if uerr := json.Unmarshal(body, out); uerr != nil {
					return fmt.Errorf("jira: %s: decode: %w", path, uerr)
				}
			}
			return nil
		}
		lastErr = err
		if !retryable || attempt == callAttempts {
			break
		}
		c.log.Warn("jira call failed, retrying",
			logx.String("path", path), logx.Int("attempt", attempt), logx.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(callBackoff):
		}
	}
	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, payload []byte) (body []byte, retryable bool, err error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, &statusError{code: resp.StatusCode, path: path}
	default:
		return nil, false, &statusError{code: resp.StatusCode, path: path}
	}
}
