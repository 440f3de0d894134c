// Package slack is a thin client for the Slack Web API operations the bridge
// needs: permalinks, channel names, message content with attachments, and
// reaction management.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

const defaultBaseURL = "https://slack.com/api"

// File is one downloadable attachment of a message.
type File struct {
	Name string
	URL  string
}

// Client is the messaging-platform surface consumed by the event workflows
// and the verify endpoint.
type Client interface {
	BotUserID(ctx context.Context) (string, error)
	MessageLink(ctx context.Context, channelID, messageTS string) (string, error)
	ChannelName(ctx context.Context, channelID string) (string, error)
	// ThreadTS resolves the thread a message belongs to. Empty when the
	// message is not part of a thread.
	ThreadTS(ctx context.Context, channelID, messageTS string) (string, error)
	MessageContent(ctx context.Context, channelID, messageTS string) (text string, files []File, err error)
	AddReaction(ctx context.Context, channelID, messageTS, name string) error
	// RemoveBotReactions clears every reaction previously added by this bot
	// on the message; reactions from other users are left alone.
	RemoveBotReactions(ctx context.Context, channelID, messageTS string) error
}

type Config struct {
	Token string
	// BaseURL overrides the Slack API endpoint (tests). Empty = public API.
	BaseURL string
	// RatePerSec bounds outbound API calls. 0 = Slack's Tier 3 default.
	RatePerSec float64
}

type HTTPClient struct {
	base  string
	token string
	http  *http.Client
	lim   *rate.Limiter
	log   logx.Logger

	mu    sync.Mutex
	botID string
}

func New(cfg Config, log logx.Logger) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack: token is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 50.0 / 60.0
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPClient{
		base:  base,
		token: cfg.Token,
		http:  &http.Client{Timeout: 30 * time.Second},
		lim:   rate.NewLimiter(rate.Limit(rps), 5),
		log:   log,
	}, nil
}

// Token exposes the bearer token for the attachment transfer, which downloads
// files straight from Slack's file host.
func (c *HTTPClient) Token() string { return c.token }

func (c *HTTPClient) BotUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.botID != "" {
		id := c.botID
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	var out struct {
		UserID string `json:"user_id"`
	}
	if err := c.call(ctx, "auth.test", nil, &out); err != nil {
		return "", err
	}
	if out.UserID == "" {
		return "", errors.New("slack: auth.test returned no user id")
	}

	c.mu.Lock()
	c.botID = out.UserID
	c.mu.Unlock()
	return out.UserID, nil
}

func (c *HTTPClient) MessageLink(ctx context.Context, channelID, messageTS string) (string, error) {
	var out struct {
		Permalink string `json:"permalink"`
	}
	err := c.call(ctx, "chat.getPermalink", url.Values{
		"channel":    {channelID},
		"message_ts": {messageTS},
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Permalink, nil
}

func (c *HTTPClient) ChannelName(ctx context.Context, channelID string) (string, error) {
	var out struct {
		Channel struct {
			Name string `json:"name"`
		} `json:"channel"`
	}
	err := c.call(ctx, "conversations.info", url.Values{"channel": {channelID}}, &out)
	if err != nil {
		return "", err
	}
	return out.Channel.Name, nil
}

type repliesResponse struct {
	Messages []struct {
		Text     string `json:"text"`
		ThreadTS string `json:"thread_ts"`
		Files    []struct {
			Name               string `json:"name"`
			URLPrivateDownload string `json:"url_private_download"`
		} `json:"files"`
	} `json:"messages"`
}

func (c *HTTPClient) replies(ctx context.Context, channelID, messageTS string) (*repliesResponse, error) {
	var out repliesResponse
	err := c.call(ctx, "conversations.replies", url.Values{
		"channel": {channelID},
		"ts":      {messageTS},
		"limit":   {"1"},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ThreadTS(ctx context.Context, channelID, messageTS string) (string, error) {
	out, err := c.replies(ctx, channelID, messageTS)
	if err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ThreadTS, nil
}

func (c *HTTPClient) MessageContent(ctx context.Context, channelID, messageTS string) (string, []File, error) {
	out, err := c.replies(ctx, channelID, messageTS)
	if err != nil {
		return "", nil, err
	}
	if len(out.Messages) == 0 {
		return "", nil, nil
	}
	msg := out.Messages[0]
	var files []File
	for _, f := range msg.Files {
		if f.URLPrivateDownload == "" {
			continue
		}
		files = append(files, File{Name: f.Name, URL: f.URLPrivateDownload})
	}
	return msg.Text, files, nil
}

func (c *HTTPClient) AddReaction(ctx context.Context, channelID, messageTS, name string) error {
	return c.call(ctx, "reactions.add", url.Values{
		"channel":   {channelID},
		"timestamp": {messageTS},
		"name":      {name},
	}, nil)
}

func (c *HTTPClient) RemoveBotReactions(ctx context.Context, channelID, messageTS string) error {
	botID, err := c.BotUserID(ctx)
	if err != nil {
		return err
	}

	var out struct {
		Message struct {
			Reactions []struct {
				Name  string   `json:"name"`
				Users []string `json:"users"`
			} `json:"reactions"`
		} `json:"message"`
	}
	err = c.call(ctx, "reactions.get", url.Values{
		"channel":   {channelID},
		"timestamp": {messageTS},
	}, &out)
	if err != nil {
		return err
	}

	for _, r := range out.Message.Reactions {
		if r.Name == "" || !contains(r.Users, botID) {
			continue
		}
		err := c.call(ctx, "reactions.remove", url.Values{
			"channel":   {channelID},
			"timestamp": {messageTS},
			"name":      {r.Name},
		}, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// apiError is a non-ok Slack API response ({"ok":false,"error":"..."}).
type apiError struct {
	method string
	reason string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("slack: %s: %s", e.method, e.reason)
}

const (
	callAttempts = 3
	callBackoff  = time.Second
)

// call POSTs a form-encoded Web API method, retrying on rate limits and
// transport errors with a fixed backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := c.base + "/" + method

	var lastErr error
	for attempt := 1; attempt <= callAttempts; attempt++ {
		if err := c.lim.Wait(ctx); err != nil {
			return err
		}

		body, retryable, err := c.doOnce(ctx, endpoint, params)
		if err == nil {
			if out == nil {
				return nil
			}
			if uerr := json.Unmarshal(body, out); uerr != nil {
				return fmt.Errorf("slack: %s: decode: %w", method, uerr)
			}
			return nil
		}

		lastErr = err
		if !retryable || attempt == callAttempts {
			break
		}
		c.log.Warn("slack call failed, retrying",
			logx.String("method", method), logx.Int("attempt", attempt), logx.Err(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(callBackoff):
		}
	}
	if ae := new(apiError); errors.As(lastErr, &ae) {
		ae.method = method
		return lastErr
	}
	return fmt.Errorf("slack: %s: %w", method, lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, endpoint string, params url.Values) (body []byte, retryable bool, err error) {
	var reqBody io.Reader
	if params != nil {
		reqBody = strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reqBody)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, false, fmt.Errorf("decode envelope: %w", err)
	}
	if !envelope.OK {
		reason := envelope.Error
		if reason == "" {
			reason = "not ok"
		}
		// ratelimited comes back as ok:false too.
		return nil, reason == "ratelimited", &apiError{reason: reason}
	}
	return data, false, nil
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
