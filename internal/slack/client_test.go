package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{Token: "xoxb-test", BaseURL: srv.URL, RatePerSec: 1000}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestMessageContentAndThreadTS(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.replies" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Fatalf("missing bearer auth, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{{
				"text":      "hello there",
				"thread_ts": "111.222",
				"files": []map[string]any{
					{"name": "a.png", "url_private_download": "https://files/a.png"},
					{"name": "no-url.txt"},
				},
			}},
		})
	}))

	text, files, err := c.MessageContent(context.Background(), "C1", "123.456")
	if err != nil {
		t.Fatalf("MessageContent: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("unexpected text %q", text)
	}
	if len(files) != 1 || files[0].Name != "a.png" {
		t.Fatalf("files without download url must be skipped: %+v", files)
	}

	ts, err := c.ThreadTS(context.Background(), "C1", "123.456")
	if err != nil {
		t.Fatalf("ThreadTS: %v", err)
	}
	if ts != "111.222" {
		t.Fatalf("unexpected thread ts %q", ts)
	}
}

func TestCallRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "permalink": "https://slack/p1"})
	}))

	link, err := c.MessageLink(context.Background(), "C1", "1.2")
	if err != nil {
		t.Fatalf("MessageLink: %v", err)
	}
	if link != "https://slack/p1" {
		t.Fatalf("unexpected permalink %q", link)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestCallSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	}))

	_, err := c.ChannelName(context.Background(), "C404")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRemoveBotReactionsOnlyOwn(t *testing.T) {
	var removed []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth.test":
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "user_id": "UBOT"})
		case "/reactions.get":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"message": map[string]any{
					"reactions": []map[string]any{
						{"name": "x", "users": []string{"UBOT", "U1"}},
						{"name": "eyes", "users": []string{"U1"}},
						{"name": "white_check_mark", "users": []string{"UBOT"}},
					},
				},
			})
		case "/reactions.remove":
			_ = r.ParseForm()
			removed = append(removed, r.Form.Get("name"))
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	if err := c.RemoveBotReactions(context.Background(), "C1", "1.2"); err != nil {
		t.Fatalf("RemoveBotReactions: %v", err)
	}
	if len(removed) != 2 || removed[0] != "x" || removed[1] != "white_check_mark" {
		t.Fatalf("unexpected removals: %v", removed)
	}
}
