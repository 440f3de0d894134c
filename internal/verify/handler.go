// Package verify is the inbound HTTP surface: it authenticates Slack event
// deliveries, answers URL verification challenges, and hands everything else
// to the queue for asynchronous processing. No business logic runs here; the
// registry is consulted only to reject unroutable payloads early and to
// compute the ordering group.
package verify

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/NVIDIA/slack-to-jira/internal/event"
	"github.com/NVIDIA/slack-to-jira/internal/queue"
	"github.com/NVIDIA/slack-to-jira/internal/slack"
	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

const maxBodySize = 1 << 20

type Handler struct {
	secret string
	reg    *event.Registry
	q      queue.Queue
	log    logx.Logger
	now    func() time.Time
}

func NewHandler(signingSecret string, reg *event.Registry, q queue.Queue, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{secret: signingSecret, reg: reg, q: q, log: log, now: time.Now}
}

// Router mounts the event intake endpoint.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/slack/events", h.handleEvent)
	return r
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || len(body) == 0 {
		h.log.Error("missing or unreadable request body", logx.Err(err))
		writeJSON(w, http.StatusBadRequest, "Bad Request")
		return
	}

	ts := r.Header.Get(slack.HeaderTimestamp)
	sig := r.Header.Get(slack.HeaderSignature)
	if ts == "" || sig == "" {
		h.log.Error("missing signature headers")
		writeJSON(w, http.StatusBadRequest, "Bad Request")
		return
	}
	if !slack.VerifySignature(h.secret, string(body), ts, sig, h.now()) {
		h.log.Error("request signature rejected")
		writeJSON(w, http.StatusForbidden, "Forbidden")
		return
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.log.Error("malformed event body", logx.Err(err))
		writeJSON(w, http.StatusBadRequest, "Bad Request")
		return
	}

	// Slack sends this once, when the endpoint URL is configured.
	if t, _ := envelope["type"].(string); t == "url_verification" {
		challenge, _ := envelope["challenge"].(string)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, challenge)
		return
	}

	inner, _ := envelope["event"].(map[string]any)

	// Only routable events are worth queueing; the registry is consulted
	// with empty collaborators, nothing executes here. Bad command
	// arguments still route: the processing side surfaces those on the
	// source message.
	wf, err := h.reg.Resolve(event.Payload(inner), event.Deps{})
	if wf == nil {
		h.log.Warn("rejecting unroutable event", logx.Err(err))
		writeJSON(w, http.StatusBadRequest, "Bad Request")
		return
	}

	if err := h.q.Enqueue(r.Context(), wf.GroupID(), body); err != nil {
		h.log.Error("enqueue failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.log.Info("event queued", logx.String("group", wf.GroupID()))
	writeJSON(w, http.StatusOK, "Success")
}

func writeJSON(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
