package event

import (
	"fmt"
	"regexp"
	"strings"
)

// KindMention is the payload type for app mentions ("@bot register PROJ-1").
const KindMention = "app_mention"

var (
	reUserMention = regexp.MustCompile(`<@[^>]+>`)
	reLabeledLink = regexp.MustCompile(`<https?://[^>|]+?\|([^>]+)>`)
	reBareLink    = regexp.MustCompile(`<(https?://[^>]+)>`)
	reManySpaces  = regexp.MustCompile(`\s{2,}`)
)

// sanitizeCommandText strips Slack markup from mention text so the command
// line can be tokenized: user mentions are removed, <url|label> collapses to
// label, <url> to the raw url, and runs of whitespace to one space.
func sanitizeCommandText(text string) string {
	text = reUserMention.ReplaceAllString(text, "")
	text = reLabeledLink.ReplaceAllString(text, "$1")
	text = reBareLink.ReplaceAllString(text, "$1")
	text = reManySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// mentionKind infers the command from the sanitized mention text: the first
// whitespace-delimited token names the command, the rest are its arguments.
type mentionKind struct{}

func (mentionKind) inferSubtype(p Payload) (command, args string) {
	text := sanitizeCommandText(p.str("text"))
	parts := strings.SplitN(text, " ", 2)
	command = parts[0]
	if len(parts) == 2 {
		args = parts[1]
	}
	return command, args
}

// mention is the shared extraction for mention-triggered workflows. Mentions
// must sit in a thread: the thread is what gets linked to issues.
type mention struct {
	base
	threadTS string
}

func (m *mention) extractType(p Payload) error {
	m.threadTS = p.str("thread_ts")
	m.channelID = p.str("channel")
	m.messageTS = p.str("ts")

	if m.threadTS == "" {
		return fmt.Errorf("missing thread_ts in mention: %w", ErrNotHandled)
	}
	if m.channelID == "" {
		return fmt.Errorf("missing channel in mention: %w", ErrNotHandled)
	}
	if m.messageTS == "" {
		return fmt.Errorf("missing ts in mention: %w", ErrNotHandled)
	}
	return nil
}

func (m *mention) GroupID() string { return ThreadID(m.channelID, m.threadTS) }
