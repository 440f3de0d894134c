package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NVIDIA/slack-to-jira/internal/store"
	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

// registerWorkflow links the mention's thread to a Jira issue via a remote
// link and records the pair locally. Re-registering an already linked pair
// refreshes the link instead of duplicating it.
type registerWorkflow struct {
	mention
	issueID  string
	linkText string
}

func (w *registerWorkflow) extractSubtype(args string) error {
	if args == "" {
		return Ignorablef("register: issue id is required")
	}
	parts := strings.SplitN(args, " ", 2)
	w.issueID = parts[0]
	if len(parts) == 2 {
		w.linkText = strings.TrimSpace(parts[1])
	}
	return nil
}

func (w *registerWorkflow) process(ctx context.Context) error {
	threadID := ThreadID(w.channelID, w.threadTS)
	log := w.deps.Log.With(logx.String("issue", w.issueID), logx.String("thread", threadID))

	linkURL, err := w.deps.Slack.MessageLink(ctx, w.channelID, w.threadTS)
	if err != nil {
		return fmt.Errorf("resolving thread permalink: %w", err)
	}
	channelName, err := w.deps.Slack.ChannelName(ctx, w.channelID)
	if err != nil {
		return fmt.Errorf("resolving channel name: %w", err)
	}

	linkText := w.linkText
	if linkText == "" {
		linkText = w.threadTS
	}
	title := fmt.Sprintf("%s: #%s %s", w.deps.Settings.AppName, channelName, linkText)

	existing, err := w.deps.Store.Get(ctx, w.issueID, threadID)
	if err != nil {
		return fmt.Errorf("looking up registration: %w", err)
	}

	linkID := ""
	if existing != nil && existing.LinkID != "" {
		ok, err := w.deps.Jira.ValidateLink(ctx, w.issueID, existing.LinkID)
		if err != nil {
			return fmt.Errorf("validating remote link: %w", err)
		}
		if ok {
			linkID = existing.LinkID
		}
	}

	if linkID != "" {
		if err := w.deps.Jira.UpdateLink(ctx, w.issueID, linkID, linkURL, title); err != nil {
			return fmt.Errorf("updating remote link: %w", err)
		}
		log.Info("remote link refreshed", logx.String("link_id", linkID))
	} else {
		linkID, err = w.deps.Jira.AddLink(ctx, w.issueID, linkURL, title,
			w.deps.Settings.IconURL, w.deps.Settings.IconTitle)
		if err != nil {
			return fmt.Errorf("creating remote link: %w", err)
		}
		log.Info("remote link created", logx.String("link_id", linkID))
	}

	reg := store.Registration{
		IssueID:   w.issueID,
		ThreadID:  threadID,
		LinkID:    linkID,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.deps.Store.Put(ctx, reg); err != nil {
		return fmt.Errorf("saving registration: %w", err)
	}
	return nil
}
