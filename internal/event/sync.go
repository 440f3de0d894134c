package event

import (
	"context"
	"fmt"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

// syncWorkflow copies the reacted-to message, attachments included, into
// every issue registered to its thread. One comment per issue; a second
// reaction produces a second comment.
type syncWorkflow struct {
	reaction
}

func (w *syncWorkflow) extractSubtype(args string) error { return nil }

func (w *syncWorkflow) process(ctx context.Context) error {
	threadTS, err := w.deps.Slack.ThreadTS(ctx, w.channelID, w.messageTS)
	if err != nil {
		return fmt.Errorf("resolving thread: %w", err)
	}
	if threadTS == "" {
		return Ignorablef("sync: message %s is not part of a thread", w.messageTS)
	}

	threadID := ThreadID(w.channelID, threadTS)
	log := w.deps.Log.With(logx.String("thread", threadID), logx.String("ts", w.messageTS))

	regs, err := w.deps.Store.QueryThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("querying registrations: %w", err)
	}
	if len(regs) == 0 {
		return Ignorablef("sync: no issues registered to thread %s", threadID)
	}

	text, files, err := w.deps.Slack.MessageContent(ctx, w.channelID, w.messageTS)
	if err != nil {
		return fmt.Errorf("reading message content: %w", err)
	}
	linkURL, err := w.deps.Slack.MessageLink(ctx, w.channelID, w.messageTS)
	if err != nil {
		return fmt.Errorf("resolving message permalink: %w", err)
	}
	formatted := fmt.Sprintf("(Originating from [Slack message|%s])\n\n%s", linkURL, text)

	issueIDs := make([]string, len(regs))
	for i, reg := range regs {
		issueIDs[i] = reg.IssueID
	}

	// One download per attachment fanned out to every issue; failed targets
	// come back as empty blocks and the comment is posted regardless.
	blocks := w.deps.Transfer.Transfer(ctx, files, issueIDs, w.channelID, w.messageTS)

	var firstErr error
	for i, issueID := range issueIDs {
		body := formatted
		if i < len(blocks) && blocks[i] != "" {
			body = body + "\n\n" + blocks[i]
		}
		if _, err := w.deps.Jira.AddComment(ctx, issueID, body); err != nil {
			log.Error("failed adding comment", logx.String("issue", issueID), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("adding comment to %s: %w", issueID, err)
			}
			continue
		}
		log.Info("comment synced", logx.String("issue", issueID),
			logx.Int("attachments", len(files)))
	}
	return firstErr
}
