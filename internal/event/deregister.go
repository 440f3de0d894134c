package event

import (
	"context"
	"fmt"
	"strings"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

// deregisterWorkflow removes the link between the mention's thread and an
// issue. The remote link removal is best-effort: the local record always
// goes, so a half-removed pair cannot keep resurrecting.
type deregisterWorkflow struct {
	mention
	issueID string
}

func (w *deregisterWorkflow) extractSubtype(args string) error {
	if args == "" || strings.Contains(args, " ") {
		return Ignorablef("deregister: exactly one issue id is required, got %q", args)
	}
	w.issueID = args
	return nil
}

func (w *deregisterWorkflow) process(ctx context.Context) error {
	threadID := ThreadID(w.channelID, w.threadTS)
	log := w.deps.Log.With(logx.String("issue", w.issueID), logx.String("thread", threadID))

	existing, err := w.deps.Store.Get(ctx, w.issueID, threadID)
	if err != nil {
		return fmt.Errorf("looking up registration: %w", err)
	}
	if existing == nil {
		return Ignorablef("deregister: %s is not registered to this thread", w.issueID)
	}
	if existing.LinkID == "" {
		return Ignorablef("deregister: registration for %s has no remote link id", w.issueID)
	}

	if err := w.deps.Jira.RemoveLink(ctx, w.issueID, existing.LinkID); err != nil {
		// The local record still goes; a stale remote link is harmless,
		// a stale registration is not.
		log.Error("failed removing remote link", logx.String("link_id", existing.LinkID), logx.Err(err))
	} else {
		log.Info("remote link removed", logx.String("link_id", existing.LinkID))
	}

	if err := w.deps.Store.Delete(ctx, w.issueID, threadID); err != nil {
		return fmt.Errorf("deleting registration: %w", err)
	}
	return nil
}
