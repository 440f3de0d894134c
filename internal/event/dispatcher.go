package event

import (
	"context"
	"errors"

	"github.com/google/uuid"

	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

// Dispatcher resolves payloads against the registry and runs the resulting
// workflow under the shared acknowledge/retry-classification lifecycle.
type Dispatcher struct {
	reg  *Registry
	deps Deps
	log  logx.Logger
}

func NewDispatcher(reg *Registry, deps Deps) *Dispatcher {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{reg: reg, deps: deps, log: log}
}

// Dispatch runs one notification end to end. The error contract follows the
// three failure kinds:
//
//   - nil: handled (including silently dropped NotHandled input and marked
//     ignorable failures) — the notification is settled.
//   - ErrUndefinedCommand: no workflow for this payload; the caller decides.
//   - anything else: unexpected failure, already marked on the source
//     message; the caller should arrange redelivery.
//
// Dispatch is not idempotent: redelivery re-runs the whole workflow, and
// duplicate side effects (a second comment, a reissued link id) are accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) error {
	log := d.log.With(logx.String("rid", uuid.NewString()[:8]))

	w, err := d.reg.Resolve(p, d.deps)
	if w == nil {
		if errors.Is(err, ErrNotHandled) {
			log.Info("event not handled", logx.Err(err))
			return nil
		}
		return err
	}

	channelID, messageTS := w.ref()
	log = log.With(logx.String("channel", channelID), logx.String("ts", messageTS))

	if err == nil {
		err = w.process(ctx)
	}
	switch {
	case err == nil:
		d.acknowledge(ctx, log, channelID, messageTS, d.deps.Settings.SuccessReaction)
		return nil
	case errors.Is(err, ErrNotHandled):
		log.Info("event not handled", logx.Err(err))
		return nil
	default:
		log.Error("workflow failed", logx.Err(err))
		d.acknowledge(ctx, log, channelID, messageTS, d.deps.Settings.ErrorReaction)
		if IsIgnorable(err) {
			return nil
		}
		return err
	}
}

// acknowledge marks the source message: clear any indicator a previous
// attempt left, then add the new one. Best-effort on both steps; reaction
// API failures never change the dispatch outcome.
func (d *Dispatcher) acknowledge(ctx context.Context, log logx.Logger, channelID, messageTS, name string) {
	if err := d.deps.Slack.RemoveBotReactions(ctx, channelID, messageTS); err != nil {
		log.Error("failed clearing bot reactions", logx.Err(err))
		return
	}
	if err := d.deps.Slack.AddReaction(ctx, channelID, messageTS, name); err != nil {
		log.Error("failed adding reaction", logx.String("reaction", name), logx.Err(err))
	}
}
