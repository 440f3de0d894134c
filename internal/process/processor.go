// Package process is the consuming side of the bridge: it drains the queue
// and runs each delivered event through the dispatcher, translating dispatch
// outcomes into settle-or-redeliver decisions.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NVIDIA/slack-to-jira/internal/event"
	"github.com/NVIDIA/slack-to-jira/internal/queue"
	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

type Processor struct {
	q   queue.Queue
	d   *event.Dispatcher
	log logx.Logger
}

func New(q queue.Queue, d *event.Dispatcher, log logx.Logger) *Processor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Processor{q: q, d: d, log: log}
}

// Run consumes until ctx is canceled.
func (p *Processor) Run(ctx context.Context) error {
	return p.q.Consume(ctx, p.Handle)
}

// Handle settles one delivered envelope. A nil return acknowledges it; an
// error leaves it pending so the queue redelivers the whole event.
func (p *Processor) Handle(ctx context.Context, groupID string, body []byte) error {
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		// A body that never parses will never parse; retrying is noise.
		p.log.Error("discarding malformed envelope", logx.String("group", groupID), logx.Err(err))
		return nil
	}
	inner, _ := envelope["event"].(map[string]any)
	if inner == nil {
		p.log.Error("discarding envelope without event", logx.String("group", groupID))
		return nil
	}

	err := p.d.Dispatch(ctx, event.Payload(inner))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, event.ErrUndefinedCommand):
		// The verifier filters these; one can still arrive if the
		// configuration changed between enqueue and delivery.
		p.log.Warn("settling event without workflow", logx.String("group", groupID), logx.Err(err))
		return nil
	default:
		return fmt.Errorf("dispatching event: %w", err)
	}
}
