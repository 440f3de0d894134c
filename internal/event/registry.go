package event

import "fmt"

// kindHandler infers the concrete command for a top-level payload kind.
type kindHandler interface {
	inferSubtype(p Payload) (command, args string)
}

// Registry is the two-level dispatch table: payload kind to kind handler,
// command to workflow constructor. It is built once at startup; the variant
// set is closed.
type Registry struct {
	kinds    map[string]kindHandler
	commands map[string]func(deps Deps) Workflow
}

// Commands understood in mention text.
const (
	CommandRegister   = "register"
	CommandDeregister = "deregister"
)

// NewRegistry builds the dispatch table. syncReaction is the configured
// reaction name that triggers comment sync; it is a command name like any
// other, just sourced from config instead of mention text.
func NewRegistry(syncReaction string) *Registry {
	return &Registry{
		kinds: map[string]kindHandler{
			KindMention:  mentionKind{},
			KindReaction: reactionKind{},
		},
		commands: map[string]func(deps Deps) Workflow{
			CommandRegister:   func(deps Deps) Workflow { return &registerWorkflow{mention: mention{base: base{deps: deps}}} },
			CommandDeregister: func(deps Deps) Workflow { return &deregisterWorkflow{mention: mention{base: base{deps: deps}}} },
			syncReaction:      func(deps Deps) Workflow { return &syncWorkflow{reaction: reaction{base: base{deps: deps}}} },
		},
	}
}

// Resolve maps a payload to a fully constructed workflow: pop the kind, infer
// the command, construct the workflow, run its two extraction steps, and
// validate that the source message is identified. The caller's payload is
// copied first and never mutated.
//
// When the source message is identified but the command arguments are bad,
// Resolve returns BOTH the workflow and the extraction error: the caller can
// still compute the ordering group and acknowledge the message. A nil
// workflow means the payload is not routable at all.
func (r *Registry) Resolve(p Payload, deps Deps) (Workflow, error) {
	p = p.clone()

	kind := p.str("type")
	delete(p, "type")
	kh, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q: %w", kind, ErrUndefinedCommand)
	}

	command, args := kh.inferSubtype(p)
	ctor, ok := r.commands[command]
	if !ok || command == "" {
		return nil, fmt.Errorf("unknown command %q: %w", command, ErrUndefinedCommand)
	}

	w := ctor(deps)
	if err := w.extractType(p); err != nil {
		return nil, err
	}

	// The source message ref is required for acknowledgment regardless of
	// what the concrete extraction accepted.
	if ch, ts := w.ref(); ch == "" || ts == "" {
		return nil, fmt.Errorf("message ts and channel id are required: %w", ErrNotHandled)
	}

	if err := w.extractSubtype(args); err != nil {
		return w, err
	}
	return w, nil
}
