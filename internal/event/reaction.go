package event

// KindReaction is the payload type for added reactions.
const KindReaction = "reaction_added"

// reactionKind treats the reaction name itself as the command: only the
// configured sync reaction has a registered workflow, everything else
// resolves to ErrUndefinedCommand.
type reactionKind struct{}

func (reactionKind) inferSubtype(p Payload) (command, args string) {
	return p.str("reaction"), ""
}

// reaction is the shared extraction for reaction-triggered workflows. The
// reacted-to message lives under the payload's item object. Missing fields
// are not an error here; the dispatcher's ref validation turns them into
// ErrNotHandled.
type reaction struct {
	base
}

func (r *reaction) extractType(p Payload) error {
	item := p.child("item")
	if item != nil {
		r.channelID = item.str("channel")
		r.messageTS = item.str("ts")
	}
	return nil
}

func (r *reaction) GroupID() string { return ThreadID(r.channelID, r.messageTS) }
