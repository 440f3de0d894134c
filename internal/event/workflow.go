package event

import (
	"context"

	"github.com/NVIDIA/slack-to-jira/internal/jira"
	"github.com/NVIDIA/slack-to-jira/internal/slack"
	"github.com/NVIDIA/slack-to-jira/internal/store"
	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

// Transferrer streams a message's attachments to a set of issues and returns
// one joined markup block per issue ("" where every upload for that issue
// failed). Implemented by the transfer engine; per-target failures never
// surface as errors here.
type Transferrer interface {
	Transfer(ctx context.Context, files []slack.File, issueIDs []string, channelID, messageTS string) []string
}

// Settings is the static bridge configuration the workflows need.
type Settings struct {
	SuccessReaction string
	ErrorReaction   string
	IconURL         string
	IconTitle       string
	AppName         string
}

// Deps are the collaborators injected into every workflow. Jira, Store and
// Transfer may be nil on the verify path, where workflows are constructed
// only to validate shape and compute the ordering group.
type Deps struct {
	Slack    slack.Client
	Jira     jira.Client
	Store    store.Store
	Transfer Transferrer
	Settings Settings
	Log      logx.Logger
}

// Workflow is one concrete handler for a notification. The method set is
// unexported: the variant set is closed (register, deregister, sync) and the
// dispatcher owns the lifecycle ordering.
type Workflow interface {
	// extractType pulls the kind's required identifying fields out of the
	// payload. Missing fields fail with ErrNotHandled.
	extractType(p Payload) error
	// extractSubtype parses the residual command arguments. It may trim and
	// normalize but performs no I/O.
	extractSubtype(args string) error
	// process executes the business logic.
	process(ctx context.Context) error
	// ref identifies the source message for acknowledgment.
	ref() (channelID, messageTS string)

	// GroupID is the ordering key used when enqueueing the notification:
	// events with the same group are delivered in order.
	GroupID() string
}

// base carries the fields every workflow shares. extractType of the concrete
// kind is responsible for filling channelID and messageTS.
type base struct {
	deps      Deps
	channelID string
	messageTS string
}

func (b *base) ref() (string, string) { return b.channelID, b.messageTS }
