package event

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func mentionPayload(text string) Payload {
	return Payload{
		"type":      "app_mention",
		"text":      text,
		"channel":   "C1",
		"ts":        "2.000",
		"thread_ts": "1.000",
	}
}

func reactionPayload(name, channel, ts string) Payload {
	return Payload{
		"type":     "reaction_added",
		"reaction": name,
		"item":     map[string]any{"channel": channel, "ts": ts},
	}
}

func newTestDispatcher(deps Deps) *Dispatcher {
	return NewDispatcher(NewRegistry("link"), deps)
}

func TestDispatchRegisterSuccess(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	err := d.Dispatch(context.Background(), mentionPayload("<@U123> register PROJ-1 build failures"))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	fj := deps.Jira.(*fakeJira)
	if len(fj.links) != 1 {
		t.Fatalf("expected 1 remote link, got %d", len(fj.links))
	}
	for _, rec := range fj.links {
		if rec.issueID != "PROJ-1" {
			t.Fatalf("link created on %q, want PROJ-1", rec.issueID)
		}
		if want := "bridge: #general build failures"; rec.title != want {
			t.Fatalf("link title = %q, want %q", rec.title, want)
		}
	}

	fs := deps.Store.(*fakeStore)
	reg, _ := fs.Get(context.Background(), "PROJ-1", "C1_1.000")
	if reg == nil {
		t.Fatal("registration not stored")
	}
	if reg.LinkID == "" {
		t.Fatal("registration has no link id")
	}

	sl := deps.Slack.(*fakeSlack)
	if want := []string{"-", "white_check_mark"}; strings.Join(sl.reactions, ",") != strings.Join(want, ",") {
		t.Fatalf("reactions = %v, want %v", sl.reactions, want)
	}
}

func TestDispatchRegisterDefaultsLinkTextToThreadTS(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	if err := d.Dispatch(context.Background(), mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	fj := deps.Jira.(*fakeJira)
	for _, rec := range fj.links {
		if want := "bridge: #general 1.000"; rec.title != want {
			t.Fatalf("link title = %q, want %q", rec.title, want)
		}
	}
}

func TestDispatchRegisterRefreshesValidLink(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)
	ctx := context.Background()

	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	first, _ := deps.Store.Get(ctx, "PROJ-1", "C1_1.000")

	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-1 renamed")); err != nil {
		t.Fatalf("second register: %v", err)
	}
	second, _ := deps.Store.Get(ctx, "PROJ-1", "C1_1.000")

	if first.LinkID != second.LinkID {
		t.Fatalf("link id changed on re-register: %q -> %q", first.LinkID, second.LinkID)
	}
	fj := deps.Jira.(*fakeJira)
	if len(fj.links) != 1 {
		t.Fatalf("expected 1 remote link after re-register, got %d", len(fj.links))
	}
	if len(fj.updates) != 1 {
		t.Fatalf("expected 1 link update, got %d", len(fj.updates))
	}
}

func TestDispatchRegisterReplacesDanglingLink(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)
	ctx := context.Background()

	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	first, _ := deps.Store.Get(ctx, "PROJ-1", "C1_1.000")

	// The link vanishes on the Jira side; re-registering must mint a new one.
	fj := deps.Jira.(*fakeJira)
	delete(fj.links, first.LinkID)

	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("second register: %v", err)
	}
	second, _ := deps.Store.Get(ctx, "PROJ-1", "C1_1.000")
	if first.LinkID == second.LinkID {
		t.Fatalf("dangling link id %q was reused", first.LinkID)
	}
}

func TestDispatchRegisterMissingIssueIsIgnorable(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	err := d.Dispatch(context.Background(), mentionPayload("<@U123> register"))
	if err != nil {
		t.Fatalf("ignorable failure must not propagate, got %v", err)
	}
	sl := deps.Slack.(*fakeSlack)
	if want := []string{"-", "x"}; strings.Join(sl.reactions, ",") != strings.Join(want, ",") {
		t.Fatalf("reactions = %v, want %v", sl.reactions, want)
	}
}

func TestDispatchHardErrorPropagates(t *testing.T) {
	deps := testDeps()
	deps.Slack.(*fakeSlack).linkErr = errors.New("permalink unavailable")
	d := newTestDispatcher(deps)

	err := d.Dispatch(context.Background(), mentionPayload("<@U123> register PROJ-1"))
	if err == nil {
		t.Fatal("expected error to propagate for redelivery")
	}
	sl := deps.Slack.(*fakeSlack)
	if want := []string{"-", "x"}; strings.Join(sl.reactions, ",") != strings.Join(want, ",") {
		t.Fatalf("reactions = %v, want %v", sl.reactions, want)
	}
}

func TestDispatchNotHandledIsSilent(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	// Mention outside a thread: structurally incomplete, dropped quietly.
	p := Payload{"type": "app_mention", "text": "<@U123> register PROJ-1", "channel": "C1", "ts": "2.000"}
	if err := d.Dispatch(context.Background(), p); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	sl := deps.Slack.(*fakeSlack)
	if len(sl.reactions) != 0 {
		t.Fatalf("no reactions expected for dropped input, got %v", sl.reactions)
	}
}

func TestDispatchUndefinedCommandSurfaces(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	err := d.Dispatch(context.Background(), reactionPayload("thumbsup", "C1", "2.000"))
	if !errors.Is(err, ErrUndefinedCommand) {
		t.Fatalf("expected ErrUndefinedCommand, got %v", err)
	}
}

func TestDispatchSkipsAddWhenClearFails(t *testing.T) {
	deps := testDeps()
	sl := deps.Slack.(*fakeSlack)
	sl.failRef = true
	d := newTestDispatcher(deps)

	if err := d.Dispatch(context.Background(), mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("reaction failures must not change the outcome, got %v", err)
	}
	if len(sl.reactions) != 0 {
		t.Fatalf("no reactions should have been recorded, got %v", sl.reactions)
	}
}

func TestDispatchDeregister(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)
	ctx := context.Background()

	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := d.Dispatch(ctx, mentionPayload("<@U123> deregister PROJ-1")); err != nil {
		t.Fatalf("deregister: %v", err)
	}

	reg, _ := deps.Store.Get(ctx, "PROJ-1", "C1_1.000")
	if reg != nil {
		t.Fatal("registration still present after deregister")
	}
	fj := deps.Jira.(*fakeJira)
	if len(fj.links) != 0 {
		t.Fatalf("remote link still present after deregister: %v", fj.links)
	}
}

func TestDispatchDeregisterUnknownPairIsIgnorable(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	if err := d.Dispatch(context.Background(), mentionPayload("<@U123> deregister PROJ-9")); err != nil {
		t.Fatalf("ignorable failure must not propagate, got %v", err)
	}
	sl := deps.Slack.(*fakeSlack)
	if want := []string{"-", "x"}; strings.Join(sl.reactions, ",") != strings.Join(want, ",") {
		t.Fatalf("reactions = %v, want %v", sl.reactions, want)
	}
}

func TestDispatchDeregisterRejectsExtraTokens(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	if err := d.Dispatch(context.Background(), mentionPayload("<@U123> deregister PROJ-1 PROJ-2")); err != nil {
		t.Fatalf("ignorable failure must not propagate, got %v", err)
	}
	sl := deps.Slack.(*fakeSlack)
	if want := []string{"-", "x"}; strings.Join(sl.reactions, ",") != strings.Join(want, ",") {
		t.Fatalf("reactions = %v, want %v", sl.reactions, want)
	}
}

func TestDispatchSync(t *testing.T) {
	deps := testDeps()
	sl := deps.Slack.(*fakeSlack)
	sl.threadTS["C1/2.000"] = "1.000"
	sl.text = "please look at this"
	ft := deps.Transfer.(*fakeTransfer)
	ft.blocks = []string{"!shot.png|thumbnail!", "[^trace.txt]"}
	d := newTestDispatcher(deps)
	ctx := context.Background()

	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("register PROJ-1: %v", err)
	}
	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-2")); err != nil {
		t.Fatalf("register PROJ-2: %v", err)
	}

	if err := d.Dispatch(ctx, reactionPayload("link", "C1", "2.000")); err != nil {
		t.Fatalf("sync: %v", err)
	}

	fj := deps.Jira.(*fakeJira)
	for issue, block := range map[string]string{"PROJ-1": "!shot.png|thumbnail!", "PROJ-2": "[^trace.txt]"} {
		bodies := fj.comments[issue]
		if len(bodies) != 1 {
			t.Fatalf("%s: expected 1 comment, got %d", issue, len(bodies))
		}
		if !strings.HasPrefix(bodies[0], "(Originating from [Slack message|") {
			t.Fatalf("%s: comment missing attribution: %q", issue, bodies[0])
		}
		if !strings.Contains(bodies[0], "please look at this") {
			t.Fatalf("%s: comment missing message text: %q", issue, bodies[0])
		}
		if !strings.HasSuffix(bodies[0], "\n\n"+block) {
			t.Fatalf("%s: comment missing attachment block %q: %q", issue, block, bodies[0])
		}
	}
	if ft.calls != 1 {
		t.Fatalf("transfer called %d times, want 1", ft.calls)
	}
}

func TestDispatchSyncOutsideThreadIsIgnorable(t *testing.T) {
	deps := testDeps()
	d := newTestDispatcher(deps)

	if err := d.Dispatch(context.Background(), reactionPayload("link", "C1", "9.000")); err != nil {
		t.Fatalf("ignorable failure must not propagate, got %v", err)
	}
}

func TestDispatchSyncNoRegistrationsIsIgnorable(t *testing.T) {
	deps := testDeps()
	deps.Slack.(*fakeSlack).threadTS["C1/2.000"] = "1.000"
	d := newTestDispatcher(deps)

	if err := d.Dispatch(context.Background(), reactionPayload("link", "C1", "2.000")); err != nil {
		t.Fatalf("ignorable failure must not propagate, got %v", err)
	}
}

func TestDispatchSyncCommentFailurePropagates(t *testing.T) {
	deps := testDeps()
	sl := deps.Slack.(*fakeSlack)
	sl.threadTS["C1/2.000"] = "1.000"
	sl.text = "text"
	d := newTestDispatcher(deps)
	ctx := context.Background()

	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-1")); err != nil {
		t.Fatalf("register PROJ-1: %v", err)
	}
	if err := d.Dispatch(ctx, mentionPayload("<@U123> register PROJ-2")); err != nil {
		t.Fatalf("register PROJ-2: %v", err)
	}

	fj := deps.Jira.(*fakeJira)
	fj.failCmt = map[string]error{"PROJ-1": errors.New("jira down")}

	if err := d.Dispatch(ctx, reactionPayload("link", "C1", "2.000")); err == nil {
		t.Fatal("expected comment failure to propagate")
	}
	// The healthy issue still got its comment before the failure surfaced.
	if len(fj.comments["PROJ-2"]) != 1 {
		t.Fatalf("PROJ-2: expected 1 comment, got %d", len(fj.comments["PROJ-2"]))
	}
}
