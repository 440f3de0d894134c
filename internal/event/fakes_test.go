package event

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/NVIDIA/slack-to-jira/internal/slack"
	"github.com/NVIDIA/slack-to-jira/internal/store"
)

type fakeSlack struct {
	mu        sync.Mutex
	threadTS  map[string]string // "channel/ts" -> thread ts
	text      string
	files     []slack.File
	reactions []string // names added, "-" recorded per clear
	linkErr   error
	failRef   bool
}

func (f *fakeSlack) key(ch, ts string) string { return ch + "/" + ts }

func (f *fakeSlack) BotUserID(ctx context.Context) (string, error) { return "UBOT", nil }

func (f *fakeSlack) MessageLink(ctx context.Context, channelID, messageTS string) (string, error) {
	if f.linkErr != nil {
		return "", f.linkErr
	}
	return fmt.Sprintf("https://example.slack.com/archives/%s/p%s", channelID, messageTS), nil
}

func (f *fakeSlack) ChannelName(ctx context.Context, channelID string) (string, error) {
	return "general", nil
}

func (f *fakeSlack) ThreadTS(ctx context.Context, channelID, messageTS string) (string, error) {
	return f.threadTS[f.key(channelID, messageTS)], nil
}

func (f *fakeSlack) MessageContent(ctx context.Context, channelID, messageTS string) (string, []slack.File, error) {
	return f.text, f.files, nil
}

func (f *fakeSlack) AddReaction(ctx context.Context, channelID, messageTS, name string) error {
	if f.failRef {
		return fmt.Errorf("reactions.add failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, name)
	return nil
}

func (f *fakeSlack) RemoveBotReactions(ctx context.Context, channelID, messageTS string) error {
	if f.failRef {
		return fmt.Errorf("reactions.remove failed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, "-")
	return nil
}

type linkRecord struct {
	issueID, url, title string
}

type fakeJira struct {
	mu       sync.Mutex
	nextID   int
	links    map[string]linkRecord // link id -> record
	updates  []string
	comments map[string][]string // issue id -> bodies
	failADD  error
	failCmt  map[string]error // per-issue AddComment failure
}

func newFakeJira() *fakeJira {
	return &fakeJira{links: map[string]linkRecord{}, comments: map[string][]string{}}
}

func (f *fakeJira) AddLink(ctx context.Context, issueID, linkURL, title, iconURL, iconTitle string) (string, error) {
	if f.failADD != nil {
		return "", f.failADD
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("link-%d", f.nextID)
	f.links[id] = linkRecord{issueID: issueID, url: linkURL, title: title}
	return id, nil
}

func (f *fakeJira) UpdateLink(ctx context.Context, issueID, linkID, linkURL, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[linkID]; !ok {
		return fmt.Errorf("link %s not found", linkID)
	}
	f.links[linkID] = linkRecord{issueID: issueID, url: linkURL, title: title}
	f.updates = append(f.updates, linkID)
	return nil
}

func (f *fakeJira) RemoveLink(ctx context.Context, issueID, linkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, linkID)
	return nil
}

func (f *fakeJira) ValidateLink(ctx context.Context, issueID, linkID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.links[linkID]
	return ok, nil
}

func (f *fakeJira) AddComment(ctx context.Context, issueID, body string) (string, error) {
	if err := f.failCmt[issueID]; err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[issueID] = append(f.comments[issueID], body)
	return fmt.Sprintf("c-%d", len(f.comments[issueID])), nil
}

type fakeStore struct {
	mu   sync.Mutex
	regs map[string]store.Registration // issue/thread -> registration
}

func newFakeStore() *fakeStore { return &fakeStore{regs: map[string]store.Registration{}} }

func (f *fakeStore) key(issueID, threadID string) string { return issueID + "/" + threadID }

func (f *fakeStore) Get(ctx context.Context, issueID, threadID string) (*store.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[f.key(issueID, threadID)]
	if !ok {
		return nil, nil
	}
	return &reg, nil
}

func (f *fakeStore) Put(ctx context.Context, reg store.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[f.key(reg.IssueID, reg.ThreadID)] = reg
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, issueID, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.regs, f.key(issueID, threadID))
	return nil
}

func (f *fakeStore) QueryThread(ctx context.Context, threadID string) ([]store.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Registration
	for _, reg := range f.regs {
		if reg.ThreadID == threadID {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueID < out[j].IssueID })
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeTransfer struct {
	blocks []string
	calls  int
}

func (f *fakeTransfer) Transfer(ctx context.Context, files []slack.File, issueIDs []string, channelID, messageTS string) []string {
	f.calls++
	if f.blocks != nil {
		return f.blocks
	}
	return make([]string, len(issueIDs))
}
