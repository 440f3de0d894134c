// Package transfer streams message attachments from the messaging platform
// into issue-tracker attachments: each file is downloaded once and fanned
// out, chunk by chunk, to one concurrent upload per target issue. Memory is
// bounded by a fixed chunk size and a small per-target queue; a slow or
// failed target is dropped without disturbing the download or its siblings.
package transfer

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/slack-to-jira/internal/slack"
	logx "github.com/NVIDIA/slack-to-jira/pkg/logx"
)

const (
	chunkSize       = 256 << 10
	queueDepth      = 4
	pushTimeout     = 5 * time.Second
	downloadTimeout = 10 * time.Second
	uploadTimeout   = 100 * time.Second
)

// Engine is the fan-out transfer engine. One instance is shared by all
// dispatches; per-file state lives on the stack of each Transfer call.
type Engine struct {
	http       *http.Client
	slackToken string
	jiraBase   string
	jiraToken  string
	policy     retryPolicy
	log        logx.Logger
}

type Config struct {
	SlackToken string
	JiraURL    string
	JiraToken  string
}

func NewEngine(cfg Config, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		http:       &http.Client{},
		slackToken: cfg.SlackToken,
		jiraBase:   strings.TrimRight(cfg.JiraURL, "/"),
		jiraToken:  cfg.JiraToken,
		policy:     defaultPolicy(),
		log:        log,
	}
}

// Transfer moves every file to every issue and returns one markup block per
// issue: the blank-line-joined markup of the attachments that reached it,
// "" when none did. Failures never escape; attachments are best-effort.
func (e *Engine) Transfer(ctx context.Context, files []slack.File, issueIDs []string, channelID, messageTS string) []string {
	blocks := make([]string, len(issueIDs))
	if len(files) == 0 || len(issueIDs) == 0 {
		return blocks
	}

	// grid[file][issue] = markup or ""
	grid := make([][]string, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f slack.File) {
			defer wg.Done()
			grid[i] = e.transferFile(ctx, f, i, issueIDs, channelID, messageTS)
		}(i, f)
	}
	wg.Wait()

	for j := range issueIDs {
		var parts []string
		for i := range files {
			if grid[i][j] != "" {
				parts = append(parts, grid[i][j])
			}
		}
		blocks[j] = strings.Join(parts, "\n\n")
	}
	return blocks
}

// target is one upload destination for one file. The chunk channel has
// exactly one producer (the download loop) and one consumer (the upload
// goroutine); the producer closes it on end-of-stream or drop.
type target struct {
	issueID string
	ch      chan []byte
	cancel  context.CancelFunc
	done    chan struct{}
	err     error // written by the upload goroutine before close(done)
}

func (e *Engine) transferFile(ctx context.Context, f slack.File, fileIndex int, issueIDs []string, channelID, messageTS string) []string {
	name := uploadName(f.Name, fileIndex, channelID, messageTS, time.Now())
	log := e.log.With(logx.String("file", f.Name), logx.String("upload", name))

	targets := make([]*target, len(issueIDs))
	for i, issueID := range issueIDs {
		tctx, cancel := context.WithTimeout(ctx, uploadTimeout)
		t := &target{
			issueID: issueID,
			ch:      make(chan []byte, queueDepth),
			cancel:  cancel,
			done:    make(chan struct{}),
		}
		targets[i] = t
		go func() {
			defer close(t.done)
			defer cancel()
			t.err = e.upload(tctx, t.issueID, name, t.ch)
		}()
	}

	streamErr := e.stream(ctx, f.URL, targets, log)

	results := make([]string, len(issueIDs))
	for i, t := range targets {
		<-t.done
		switch {
		case streamErr != nil:
			log.Error("attachment dropped, download failed",
				logx.String("issue", t.issueID), logx.Err(streamErr))
		case t.err != nil:
			log.Error("attachment dropped, upload failed",
				logx.String("issue", t.issueID), logx.Err(t.err))
		default:
			results[i] = attachmentMarkup(name)
		}
	}
	return results
}

// stream downloads the file once and pushes each chunk into every live
// target queue, bounding each push by pushTimeout. A target that cannot keep
// up, or whose upload already ended, is dropped; the rest keep receiving.
// Every exit path closes every still-open queue.
func (e *Engine) stream(ctx context.Context, url string, targets []*target, log logx.Logger) error {
	live := make(map[*target]bool, len(targets))
	for _, t := range targets {
		live[t] = true
	}
	closeAll := func(cancel bool) {
		for t := range live {
			if cancel {
				t.cancel()
			}
			close(t.ch)
			delete(live, t)
		}
	}

	body, cancel, err := e.openDownload(ctx, url)
	if err != nil {
		closeAll(true)
		return err
	}
	defer cancel()
	defer body.Close()

	for {
		chunk := make([]byte, chunkSize)
		n, err := io.ReadFull(body, chunk)
		if n > 0 {
			chunk = chunk[:n]

			// One bounded push per live target, concurrently; a full queue
			// or a finished upload drops only that target.
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				dropped []*target
			)
			for t := range live {
				wg.Add(1)
				go func(t *target) {
					defer wg.Done()
					if !e.push(t, chunk) {
						mu.Lock()
						dropped = append(dropped, t)
						mu.Unlock()
					}
				}(t)
			}
			wg.Wait()
			for _, t := range dropped {
				log.Warn("target dropped, push timed out or upload ended",
					logx.String("issue", t.issueID))
				t.cancel()
				close(t.ch)
				delete(live, t)
			}
			if len(live) == 0 {
				return nil
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			closeAll(false)
			return nil
		}
		if err != nil {
			closeAll(true)
			return fmt.Errorf("reading download: %w", err)
		}
	}
}

// push offers one chunk to a target, giving up when the queue stays full for
// pushTimeout or the upload has already finished.
func (e *Engine) push(t *target, chunk []byte) bool {
	timer := time.NewTimer(pushTimeout)
	defer timer.Stop()
	select {
	case t.ch <- chunk:
		return true
	case <-t.done:
		return false
	case <-timer.C:
		return false
	}
}

// openDownload establishes the source stream, retrying transient failures.
// Each attempt carries its own deadline that also bounds reading the body;
// once chunks are flowing a read failure is final (the fan-out cannot be
// replayed).
func (e *Engine) openDownload(ctx context.Context, url string) (io.ReadCloser, context.CancelFunc, error) {
	var lastErr error
	for attempt := 1; attempt <= e.policy.attempts; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, downloadTimeout)
		req, err := http.NewRequestWithContext(dctx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return nil, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+e.slackToken)

		resp, err := e.http.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("%w: %v", errTransport, err)
		} else if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			cancel()
			lastErr = statusError{code: resp.StatusCode, url: url}
		} else {
			return resp.Body, cancel, nil
		}

		if attempt == e.policy.attempts || !retryable(lastErr) {
			break
		}
		if err := e.policy.sleep(ctx); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, lastErr
}

// upload streams one multipart attachment body from the chunk queue.
// Retrying is safe only while the server has read none of the body: the
// queue is consumed as it is sent, so once any byte is on the wire the
// attempt is final.
func (e *Engine) upload(ctx context.Context, issueID, name string, ch <-chan []byte) error {
	url := e.jiraBase + "/rest/api/2/issue/" + issueID + "/attachments"
	var lastErr error
	for attempt := 1; attempt <= e.policy.attempts; attempt++ {
		err, consumed := e.uploadOnce(ctx, url, name, ch)
		if err == nil {
			return nil
		}
		lastErr = err
		if consumed || attempt == e.policy.attempts || !retryable(err) {
			return lastErr
		}
		if err := e.policy.sleep(ctx); err != nil {
			return err
		}
	}
	return lastErr
}

func (e *Engine) uploadOnce(ctx context.Context, url, name string, ch <-chan []byte) (err error, consumed bool) {
	pr, pw := io.Pipe()
	var sent atomic.Int64
	cw := &countingWriter{w: pw, n: &sent}
	mw := multipart.NewWriter(cw)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		for chunk := range ch {
			if _, err := part.Write(chunk); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.CloseWithError(err)
		<-writeDone
		return err, sent.Load() > 0
	}
	req.Header.Set("Authorization", "Bearer "+e.jiraToken)
	req.Header.Set("X-Atlassian-Token", "no-check")
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.http.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		<-writeDone
		return fmt.Errorf("%w: %v", errTransport, err), sent.Load() > 0
	}
	defer resp.Body.Close()
	<-writeDone

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return statusError{code: resp.StatusCode, url: url}, sent.Load() > 0
	}
	io.Copy(io.Discard, resp.Body)
	return nil, true
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

// uploadName builds a collision-free attachment name: the original stem,
// the file's index within the message, the source coordinates, and a
// millisecond timestamp, with the original extension preserved.
func uploadName(original string, fileIndex int, channelID, messageTS string, now time.Time) string {
	ext := filepath.Ext(original)
	stem := strings.TrimSuffix(filepath.Base(original), ext)
	if stem == "" {
		stem = "attachment"
	}
	ts := strings.ReplaceAll(messageTS, ".", "")
	stamp := now.Format("20060102-150405") + fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond))
	return fmt.Sprintf("%s-%d-%s-%s-%s%s", stem, fileIndex, channelID, ts, stamp, ext)
}
