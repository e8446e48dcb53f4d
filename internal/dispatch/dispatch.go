// Package dispatch provides the adapters that carry a selected action out of
// the control loop. The core treats every adapter as opaque: it hands over
// the full action definition and gets back an acknowledgement.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/weaver"
)

// #region journal

// Journal is the dry-run adapter: it appends every dispatched action as a
// JSON line and accepts unconditionally. Useful for shadowing a live system
// before wiring a real actuator.
type Journal struct {
	mu   sync.Mutex
	path string
}

type journalLine struct {
	Timestamp string        `json:"ts"`
	Action    config.Action `json:"action"`
}

// NewJournal creates a journal adapter writing to path.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Dispatch implements weaver.Dispatcher.
func (j *Journal) Dispatch(_ context.Context, action config.Action) (weaver.Acknowledgement, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(journalLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Action:    action,
	})
	if err != nil {
		return weaver.Acknowledgement{}, fmt.Errorf("marshal dispatch: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return weaver.Acknowledgement{}, fmt.Errorf("open dispatch journal: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return weaver.Acknowledgement{}, fmt.Errorf("append dispatch: %w", err)
	}
	return weaver.Acknowledgement{Accepted: true, Detail: "journaled"}, nil
}

// #endregion journal

// #region webhook

// Webhook POSTs the action to an external actuator endpoint. Any 2xx status
// is an acceptance; other statuses are rejections carrying the response body
// as detail.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook adapter for url with the given request
// timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

// Dispatch implements weaver.Dispatcher.
func (w *Webhook) Dispatch(ctx context.Context, action config.Action) (weaver.Acknowledgement, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return weaver.Acknowledgement{}, fmt.Errorf("marshal action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return weaver.Acknowledgement{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return weaver.Acknowledgement{}, fmt.Errorf("post action: %w", err)
	}
	defer resp.Body.Close()

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return weaver.Acknowledgement{
			Accepted: false,
			Detail:   fmt.Sprintf("status %d: %s", resp.StatusCode, detail),
		}, nil
	}
	return weaver.Acknowledgement{Accepted: true, Detail: string(detail)}, nil
}

// #endregion webhook

// FromRuntime builds the adapter named by the runtime configuration.
func FromRuntime(rt config.DispatchRT, journalPath string) (weaver.Dispatcher, error) {
	switch rt.Mode {
	case "journal", "":
		return NewJournal(journalPath), nil
	case "http":
		if rt.URL == "" {
			return nil, fmt.Errorf("http dispatch requires a url")
		}
		return NewWebhook(rt.URL, rt.Timeout.Std()), nil
	default:
		return nil, fmt.Errorf("unknown dispatch mode %q", rt.Mode)
	}
}
