package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
)

func sampleAction(id string) config.Action {
	return config.Action{
		ID: id, TargetLayer: "money", Actuator: "budget", Magnitude: 0.2,
	}
}

// 1. The journal adapter appends one parseable line per dispatch and always
// accepts.
func TestJournal_AppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.jsonl")
	j := NewJournal(path)

	for _, id := range []string{"cut-spend", "restore-spend"} {
		ack, err := j.Dispatch(context.Background(), sampleAction(id))
		if err != nil {
			t.Fatalf("dispatch %s: %v", id, err)
		}
		if !ack.Accepted {
			t.Errorf("journal adapter must accept, got %+v", ack)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line journalLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("bad journal line: %v", err)
		}
		ids = append(ids, line.Action.ID)
	}
	if len(ids) != 2 || ids[0] != "cut-spend" || ids[1] != "restore-spend" {
		t.Errorf("unexpected journal contents: %v", ids)
	}
}

// 2. The webhook adapter posts the full action and treats 2xx as acceptance.
func TestWebhook_Accepts(t *testing.T) {
	var got config.Action
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode posted action: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second)
	ack, err := w.Dispatch(context.Background(), sampleAction("cut-spend"))
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Accepted {
		t.Errorf("expected acceptance, got %+v", ack)
	}
	if got.ID != "cut-spend" {
		t.Errorf("actuator received %q", got.ID)
	}
}

// 3. Non-2xx responses are rejections, not transport errors.
func TestWebhook_RejectsOnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "actuator saturated", http.StatusConflict)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, time.Second)
	ack, err := w.Dispatch(context.Background(), sampleAction("cut-spend"))
	if err != nil {
		t.Fatalf("status rejection must not be a transport error: %v", err)
	}
	if ack.Accepted {
		t.Error("expected rejection for 409")
	}
	if ack.Detail == "" {
		t.Error("rejection should carry the response detail")
	}
}

// 4. An unreachable endpoint surfaces as an error.
func TestWebhook_TransportError(t *testing.T) {
	w := NewWebhook("http://127.0.0.1:1/dispatch", 200*time.Millisecond)
	if _, err := w.Dispatch(context.Background(), sampleAction("cut-spend")); err == nil {
		t.Fatal("expected transport error")
	}
}

// 5. FromRuntime maps modes to adapters and rejects a url-less http mode.
func TestFromRuntime(t *testing.T) {
	d, err := FromRuntime(config.DispatchRT{Mode: "journal"}, filepath.Join(t.TempDir(), "d.jsonl"))
	if err != nil || d == nil {
		t.Fatalf("journal mode: %v", err)
	}
	if _, err := FromRuntime(config.DispatchRT{Mode: "http"}, ""); err == nil {
		t.Error("http mode without url must fail")
	}
	if _, err := FromRuntime(config.DispatchRT{Mode: "carrier-pigeon"}, ""); err == nil {
		t.Error("unknown mode must fail")
	}
}
