package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fswatcher/internal/mirror"
)

type postedMessage struct {
	Channel     string
	Text        string
	ThreadTS    string
	Attachments string
}

type fakeSlack struct {
	mu          sync.Mutex
	posts       []postedMessage
	rateLimited int
}

func (f *fakeSlack) handler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "chat.postMessage") {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	if f.rateLimited > 0 {
		f.rateLimited--
		f.mu.Unlock()
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	f.posts = append(f.posts, postedMessage{
		Channel:     r.FormValue("channel"),
		Text:        r.FormValue("text"),
		ThreadTS:    r.FormValue("thread_ts"),
		Attachments: r.FormValue("attachments"),
	})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1700000000.000100"})
}

func (f *fakeSlack) Posts() []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedMessage(nil), f.posts...)
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC) }

func newTestSlack(t *testing.T, fake *fakeSlack, opts SlackOptions) *SlackNotifier {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(server.Close)
	opts.Token = "xoxb-test"
	opts.APIURL = server.URL + "/"
	opts.Clock = fixedClock{}
	return NewSlackNotifier(opts)
}

func TestSlackNotifier_Notify(t *testing.T) {
	fake := &fakeSlack{}
	n := newTestSlack(t, fake, SlackOptions{Channel: "#fswatcher"})

	err := n.Notify(context.Background(), mirror.Notification{Message: "uploaded a.fits", Alert: mirror.AlertSuccess})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	posts := fake.Posts()
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	p := posts[0]
	if p.Channel != "#fswatcher" {
		t.Errorf("channel = %q", p.Channel)
	}
	if p.Text != "24-01-15 10:30:00 - uploaded a.fits" {
		t.Errorf("text = %q", p.Text)
	}
	if !strings.Contains(p.Attachments, colorSuccess) || !strings.Contains(p.Attachments, "plain_text") {
		t.Errorf("attachments = %s", p.Attachments)
	}
}

func TestSlackNotifier_Routing(t *testing.T) {
	tests := []struct {
		name        string
		opts        SlackOptions
		n           mirror.Notification
		wantChannel string
		wantColor   string
	}{
		{
			name:        "error to error channel",
			opts:        SlackOptions{Channel: "#ok", ErrorChannel: "#errors"},
			n:           mirror.Notification{Message: "failed", Alert: mirror.AlertError},
			wantChannel: "#errors",
			wantColor:   colorError,
		},
		{
			name:        "error without error channel",
			opts:        SlackOptions{Channel: "#ok"},
			n:           mirror.Notification{Message: "failed", Alert: mirror.AlertError},
			wantChannel: "#ok",
			wantColor:   colorError,
		},
		{
			name:        "explicit channel wins",
			opts:        SlackOptions{Channel: "#ok", ErrorChannel: "#errors"},
			n:           mirror.Notification{Channel: "#other", Message: "hi", Alert: mirror.AlertError},
			wantChannel: "#other",
			wantColor:   colorError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSlack{}
			n := newTestSlack(t, fake, tt.opts)
			if err := n.Notify(context.Background(), tt.n); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			posts := fake.Posts()
			if len(posts) != 1 || posts[0].Channel != tt.wantChannel {
				t.Fatalf("posts = %+v, want one to %s", posts, tt.wantChannel)
			}
			if !strings.Contains(posts[0].Attachments, tt.wantColor) {
				t.Errorf("attachments = %s, want color %s", posts[0].Attachments, tt.wantColor)
			}
		})
	}
}

func TestSlackNotifier_Thread(t *testing.T) {
	fake := &fakeSlack{}
	n := newTestSlack(t, fake, SlackOptions{Channel: "#ok"})
	if err := n.Notify(context.Background(), mirror.Notification{Message: "m", ThreadID: "123.456"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if posts := fake.Posts(); len(posts) != 1 || posts[0].ThreadTS != "123.456" {
		t.Errorf("posts = %+v", posts)
	}
}

func TestSlackNotifier_RetriesRateLimit(t *testing.T) {
	fake := &fakeSlack{rateLimited: 1}
	n := newTestSlack(t, fake, SlackOptions{Channel: "#ok"})
	if err := n.Notify(context.Background(), mirror.Notification{Message: "m"}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(fake.Posts()) != 1 {
		t.Errorf("posts = %d, want 1 after retry", len(fake.Posts()))
	}
}

func TestSlackNotifier_GivesUpAfterRetryBudget(t *testing.T) {
	fake := &fakeSlack{rateLimited: 10}
	n := newTestSlack(t, fake, SlackOptions{Channel: "#ok", MaxRetries: 1})
	if err := n.Notify(context.Background(), mirror.Notification{Message: "m"}); err == nil {
		t.Fatal("Notify() expected error once retries are exhausted")
	}
}

func TestSlackNotifier_NoChannel(t *testing.T) {
	n := newTestSlack(t, &fakeSlack{}, SlackOptions{})
	if err := n.Notify(context.Background(), mirror.Notification{Message: "m"}); err != ErrNoChannel {
		t.Errorf("Notify() error = %v, want ErrNoChannel", err)
	}
}
