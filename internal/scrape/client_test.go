package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func response(status int, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{StatusCode: status, Header: h}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		headers map[string]string
		want    Kind
		wantOK  bool
	}{
		{name: "ok", status: 200, body: `{"data":{}}`, wantOK: true},
		{name: "ok with throttle message", status: 200, body: `Please wait a few minutes before you try again.`, want: KindRateLimited},
		{name: "429", status: 429, want: KindRateLimited},
		{name: "401 plain is auth failure", status: 401, body: `{"message":"login_required"}`, want: KindAuthFailed},
		{name: "401 with rate limit marker", status: 401, body: `{"message":"rate limit exceeded"}`, want: KindRateLimited},
		{name: "401 with wait message", status: 401, body: `Please wait a few minutes`, want: KindRateLimited},
		{name: "403", status: 403, want: KindAuthFailed},
		{name: "404", status: 404, want: KindNotFound},
		{name: "500", status: 500, want: KindTransient},
		{name: "503", status: 503, want: KindTransient},
		{name: "302 is unexpected", status: 302, want: KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyResponse(response(tt.status, tt.headers), []byte(tt.body))
			if tt.wantOK {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected classified error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyResponseRetryAfterHeader(t *testing.T) {
	err := classifyResponse(response(429, map[string]string{"Retry-After": "120"}), nil)
	if got := RetryAfterOf(err); got != 2*time.Minute {
		t.Errorf("RetryAfterOf() = %v, want 2m", got)
	}

	err = classifyResponse(response(429, map[string]string{"Retry-After": "garbage"}), nil)
	if got := RetryAfterOf(err); got != 0 {
		t.Errorf("RetryAfterOf() with bad header = %v, want 0", got)
	}
}

func TestIGMediaNodeToMediaData(t *testing.T) {
	node := igMediaNode{
		Shortcode:        "ABC123",
		IsVideo:          true,
		VideoURL:         "https://cdn.example/v.mp4",
		VideoView:        1000,
		Duration:         12.5,
		TakenAtTimestamp: 1700000000,
	}
	node.EdgeLiked.Count = 50
	node.EdgeComment.Count = 7
	node.EdgeCaption.Edges = []struct {
		Node struct {
			Text string `json:"text"`
		} `json:"node"`
	}{{}}
	node.EdgeCaption.Edges[0].Node.Text = "hello"

	m := node.toMediaData()
	if m.Shortcode != "ABC123" || !m.IsVideo || m.ViewCount != 1000 {
		t.Errorf("unexpected media data %+v", m)
	}
	if m.Caption != "hello" {
		t.Errorf("caption = %q", m.Caption)
	}
	if m.LikeCount != 50 || m.CommentCount != 7 {
		t.Errorf("counts = %d/%d", m.LikeCount, m.CommentCount)
	}
	if m.TakenAt == nil || m.TakenAt.Unix() != 1700000000 {
		t.Errorf("taken at = %v", m.TakenAt)
	}
}

func TestGetTriesEveryCredentialOnAuthFailure(t *testing.T) {
	var mu sync.Mutex
	var cookies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"login_required"}`))
	}))
	defer srv.Close()

	pool, _ := newTestPool(t, "sessionid=a", "sessionid=b")
	c := NewClient(pool, testLogger())

	_, err := c.get(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected auth failure once every credential was tried")
	}
	if got := KindOf(err); got != KindAuthFailed {
		t.Fatalf("KindOf() = %v, want %v", got, KindAuthFailed)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cookies) != 2 {
		t.Fatalf("attempts = %d, want one per credential", len(cookies))
	}
	if cookies[0] != "sessionid=a" || cookies[1] != "sessionid=b" {
		t.Errorf("cookies tried = %v", cookies)
	}
}

func TestGetRecoversWithRotatedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") == "sessionid=a" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"login_required"}`))
			return
		}
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	pool, _ := newTestPool(t, "sessionid=a", "sessionid=b")
	c := NewClient(pool, testLogger())

	body, err := c.get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected recovery via the second credential, got %v", err)
	}
	if string(body) != `{"data":{}}` {
		t.Errorf("body = %s", body)
	}

	status := pool.Status()
	if status.Current != 1 {
		t.Errorf("current credential = %d, want 1", status.Current)
	}
	if status.Credentials[0].Failures != 1 {
		t.Errorf("first credential failures = %d, want 1", status.Credentials[0].Failures)
	}
	if status.Credentials[1].Failures != 0 {
		t.Errorf("second credential failures = %d, want 0", status.Credentials[1].Failures)
	}
}

func TestGetSingleCredentialAuthFailureIsTerminal(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"login_required"}`))
	}))
	defer srv.Close()

	pool, _ := newTestPool(t, "sessionid=a")
	c := NewClient(pool, testLogger())

	_, err := c.get(context.Background(), srv.URL)
	if got := KindOf(err); got != KindAuthFailed {
		t.Fatalf("KindOf() = %v, want %v", got, KindAuthFailed)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a single-credential pool", attempts)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 3); got != "hel" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("hi", 10); got != "hi" {
		t.Errorf("truncate should leave short strings alone, got %q", got)
	}
}
