package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

const clientTestPrefix = "portal:client_test"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// instantTimer fires immediately and counts how often the client waited.
type instantTimer struct {
	starts int
	c      chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(time.Duration) {
	t.starts++
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

type recordingExecutor struct {
	mu      sync.Mutex
	calls   []Request
	respond func(n int, req Request) (*Result, error)
}

func (e *recordingExecutor) Execute(_ context.Context, req Request) (*Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	n := len(e.calls)
	e.mu.Unlock()
	return e.respond(n, req)
}

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) ObserveAttempt(_ string, outcome string) {
	if o.outcomes == nil {
		o.outcomes = map[string]int{}
	}
	o.outcomes[outcome]++
}

func newTestClient(t *testing.T, exec Executor, attempts int) (*Client, *instantTimer) {
	t.Helper()
	timer := newInstantTimer()
	c, err := NewClient(exec, ClientOptions{
		BaseURL: "https://portal.test/app",
		Retry:   RetryPolicy{MaxAttempts: attempts, Delay: time.Second, Timer: timer},
	})
	if err != nil {
		t.Fatalf("%s - NewClient: %v", clientTestPrefix, err)
	}
	return c, timer
}

func okJSON(body string) (*Result, error) {
	return &Result{OK: true, Status: 200, StatusText: "OK", Body: body}, nil
}

func TestClient_Resolve(t *testing.T) {
	c, _ := newTestClient(t, nil, 3)
	tests := map[string]string{
		"v1/processo/consulta/123": "https://portal.test/app/v1/processo/consulta/123",
		"/v0/advogado":             "https://portal.test/app/v0/advogado",
		"https://other.test/x?y=1": "https://other.test/x?y=1",
	}
	for in, want := range tests {
		if got := c.Resolve(in); got != want {
			t.Errorf("%s - Resolve(%q) = %q, want %q", clientTestPrefix, in, got, want)
		}
	}
}

func TestClient_AllAttemptsFail_CountsCallsAndSleeps(t *testing.T) {
	for _, attempts := range []int{1, 2, 3, 5} {
		exec := &recordingExecutor{respond: func(int, Request) (*Result, error) {
			return nil, errors.New("script exception")
		}}
		obs := &countingObserver{}
		c, timer := newTestClient(t, exec, attempts)
		c.observer = obs

		reply, err := c.Get(context.Background(), "v1/processo/consulta/1")
		if reply != nil {
			t.Errorf("%s - expected nil reply, got %+v", clientTestPrefix, reply)
		}
		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("%s - expected *TransportError, got %v", clientTestPrefix, err)
		}
		if te.Attempts != attempts {
			t.Errorf("%s - TransportError.Attempts = %d, want %d", clientTestPrefix, te.Attempts, attempts)
		}
		if len(exec.calls) != attempts {
			t.Errorf("%s - calls = %d, want %d", clientTestPrefix, len(exec.calls), attempts)
		}
		if timer.starts != attempts-1 {
			t.Errorf("%s - sleeps = %d, want %d", clientTestPrefix, timer.starts, attempts-1)
		}
		if obs.outcomes["retry"] != attempts-1 || obs.outcomes["exhausted"] != 1 {
			t.Errorf("%s - observer outcomes = %v", clientTestPrefix, obs.outcomes)
		}
	}
}

func TestClient_RecoversOnSecondAttempt(t *testing.T) {
	exec := &recordingExecutor{respond: func(n int, _ Request) (*Result, error) {
		if n == 1 {
			return &Result{OK: false, Status: 502, StatusText: "Bad Gateway"}, nil
		}
		return okJSON(`{"status":"OK","statusCode":200,"data":true}`)
	}}
	c, timer := newTestClient(t, exec, 3)

	reply, err := c.Get(context.Background(), "v1/x")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", clientTestPrefix, err)
	}
	if !reply.OK() || !reply.DataTrue() {
		t.Errorf("%s - unexpected reply %+v", clientTestPrefix, reply)
	}
	if len(exec.calls) != 2 || timer.starts != 1 {
		t.Errorf("%s - calls=%d sleeps=%d, want 2 and 1", clientTestPrefix, len(exec.calls), timer.starts)
	}
}

func TestClient_GetRejectsErrorFieldAndText(t *testing.T) {
	bodies := []string{
		`{"error":"TypeError: Failed to fetch"}`,
		"ServiceResponse [status=OK, messages=[], data=null]",
	}
	for _, body := range bodies {
		exec := &recordingExecutor{respond: func(int, Request) (*Result, error) { return okJSON(body) }}
		c, _ := newTestClient(t, exec, 2)
		if _, err := c.Get(context.Background(), "v1/x"); err == nil {
			t.Errorf("%s - Get should fail for body %q", clientTestPrefix, body)
		}
		if len(exec.calls) != 2 {
			t.Errorf("%s - Get retried %d times for body %q, want 2", clientTestPrefix, len(exec.calls), body)
		}
	}
}

func TestClient_PutRejectsErrorField(t *testing.T) {
	exec := &recordingExecutor{respond: func(int, Request) (*Result, error) {
		return okJSON(`{"error":"boom"}`)
	}}
	c, _ := newTestClient(t, exec, 1)
	_, err := c.Put(context.Background(), "v1/x", map[string]string{"a": "b"})
	if !errors.Is(err, ErrReplyError) {
		t.Errorf("%s - expected ErrReplyError, got %v", clientTestPrefix, err)
	}
}

func TestClient_PostClassifiesText(t *testing.T) {
	exec := &recordingExecutor{respond: func(int, Request) (*Result, error) {
		return okJSON("ServiceResponse [status=OK, messages=[], data=null]")
	}}
	c, timer := newTestClient(t, exec, 3)

	reply, err := c.Post(context.Background(), "v1/fim", map[string]int64{"numeroProcesso": 7})
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", clientTestPrefix, err)
	}
	if reply.Kind != KindService || !reply.OK() {
		t.Errorf("%s - unexpected reply %+v", clientTestPrefix, reply)
	}
	if len(exec.calls) != 1 || timer.starts != 0 {
		t.Errorf("%s - calls=%d sleeps=%d, want 1 and 0", clientTestPrefix, len(exec.calls), timer.starts)
	}

	req := exec.calls[0]
	if req.Method != http.MethodPost || req.URL != "https://portal.test/app/v1/fim" {
		t.Errorf("%s - unexpected request %s %s", clientTestPrefix, req.Method, req.URL)
	}
	var sent map[string]int64
	if err := json.Unmarshal(req.Body, &sent); err != nil || sent["numeroProcesso"] != 7 {
		t.Errorf("%s - payload = %s", clientTestPrefix, req.Body)
	}
}

func TestClient_PostRawTextIsNotAFailure(t *testing.T) {
	exec := &recordingExecutor{respond: func(int, Request) (*Result, error) {
		return okJSON("<html>login</html>")
	}}
	c, _ := newTestClient(t, exec, 3)
	reply, err := c.Post(context.Background(), "v1/x", 1)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", clientTestPrefix, err)
	}
	if reply.Kind != KindRaw || reply.OK() {
		t.Errorf("%s - expected raw non-OK reply, got %+v", clientTestPrefix, reply)
	}
}

func TestClient_ContextCanceledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &recordingExecutor{respond: func(int, Request) (*Result, error) {
		cancel()
		return nil, errors.New("fail")
	}}
	c, _ := newTestClient(t, exec, 3)
	_, err := c.Get(ctx, "v1/x")
	if err == nil {
		t.Fatalf("%s - expected error", clientTestPrefix)
	}
	if len(exec.calls) != 1 {
		t.Errorf("%s - calls = %d, want 1 after cancel", clientTestPrefix, len(exec.calls))
	}
}

func TestCheckBrowserVersion(t *testing.T) {
	tests := []struct {
		product    string
		constraint string
		wantErr    bool
	}{
		{"Chrome/126.0.6478.126", ">= 110", false},
		{"HeadlessChrome/99.0.4844.51", ">= 110", true},
		{"Edg/120.0.2210.91", "^120", false},
		{"Chrome/126", ">= 100, < 200", false},
		{"garbage", ">= 1", true},
		{"Chrome/126.0", "not a constraint", true},
	}
	for _, tt := range tests {
		err := CheckBrowserVersion(tt.product, tt.constraint)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s - CheckBrowserVersion(%q, %q) err = %v, wantErr %v", clientTestPrefix, tt.product, tt.constraint, err, tt.wantErr)
		}
	}
}
