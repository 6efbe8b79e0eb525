package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const rodTestPrefix = "portal:rod_executor_test"

// devtoolsStub counts every request that reaches the DevTools address.
func devtoolsStub(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/devtools/browser/test", &hits
}

func TestRodExecutor_PingDoesNotConnect(t *testing.T) {
	controlURL, hits := devtoolsStub(t)
	e := NewRodExecutor(RodOptions{ControlURL: controlURL})
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		err := e.Ping(ctx)
		if err == nil || !strings.Contains(err.Error(), "not attached") {
			t.Errorf("%s - Ping = %v, want not attached", rodTestPrefix, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("%s - Ping reached the browser %d times", rodTestPrefix, n)
	}
	if e.browser != nil || e.page != nil {
		t.Errorf("%s - Ping left an attachment behind", rodTestPrefix)
	}
}

func TestRodExecutor_ConnectWithoutControlURL(t *testing.T) {
	e := NewRodExecutor(RodOptions{})
	defer e.Close()

	err := e.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no browser control URL") {
		t.Errorf("%s - Connect = %v", rodTestPrefix, err)
	}
}

func TestRodExecutor_ClosedExecutorNeverDials(t *testing.T) {
	controlURL, hits := devtoolsStub(t)
	e := NewRodExecutor(RodOptions{ControlURL: controlURL})
	e.Close()
	e.Close()

	_, err := e.Execute(context.Background(), Request{Method: http.MethodGet, URL: "https://portal.test/x"})
	if err == nil || !strings.Contains(err.Error(), "executor closed") {
		t.Errorf("%s - Execute after Close = %v", rodTestPrefix, err)
	}
	if err := e.Connect(context.Background()); err == nil {
		t.Errorf("%s - Connect after Close should fail", rodTestPrefix)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("%s - closed executor reached the browser %d times", rodTestPrefix, n)
	}
}

func TestRodExecutor_CloseKeepsConnectionContextSeparate(t *testing.T) {
	e := NewRodExecutor(RodOptions{ControlURL: "ws://127.0.0.1:1/devtools/browser/x"})

	// A request context ending must not end the executor's connection scope.
	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = e.Ping(reqCtx)
	if e.ctx.Err() != nil {
		t.Fatalf("%s - executor context ended with a request context", rodTestPrefix)
	}

	e.Close()
	if e.ctx.Err() == nil {
		t.Errorf("%s - Close should end the connection scope", rodTestPrefix)
	}
}
