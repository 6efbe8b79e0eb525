// Package portal talks to the case-management portal through an already
// authenticated browser session.
package portal

import "context"

// Request is one fetch issued from inside the session.
type Request struct {
	Method string
	URL    string
	// Body is the JSON payload for POST/PUT; nil for GET.
	Body []byte
}

// Result is what the page's fetch reported back.
type Result struct {
	OK         bool   `json:"ok"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Body       string `json:"body"`
}

// Executor runs fetch-style calls with the credentials of an existing session.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (*Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
