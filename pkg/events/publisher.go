package events

import "context"

// EventPublisher is the interface for publishing registration events.
type EventPublisher interface {
	PublishRegistration(ctx context.Context, event *RegistrationEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (CLI runs without NATS).
type NoOpPublisher struct{}

// PublishRegistration is a no-op.
func (p *NoOpPublisher) PublishRegistration(_ context.Context, _ *RegistrationEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RegistrationEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RegistrationEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishRegistration calls the callback.
func (p *CallbackPublisher) PublishRegistration(ctx context.Context, event *RegistrationEvent) error {
	return p.callback(ctx, event)
}
