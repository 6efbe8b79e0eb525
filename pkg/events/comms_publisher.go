package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/cadastro-incidental/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// EventSubject overrides the global registration event subject (CADASTRO_EVENT_SUBJECT).
	EventSubject string
}

// CommsPublisher publishes registration events to COMMS subjects.
type CommsPublisher struct {
	nc           *comms.Conn
	eventSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectRegistrationEvent
	if opts != nil && opts.EventSubject != "" {
		subject = opts.EventSubject
	}
	return &CommsPublisher{nc: nc, eventSubject: subject}
}

// PublishRegistration publishes the event on the per-case subject and on the global subject.
func (p *CommsPublisher) PublishRegistration(_ context.Context, event *RegistrationEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	caseSubject := commsutil.BuildRegistrationSubject(p.eventSubject, event.Status, event.NPJ)
	if err := p.nc.Publish(caseSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, caseSubject, err))
		return err
	}

	if err := p.nc.Publish(p.eventSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.eventSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for npj %s", commsPublisherLogPrefix, event.Status, event.NPJ))
	return nil
}
