package notifications

import "log/slog"

type emitter struct {
	logger *slog.Logger
}

// NewEmitter creates a Sink that records events through the service logger.
// It stands in for a push-delivery transport, which lives outside this
// process.
func NewEmitter(logger *slog.Logger) Sink {
	return &emitter{
		logger: logger.With("system", "notifications"),
	}
}

func (e *emitter) Send(event Event) {
	e.logger.Info(
		"workflow notification",
		"type", event.Type,
		"workflow_id", event.WorkflowID,
		"document_id", event.DocumentID,
		"actor", event.ActorID,
		"message", event.Message,
	)
}

type multi []Sink

// Multi fans one event out to several sinks in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Send(event Event) {
	for _, s := range m {
		s.Send(event)
	}
}
